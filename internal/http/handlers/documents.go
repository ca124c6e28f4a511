package handlers

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/geocoder89/expertjobs/internal/directory"
	"github.com/geocoder89/expertjobs/internal/documents"
	"github.com/geocoder89/expertjobs/internal/http/middlewares"
	"github.com/geocoder89/expertjobs/internal/repo/postgres"
	"github.com/gin-gonic/gin"
)

const maxQueryLimit = 500

type DocumentService interface {
	Create(ctx context.Context, collection, id string, fields directory.Record) (string, error)
	Merge(ctx context.Context, collection, id string, fields directory.Record) error
	Query(ctx context.Context, collection string, filters []directory.Filter, orders []directory.Order, limit int) ([]directory.Record, error)
}

type DocumentsHandler struct {
	svc DocumentService
	log *slog.Logger
}

func NewDocumentsHandler(svc DocumentService, log *slog.Logger) *DocumentsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DocumentsHandler{svc: svc, log: log}
}

type PutDocumentRequest struct {
	Fields directory.Record `json:"fields" binding:"required"`
}

// top-level keys must be usable as where/orderBy fields
func (r *PutDocumentRequest) checkBody() []FieldError {
	var out []FieldError
	for _, key := range slices.Sorted(maps.Keys(r.Fields)) {
		if err := directory.ValidateField(key); err != nil {
			out = append(out, FieldError{
				Field:   "fields." + key,
				Rule:    "field_name",
				Message: "must be non-empty without dots, spaces, quotes or $",
			})
		}
	}
	return out
}

// the request context carries the caller set by the auth middleware
func requestContext(ctx *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), timeout)
}

// POST /v1/collections/:collection/documents
func (h *DocumentsHandler) Create(ctx *gin.Context) {
	collection := ctx.Param("collection")
	ctx.Set(middlewares.CtxCollection, collection)

	var req PutDocumentRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := requestContext(ctx, 3*time.Second)
	defer cancel()

	id, err := h.svc.Create(cctx, collection, "", req.Fields)
	if err != nil {
		h.respondDocumentError(ctx, err)
		return
	}

	ctx.Set(middlewares.CtxDocID, id)
	ctx.JSON(http.StatusCreated, gin.H{"id": id})
}

// PUT /v1/collections/:collection/documents/:id
func (h *DocumentsHandler) Merge(ctx *gin.Context) {
	collection := ctx.Param("collection")
	id := ctx.Param("id")
	ctx.Set(middlewares.CtxCollection, collection)
	ctx.Set(middlewares.CtxDocID, id)

	var req PutDocumentRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := requestContext(ctx, 3*time.Second)
	defer cancel()

	if err := h.svc.Merge(cctx, collection, id, req.Fields); err != nil {
		h.respondDocumentError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"id": id})
}

// GET /v1/collections/:collection/documents?where=field,op,value&orderBy=field,desc&limit=n
func (h *DocumentsHandler) Query(ctx *gin.Context) {
	collection := ctx.Param("collection")
	ctx.Set(middlewares.CtxCollection, collection)

	q := ctx.Request.URL.Query()

	filters, orders, err := directory.DecodeQuery(q)
	if err != nil {
		RespondQueryError(ctx, err)
		return
	}

	limit, err := directory.ParseLimit(q, maxQueryLimit)
	if err != nil {
		RespondQueryError(ctx, err)
		return
	}

	cctx, cancel := requestContext(ctx, 3*time.Second)
	defer cancel()

	items, err := h.svc.Query(cctx, collection, filters, orders, limit)
	if err != nil {
		h.respondDocumentError(ctx, err)
		return
	}
	if items == nil {
		items = []directory.Record{}
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *DocumentsHandler) respondDocumentError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, directory.ErrUnknownCollection):
		RespondError(ctx, http.StatusNotFound, "unknown_collection", "Unknown collection", nil)
	case errors.Is(err, documents.ErrUnauthenticated):
		RespondUnAuthorized(ctx, "unauthenticated", "Sign in required")
	case errors.Is(err, directory.ErrForbidden):
		RespondForbidden(ctx, "Missing or insufficient permissions.")
	case errors.Is(err, directory.ErrNotFound):
		RespondNotFound(ctx, "Document not found")
	case errors.Is(err, documents.ErrInvalidDocument):
		RespondBadRequest(ctx, err.Error(), nil)
	case errors.Is(err, postgres.ErrDocumentExists):
		RespondConflict(ctx, "already_exists", "Document already exists")
	case errors.Is(err, context.DeadlineExceeded):
		RespondUnavailable(ctx, "The document store did not answer in time")
	default:
		h.log.ErrorContext(ctx.Request.Context(), "document operation failed", "err", err)
		RespondInternal(ctx, "Could not complete the request")
	}
}
