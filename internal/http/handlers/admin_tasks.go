package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/expertjobs/internal/config"
	"github.com/geocoder89/expertjobs/internal/domain/task"
	"github.com/geocoder89/expertjobs/internal/http/middlewares"
	"github.com/geocoder89/expertjobs/internal/repo/postgres"
	"github.com/geocoder89/expertjobs/internal/utils"
	"github.com/gin-gonic/gin"
)

type AdminTasksRepo interface {
	ListCursor(
		ctx context.Context,
		status *string,
		limit int,
		afterUpdatedAt time.Time,
		afterID string,
	) (items []task.Task, nextCursor *string, hasMore bool, err error)
	GetByID(ctx context.Context, id string) (task.Task, error)
	Retry(ctx context.Context, id string) error
	RetryManyFailed(ctx context.Context, limit int) (int64, error)
}

type AdminTasksHandler struct {
	repo AdminTasksRepo
}

func NewAdminTasksHandler(repo AdminTasksRepo) *AdminTasksHandler {
	return &AdminTasksHandler{repo: repo}
}

func parseIntDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// GET /admin/tasks?status=failed&limit=50&cursor=...
func (h *AdminTasksHandler) List(ctx *gin.Context) {
	limit := parseIntDefault(ctx.Query("limit"), 20)
	if limit < 1 || limit > 100 {
		RespondBadRequest(ctx, "invalid_query", "limit must be between 1 and 100")
		return
	}

	var statusPtr *string
	if s := ctx.Query("status"); s != "" {
		switch task.Status(s) {
		case task.StatusPending, task.StatusProcessing, task.StatusDone, task.StatusFailed:
		default:
			RespondBadRequest(ctx, "invalid_query", "status must be pending, processing, done or failed")
			return
		}
		statusPtr = &s
	}

	// DESC first-page sentinel: "far future" + max UUID
	afterUpdatedAt := time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	afterID := "ffffffff-ffff-ffff-ffff-ffffffffffff"

	if cursor := ctx.Query("cursor"); cursor != "" {
		cur, err := utils.DecodeTaskCursor(cursor)
		if err != nil {
			RespondBadRequest(ctx, "invalid_query", "cursor is invalid")
			return
		}
		afterUpdatedAt = cur.UpdatedAt
		afterID = cur.ID
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, next, hasMore, err := h.repo.ListCursor(cctx, statusPtr, limit, afterUpdatedAt, afterID)
	if err != nil {
		RespondInternal(ctx, "Could not list tasks")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"limit":      limit,
		"count":      len(items),
		"items":      items,
		"hasMore":    hasMore,
		"nextCursor": next,
	})
}

// GET /admin/tasks/:id
func (h *AdminTasksHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")
	ctx.Set(middlewares.CtxTaskID, id)

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_request", "invalid_id")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	t, err := h.repo.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			RespondNotFound(ctx, "Task not found")
			return
		}
		RespondInternal(ctx, "Could not fetch task")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, t)
}

// POST /admin/tasks/:id/retry
func (h *AdminTasksHandler) Retry(ctx *gin.Context) {
	id := ctx.Param("id")
	ctx.Set(middlewares.CtxTaskID, id)

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_request", "invalid_id")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	if err := h.repo.Retry(cctx, id); err != nil {
		switch {
		case errors.Is(err, task.ErrNotFound):
			RespondNotFound(ctx, "Task not found")
		case errors.Is(err, postgres.ErrTaskNotFailed):
			RespondConflict(ctx, "task_not_failed", "Only failed tasks can be retried")
		default:
			RespondInternal(ctx, "Could not retry task")
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"taskId": id,
		"status": task.StatusPending,
	})
}

// POST /admin/tasks/reprocess-dead?limit=50
func (h *AdminTasksHandler) ReprocessDead(ctx *gin.Context) {
	limit := 50
	if s := ctx.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			RespondBadRequest(ctx, "invalid_request", "limit must be a number")
			return
		}
		limit = n
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	n, err := h.repo.RetryManyFailed(cctx, limit)
	if err != nil {
		RespondInternal(ctx, "Could not reprocess dead tasks")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"requeued": n})
}
