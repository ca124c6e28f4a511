package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/geocoder89/expertjobs/internal/directory"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// FieldError points at one rejected part of a request: a body path such as
// "fields.status" or a query parameter such as "where[1]".
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// bodyChecker is implemented by request bodies with rules a tag can't express.
type bodyChecker interface {
	checkBody() []FieldError
}

func init() {
	// validation errors name fields the way the client sent them
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// BindJSON decodes and validates the request body into out. When it returns
// false the error response has already been written.
func BindJSON(ctx *gin.Context, out any) bool {
	err := ctx.ShouldBindJSON(out)
	if err == nil {
		if c, ok := out.(bodyChecker); ok {
			if fields := c.checkBody(); len(fields) > 0 {
				RespondBadRequest(ctx, "Invalid request body", gin.H{"fields": fields})
				return false
			}
		}
		return true
	}

	var (
		tooLarge  *http.MaxBytesError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		tagErrs   validator.ValidationErrors
	)

	switch {
	case errors.As(err, &tooLarge):
		RespondError(ctx, http.StatusRequestEntityTooLarge, "payload_too_large",
			fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), nil)
	case errors.Is(err, io.EOF):
		RespondBadRequest(ctx, "Request body is required", gin.H{"json": "empty"})
	case errors.As(err, &syntaxErr):
		RespondBadRequest(ctx, "Malformed JSON", gin.H{"json": "syntax", "offset": syntaxErr.Offset})
	case errors.Is(err, io.ErrUnexpectedEOF):
		RespondBadRequest(ctx, "Malformed JSON", gin.H{"json": "truncated"})
	case errors.As(err, &typeErr):
		RespondBadRequest(ctx, "Invalid request body", gin.H{"fields": []FieldError{typeFieldError(typeErr)}})
	case errors.As(err, &tagErrs):
		fields := make([]FieldError, 0, len(tagErrs))
		for _, fe := range tagErrs {
			fields = append(fields, tagFieldError(fe))
		}
		RespondBadRequest(ctx, "Invalid request body", gin.H{"fields": fields})
	default:
		RespondBadRequest(ctx, "Invalid request body", gin.H{"json": "invalid"})
	}
	return false
}

// RespondQueryError reports a refused where, orderBy or limit parameter with
// the same field details a body error carries.
func RespondQueryError(ctx *gin.Context, err error) {
	var pe *directory.ParamError
	if !errors.As(err, &pe) {
		RespondBadRequest(ctx, "Invalid query", gin.H{"reason": err.Error()})
		return
	}

	RespondBadRequest(ctx, "Invalid query", gin.H{"fields": []FieldError{{
		Field:   pe.Path(),
		Rule:    "format",
		Param:   pe.Value,
		Message: pe.Err.Error(),
	}}})
}

func typeFieldError(e *json.UnmarshalTypeError) FieldError {
	field := e.Field
	if field == "" {
		field = "body"
	}
	want := jsonKind(e.Type)
	return FieldError{
		Field:   field,
		Rule:    "type",
		Param:   want,
		Message: fmt.Sprintf("must be a JSON %s, got %s", want, e.Value),
	}
}

func jsonKind(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Pointer:
		return jsonKind(t.Elem())
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	}
	return "number"
}

func tagFieldError(fe validator.FieldError) FieldError {
	// drop the request type: "PutDocumentRequest.fields" -> "fields"
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	return FieldError{
		Field:   path,
		Rule:    fe.Tag(),
		Param:   fe.Param(),
		Message: ruleMessage(fe),
	}
}

func ruleMessage(fe validator.FieldError) string {
	unit := "characters"
	switch fe.Kind() {
	case reflect.Map:
		unit = "fields"
	case reflect.Slice, reflect.Array:
		unit = "items"
	}

	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must have at least %s %s", fe.Param(), unit)
	case "max":
		return fmt.Sprintf("must have at most %s %s", fe.Param(), unit)
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "failed " + fe.Tag()
}
