package handlers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/geocoder89/expertjobs/internal/domain/task"
	"github.com/geocoder89/expertjobs/internal/http/handlers"
	"github.com/geocoder89/expertjobs/internal/repo/postgres"
	"github.com/geocoder89/expertjobs/internal/utils"
	"github.com/gin-gonic/gin"
)

type fakeAdminTasksRepo struct {
	ListCursorFn      func(ctx context.Context, status *string, limit int, afterUpdatedAt time.Time, afterID string) ([]task.Task, *string, bool, error)
	GetByIDFn         func(ctx context.Context, id string) (task.Task, error)
	RetryFn           func(ctx context.Context, id string) error
	RetryManyFailedFn func(ctx context.Context, limit int) (int64, error)
}

func (f *fakeAdminTasksRepo) ListCursor(ctx context.Context, status *string, limit int, afterUpdatedAt time.Time, afterID string) ([]task.Task, *string, bool, error) {
	return f.ListCursorFn(ctx, status, limit, afterUpdatedAt, afterID)
}

func (f *fakeAdminTasksRepo) GetByID(ctx context.Context, id string) (task.Task, error) {
	return f.GetByIDFn(ctx, id)
}

func (f *fakeAdminTasksRepo) Retry(ctx context.Context, id string) error {
	return f.RetryFn(ctx, id)
}

func (f *fakeAdminTasksRepo) RetryManyFailed(ctx context.Context, limit int) (int64, error) {
	return f.RetryManyFailedFn(ctx, limit)
}

func newAdminRouter(repo handlers.AdminTasksRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := handlers.NewAdminTasksHandler(repo)
	r := gin.New()
	r.GET("/admin/tasks", h.List)
	r.GET("/admin/tasks/:id", h.GetByID)
	r.POST("/admin/tasks/:id/retry", h.Retry)
	r.POST("/admin/tasks/reprocess-dead", h.ReprocessDead)
	return r
}

const taskID = "6f1c2d3e-4b5a-4c6d-8e7f-9a0b1c2d3e4f"

func TestAdminTasks_ListUsesCursor(t *testing.T) {
	cursorAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cursor, err := utils.EncodeTaskCursor(cursorAt, taskID)
	if err != nil {
		t.Fatalf("encode cursor: %v", err)
	}

	var (
		gotStatus *string
		gotAfter  time.Time
		gotID     string
	)
	repo := &fakeAdminTasksRepo{
		ListCursorFn: func(ctx context.Context, status *string, limit int, afterUpdatedAt time.Time, afterID string) ([]task.Task, *string, bool, error) {
			gotStatus, gotAfter, gotID = status, afterUpdatedAt, afterID
			return []task.Task{{ID: "t1", Status: task.StatusFailed}}, nil, false, nil
		},
	}

	w := doJSON(newAdminRouter(repo), http.MethodGet, "/admin/tasks?status=failed&limit=5&cursor="+cursor, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if gotStatus == nil || *gotStatus != "failed" {
		t.Fatalf("status filter not forwarded")
	}
	if !gotAfter.Equal(cursorAt) || gotID != taskID {
		t.Fatalf("cursor not decoded: %v %s", gotAfter, gotID)
	}
}

func TestAdminTasks_ListRejectsBadInput(t *testing.T) {
	r := newAdminRouter(&fakeAdminTasksRepo{})

	for _, q := range []string{"limit=0", "limit=101", "status=stuck", "cursor=!!!"} {
		w := doJSON(r, http.MethodGet, "/admin/tasks?"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", q, w.Code)
		}
	}
}

func TestAdminTasks_GetByID(t *testing.T) {
	repo := &fakeAdminTasksRepo{
		GetByIDFn: func(ctx context.Context, id string) (task.Task, error) {
			return task.Task{}, task.ErrNotFound
		},
	}
	r := newAdminRouter(repo)

	if w := doJSON(r, http.MethodGet, "/admin/tasks/not-a-uuid", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/admin/tasks/"+taskID, ""); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAdminTasks_RetryOnlyFailed(t *testing.T) {
	repo := &fakeAdminTasksRepo{
		RetryFn: func(ctx context.Context, id string) error {
			return postgres.ErrTaskNotFailed
		},
	}

	w := doJSON(newAdminRouter(repo), http.MethodPost, "/admin/tasks/"+taskID+"/retry", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if got := decode[errorResp](t, w).Error.Code; got != "task_not_failed" {
		t.Fatalf("code = %q", got)
	}

	repo.RetryFn = func(ctx context.Context, id string) error { return nil }
	w = doJSON(newAdminRouter(repo), http.MethodPost, "/admin/tasks/"+taskID+"/retry", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAdminTasks_ReprocessDead(t *testing.T) {
	var gotLimit int
	repo := &fakeAdminTasksRepo{
		RetryManyFailedFn: func(ctx context.Context, limit int) (int64, error) {
			gotLimit = limit
			return 3, nil
		},
	}
	r := newAdminRouter(repo)

	w := doJSON(r, http.MethodPost, "/admin/tasks/reprocess-dead", "")
	if w.Code != http.StatusOK || gotLimit != 50 {
		t.Fatalf("status = %d limit = %d", w.Code, gotLimit)
	}
	if body := decode[map[string]int](t, w); body["requeued"] != 3 {
		t.Fatalf("unexpected body: %v", body)
	}

	if w := doJSON(r, http.MethodPost, "/admin/tasks/reprocess-dead?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}
