package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/expertjobs/internal/domain/task"
	"github.com/geocoder89/expertjobs/internal/observability"
	"github.com/geocoder89/expertjobs/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTaskNotFailed = errors.New("task is not failed")

const taskColumns = `id, type, payload, status, attempts, max_attempts, run_at, locked_at, locked_by,
	last_error, idempotency_key, priority, user_id, created_at, updated_at`

type TasksRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewTasksRepo(pool *pgxpool.Pool, prom *observability.Prom) *TasksRepo {
	return &TasksRepo{pool: pool, prom: prom}
}

func (r *TasksRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func scanTask(row pgx.Row) (task.Task, error) {
	var t task.Task
	var status string
	err := row.Scan(
		&t.ID, &t.Type, &t.Payload, &status,
		&t.Attempts, &t.MaxAttempts,
		&t.RunAt, &t.LockedAt, &t.LockedBy,
		&t.LastError, &t.IdempotencyKey, &t.Priority, &t.UserID,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.Task{}, task.ErrNotFound
		}
		return task.Task{}, err
	}
	t.Status = task.Status(status)
	return t, nil
}

// CreateTx enqueues a task inside the caller's transaction. A repeated
// idempotency key is not an error: the first task stands.
func (r *TasksRepo) CreateTx(ctx context.Context, tx pgx.Tx, req task.CreateRequest) (task.Task, error) {
	t := task.New(req)

	err := r.observe("tasks.create_tx", func() error {
		_, err := tx.Exec(ctx, `
			INSERT INTO tasks (`+taskColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (idempotency_key) DO NOTHING
		`, t.ID, t.Type, t.Payload, string(t.Status), t.Attempts, t.MaxAttempts, t.RunAt,
			t.LockedAt, t.LockedBy, t.LastError, t.IdempotencyKey, t.Priority, t.UserID, t.CreatedAt, t.UpdatedAt)
		return err
	})
	if err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (r *TasksRepo) Create(ctx context.Context, req task.CreateRequest) (task.Task, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return task.Task{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t, err := r.CreateTx(ctx, tx, req)
	if err != nil {
		return task.Task{}, err
	}
	return t, tx.Commit(ctx)
}

// ClaimNext locks one runnable task for workerID. task.ErrNotFound means the
// queue is empty.
func (r *TasksRepo) ClaimNext(ctx context.Context, workerID string) (task.Task, error) {
	var t task.Task
	err := r.observe("tasks.claim_next", func() error {
		var err error
		t, err = scanTask(r.pool.QueryRow(ctx, `
			WITH next AS (
				SELECT id
				FROM tasks
				WHERE status = 'pending'
				  AND run_at <= NOW()
				  AND attempts < max_attempts
				ORDER BY priority DESC, run_at ASC, created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			UPDATE tasks
			SET status = 'processing',
			    locked_at = NOW(),
			    locked_by = $1,
			    updated_at = NOW()
			WHERE id = (SELECT id FROM next)
			RETURNING `+taskColumns, workerID))
		return err
	})
	return t, err
}

func (r *TasksRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	var tag pgconn.CommandTag
	err := r.observe(op, func() error {
		var err error
		tag, err = r.pool.Exec(ctx, sql, args...)
		return err
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (r *TasksRepo) MarkDone(ctx context.Context, id string) error {
	return r.exec(ctx, "tasks.mark_done", `
		UPDATE tasks
		SET status = 'done',
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, id)
}

// MarkFailed dead-letters a task. It stays in the table for the admin
// retry endpoints.
func (r *TasksRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.exec(ctx, "tasks.mark_failed", `
		UPDATE tasks
		SET status = 'failed',
		    attempts = attempts + 1,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, id, errMsg)
}

func (r *TasksRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	return r.exec(ctx, "tasks.reschedule", `
		UPDATE tasks
		SET status = 'pending',
		    attempts = attempts + 1,
		    run_at = $2,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, id, runAt, errMsg)
}

// RequeueStaleProcessing returns tasks whose worker died mid-flight to the queue.
func (r *TasksRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	secs := int64(lockTTL.Seconds())
	if secs <= 0 {
		secs = 30
	}

	var rows int64
	err := r.observe("tasks.requeue_stale", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE tasks
			SET status = 'pending',
			    locked_at = NULL,
			    locked_by = NULL,
			    updated_at = NOW()
			WHERE status = 'processing'
			  AND locked_at IS NOT NULL
			  AND locked_at < NOW() - ($1 * INTERVAL '1 second')
		`, secs)
		if err != nil {
			return err
		}
		rows = tag.RowsAffected()
		return nil
	})
	return rows, err
}

// Admin ops

func (r *TasksRepo) ListCursor(
	ctx context.Context,
	status *string,
	limit int,
	afterUpdatedAt time.Time,
	afterID string,
) (items []task.Task, nextCursor *string, hasMore bool, err error) {
	var (
		conds []string
		args  []any
		pos   = 1
	)

	if status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", pos))
		args = append(args, *status)
		pos++
	}

	// DESC keyset: rows older than the cursor
	conds = append(conds, fmt.Sprintf("(updated_at, id) < ($%d, $%d)", pos, pos+1))
	args = append(args, afterUpdatedAt, afterID)
	pos += 2

	q := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(conds, " AND ") +
		fmt.Sprintf(" ORDER BY updated_at DESC, id DESC LIMIT $%d", pos)
	args = append(args, limit+1)

	var rows pgx.Rows
	err = r.observe("tasks.admin.list_cursor", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, q, args...)
		return qerr
	})
	if err != nil {
		return nil, nil, false, err
	}
	defer rows.Close()

	out := make([]task.Task, 0, limit)
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, nil, false, scanErr
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, nil, false, rows.Err()
	}

	if len(out) > limit {
		hasMore = true
		out = out[:limit]
		last := out[len(out)-1]

		cur, encErr := utils.EncodeTaskCursor(last.UpdatedAt, last.ID)
		if encErr != nil {
			return nil, nil, false, encErr
		}
		nextCursor = &cur
	}

	return out, nextCursor, hasMore, nil
}

func (r *TasksRepo) GetByID(ctx context.Context, id string) (task.Task, error) {
	var t task.Task
	err := r.observe("tasks.admin.get_by_id", func() error {
		var err error
		t, err = scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
		return err
	})
	return t, err
}

func (r *TasksRepo) Retry(ctx context.Context, id string) error {
	var status string
	err := r.observe("tasks.admin.retry.check_status", func() error {
		return r.pool.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1`, id).Scan(&status)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.ErrNotFound
		}
		return err
	}
	if status != string(task.StatusFailed) {
		return ErrTaskNotFailed
	}

	return r.exec(ctx, "tasks.admin.retry.requeue", `
		UPDATE tasks
		SET status = 'pending',
		    attempts = 0,
		    run_at = NOW(),
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, id)
}

func (r *TasksRepo) RetryManyFailed(ctx context.Context, limit int) (int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var n int64
	err := r.observe("tasks.admin.retry_many_failed", func() error {
		tag, err := r.pool.Exec(ctx, `
			WITH picked AS (
				SELECT id
				FROM tasks
				WHERE status = 'failed'
				ORDER BY updated_at DESC
				LIMIT $1
			)
			UPDATE tasks
			SET status = 'pending',
			    attempts = 0,
			    run_at = NOW(),
			    locked_at = NULL,
			    locked_by = NULL,
			    last_error = NULL,
			    updated_at = NOW()
			WHERE id IN (SELECT id FROM picked)
		`, limit)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}
