package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/expertjobs/internal/domain/task"
	"github.com/geocoder89/expertjobs/internal/domain/user"
	"github.com/geocoder89/expertjobs/internal/notifications"
	"github.com/geocoder89/expertjobs/internal/tasks"
)

const (
	deliveryPasswordReset       = "password_reset"
	deliveryApplicationReceived = "application_received"
)

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err: err} }

// ProcessOne claims and runs at most one task. processed is false when the
// queue was empty.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	t, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	w.stats.IncClaimed()
	if w.prom != nil {
		w.prom.TasksInFlight.Inc()
		defer w.prom.TasksInFlight.Dec()
	}

	start := w.now()
	err = w.execute(ctx, t)
	elapsed := w.now().Sub(start)
	w.stats.ObserveDuration(elapsed)

	if err != nil {
		result := w.handleFailure(ctx, t, err)
		w.observe(t.Type, result, elapsed)
		return true, nil
	}

	if err := w.repo.MarkDone(ctx, t.ID); err != nil {
		_ = w.repo.MarkFailed(ctx, t.ID, "mark_done_failed: "+err.Error())
		w.observe(t.Type, "error", elapsed)
		return true, err
	}

	w.stats.IncDone()
	w.observe(t.Type, "done", elapsed)
	w.log.InfoContext(ctx, "task done", "task_id", t.ID, "type", t.Type, "attempt", t.Attempts+1)
	return true, nil
}

func (w *Worker) observe(taskType, result string, d time.Duration) {
	if w.prom != nil {
		w.prom.ObserveTask(taskType, result, d)
	}
}

func (w *Worker) handleFailure(ctx context.Context, t task.Task, cause error) string {
	var perm permanentError
	if errors.As(cause, &perm) || t.Exhausted() {
		if err := w.repo.MarkFailed(ctx, t.ID, cause.Error()); err != nil {
			w.log.ErrorContext(ctx, "mark failed", "task_id", t.ID, "err", err)
		}
		w.stats.IncDeadLettered()
		w.log.ErrorContext(ctx, "task dead-lettered", "task_id", t.ID, "type", t.Type, "attempts", t.Attempts+1, "err", cause)
		return "dead_lettered"
	}

	runAt := w.now().Add(w.backoff(t.Attempts))
	if err := w.repo.Reschedule(ctx, t.ID, runAt, cause.Error()); err != nil {
		w.log.ErrorContext(ctx, "reschedule", "task_id", t.ID, "err", err)
	}
	w.stats.IncRetried()
	w.log.WarnContext(ctx, "task rescheduled", "task_id", t.ID, "type", t.Type, "run_at", runAt, "err", cause)
	return "retried"
}

func (w *Worker) execute(ctx context.Context, t task.Task) error {
	payload, err := tasks.DecodePayload(tasks.Type(t.Type), t.Payload)
	if err != nil {
		return permanent(err)
	}

	switch p := payload.(type) {
	case tasks.PasswordResetEmailPayload:
		return w.deliver(ctx, deliveryPasswordReset, t.ID, t.ID, p.Email, func(ctx context.Context) error {
			return w.notifier.SendPasswordReset(ctx, notifications.PasswordResetInput{
				Email:     p.Email,
				Token:     p.Token,
				ExpiresAt: p.ExpiresAt,
			})
		})

	case tasks.ApplicationReceivedPayload:
		if w.users == nil {
			return permanent(errNoUsers)
		}
		employer, err := w.users.GetByID(ctx, p.EmployerID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return permanent(fmt.Errorf("employer %s: %w", p.EmployerID, err))
			}
			return err
		}

		return w.deliver(ctx, deliveryApplicationReceived, p.ApplicationID, t.ID, employer.Email, func(ctx context.Context) error {
			return w.notifier.SendApplicationReceived(ctx, notifications.ApplicationReceivedInput{
				EmployerEmail: employer.Email,
				JobTitle:      p.JobTitle,
				ApplicantName: p.ApplicantName,
				ApplicationID: p.ApplicationID,
			})
		})

	default:
		return permanent(tasks.ErrInvalidType)
	}
}

// deliver sends at most once per (kind, refID) when a ledger is configured.
func (w *Worker) deliver(ctx context.Context, kind, refID, taskID, recipient string, send func(context.Context) error) error {
	if w.ledger != nil {
		err := w.ledger.TryStart(ctx, kind, refID, taskID, recipient)
		if errors.Is(err, notifications.ErrAlreadySent) {
			w.log.InfoContext(ctx, "notification already sent", "kind", kind, "ref_id", refID)
			return nil
		}
		if err != nil {
			return err
		}
	}

	if err := send(ctx); err != nil {
		if w.ledger != nil {
			_ = w.ledger.MarkFailed(ctx, kind, refID, err.Error())
		}
		return err
	}

	if w.ledger != nil {
		if err := w.ledger.MarkSent(ctx, kind, refID, nil); err != nil {
			w.log.WarnContext(ctx, "mark delivery sent", "kind", kind, "ref_id", refID, "err", err)
		}
	}
	return nil
}
