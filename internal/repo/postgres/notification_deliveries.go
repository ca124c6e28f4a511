package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/expertjobs/internal/notifications"
	"github.com/geocoder89/expertjobs/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationDeliveriesRepo records which notifications went out, so a task
// retried after a crash does not mail twice.
type NotificationDeliveriesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewNotificationDeliveriesRepo(pool *pgxpool.Pool, prom *observability.Prom) *NotificationDeliveriesRepo {
	return &NotificationDeliveriesRepo{pool: pool, prom: prom}
}

func (r *NotificationDeliveriesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// TryStart claims the (kind, refID) delivery for sending. It returns
// notifications.ErrAlreadySent or notifications.ErrInProgress when someone
// else got there first.
func (r *NotificationDeliveriesRepo) TryStart(ctx context.Context, kind, refID, taskID, recipient string) error {
	return r.observe("notification_deliveries.try_start", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO notification_deliveries (kind, ref_id, task_id, recipient, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'sending', NOW(), NOW())
		`, kind, refID, taskID, recipient)
		if err == nil {
			return nil
		}
		if !IsUniqueViolation(err) {
			return err
		}

		// Row exists. Only one worker can flip failed -> sending.
		tag, err := r.pool.Exec(ctx, `
			UPDATE notification_deliveries
			SET status = 'sending',
			    task_id = $3,
			    recipient = $4,
			    last_error = NULL,
			    updated_at = NOW()
			WHERE kind = $1 AND ref_id = $2 AND status = 'failed'
		`, kind, refID, taskID, recipient)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var status string
		var sentAt *time.Time
		var owner *string
		err = r.pool.QueryRow(ctx, `
			SELECT status, sent_at, task_id FROM notification_deliveries WHERE kind = $1 AND ref_id = $2
		`, kind, refID).Scan(&status, &sentAt, &owner)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}

		if sentAt != nil || status == "sent" {
			return notifications.ErrAlreadySent
		}
		// A sending row owned by the same task means its previous run died mid-send.
		if owner != nil && *owner == taskID {
			return nil
		}
		return notifications.ErrInProgress
	})
}

func (r *NotificationDeliveriesRepo) MarkSent(ctx context.Context, kind, refID string, providerMessageID *string) error {
	return r.observe("notification_deliveries.mark_sent", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE notification_deliveries
			SET status = 'sent',
			    sent_at = NOW(),
			    provider_message_id = $3,
			    last_error = NULL,
			    updated_at = NOW()
			WHERE kind = $1 AND ref_id = $2
		`, kind, refID, providerMessageID)
		return err
	})
}

func (r *NotificationDeliveriesRepo) MarkFailed(ctx context.Context, kind, refID, errMsg string) error {
	return r.observe("notification_deliveries.mark_failed", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE notification_deliveries
			SET status = 'failed',
			    last_error = $3,
			    updated_at = NOW()
			WHERE kind = $1 AND ref_id = $2
		`, kind, refID, errMsg)
		return err
	})
}
