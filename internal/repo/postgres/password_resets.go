package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/expertjobs/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrResetTokenInvalid = errors.New("reset token invalid or expired")

type PasswordResetsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewPasswordResetsRepo(pool *pgxpool.Pool, prom *observability.Prom) *PasswordResetsRepo {
	return &PasswordResetsRepo{pool: pool, prom: prom}
}

func (r *PasswordResetsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *PasswordResetsRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.BeginTx(ctx, pgx.TxOptions{})
}

func (r *PasswordResetsRepo) CreateTx(ctx context.Context, tx pgx.Tx, tokenHash, userID string, expiresAt time.Time) error {
	return r.observe("password_resets.create", func() error {
		_, err := tx.Exec(ctx, `
			INSERT INTO password_resets (token_hash, user_id, expires_at, created_at)
			VALUES ($1, $2, $3, NOW())
		`, tokenHash, userID, expiresAt)
		return err
	})
}

// ConsumeTx marks an unused, unexpired token as used and returns its owner.
func (r *PasswordResetsRepo) ConsumeTx(ctx context.Context, tx pgx.Tx, tokenHash string) (string, error) {
	var userID string
	err := r.observe("password_resets.consume", func() error {
		return tx.QueryRow(ctx, `
			UPDATE password_resets
			SET used_at = NOW()
			WHERE token_hash = $1 AND used_at IS NULL AND expires_at > NOW()
			RETURNING user_id
		`, tokenHash).Scan(&userID)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrResetTokenInvalid
	}
	return userID, err
}

func (r *PasswordResetsRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.observe("password_resets.delete_expired", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM password_resets WHERE expires_at < $1 OR used_at IS NOT NULL`, cutoff)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}
