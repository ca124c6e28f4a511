package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/geocoder89/expertjobs/internal/config"
	"github.com/geocoder89/expertjobs/internal/domain/identity"
	"github.com/geocoder89/expertjobs/internal/domain/user"
	"github.com/geocoder89/expertjobs/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureEmployer creates the configured demo employer and its profile
// document when SEED_EMPLOYER_EMAIL and SEED_EMPLOYER_PASSWORD are set.
func EnsureEmployer(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.SeedEmployerEmail == "" || cfg.SeedEmployerPassword == "" {
		return nil
	}

	var existing string
	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE LOWER(email) = LOWER($1)`, cfg.SeedEmployerEmail).Scan(&existing)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(cfg.SeedEmployerPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	id := uuid.NewString()

	profile, err := user.NewProfile("Demo Employer", cfg.SeedEmployerEmail, identity.RoleEmployer, now).Record()
	if err != nil {
		return err
	}
	fields, err := json.Marshal(profile)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, display_name, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $5)`,
		id, cfg.SeedEmployerEmail, hash, "Demo Employer", now,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO documents (collection, id, fields, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $2, $4, $4)`,
		user.ProfileCollection, id, fields, now,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
