package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/expertjobs/internal/auth"
	"github.com/geocoder89/expertjobs/internal/config"
	"github.com/geocoder89/expertjobs/internal/domain/task"
	"github.com/geocoder89/expertjobs/internal/domain/user"
	"github.com/geocoder89/expertjobs/internal/repo/postgres"
	"github.com/geocoder89/expertjobs/internal/security"
	"github.com/geocoder89/expertjobs/internal/tasks"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	refreshCookieName = "refresh_token"
	resetTokenTTL     = time.Hour
)

type UserStore interface {
	Create(ctx context.Context, email, passwordHash, displayName string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	UpdatePasswordTx(ctx context.Context, tx pgx.Tx, id, passwordHash string) error
}

type RefreshTokenStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, row postgres.RefreshTokenRow) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (postgres.RefreshTokenRow, error)
	Revoke(ctx context.Context, tx pgx.Tx, id string, replacedBy *string) error
	RevokeAllForUser(ctx context.Context, tx pgx.Tx, userID string) error
}

type PasswordResetStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, tokenHash, userID string, expiresAt time.Time) error
	ConsumeTx(ctx context.Context, tx pgx.Tx, tokenHash string) (string, error)
}

type TaskEnqueuer interface {
	CreateTx(ctx context.Context, tx pgx.Tx, req task.CreateRequest) (task.Task, error)
}

type AuthDeps struct {
	Users   UserStore
	Refresh RefreshTokenStore
	Resets  PasswordResetStore
	Tasks   TaskEnqueuer
	JWT     *auth.Manager
	Logger  *slog.Logger
}

type AuthHandler struct {
	users   UserStore
	refresh RefreshTokenStore
	resets  PasswordResetStore
	tasks   TaskEnqueuer
	jwt     *auth.Manager
	log     *slog.Logger
	cfg     config.Config

	validate *validator.Validate
	now      func() time.Time
}

func NewAuthHandler(deps AuthDeps, cfg config.Config) *AuthHandler {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return &AuthHandler{
		users:    deps.Users,
		refresh:  deps.Refresh,
		resets:   deps.Resets,
		tasks:    deps.Tasks,
		jwt:      deps.JWT,
		log:      log,
		cfg:      cfg,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Requests are checked by hand rather than with binding tags so the error
// codes match the ones sign-in screens already know.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type PasswordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *AuthHandler) validEmail(email string) bool {
	return h.validate.Var(email, "required,email") == nil
}

func respondInvalidEmail(ctx *gin.Context) {
	RespondError(ctx, http.StatusBadRequest, "invalid_email", "The email address is badly formatted.", nil)
}

func respondWeakPassword(ctx *gin.Context) {
	RespondError(ctx, http.StatusBadRequest, "weak_password", "Password should be at least 6 characters.", nil)
}

func respondInvalidCredentials(ctx *gin.Context) {
	RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
}

// POST /auth/signup
func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req CredentialsRequest
	if !BindJSON(ctx, &req) {
		return
	}

	email := strings.TrimSpace(req.Email)
	if !h.validEmail(email) {
		respondInvalidEmail(ctx)
		return
	}
	if err := security.ValidatePassword(req.Password); err != nil {
		respondWeakPassword(ctx)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	u, err := h.users.Create(cctx, email, hash, "")
	if err != nil {
		if errors.Is(err, user.ErrEmailAlreadyUsed) {
			RespondConflict(ctx, "email_in_use", "The email address is already in use by another account.")
			return
		}

		h.log.ErrorContext(ctx.Request.Context(), "signup failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	h.issueSession(ctx, cctx, u, http.StatusCreated)
}

// POST /auth/signin
func (h *AuthHandler) SignIn(ctx *gin.Context) {
	var req CredentialsRequest
	if !BindJSON(ctx, &req) {
		return
	}

	email := strings.TrimSpace(req.Email)
	if !h.validEmail(email) {
		respondInvalidEmail(ctx)
		return
	}
	if req.Password == "" {
		respondInvalidCredentials(ctx)
		return
	}

	// short timeout for DB lookup
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	found, err := h.users.GetByEmail(cctx, email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			h.log.ErrorContext(ctx.Request.Context(), "signin lookup failed", "err", err)
			RespondInternal(ctx, "Could not sign in")
			return
		}
		respondInvalidCredentials(ctx)
		return
	}

	if err := security.CheckPassword(found.PasswordHash, req.Password); err != nil {
		respondInvalidCredentials(ctx)
		return
	}

	h.issueSession(ctx, cctx, found, http.StatusOK)
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(refreshCookieName)
	if err != nil || raw == "" {
		RespondUnAuthorized(ctx, "no_refresh", "Missing refresh token")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	// rotation with a tx with row lock
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.refresh.BeginTx(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}
	defer func() { _ = tx.Rollback(cctx) }()

	row, err := h.refresh.GetForUpdate(cctx, tx, claims.JTI)
	if err != nil || row.RevokedAt != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	if h.now().UTC().After(row.ExpiresAt) {
		RespondUnAuthorized(ctx, "expired_refresh", "Refresh token expired.")
		return
	}

	// the presented token must be the one stored under this jti
	if row.TokenHash != h.jwt.HashRefreshToken(raw) {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	u, err := h.users.GetByID(cctx, row.UserID)
	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	subject := auth.Subject{UserID: u.ID, Email: u.Email, Verified: u.EmailVerified}
	next, err := h.jwt.GenerateRefreshToken(subject)
	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	if err := h.refresh.Revoke(cctx, tx, row.ID, &next.JTI); err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	if err := h.refresh.Create(cctx, tx, h.refreshRow(u.ID, next)); err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "refresh token insert failed", "err", err)
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	if err := tx.Commit(cctx); err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "refresh commit failed", "err", err)
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	access, err := h.jwt.GenerateAccessToken(subject)
	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	h.setRefreshCookie(ctx, next.Raw, next.ExpiresAt)
	ctx.JSON(http.StatusOK, sessionBody(u, access))
}

// POST /auth/signout
func (h *AuthHandler) SignOut(ctx *gin.Context) {
	defer func() {
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
	}()

	raw, err := ctx.Cookie(refreshCookieName)
	if err != nil || raw == "" {
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.refresh.BeginTx(cctx)
	if err != nil {
		h.log.WarnContext(ctx.Request.Context(), "signout: begin tx failed", "err", err)
		return
	}
	defer func() { _ = tx.Rollback(cctx) }()

	// revoking twice is harmless
	_ = h.refresh.Revoke(cctx, tx, claims.JTI, nil)
	_ = tx.Commit(cctx)
}

// POST /auth/password-reset
//
// Always 202 for a well formed address so the endpoint does not reveal which
// emails have accounts.
func (h *AuthHandler) PasswordReset(ctx *gin.Context) {
	var req PasswordResetRequest
	if !BindJSON(ctx, &req) {
		return
	}

	email := strings.TrimSpace(req.Email)
	if !h.validEmail(email) {
		respondInvalidEmail(ctx)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	u, err := h.users.GetByEmail(cctx, email)
	if errors.Is(err, user.ErrNotFound) {
		ctx.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
		return
	}
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "password reset lookup failed", "err", err)
		RespondInternal(ctx, "Could not request password reset")
		return
	}

	if err := h.requestReset(cctx, u); err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "password reset enqueue failed", "user_id", u.ID, "err", err)
		RespondInternal(ctx, "Could not request password reset")
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// requestReset stores the token hash and the mail task in one transaction.
func (h *AuthHandler) requestReset(ctx context.Context, u user.User) error {
	now := h.now().UTC()
	raw := uuid.NewString()
	hash := h.jwt.HashResetToken(raw)
	expiresAt := now.Add(resetTokenTTL)

	payload, err := tasks.EncodePayload(tasks.TypePasswordResetEmail, tasks.PasswordResetEmailPayload{
		UserID:      u.ID,
		Email:       u.Email,
		Token:       raw,
		ExpiresAt:   expiresAt,
		RequestedAt: now,
	})
	if err != nil {
		return err
	}

	tx, err := h.resets.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.resets.CreateTx(ctx, tx, hash, u.ID, expiresAt); err != nil {
		return err
	}

	key := "password_reset:" + hash
	uid := u.ID
	if _, err := h.tasks.CreateTx(ctx, tx, task.CreateRequest{
		Type:           string(tasks.TypePasswordResetEmail),
		Payload:        payload,
		IdempotencyKey: &key,
		UserID:         &uid,
		Priority:       10,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// POST /auth/password-reset/confirm
func (h *AuthHandler) PasswordResetConfirm(ctx *gin.Context) {
	var req PasswordResetConfirmRequest
	if !BindJSON(ctx, &req) {
		return
	}

	if strings.TrimSpace(req.Token) == "" {
		RespondError(ctx, http.StatusBadRequest, "invalid_token", "The reset link is invalid or has expired.", nil)
		return
	}
	if err := security.ValidatePassword(req.Password); err != nil {
		respondWeakPassword(ctx)
		return
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		RespondInternal(ctx, "Could not reset password")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.resets.BeginTx(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not reset password")
		return
	}
	defer func() { _ = tx.Rollback(cctx) }()

	uid, err := h.resets.ConsumeTx(cctx, tx, h.jwt.HashResetToken(strings.TrimSpace(req.Token)))
	if err != nil {
		if errors.Is(err, postgres.ErrResetTokenInvalid) {
			RespondError(ctx, http.StatusBadRequest, "invalid_token", "The reset link is invalid or has expired.", nil)
			return
		}
		RespondInternal(ctx, "Could not reset password")
		return
	}

	if err := h.users.UpdatePasswordTx(cctx, tx, uid, hash); err != nil {
		RespondInternal(ctx, "Could not reset password")
		return
	}

	// every open session ends with the old password
	if err := h.refresh.RevokeAllForUser(cctx, tx, uid); err != nil {
		RespondInternal(ctx, "Could not reset password")
		return
	}

	if err := tx.Commit(cctx); err != nil {
		RespondInternal(ctx, "Could not reset password")
		return
	}

	h.log.InfoContext(ctx.Request.Context(), "password reset", "user_id", uid)
	ctx.Status(http.StatusNoContent)
}

// Helper functions

func sessionBody(u user.User, access auth.Token) gin.H {
	return gin.H{
		"identity":    u.Identity(),
		"accessToken": access.Raw,
		"expiresAt":   access.ExpiresAt,
	}
}

func (h *AuthHandler) issueSession(ctx *gin.Context, cctx context.Context, u user.User, status int) {
	subject := auth.Subject{UserID: u.ID, Email: u.Email, Verified: u.EmailVerified}

	access, err := h.jwt.GenerateAccessToken(subject)
	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	refresh, err := h.jwt.GenerateRefreshToken(subject)
	if err != nil {
		RespondInternal(ctx, "Could not generate refresh token")
		return
	}

	if err := h.storeRefreshToken(cctx, u.ID, refresh); err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "store refresh token failed", "err", err)
		RespondInternal(ctx, "Could not create session")
		return
	}

	h.setRefreshCookie(ctx, refresh.Raw, refresh.ExpiresAt)
	ctx.JSON(status, sessionBody(u, access))
}

func (h *AuthHandler) refreshRow(userID string, tok auth.Token) postgres.RefreshTokenRow {
	return postgres.RefreshTokenRow{
		ID:        tok.JTI,
		UserID:    userID,
		TokenHash: h.jwt.HashRefreshToken(tok.Raw),
		ExpiresAt: tok.ExpiresAt,
		CreatedAt: h.now().UTC(),
	}
}

func (h *AuthHandler) storeRefreshToken(ctx context.Context, userID string, tok auth.Token) error {
	tx, err := h.refresh.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.refresh.Create(ctx, tx, h.refreshRow(userID, tok)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	secure := h.cfg.Env == "prod"
	maxAge := int(expiresAt.Sub(h.now()).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(refreshCookieName, raw, maxAge, "/auth", "", secure, true)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	secure := h.cfg.Env == "prod"

	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(refreshCookieName, "", -1, "/auth", "", secure, true)
}
