package notifications

import (
	"context"
	"errors"
	"time"
)

type PasswordResetInput struct {
	Email     string
	Token     string
	ExpiresAt time.Time
}

type ApplicationReceivedInput struct {
	EmployerEmail string
	JobTitle      string
	ApplicantName string
	ApplicationID string
}

type Notifier interface {
	SendPasswordReset(ctx context.Context, in PasswordResetInput) error
	SendApplicationReceived(ctx context.Context, in ApplicationReceivedInput) error
}

var (
	ErrAlreadySent = errors.New("notification already sent")
	ErrInProgress  = errors.New("notification send in progress")
)
