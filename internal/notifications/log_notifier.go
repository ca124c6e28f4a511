package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// LogNotifier writes notifications to the log instead of a mail provider.
// Delay and Fail simulate a slow or broken provider.
type LogNotifier struct {
	log   *slog.Logger
	Delay time.Duration
	Fail  bool
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

var errSimulatedOutage = errors.New("provider down (simulated)")

func (n *LogNotifier) simulate(ctx context.Context) error {
	if n.Delay > 0 {
		select {
		case <-time.After(n.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n.Fail {
		return errSimulatedOutage
	}
	return nil
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, in PasswordResetInput) error {
	if err := n.simulate(ctx); err != nil {
		return err
	}
	n.log.InfoContext(ctx, "notification.password_reset", "email", in.Email, "expires_at", in.ExpiresAt)
	return nil
}

func (n *LogNotifier) SendApplicationReceived(ctx context.Context, in ApplicationReceivedInput) error {
	if err := n.simulate(ctx); err != nil {
		return err
	}
	n.log.InfoContext(ctx, "notification.application_received",
		"email", in.EmployerEmail,
		"job_title", in.JobTitle,
		"applicant", in.ApplicantName,
		"application_id", in.ApplicationID,
	)
	return nil
}
