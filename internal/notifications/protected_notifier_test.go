package notifications

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeNotifier struct {
	resetFn func(ctx context.Context, in PasswordResetInput) error
	calls   int
}

func (f *fakeNotifier) SendPasswordReset(ctx context.Context, in PasswordResetInput) error {
	f.calls++
	return f.resetFn(ctx, in)
}

func (f *fakeNotifier) SendApplicationReceived(ctx context.Context, in ApplicationReceivedInput) error {
	f.calls++
	return nil
}

func TestProtectedNotifier_OpensAfterThreshold(t *testing.T) {
	boom := errors.New("smtp down")
	inner := &fakeNotifier{resetFn: func(context.Context, PasswordResetInput) error { return boom }}

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 2, Cooldown: time.Minute})
	n.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if err := n.SendPasswordReset(context.Background(), PasswordResetInput{}); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected inner error, got %v", i, err)
		}
	}
	if n.State() != StateOpen {
		t.Fatalf("expected open, got %s", n.State())
	}

	if err := n.SendPasswordReset(context.Background(), PasswordResetInput{}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("inner called while open: %d", inner.calls)
	}

	// cooldown elapsed, trial call succeeds and closes the breaker
	now = now.Add(2 * time.Minute)
	inner.resetFn = func(context.Context, PasswordResetInput) error { return nil }

	if err := n.SendPasswordReset(context.Background(), PasswordResetInput{}); err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if n.State() != StateClosed {
		t.Fatalf("expected closed, got %s", n.State())
	}
}

func TestProtectedNotifier_HalfOpenFailureReopens(t *testing.T) {
	inner := &fakeNotifier{resetFn: func(context.Context, PasswordResetInput) error { return errors.New("x") }}

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 1, Cooldown: time.Second})
	n.now = func() time.Time { return now }

	_ = n.SendPasswordReset(context.Background(), PasswordResetInput{})
	now = now.Add(2 * time.Second)
	_ = n.SendPasswordReset(context.Background(), PasswordResetInput{})

	if n.State() != StateOpen {
		t.Fatalf("expected reopen after failed trial, got %s", n.State())
	}
}

func TestProtectedNotifier_EnforcesTimeout(t *testing.T) {
	inner := &fakeNotifier{resetFn: func(ctx context.Context, _ PasswordResetInput) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{Timeout: 20 * time.Millisecond})

	err := n.SendPasswordReset(context.Background(), PasswordResetInput{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLogNotifier_SimulatedOutage(t *testing.T) {
	n := NewLogNotifier(discardLogger())
	n.Fail = true

	if err := n.SendApplicationReceived(context.Background(), ApplicationReceivedInput{}); err == nil {
		t.Fatalf("expected simulated failure")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
