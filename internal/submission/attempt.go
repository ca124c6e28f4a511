package submission

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/geocoder89/expertjobs/internal/domain/application"
	"github.com/geocoder89/expertjobs/internal/domain/identity"
	"github.com/geocoder89/expertjobs/internal/domain/job"
	"github.com/google/uuid"
)

type State int

const (
	StateEditing State = iota
	StateValidating
	StateRejected
	StateSubmitting
	StatePersisted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEditing:
		return "editing"
	case StateValidating:
		return "validating"
	case StateRejected:
		return "rejected"
	case StateSubmitting:
		return "submitting"
	case StatePersisted:
		return "persisted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Attempt is one open application form. It refuses a second submit while
// one is in flight or after success, and reuses one idempotency key across
// retries so the store can collapse a retry whose first write did land.
// A retry replays the exact record of the failed write; editing the form
// after a failure starts a new write under a new key.
type Attempt struct {
	wf *Workflow

	mu        sync.Mutex
	state     State
	submitted bool
	key       string
	result    application.Application
	lastErr   error

	// what the last remote write carried
	sent *sentWrite
}

type sentWrite struct {
	role      identity.Role
	form      Form
	jobID     string
	appliedAt time.Time
}

func (w *Workflow) NewAttempt() *Attempt {
	return &Attempt{
		wf:    w,
		state: StateEditing,
		key:   uuid.NewString(),
	}
}

func (a *Attempt) Submit(ctx context.Context, role identity.Role, form Form, j job.Job, opts ...Option) (application.Application, error) {
	a.mu.Lock()
	switch a.state {
	case StateValidating, StateSubmitting, StatePersisted:
		a.mu.Unlock()
		return application.Application{}, ErrAlreadySubmitted
	}
	a.state = StateValidating
	a.mu.Unlock()

	if err := a.wf.Validate(role, form); err != nil {
		a.wf.observe(role, "validation_failed")
		a.finish(StateRejected, application.Application{}, err)
		return application.Application{}, err
	}

	form = form.trimmed()

	a.mu.Lock()
	a.state = StateSubmitting
	w := sentWrite{role: role, form: form, jobID: j.ID, appliedAt: a.wf.now()}
	switch {
	case a.sent == nil:
	case a.sent.role == w.role && a.sent.form == w.form && a.sent.jobID == w.jobID:
		w.appliedAt = a.sent.appliedAt
	default:
		a.key = uuid.NewString()
	}
	a.sent = &w
	key := a.key
	a.mu.Unlock()

	opts = append(opts, WithIdempotencyKey(key), appliedAt(w.appliedAt))
	stored, err := a.wf.persist(ctx, role, form, j, opts...)
	if err != nil {
		a.finish(StateFailed, application.Application{}, err)
		return application.Application{}, err
	}

	a.finish(StatePersisted, stored, nil)
	return stored, nil
}

func (a *Attempt) finish(s State, result application.Application, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state = s
	a.lastErr = err
	if s == StatePersisted {
		a.submitted = true
		a.result = result
	}
}

func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// IsSubmitted turns true on success and never goes back.
func (a *Attempt) IsSubmitted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submitted
}

func (a *Attempt) IdempotencyKey() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.key
}

func (a *Attempt) Result() (application.Application, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.submitted
}

// Retryable reports whether the last failure was a remote one.
func (a *Attempt) Retryable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	var remote *RemoteWriteError
	return a.state == StateFailed && errors.As(a.lastErr, &remote)
}
