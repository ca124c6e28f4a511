// Package submission turns a filled-in application form into a stored
// Application and tells the presentation layer when to close and navigate.
package submission

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/geocoder89/expertjobs/internal/directory"
	"github.com/geocoder89/expertjobs/internal/domain/application"
	"github.com/geocoder89/expertjobs/internal/domain/identity"
	"github.com/geocoder89/expertjobs/internal/domain/isotime"
	"github.com/geocoder89/expertjobs/internal/domain/job"
	"github.com/go-playground/validator/v10"
)

// Topics published on the bus, in order, after a successful write.
const (
	TopicSubmitted = "application:submitted"
	TopicCloseForm = "application:close_form"
	TopicNavigate  = "navigation:push"
)

// ListingRoute is where the applicant lands after submitting.
const ListingRoute = "/jobs"

const DefaultRedirectDelay = 2 * time.Second

type SubmittedEvent struct {
	Application application.Application
	Message     string
}

type CloseFormEvent struct {
	JobID string
}

type NavigateEvent struct {
	Route string
}

type DocumentWriter interface {
	PutDocument(ctx context.Context, collection, id string, fields directory.Record) (string, error)
}

type ApplicationSink interface {
	AddApplication(a application.Application) application.Application
	Application(id string) (application.Application, bool)
}

type Recorder interface {
	ObserveSubmission(applicantType, result string)
}

type Config struct {
	RedirectDelay time.Duration
	Logger        *slog.Logger
	Metrics       Recorder
}

type Workflow struct {
	store    DocumentWriter
	catalog  ApplicationSink
	bus      EventBus.Bus
	validate *validator.Validate
	cfg      Config
	now      func() time.Time

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

func NewWorkflow(store DocumentWriter, catalog ApplicationSink, bus EventBus.Bus, cfg Config) *Workflow {
	if cfg.RedirectDelay <= 0 {
		cfg.RedirectDelay = DefaultRedirectDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Workflow{
		store:    store,
		catalog:  catalog,
		bus:      bus,
		validate: newValidator(),
		cfg:      cfg,
		now:      time.Now,
		timers:   make(map[*time.Timer]struct{}),
	}
}

type submitOptions struct {
	applicantID    string
	idempotencyKey string
	appliedAt      time.Time
}

type Option func(*submitOptions)

// WithApplicant stamps the record with the submitting account.
func WithApplicant(uid string) Option {
	return func(o *submitOptions) { o.applicantID = uid }
}

// WithIdempotencyKey lets the store collapse retries of the same attempt.
func WithIdempotencyKey(key string) Option {
	return func(o *submitOptions) { o.idempotencyKey = key }
}

func appliedAt(t time.Time) Option {
	return func(o *submitOptions) { o.appliedAt = t }
}

// Validate applies the role rules without touching the store.
func (w *Workflow) Validate(role identity.Role, form Form) error {
	if !role.Valid() {
		return identity.ErrInvalidRole
	}
	form = form.trimmed()
	form.Role = role
	return check(w.validate, form)
}

// Submit validates, writes the application, mirrors it into the catalog and
// signals the presentation layer. Each call writes a new record unless an
// idempotency key is given.
func (w *Workflow) Submit(ctx context.Context, role identity.Role, form Form, j job.Job, opts ...Option) (application.Application, error) {
	if err := w.Validate(role, form); err != nil {
		w.observe(role, "validation_failed")
		return application.Application{}, err
	}

	return w.persist(ctx, role, form.trimmed(), j, opts...)
}

func (w *Workflow) persist(ctx context.Context, role identity.Role, form Form, j job.Job, opts ...Option) (application.Application, error) {
	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}

	a := w.build(role, form, j, o)

	rec, err := application.ToRecord(a)
	if err != nil {
		w.observe(role, "remote_failed")
		return application.Application{}, &RemoteWriteError{Err: err}
	}

	id, err := w.store.PutDocument(ctx, application.Collection, "", rec)
	if err != nil {
		w.observe(role, "remote_failed")
		w.cfg.Logger.WarnContext(ctx, "application write failed", "job_id", j.ID, "applicant_type", role, "err", err)
		return application.Application{}, &RemoteWriteError{Err: err}
	}

	// a replayed idempotency key returns an id the catalog already mirrors
	if existing, ok := w.catalog.Application(id); ok {
		w.observe(role, "replayed")
		w.cfg.Logger.InfoContext(ctx, "application write replayed", "application_id", id, "job_id", j.ID)
		w.signal(existing)
		return existing, nil
	}

	a.ID = id
	stored := w.catalog.AddApplication(a)

	w.observe(role, "persisted")
	w.cfg.Logger.InfoContext(ctx, "application submitted", "application_id", id, "job_id", j.ID, "applicant_type", role)

	w.signal(stored)

	return stored, nil
}

func (w *Workflow) build(role identity.Role, form Form, j job.Job, o submitOptions) application.Application {
	at := o.appliedAt
	if at.IsZero() {
		at = w.now()
	}

	return application.Application{
		JobID:          j.ID,
		JobTitle:       j.Title,
		Company:        j.Company,
		ApplicantType:  role,
		CompanyName:    form.CompanyName,
		ContactEmail:   form.ContactEmail,
		ApplicantName:  form.ApplicantName,
		ApplicantEmail: form.ApplicantEmail,
		Phone:          form.Phone,
		ResumeURL:      form.ResumeURL,
		DocumentRef:    form.DocumentRef,
		Status:         application.StatusPending,
		AppliedAt:      isotime.From(at),
		ApplicantID:    o.applicantID,
		EmployerID:     j.EmployerID,
		IdempotencyKey: o.idempotencyKey,
	}.Shaped()
}

// signal publishes the success and close events now and the navigation event
// after the redirect delay, so the success notice stays visible.
func (w *Workflow) signal(a application.Application) {
	if w.bus == nil {
		return
	}

	w.bus.Publish(TopicSubmitted, SubmittedEvent{Application: a, Message: MessageSubmitted})
	w.bus.Publish(TopicCloseForm, CloseFormEvent{JobID: a.JobID})

	// held until t is registered, so the callback cannot run first
	w.mu.Lock()
	defer w.mu.Unlock()

	var t *time.Timer
	t = time.AfterFunc(w.cfg.RedirectDelay, func() {
		w.mu.Lock()
		delete(w.timers, t)
		w.mu.Unlock()

		w.bus.Publish(TopicNavigate, NavigateEvent{Route: ListingRoute})
	})
	w.timers[t] = struct{}{}
}

// Stop cancels navigation events that have not fired yet.
func (w *Workflow) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for t := range w.timers {
		t.Stop()
	}
	clear(w.timers)
}

func (w *Workflow) observe(role identity.Role, result string) {
	if w.cfg.Metrics == nil {
		return
	}
	w.cfg.Metrics.ObserveSubmission(string(role), result)
}
