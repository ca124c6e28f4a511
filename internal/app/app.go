// Package app wires the client core together: one Session, one Catalog, the
// submission workflow and the directory they all talk to. A presentation
// layer holds an *App and calls its methods; nothing here is global.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/asaskevich/EventBus"
	"github.com/geocoder89/expertjobs/internal/directory"
	"github.com/geocoder89/expertjobs/internal/domain/application"
	"github.com/geocoder89/expertjobs/internal/domain/identity"
	"github.com/geocoder89/expertjobs/internal/domain/job"
	"github.com/geocoder89/expertjobs/internal/domain/user"
	"github.com/geocoder89/expertjobs/internal/security"
	"github.com/geocoder89/expertjobs/internal/state"
	"github.com/geocoder89/expertjobs/internal/submission"
	"github.com/samber/lo"
)

// FeaturedCount is how many of the newest jobs the home screen features.
const FeaturedCount = 2

const JobsCollection = "jobs"

type Options struct {
	Logger        *slog.Logger
	Metrics       submission.Recorder
	RedirectDelay time.Duration
	Bus           EventBus.Bus
}

type App struct {
	Session *state.Session
	Catalog *state.Catalog
	Bus     EventBus.Bus

	dir      directory.Service
	workflow *submission.Workflow
	log      *slog.Logger
	now      func() time.Time
}

func New(dir directory.Service, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Bus == nil {
		opts.Bus = EventBus.New()
	}

	catalog := state.NewCatalog()

	return &App{
		Session: state.NewSession(),
		Catalog: catalog,
		Bus:     opts.Bus,
		dir:     dir,
		workflow: submission.NewWorkflow(dir, catalog, opts.Bus, submission.Config{
			RedirectDelay: opts.RedirectDelay,
			Logger:        opts.Logger,
			Metrics:       opts.Metrics,
		}),
		log: opts.Logger,
		now: time.Now,
	}
}

// Close cancels pending navigation signals.
func (a *App) Close() {
	a.workflow.Stop()
}

type RegisterInput struct {
	FullName        string
	Email           string
	Password        string
	ConfirmPassword string
	Role            identity.Role
}

func (in RegisterInput) check() error {
	if strings.TrimSpace(in.FullName) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" || in.ConfirmPassword == "" {
		return &FormError{Message: MessageFillAllFields}
	}
	if in.Password != in.ConfirmPassword {
		return &FormError{Field: "confirmPassword", Message: MessagePasswordMismatch}
	}
	if utf8.RuneCountInString(in.Password) < security.MinPasswordLength {
		return &FormError{Field: "password", Message: MessagePasswordTooShort}
	}
	return nil
}

// Register creates the account, writes its profile and signs it in.
func (a *App) Register(ctx context.Context, in RegisterInput) (*identity.Identity, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	role := in.Role
	if !role.Valid() {
		role = identity.RoleEmployee
	}

	var out *identity.Identity
	err := a.loading(func() error {
		cred, err := a.dir.SignUp(ctx, strings.TrimSpace(in.Email), in.Password)
		if err != nil {
			return err
		}

		rec, err := user.NewProfile(strings.TrimSpace(in.FullName), cred.Email, role, a.now()).Record()
		if err != nil {
			return fmt.Errorf("encode profile: %w", err)
		}
		if _, err := a.dir.PutDocument(ctx, user.ProfileCollection, cred.UID, rec); err != nil {
			return err
		}

		a.Session.SetUser(cred)
		a.Session.SetRole(role)
		out = cred.Projection()
		return nil
	})
	if err != nil {
		a.log.WarnContext(ctx, "register failed", "err", err)
		return nil, err
	}

	a.log.InfoContext(ctx, "registered", "uid", out.UID, "role", role)
	return out, nil
}

// SignIn authenticates and settles the role. A stored profile decides the
// role; selecting the other one is refused. Accounts without a profile keep
// the role picked on the sign-in screen, and it is written as their profile.
func (a *App) SignIn(ctx context.Context, email, password string, selected identity.Role) (*identity.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, &FormError{Message: MessageFillAllFields}
	}
	if !selected.Valid() {
		selected = identity.RoleEmployee
	}

	var out *identity.Identity
	err := a.loading(func() error {
		cred, err := a.dir.SignIn(ctx, email, password)
		if err != nil {
			return err
		}

		role := selected
		profile, found, err := a.profile(ctx, cred.UID)
		if err != nil {
			a.log.WarnContext(ctx, "profile lookup failed; using selected role", "uid", cred.UID, "err", err)
		}
		if err == nil && !found {
			// sign-up succeeded earlier but the profile write did not
			a.writeProfile(ctx, cred, selected)
		}
		if found && profile.UserType.Valid() {
			if profile.UserType != selected {
				_ = a.dir.SignOut(ctx)
				return directory.NewAuthError(directory.CodeRoleMismatch,
					fmt.Sprintf("This account is registered as an %s.", profile.UserType))
			}
			role = profile.UserType
		}

		a.Session.SetUser(cred)
		a.Session.SetRole(role)
		out = cred.Projection()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// writeProfile stores a profile for an account that has none. A failure is
// logged only; the next sign-in tries again.
func (a *App) writeProfile(ctx context.Context, cred *identity.Credential, role identity.Role) {
	name := cred.DisplayName
	if name == "" {
		name, _, _ = strings.Cut(cred.Email, "@")
	}

	rec, err := user.NewProfile(name, cred.Email, role, a.now()).Record()
	if err == nil {
		_, err = a.dir.PutDocument(ctx, user.ProfileCollection, cred.UID, rec)
	}
	if err != nil {
		a.log.WarnContext(ctx, "profile backfill failed", "uid", cred.UID, "err", err)
		return
	}
	a.log.InfoContext(ctx, "profile backfilled", "uid", cred.UID, "role", role)
}

func (a *App) profile(ctx context.Context, uid string) (user.Profile, bool, error) {
	recs, err := a.dir.QueryDocuments(ctx, user.ProfileCollection,
		[]directory.Filter{directory.Where(directory.IDField, directory.OpEq, uid)}, nil)
	if err != nil {
		return user.Profile{}, false, err
	}
	if len(recs) == 0 {
		return user.Profile{}, false, nil
	}

	p, err := user.ProfileFromRecord(recs[0])
	if err != nil {
		return user.Profile{}, false, err
	}
	return p, true, nil
}

// ResetPassword asks the directory to mail a reset link and returns the
// confirmation to show.
func (a *App) ResetPassword(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", &FormError{Field: "email", Message: MessageEnterEmail}
	}

	err := a.loading(func() error {
		return a.dir.SendPasswordReset(ctx, email)
	})
	if err != nil {
		return "", err
	}
	return MessageResetSent, nil
}

// SignOut ends the remote session and clears Session State. The local
// session is cleared even when the remote call fails; the error is still
// returned so it can be shown.
func (a *App) SignOut(ctx context.Context) error {
	err := a.dir.SignOut(ctx)
	a.Session.Logout()
	if err != nil {
		a.log.WarnContext(ctx, "remote sign out failed", "err", err)
		return err
	}
	return nil
}

// LoadJobs replaces the job list with the active postings, newest first, and
// features the first few.
func (a *App) LoadJobs(ctx context.Context) error {
	return a.loading(func() error {
		recs, err := a.dir.QueryDocuments(ctx, JobsCollection,
			[]directory.Filter{directory.Where("status", directory.OpEq, string(job.StatusActive))},
			[]directory.Order{directory.OrderBy("createdAt", true)})
		if err != nil {
			return err
		}

		jobs, err := decodeJobs(recs)
		if err != nil {
			return &directory.StoreError{Op: "query", Collection: JobsCollection, Err: err}
		}

		a.Catalog.SetJobs(jobs)
		a.Catalog.SetFeaturedJobs(lo.Subset(jobs, 0, FeaturedCount))
		return nil
	})
}

// LoadApplications fetches what the signed-in account should see: its own
// applications for employees, applications to its jobs for employers.
func (a *App) LoadApplications(ctx context.Context) error {
	uid, role, err := a.actor()
	if err != nil {
		return err
	}

	field := "applicantId"
	if role == identity.RoleEmployer {
		field = "employerId"
	}

	return a.loading(func() error {
		recs, err := a.dir.QueryDocuments(ctx, application.Collection,
			[]directory.Filter{directory.Where(field, directory.OpEq, uid)},
			[]directory.Order{directory.OrderBy("appliedAt", true)})
		if err != nil {
			return err
		}
		return a.Catalog.SetApplicationRecords(recs)
	})
}

// PostJob stores a new posting owned by the signed-in employer and prepends
// it to the job list.
func (a *App) PostJob(ctx context.Context, req job.CreateJobRequest) (job.Job, error) {
	uid, role, err := a.actor()
	if err != nil {
		return job.Job{}, err
	}
	if role != identity.RoleEmployer {
		return job.Job{}, ErrRoleNotPermitted
	}

	j, err := job.NewFromCreateRequest(req, uid, a.now())
	if err != nil {
		return job.Job{}, err
	}

	rec, err := jobRecord(j)
	if err != nil {
		return job.Job{}, err
	}

	var id string
	err = a.loading(func() error {
		id, err = a.dir.PutDocument(ctx, JobsCollection, "", rec)
		return err
	})
	if err != nil {
		return job.Job{}, err
	}

	j.ID = id
	a.Catalog.AddJob(j)
	return j, nil
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// CloseJob stops a posting from being listed or applied to and drops it from
// the catalog.
func (a *App) CloseJob(ctx context.Context, id string) error {
	_, role, err := a.actor()
	if err != nil {
		return err
	}
	if role != identity.RoleEmployer {
		return ErrRoleNotPermitted
	}

	err = a.loading(func() error {
		_, err := a.dir.PutDocument(ctx, JobsCollection, id, directory.Record{"status": string(job.StatusClosed)})
		return err
	})
	if err != nil {
		return err
	}

	a.Catalog.RemoveJob(id)
	return nil
}

// ReviewApplication records an employer's decision remotely, then mirrors it
// into the catalog. Unknown ids in the catalog are a silent no-op there.
func (a *App) ReviewApplication(ctx context.Context, id string, d Decision) error {
	_, role, err := a.actor()
	if err != nil {
		return err
	}
	if role != identity.RoleEmployer {
		return ErrRoleNotPermitted
	}

	var patch application.Patch
	switch d {
	case DecisionApprove:
		patch = application.ApprovePatch()
	case DecisionReject:
		patch = application.RejectPatch()
	default:
		return ErrUnknownDecision
	}

	fields := directory.Record{
		"status":   string(*patch.Status),
		"feedback": *patch.Feedback,
	}

	err = a.loading(func() error {
		_, err := a.dir.PutDocument(ctx, application.Collection, id, fields)
		return err
	})
	if err != nil {
		return err
	}

	if d == DecisionApprove {
		a.Catalog.ApproveApplication(id)
	} else {
		a.Catalog.RejectApplication(id)
	}
	return nil
}

// NewAttempt opens an application form.
func (a *App) NewAttempt() *submission.Attempt {
	return a.workflow.NewAttempt()
}

// Submit sends the form for j with the role held in Session State.
func (a *App) Submit(ctx context.Context, at *submission.Attempt, form submission.Form, j job.Job) (application.Application, error) {
	uid, role, err := a.actor()
	if err != nil {
		return application.Application{}, err
	}

	var out application.Application
	err = a.loading(func() error {
		out, err = at.Submit(ctx, role, form, j, submission.WithApplicant(uid))
		return err
	})
	return out, err
}

func (a *App) actor() (string, identity.Role, error) {
	uid := a.Session.UID()
	if uid == "" {
		return "", "", ErrNotAuthenticated
	}
	role, ok := a.Session.Role()
	if !ok {
		role = identity.RoleEmployee
	}
	return uid, role, nil
}

// loading raises both loading flags for the duration of fn.
func (a *App) loading(fn func() error) error {
	a.Session.SetLoading(true)
	a.Catalog.SetLoading(true)
	defer func() {
		a.Session.SetLoading(false)
		a.Catalog.SetLoading(false)
	}()

	return fn()
}

// IsFormError reports whether err came from a local check.
func IsFormError(err error) bool {
	var fe *FormError
	var ve *submission.ValidationError
	return errors.As(err, &fe) || errors.As(err, &ve)
}
