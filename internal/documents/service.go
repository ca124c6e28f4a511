// Package documents enforces who may read and write which collection before
// anything reaches the document store.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/geocoder89/expertjobs/internal/actorctx"
	"github.com/geocoder89/expertjobs/internal/cache"
	"github.com/geocoder89/expertjobs/internal/directory"
	"github.com/geocoder89/expertjobs/internal/domain/application"
	"github.com/geocoder89/expertjobs/internal/domain/identity"
	"github.com/geocoder89/expertjobs/internal/domain/isotime"
	"github.com/geocoder89/expertjobs/internal/domain/job"
	"github.com/geocoder89/expertjobs/internal/domain/task"
	"github.com/geocoder89/expertjobs/internal/domain/user"
	"github.com/geocoder89/expertjobs/internal/repo/postgres"
	"github.com/geocoder89/expertjobs/internal/tasks"
	"github.com/jackc/pgx/v5"
)

const JobsCollection = "jobs"

var allowedCollections = map[string]bool{
	JobsCollection:         true,
	application.Collection: true,
	user.ProfileCollection: true,
}

var (
	ErrInvalidDocument = errors.New("invalid document")
	ErrUnauthenticated = errors.New("authentication required")
)

type Store interface {
	Create(ctx context.Context, in postgres.CreateDocument, onCreate postgres.OnCreate) (string, bool, error)
	Merge(ctx context.Context, collection, id string, fields directory.Record, ownerID string) error
	Get(ctx context.Context, collection, id string) (postgres.Document, error)
	Query(ctx context.Context, collection string, filters []directory.Filter, orders []directory.Order, limit int) ([]directory.Record, error)
}

type TaskEnqueuer interface {
	CreateTx(ctx context.Context, tx pgx.Tx, req task.CreateRequest) (task.Task, error)
}

type QueryCache interface {
	Get(ctx context.Context, q cache.Query) ([]directory.Record, bool)
	Set(ctx context.Context, q cache.Query, recs []directory.Record)
	Invalidate(ctx context.Context, collection string)
}

type Service struct {
	store Store
	tasks TaskEnqueuer
	cache QueryCache
	log   *slog.Logger
	now   func() time.Time
}

// New builds the service. cache may be nil.
func New(store Store, tasks TaskEnqueuer, cache QueryCache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, tasks: tasks, cache: cache, log: log, now: time.Now}
}

func checkCollection(name string) error {
	if err := directory.ValidateCollection(name); err != nil {
		return err
	}
	if !allowedCollections[name] {
		return directory.ErrUnknownCollection
	}
	return nil
}

func actor(ctx context.Context) (string, error) {
	uid, ok := actorctx.UserIDFrom(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	return uid, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...))
}

// Create stores a new document and returns its id. Applications with a
// known idempotencyKey return the existing id.
func (s *Service) Create(ctx context.Context, collection, id string, fields directory.Record) (string, error) {
	if err := checkCollection(collection); err != nil {
		return "", err
	}
	uid, err := actor(ctx)
	if err != nil {
		return "", err
	}
	fields = clean(fields)

	in := postgres.CreateDocument{Collection: collection, ID: id, Fields: fields, OwnerID: uid}
	var onCreate postgres.OnCreate

	switch collection {
	case user.ProfileCollection:
		// profiles live at users/{uid} and are written with PUT
		return "", directory.ErrForbidden

	case JobsCollection:
		if err := s.requireEmployer(ctx, uid); err != nil {
			return "", err
		}
		fields["employerId"] = uid
		if _, ok := fields["status"]; !ok {
			fields["status"] = string(job.StatusActive)
		}
		if err := checkJobStatus(fields); err != nil {
			return "", err
		}
		if _, ok := isotime.Normalize(fields["createdAt"]); !ok {
			fields["createdAt"] = isotime.From(s.now()).String()
		}

	case application.Collection:
		onCreate, err = s.prepareApplication(ctx, uid, &in)
		if err != nil {
			return "", err
		}
	}

	newID, created, err := s.store.Create(ctx, in, onCreate)
	if err != nil {
		return "", err
	}
	if created {
		s.invalidate(ctx, collection)
	}
	s.log.InfoContext(ctx, "document created", "collection", collection, "doc_id", newID, "uid", uid, "replayed", !created)
	return newID, nil
}

func (s *Service) prepareApplication(ctx context.Context, uid string, in *postgres.CreateDocument) (postgres.OnCreate, error) {
	f := in.Fields

	jobID, _ := f["jobId"].(string)
	if strings.TrimSpace(jobID) == "" {
		return nil, invalid("jobId is required")
	}
	role := identity.Role(stringField(f, "applicantType"))
	if !role.Valid() {
		return nil, invalid("applicantType must be employee or employer")
	}

	j, err := s.store.Get(ctx, JobsCollection, jobID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, invalid("job %s does not exist", jobID)
		}
		return nil, err
	}

	if job.Status(stringField(j.Fields, "status")) == job.StatusClosed {
		return nil, invalid("job %s is closed", jobID)
	}

	employerID := stringField(j.Fields, "employerId")
	f["applicantId"] = uid
	f["employerId"] = employerID
	f["status"] = string(application.StatusPending)
	delete(f, "feedback")
	if _, ok := isotime.Normalize(f["appliedAt"]); !ok {
		f["appliedAt"] = isotime.From(s.now()).String()
	}
	in.IdempotencyKey = stringField(f, "idempotencyKey")

	name := stringField(f, "applicantName")
	if role == identity.RoleEmployer {
		name = stringField(f, "companyName")
	}
	requestID := stringField(f, "idempotencyKey")

	return func(ctx context.Context, tx pgx.Tx, id string) error {
		payload, err := tasks.EncodePayload(tasks.TypeApplicationReceived, tasks.ApplicationReceivedPayload{
			ApplicationID: id,
			JobID:         jobID,
			JobTitle:      stringField(j.Fields, "title"),
			EmployerID:    employerID,
			ApplicantType: string(role),
			ApplicantName: name,
			RequestID:     requestID,
		})
		if err != nil {
			return err
		}

		key := "application_received:" + id
		_, err = s.tasks.CreateTx(ctx, tx, task.CreateRequest{
			Type:           string(tasks.TypeApplicationReceived),
			Payload:        payload,
			IdempotencyKey: &key,
			UserID:         &employerID,
		})
		return err
	}, nil
}

// Merge applies fields over the stored document.
func (s *Service) Merge(ctx context.Context, collection, id string, fields directory.Record) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	uid, err := actor(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return invalid("id is required")
	}
	fields = clean(fields)

	existing, err := s.store.Get(ctx, collection, id)
	found := err == nil
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		return err
	}

	switch collection {
	case user.ProfileCollection:
		if id != uid {
			return directory.ErrForbidden
		}
		if found {
			if v, ok := fields["userType"]; ok && v != existing.Fields["userType"] {
				return directory.ErrForbidden
			}
		} else if !identity.Role(stringField(fields, "userType")).Valid() {
			return invalid("userType must be employee or employer")
		}

	case JobsCollection:
		if !found {
			return directory.ErrNotFound
		}
		if stringField(existing.Fields, "employerId") != uid {
			return directory.ErrForbidden
		}
		delete(fields, "employerId")
		if err := checkJobStatus(fields); err != nil {
			return err
		}

	case application.Collection:
		if !found {
			return directory.ErrNotFound
		}
		if err := checkApplicationPatch(uid, existing.Fields, fields); err != nil {
			return err
		}
	}

	if err := s.store.Merge(ctx, collection, id, fields, uid); err != nil {
		return err
	}
	s.invalidate(ctx, collection)
	s.log.InfoContext(ctx, "document merged", "collection", collection, "doc_id", id, "uid", uid)
	return nil
}

func checkApplicationPatch(uid string, existing, patch directory.Record) error {
	applicant := stringField(existing, "applicantId")
	employer := stringField(existing, "employerId")

	if uid != applicant && uid != employer {
		return directory.ErrForbidden
	}
	for _, k := range []string{"applicantId", "employerId", "jobId", "applicantType"} {
		if v, ok := patch[k]; ok && v != existing[k] {
			return directory.ErrForbidden
		}
	}

	_, touchesStatus := patch["status"]
	_, touchesFeedback := patch["feedback"]
	if (touchesStatus || touchesFeedback) && uid != employer {
		return directory.ErrForbidden
	}
	if touchesStatus {
		if !application.Status(stringField(patch, "status")).Valid() {
			return invalid("%v", application.ErrInvalidStatus)
		}
	}
	return nil
}

// Query returns the documents of collection the caller may see.
func (s *Service) Query(ctx context.Context, collection string, filters []directory.Filter, orders []directory.Order, limit int) ([]directory.Record, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	uid, _ := actorctx.UserIDFrom(ctx)

	switch collection {
	case user.ProfileCollection:
		if uid == "" {
			return nil, ErrUnauthenticated
		}
		if !hasEquality(filters, directory.IDField, uid) {
			return nil, directory.ErrForbidden
		}
	case application.Collection:
		if uid == "" {
			return nil, ErrUnauthenticated
		}
		if !hasEquality(filters, "applicantId", uid) && !hasEquality(filters, "employerId", uid) {
			return nil, directory.ErrForbidden
		}
	}

	q := cache.Query{Collection: collection, Filters: filters, Orders: orders, Limit: limit}
	if s.cache != nil {
		if recs, ok := s.cache.Get(ctx, q); ok {
			return recs, nil
		}
	}

	recs, err := s.store.Query(ctx, collection, filters, orders, limit)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, q, recs)
	}
	return recs, nil
}

func (s *Service) requireEmployer(ctx context.Context, uid string) error {
	p, err := s.store.Get(ctx, user.ProfileCollection, uid)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return directory.ErrForbidden
		}
		return err
	}
	if stringField(p.Fields, "userType") != string(identity.RoleEmployer) {
		return directory.ErrForbidden
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, collection string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, collection)
	}
}

func hasEquality(filters []directory.Filter, field, value string) bool {
	for _, f := range filters {
		if f.Field == field && f.Op == directory.OpEq {
			if v, ok := f.Value.(string); ok && v == value {
				return true
			}
		}
	}
	return false
}

// checkJobStatus accepts a missing status; merges leave it unchanged.
func checkJobStatus(fields directory.Record) error {
	v, ok := fields["status"]
	if !ok {
		return nil
	}
	if s, _ := v.(string); !job.Status(s).Valid() {
		return invalid("status must be active or closed")
	}
	return nil
}

func stringField(rec directory.Record, key string) string {
	s, _ := rec[key].(string)
	return s
}

// clean copies fields without the id key; ids live outside the field set.
func clean(fields directory.Record) directory.Record {
	out := make(directory.Record, len(fields))
	for k, v := range fields {
		if k == directory.IDField {
			continue
		}
		out[k] = v
	}
	return out
}
