package application

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/geocoder89/expertjobs/internal/domain/identity"
	"github.com/geocoder89/expertjobs/internal/domain/isotime"
)

// Collection is the document store collection holding applications.
const Collection = "applications"

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

const (
	FeedbackApproved = "Your application has been approved! We will contact you soon."
	FeedbackRejected = "Unfortunately, your application was not selected at this time."
)

var (
	ErrNotFound      = errors.New("application not found")
	ErrInvalidRecord = errors.New("invalid application record")
	ErrInvalidStatus = errors.New("invalid application status")
)

// Application is one submission against a job posting. Only one of the
// employer-shaped (CompanyName, ContactEmail) or employee-shaped
// (ApplicantName, ApplicantEmail) pairs is populated, selected by ApplicantType.
type Application struct {
	ID             string            `json:"id,omitempty"`
	JobID          string            `json:"jobId"`
	JobTitle       string            `json:"jobTitle"`
	Company        string            `json:"company"`
	ApplicantType  identity.Role     `json:"applicantType"`
	CompanyName    string            `json:"companyName,omitempty"`
	ContactEmail   string            `json:"contactEmail,omitempty"`
	ApplicantName  string            `json:"applicantName,omitempty"`
	ApplicantEmail string            `json:"applicantEmail,omitempty"`
	Phone          string            `json:"phone"`
	ResumeURL      string            `json:"resumeUrl,omitempty"`
	DocumentRef    string            `json:"documentRef,omitempty"`
	Status         Status            `json:"status"`
	AppliedAt      isotime.Timestamp `json:"appliedAt"`
	Feedback       string            `json:"feedback,omitempty"`
	ApplicantID    string            `json:"applicantId,omitempty"`
	EmployerID     string            `json:"employerId,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

// Shaped drops the contact pair that does not belong to ApplicantType.
func (a Application) Shaped() Application {
	switch a.ApplicantType {
	case identity.RoleEmployer:
		a.ApplicantName, a.ApplicantEmail = "", ""
	case identity.RoleEmployee:
		a.CompanyName, a.ContactEmail = "", ""
	}
	return a
}

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	Status   *Status `json:"status,omitempty"`
	Feedback *string `json:"feedback,omitempty"`
	Phone    *string `json:"phone,omitempty"`

	ResumeURL   *string `json:"resumeUrl,omitempty"`
	DocumentRef *string `json:"documentRef,omitempty"`
}

func (p Patch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, *p.Status)
	}
	return nil
}

func (p Patch) ApplyTo(a Application) Application {
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.Feedback != nil {
		a.Feedback = *p.Feedback
	}
	if p.Phone != nil {
		a.Phone = *p.Phone
	}
	if p.ResumeURL != nil {
		a.ResumeURL = *p.ResumeURL
	}
	if p.DocumentRef != nil {
		a.DocumentRef = *p.DocumentRef
	}
	return a
}

// Decision patches for the employer review flow.
func ApprovePatch() Patch {
	s, f := StatusApproved, FeedbackApproved
	return Patch{Status: &s, Feedback: &f}
}

func RejectPatch() Patch {
	s, f := StatusRejected, FeedbackRejected
	return Patch{Status: &s, Feedback: &f}
}

// Record is the loosely typed form documents take in the directory.
type Record = map[string]any

// dateFields lists the keys normalized on the way in.
var dateFields = []string{"appliedAt"}

// FromRecord decodes a stored document. Date-like values (time.Time, epoch
// milliseconds, {seconds,nanoseconds}) become ISO-8601 text; strings are kept.
func FromRecord(rec Record) (Application, error) {
	if rec == nil {
		return Application{}, ErrInvalidRecord
	}

	clean := make(Record, len(rec))
	for k, v := range rec {
		clean[k] = v
	}
	for _, key := range dateFields {
		v, present := clean[key]
		if !present {
			continue
		}
		if ts, ok := isotime.Normalize(v); ok {
			clean[key] = string(ts)
		} else {
			delete(clean, key)
		}
	}

	b, err := json.Marshal(clean)
	if err != nil {
		return Application{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	var a Application
	if err := json.Unmarshal(b, &a); err != nil {
		return Application{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	return a, nil
}

// FromRecords decodes a slice, failing on the first bad document.
func FromRecords(recs []Record) ([]Application, error) {
	out := make([]Application, 0, len(recs))
	for i, rec := range recs {
		a, err := FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// ToRecord is the inverse of FromRecord. The id is not part of the stored fields.
func ToRecord(a Application) (Record, error) {
	a.ID = ""

	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}
