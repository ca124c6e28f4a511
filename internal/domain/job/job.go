package job

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/expertjobs/internal/domain/isotime"
	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrInvalidInput = errors.New("invalid job posting")
)

// Status decides whether a posting is listed. Only active ones take applications.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusClosed
}

// Job is a posted opening. Applications denormalize ID, Title and Company.
type Job struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Company      string            `json:"company"`
	Location     string            `json:"location"`
	Salary       string            `json:"salary,omitempty"`
	Type         string            `json:"type,omitempty"`
	CompanyLogo  string            `json:"companyLogo,omitempty"`
	Description  string            `json:"description,omitempty"`
	Requirements []string          `json:"requirements,omitempty"`
	Benefits     []string          `json:"benefits,omitempty"`
	EmployerID   string            `json:"employerId,omitempty"`
	Status       Status            `json:"status,omitempty"`
	CreatedAt    isotime.Timestamp `json:"createdAt,omitempty"`
}

type CreateJobRequest struct {
	Title        string   `json:"title" binding:"required"`
	Company      string   `json:"company" binding:"required"`
	Location     string   `json:"location" binding:"required"`
	Salary       string   `json:"salary"`
	Type         string   `json:"type" binding:"omitempty,oneof=Full-time Part-time Contract Internship Remote"`
	CompanyLogo  string   `json:"companyLogo" binding:"omitempty,url"`
	Description  string   `json:"description"`
	Requirements []string `json:"requirements"`
	Benefits     []string `json:"benefits"`
}

// the binding tags are the same ones gin would check on a bound request
var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	return v
}()

// NewFromCreateRequest builds an active posting owned by employerID. The id is
// left empty; the document store assigns it.
func NewFromCreateRequest(req CreateJobRequest, employerID string, now time.Time) (Job, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Company = strings.TrimSpace(req.Company)
	req.Location = strings.TrimSpace(req.Location)
	req.Type = strings.TrimSpace(req.Type)
	req.CompanyLogo = strings.TrimSpace(req.CompanyLogo)

	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return Job{}, fmt.Errorf("%w: %s failed %s", ErrInvalidInput, fieldErrs[0].Field(), fieldErrs[0].Tag())
		}
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	return Job{
		Title:        req.Title,
		Company:      req.Company,
		Location:     req.Location,
		Salary:       req.Salary,
		Type:         req.Type,
		CompanyLogo:  req.CompanyLogo,
		Description:  req.Description,
		Requirements: req.Requirements,
		Benefits:     req.Benefits,
		EmployerID:   employerID,
		Status:       StatusActive,
		CreatedAt:    isotime.From(now),
	}, nil
}
