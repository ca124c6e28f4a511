package submission

import (
	"errors"
	"reflect"
	"strings"

	"github.com/geocoder89/expertjobs/internal/domain/identity"
	"github.com/go-playground/validator/v10"
)

// Form is what the applicant typed. Role is filled in by the workflow from
// the session and decides which contact pair is required.
type Form struct {
	Role identity.Role `json:"-"`

	CompanyName  string `json:"companyName" validate:"required_if=Role employer"`
	ContactEmail string `json:"contactEmail" validate:"required_if=Role employer"`

	ApplicantName  string `json:"applicantName" validate:"required_unless=Role employer"`
	ApplicantEmail string `json:"applicantEmail" validate:"required_unless=Role employer"`

	Phone       string `json:"phone" validate:"required"`
	ResumeURL   string `json:"resumeUrl"`
	DocumentRef string `json:"documentRef"`
}

// fieldOrder is the on-screen order used when reporting missing fields.
var fieldOrder = []string{"companyName", "contactEmail", "applicantName", "applicantEmail", "phone", "resumeUrl"}

func (f Form) trimmed() Form {
	f.CompanyName = strings.TrimSpace(f.CompanyName)
	f.ContactEmail = strings.TrimSpace(f.ContactEmail)
	f.ApplicantName = strings.TrimSpace(f.ApplicantName)
	f.ApplicantEmail = strings.TrimSpace(f.ApplicantEmail)
	f.Phone = strings.TrimSpace(f.Phone)
	f.ResumeURL = strings.TrimSpace(f.ResumeURL)
	f.DocumentRef = strings.TrimSpace(f.DocumentRef)
	return f
}

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		f := sl.Current().Interface().(Form)
		if f.Role == identity.RoleEmployer && f.ResumeURL == "" && f.DocumentRef == "" {
			sl.ReportError(f.ResumeURL, "resumeUrl", "ResumeURL", "required_without", "documentRef")
		}
	}, Form{})

	return v
}

// check runs the role rules against an already trimmed form.
func check(v *validator.Validate, f Form) error {
	err := v.Struct(f)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	missing := make(map[string]bool, len(fieldErrs))
	for _, fe := range fieldErrs {
		missing[fe.Field()] = true
	}

	fields := make([]string, 0, len(missing))
	for _, name := range fieldOrder {
		if missing[name] {
			fields = append(fields, name)
		}
	}

	return &ValidationError{Role: f.Role, Fields: fields, Message: MessageMissingFields}
}
