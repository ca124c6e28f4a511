package submission

import (
	"errors"
	"fmt"

	"github.com/geocoder89/expertjobs/internal/domain/identity"
)

const (
	MessageMissingFields = "Please fill in all required fields."
	MessageRemoteFailure = "Failed to submit application. Please try again."
	MessageSubmitted     = "Your application has been submitted successfully! You will be redirected to the jobs page."
)

// ErrAlreadySubmitted is returned by an Attempt that is submitting or done.
var ErrAlreadySubmitted = errors.New("application already submitted")

// ValidationError lists the required fields that were empty, in form order.
// Nothing was sent to the store.
type ValidationError struct {
	Role    identity.Role
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (%s: missing %v)", e.Message, e.Role, e.Fields)
}

// Field is the first offending field.
func (e *ValidationError) Field() string {
	if len(e.Fields) == 0 {
		return ""
	}
	return e.Fields[0]
}

// RemoteWriteError means the store rejected or never received the write.
// Local state was not touched, so the same form can be submitted again.
type RemoteWriteError struct {
	Err error
}

func (e *RemoteWriteError) Error() string {
	return "submit application: " + e.Err.Error()
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

// UserMessage is what the form shows.
func (e *RemoteWriteError) UserMessage() string { return MessageRemoteFailure }
