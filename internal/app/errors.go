package app

import "errors"

var (
	ErrNotAuthenticated = errors.New("sign in required")
	ErrRoleNotPermitted = errors.New("not permitted for this account type")
	ErrUnknownDecision  = errors.New("decision must be approve or reject")
)

// Messages shown by the sign-in, register and reset screens.
const (
	MessageFillAllFields    = "Please fill in all fields"
	MessagePasswordMismatch = "Passwords do not match"
	MessagePasswordTooShort = "Password must be at least 6 characters"
	MessageEnterEmail       = "Please enter your email address"
	MessageResetSent        = "Password reset email sent! Check your inbox."
)

// FormError is a local check that failed before anything was sent.
type FormError struct {
	Field   string
	Message string
}

func (e *FormError) Error() string { return e.Message }
