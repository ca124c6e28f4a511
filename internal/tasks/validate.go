package tasks

import "strings"

// ValidatePayload checks the ids a handler needs before the task is queued.
func ValidatePayload(t Type, payload any) error {
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }

	switch t {
	case TypePasswordResetEmail:
		p, ok := asValue[PasswordResetEmailPayload](payload)
		if !ok {
			return ErrPayloadTypeMismatch
		}
		if blank(p.UserID) || blank(p.Email) || blank(p.Token) {
			return ErrInvalidPayload
		}
		return nil

	case TypeApplicationReceived:
		p, ok := asValue[ApplicationReceivedPayload](payload)
		if !ok {
			return ErrPayloadTypeMismatch
		}
		if blank(p.ApplicationID) || blank(p.JobID) || blank(p.EmployerID) {
			return ErrInvalidPayload
		}
		return nil

	default:
		return ErrInvalidType
	}
}

// asValue accepts T or *T.
func asValue[T any](v any) (T, bool) {
	switch x := v.(type) {
	case T:
		return x, true
	case *T:
		if x == nil {
			var zero T
			return zero, false
		}
		return *x, true
	default:
		var zero T
		return zero, false
	}
}
