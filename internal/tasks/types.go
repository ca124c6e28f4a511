package tasks

type Type string

const (
	TypePasswordResetEmail  Type = "password_reset_email"
	TypeApplicationReceived Type = "application_received"
)

func (t Type) IsValid() bool {
	switch t {
	case TypePasswordResetEmail, TypeApplicationReceived:
		return true
	default:
		return false
	}
}
