package identity

import (
	"errors"
	"time"
)

type Role string

const (
	RoleEmployee Role = "employee"
	RoleEmployer Role = "employer"
)

var ErrInvalidRole = errors.New("role must be employee or employer")

func (r Role) Valid() bool {
	return r == RoleEmployee || r == RoleEmployer
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Identity is the serializable projection of an authenticated account.
type Identity struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	DisplayName   string `json:"displayName,omitempty"`
}

// Credential is what the directory hands back after sign-in. The tokens are
// opaque to everything except the transport that issued them.
type Credential struct {
	Identity

	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"-"`
}

func (c *Credential) Projection() *Identity {
	if c == nil {
		return nil
	}
	id := c.Identity
	return &id
}
