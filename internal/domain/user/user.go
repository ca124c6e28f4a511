package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/expertjobs/internal/domain/identity"
	"github.com/geocoder89/expertjobs/internal/domain/isotime"
)

// ProfileCollection holds one Profile document per account, keyed by uid.
const ProfileCollection = "users"

var (
	ErrNotFound         = errors.New("user not found")
	ErrEmailAlreadyUsed = errors.New("email already in use")
)

// User is the account row behind the identity service.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"` // never expose hash in JSON
	DisplayName   string    `json:"displayName"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (u User) Identity() identity.Identity {
	return identity.Identity{
		UID:           u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		DisplayName:   u.DisplayName,
	}
}

// Profile is the document written at registration time.
type Profile struct {
	FullName   string            `json:"fullName"`
	Email      string            `json:"email"`
	UserType   identity.Role     `json:"userType"`
	CreatedAt  isotime.Timestamp `json:"createdAt"`
	IsVerified bool              `json:"isVerified"`
}

func NewProfile(fullName, email string, role identity.Role, now time.Time) Profile {
	return Profile{
		FullName:   fullName,
		Email:      email,
		UserType:   role,
		CreatedAt:  isotime.From(now),
		IsVerified: false,
	}
}

func (p Profile) Record() (map[string]any, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	var rec map[string]any
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func ProfileFromRecord(rec map[string]any) (Profile, error) {
	if ts, ok := isotime.Normalize(rec["createdAt"]); ok {
		copied := make(map[string]any, len(rec))
		for k, v := range rec {
			copied[k] = v
		}
		copied["createdAt"] = string(ts)
		rec = copied
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return Profile{}, err
	}

	var p Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}
