// Package state holds the two client-side containers: who is signed in
// (Session) and what the user is looking at (Catalog). Every mutation holds
// the container lock for its whole duration, and snapshots are copies.
package state

import (
	"sync"

	"github.com/geocoder89/expertjobs/internal/domain/identity"
)

type SessionSnapshot struct {
	Credential      *identity.Credential `json:"-"`
	UserData        *identity.Identity   `json:"userData"`
	IsAuthenticated bool                 `json:"isAuthenticated"`
	UserType        *identity.Role       `json:"userType"`
	IsLoading       bool                 `json:"isLoading"`
}

type Session struct {
	mu sync.RWMutex
	s  SessionSnapshot
}

func NewSession() *Session {
	return &Session{}
}

// SetUser replaces the signed-in identity. nil clears it. The role is untouched.
func (s *Session) SetUser(cred *identity.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred == nil {
		s.s.Credential = nil
		s.s.UserData = nil
		s.s.IsAuthenticated = false
		return
	}

	cp := *cred
	s.s.Credential = &cp
	s.s.UserData = cp.Projection()
	s.s.IsAuthenticated = true
}

func (s *Session) SetRole(role identity.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := role
	s.s.UserType = &r
}

func (s *Session) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.s.IsLoading = loading
}

// Logout clears identity, projection, flag and role. Loading is left as is.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.s.Credential = nil
	s.s.UserData = nil
	s.s.IsAuthenticated = false
	s.s.UserType = nil
}

func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.s
	if s.s.Credential != nil {
		c := *s.s.Credential
		out.Credential = &c
	}
	if s.s.UserData != nil {
		u := *s.s.UserData
		out.UserData = &u
	}
	if s.s.UserType != nil {
		r := *s.s.UserType
		out.UserType = &r
	}
	return out
}

// UID returns the signed-in uid, or "" when nobody is.
func (s *Session) UID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.s.UserData == nil {
		return ""
	}
	return s.s.UserData.UID
}

func (s *Session) Role() (identity.Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.s.UserType == nil {
		return "", false
	}
	return *s.s.UserType, true
}
