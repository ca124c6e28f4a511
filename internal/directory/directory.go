// Package directory describes the remote identity and document service the
// client core depends on. Implementations live in subpackages.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/expertjobs/internal/domain/identity"
)

// Record is one stored document's fields.
type Record = map[string]any

type Op string

const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

func (o Op) Valid() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		return true
	default:
		return false
	}
}

type Filter struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

type Order struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

func OrderBy(field string, desc bool) Order {
	return Order{Field: field, Desc: desc}
}

// IDField is the key under which QueryDocuments returns each document's id.
const IDField = "id"

type Service interface {
	SignIn(ctx context.Context, email, password string) (*identity.Credential, error)
	SignUp(ctx context.Context, email, password string) (*identity.Credential, error)
	SendPasswordReset(ctx context.Context, email string) error
	SignOut(ctx context.Context) error

	// PutDocument creates a document when id is empty and merges into the
	// existing one otherwise. It returns the document id.
	PutDocument(ctx context.Context, collection, id string, fields Record) (string, error)
	QueryDocuments(ctx context.Context, collection string, filters []Filter, orders []Order) ([]Record, error)
}

// Auth error codes. Message is meant to be shown to the user as is.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailInUse         = "email_in_use"
	CodeWeakPassword       = "weak_password"
	CodeInvalidEmail       = "invalid_email"
	CodeRoleMismatch       = "role_mismatch"
	CodeUnauthenticated    = "unauthenticated"
	CodeUnavailable        = "unavailable"
)

type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

func NewAuthError(code, message string) *AuthError {
	return &AuthError{Code: code, Message: message}
}

// StoreError wraps a failed document read or write. Retrying means calling again.
type StoreError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("directory %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("document not found")
)

// ValidateCollection enforces the naming rule shared by every implementation.
func ValidateCollection(name string) error {
	if name == "" || len(name) > 64 {
		return ErrUnknownCollection
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '_' {
			return ErrUnknownCollection
		}
	}
	return nil
}

// ValidateField rejects empty and dotted paths; nested queries are not supported.
func ValidateField(field string) error {
	if field == "" || strings.ContainsAny(field, ". $'\"") {
		return fmt.Errorf("invalid field %q", field)
	}
	return nil
}

// CodeUserNotFound is returned by implementations that reveal unknown accounts
// on password reset. The HTTP service never does.
const CodeUserNotFound = "user_not_found"
