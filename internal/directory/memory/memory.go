// Package memory is an in-process directory.Service. It backs tests and local
// demos; documents keep whatever Go values were written, the way a document
// store SDK hands back native timestamp objects.
package memory

import (
	"context"
	"maps"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/expertjobs/internal/directory"
	"github.com/geocoder89/expertjobs/internal/domain/identity"
	"github.com/geocoder89/expertjobs/internal/security"
	"github.com/google/uuid"
)

type account struct {
	uid          string
	email        string
	passwordHash string
}

type document struct {
	seq    int
	fields directory.Record
}

// Ids in these collections are assigned by the store; a merge into an
// unknown id is refused, as the server does.
var storeAssigned = map[string]bool{"jobs": true, "applications": true}

type Directory struct {
	mu sync.Mutex

	accounts map[string]account // by lowercased email
	current  *identity.Credential
	resets   []string

	docs map[string]map[string]*document
	seq  int

	writeErr error
	readErr  error
	writes   int
}

func New() *Directory {
	return &Directory{
		accounts: make(map[string]account),
		docs:     make(map[string]map[string]*document),
	}
}

var _ directory.Service = (*Directory)(nil)

func (d *Directory) SignUp(ctx context.Context, email, password string) (*identity.Credential, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, directory.NewAuthError(directory.CodeInvalidEmail, "The email address is badly formatted.")
	}
	if err := security.ValidatePassword(password); err != nil {
		return nil, directory.NewAuthError(directory.CodeWeakPassword, "Password should be at least 6 characters.")
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := strings.ToLower(email)
	if _, taken := d.accounts[key]; taken {
		return nil, directory.NewAuthError(directory.CodeEmailInUse, "The email address is already in use by another account.")
	}

	acc := account{uid: uuid.NewString(), email: email, passwordHash: hash}
	d.accounts[key] = acc
	d.current = credentialFor(acc)

	return copyCredential(d.current), nil
}

func (d *Directory) SignIn(ctx context.Context, email, password string) (*identity.Credential, error) {
	d.mu.Lock()
	acc, ok := d.accounts[strings.ToLower(strings.TrimSpace(email))]
	d.mu.Unlock()

	if !ok || security.CheckPassword(acc.passwordHash, password) != nil {
		return nil, directory.NewAuthError(directory.CodeInvalidCredentials, "Email or password is incorrect.")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = credentialFor(acc)

	return copyCredential(d.current), nil
}

func (d *Directory) SendPasswordReset(ctx context.Context, email string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	email = strings.TrimSpace(email)
	if _, ok := d.accounts[strings.ToLower(email)]; !ok {
		return directory.NewAuthError(directory.CodeUserNotFound, "There is no user record corresponding to this identifier.")
	}

	d.resets = append(d.resets, email)
	return nil
}

func (d *Directory) SignOut(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.current = nil
	return nil
}

func (d *Directory) PutDocument(ctx context.Context, collection, id string, fields directory.Record) (string, error) {
	if err := directory.ValidateCollection(collection); err != nil {
		return "", &directory.StoreError{Op: "put", Collection: collection, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", &directory.StoreError{Op: "put", Collection: collection, Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.writeErr != nil {
		return "", &directory.StoreError{Op: "put", Collection: collection, Err: d.writeErr}
	}

	coll, ok := d.docs[collection]
	if !ok {
		coll = make(map[string]*document)
		d.docs[collection] = coll
	}

	create := id == ""
	if create {
		if key, ok := fields["idempotencyKey"].(string); ok && key != "" {
			for existingID, doc := range coll {
				if doc.fields["idempotencyKey"] == key {
					return existingID, nil
				}
			}
		}
		id = uuid.NewString()
	}

	doc, exists := coll[id]
	if !exists && !create && storeAssigned[collection] {
		return "", &directory.StoreError{Op: "put", Collection: collection, Err: directory.ErrNotFound}
	}

	d.writes++

	if exists {
		maps.Copy(doc.fields, fields)
		return id, nil
	}

	d.seq++
	coll[id] = &document{seq: d.seq, fields: maps.Clone(fields)}
	return id, nil
}

func (d *Directory) QueryDocuments(ctx context.Context, collection string, filters []directory.Filter, orders []directory.Order) ([]directory.Record, error) {
	if err := directory.ValidateCollection(collection); err != nil {
		return nil, &directory.StoreError{Op: "query", Collection: collection, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &directory.StoreError{Op: "query", Collection: collection, Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.readErr != nil {
		return nil, &directory.StoreError{Op: "query", Collection: collection, Err: d.readErr}
	}

	hits := make([]hit, 0)
	for id, doc := range d.docs[collection] {
		rec := maps.Clone(doc.fields)
		rec[directory.IDField] = id
		if !matchAll(rec, filters) {
			continue
		}
		hits = append(hits, hit{seq: doc.seq, rec: rec})
	}

	sortHits(hits, orders)

	out := make([]directory.Record, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.rec)
	}
	return out, nil
}

// FailWrites makes every following write fail with err until called with nil.
func (d *Directory) FailWrites(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeErr = err
}

// FailReads is FailWrites for queries.
func (d *Directory) FailReads(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readErr = err
}

// Writes counts accepted writes, including merges.
func (d *Directory) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

func (d *Directory) Document(collection, id string) (directory.Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc, ok := d.docs[collection][id]
	if !ok {
		return nil, false
	}
	return maps.Clone(doc.fields), true
}

func (d *Directory) PasswordResets() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.resets...)
}

func (d *Directory) Current() *identity.Credential {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyCredential(d.current)
}

func credentialFor(acc account) *identity.Credential {
	return &identity.Credential{
		Identity: identity.Identity{
			UID:   acc.uid,
			Email: acc.email,
		},
		AccessToken: "memory-" + acc.uid,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func copyCredential(c *identity.Credential) *identity.Credential {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
