// Package httpclient is the directory.Service that talks to cmd/api over HTTP.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/expertjobs/internal/directory"
	"github.com/geocoder89/expertjobs/internal/domain/identity"
	"golang.org/x/time/rate"
)

const refreshCookieName = "refresh_token"

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL     string
	httpClient  HTTPClient
	rateLimiter *rate.Limiter

	mu      sync.RWMutex
	cred    *identity.Credential
	refresh string
}

var _ directory.Service = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) SetHTTPClient(client HTTPClient) {
	c.httpClient = client
}

func (c *Client) SetRateLimit(maxRequestsPerSecond float64) {
	if maxRequestsPerSecond <= 0 {
		c.rateLimiter = nil
		return
	}
	c.rateLimiter = rate.NewLimiter(rate.Limit(maxRequestsPerSecond), 1)
}

// Current returns the credential of the signed-in account, if any.
func (c *Client) Current() *identity.Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cred == nil {
		return nil
	}
	cp := *c.cred
	return &cp
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Identity    identity.Identity `json:"identity"`
	AccessToken string            `json:"accessToken"`
	ExpiresAt   time.Time         `json:"expiresAt"`
}

// apiError mirrors the server's {"error":{...}} envelope.
type apiError struct {
	Status    int            `json:"-"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"requestId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status %d %s: %s", e.Status, e.Code, e.Message)
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*identity.Credential, error) {
	return c.authenticate(ctx, "/auth/signup", email, password)
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*identity.Credential, error) {
	return c.authenticate(ctx, "/auth/signin", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*identity.Credential, error) {
	resp, body, err := c.do(ctx, http.MethodPost, path, credentialsBody{Email: email, Password: password}, false)
	if err != nil {
		return nil, authError(err)
	}

	return c.acceptSession(resp, body)
}

func (c *Client) acceptSession(resp *http.Response, body []byte) (*identity.Credential, error) {
	var sr sessionResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, directory.NewAuthError(directory.CodeUnavailable, "Unexpected response from the server.")
	}

	cred := &identity.Credential{
		Identity:    sr.Identity,
		AccessToken: sr.AccessToken,
		ExpiresAt:   sr.ExpiresAt,
	}

	c.mu.Lock()
	c.cred = cred
	for _, ck := range resp.Cookies() {
		if ck.Name == refreshCookieName {
			c.refresh = ck.Value
		}
	}
	c.mu.Unlock()

	cp := *cred
	return &cp, nil
}

func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	_, _, err := c.do(ctx, http.MethodPost, "/auth/password-reset", map[string]string{"email": email}, false)
	if err != nil {
		return authError(err)
	}
	return nil
}

// SignOut revokes the refresh token server side and forgets the session. The
// local session is dropped even when the server cannot be reached.
func (c *Client) SignOut(ctx context.Context) error {
	_, _, err := c.do(ctx, http.MethodPost, "/auth/signout", nil, false)

	c.mu.Lock()
	c.cred = nil
	c.refresh = ""
	c.mu.Unlock()

	if err != nil {
		return authError(err)
	}
	return nil
}

// Refresh rotates the refresh token and replaces the access token.
func (c *Client) Refresh(ctx context.Context) (*identity.Credential, error) {
	resp, body, err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, false)
	if err != nil {
		return nil, authError(err)
	}
	return c.acceptSession(resp, body)
}

type putBody struct {
	ID     string           `json:"id,omitempty"`
	Fields directory.Record `json:"fields"`
}

type idResponse struct {
	ID string `json:"id"`
}

type listResponse struct {
	Items []directory.Record `json:"items"`
	Count int                `json:"count"`
}

func (c *Client) PutDocument(ctx context.Context, collection, id string, fields directory.Record) (string, error) {
	if err := directory.ValidateCollection(collection); err != nil {
		return "", &directory.StoreError{Op: "put", Collection: collection, Err: err}
	}

	method, path := http.MethodPost, "/v1/collections/"+collection+"/documents"
	if id != "" {
		method, path = http.MethodPut, path+"/"+url.PathEscape(id)
	}

	_, body, err := c.do(ctx, method, path, putBody{Fields: fields}, true)
	if err != nil {
		return "", storeError("put", collection, err)
	}

	var out idResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &directory.StoreError{Op: "put", Collection: collection, Err: fmt.Errorf("decode response: %w", err)}
	}

	return out.ID, nil
}

func (c *Client) QueryDocuments(ctx context.Context, collection string, filters []directory.Filter, orders []directory.Order) ([]directory.Record, error) {
	if err := directory.ValidateCollection(collection); err != nil {
		return nil, &directory.StoreError{Op: "query", Collection: collection, Err: err}
	}

	q, err := directory.EncodeQuery(filters, orders)
	if err != nil {
		return nil, &directory.StoreError{Op: "query", Collection: collection, Err: err}
	}

	path := "/v1/collections/" + collection + "/documents"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	_, body, err := c.do(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, storeError("query", collection, err)
	}

	var out listResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, &directory.StoreError{Op: "query", Collection: collection, Err: fmt.Errorf("decode response: %w", err)}
	}

	if out.Items == nil {
		out.Items = []directory.Record{}
	}
	return out.Items, nil
}

// do sends one request. Authenticated calls that come back 401 are retried
// once after a token refresh.
func (c *Client) do(ctx context.Context, method, path string, payload any, authed bool) (*http.Response, []byte, error) {
	resp, body, err := c.sendRequest(ctx, method, path, payload, authed)

	var apiErr *apiError
	if authed && errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized && c.hasRefresh() {
		if _, rerr := c.Refresh(ctx); rerr == nil {
			return c.sendRequest(ctx, method, path, payload, authed)
		}
	}

	return resp, body, err
}

func (c *Client) hasRefresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refresh != ""
}

func (c *Client) sendRequest(ctx context.Context, method, path string, payload any, authed bool) (*http.Response, []byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}

	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("error encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	if authed && c.cred != nil && c.cred.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cred.AccessToken)
	}
	if strings.HasPrefix(path, "/auth/") && c.refresh != "" {
		req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: c.refresh})
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := c.handleResponse(resp)
	return resp, body, err
}

func (c *Client) handleResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	var env struct {
		Error apiError `json:"error"`
	}
	if jerr := json.Unmarshal(body, &env); jerr != nil || env.Error.Code == "" {
		env.Error = apiError{Code: "http_" + fmt.Sprint(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
	}
	env.Error.Status = resp.StatusCode

	return nil, &env.Error
}

// authError turns a transport or envelope failure into the error the
// sign-in screens show.
func authError(err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		return directory.NewAuthError(apiErr.Code, apiErr.Message)
	}
	return directory.NewAuthError(directory.CodeUnavailable, "Service unavailable. Please try again.")
}

func storeError(op, collection string, err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusForbidden:
			err = fmt.Errorf("%w: %s", directory.ErrForbidden, apiErr.Message)
		case http.StatusNotFound:
			if apiErr.Code == "unknown_collection" {
				err = fmt.Errorf("%w: %s", directory.ErrUnknownCollection, collection)
			} else {
				err = fmt.Errorf("%w: %s", directory.ErrNotFound, apiErr.Message)
			}
		}
	}
	return &directory.StoreError{Op: op, Collection: collection, Err: err}
}
