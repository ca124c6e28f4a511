package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/geocoder89/expertjobs/internal/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockHTTPClient struct {
	mock.Mock
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

const sessionBody = `{"identity":{"uid":"u1","email":"ann@example.com","emailVerified":false},"accessToken":"tok-1","expiresAt":"2030-01-01T00:00:00Z"}`

func TestSignIn_StoresCredential(t *testing.T) {
	m := &mockHTTPClient{}
	resp := jsonResponse(http.StatusOK, sessionBody)
	resp.Header.Add("Set-Cookie", "refresh_token=r-1; Path=/auth; HttpOnly")
	m.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		return req.Method == http.MethodPost && req.URL.String() == "http://dir.test/auth/signin"
	})).Return(resp, nil)

	c := NewClient("http://dir.test/")
	c.SetHTTPClient(m)

	cred, err := c.SignIn(context.Background(), "ann@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "u1", cred.UID)
	assert.Equal(t, "tok-1", cred.AccessToken)
	assert.Equal(t, "u1", c.Current().UID)
	assert.True(t, c.hasRefresh())
}

func TestSignIn_MapsEnvelopeToAuthError(t *testing.T) {
	m := &mockHTTPClient{}
	m.On("Do", mock.Anything).Return(jsonResponse(http.StatusUnauthorized,
		`{"error":{"code":"invalid_credentials","message":"Email or password is incorrect.","requestId":"r"}}`), nil)

	c := NewClient("http://dir.test")
	c.SetHTTPClient(m)

	_, err := c.SignIn(context.Background(), "ann@example.com", "bad")

	var authErr *directory.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, directory.CodeInvalidCredentials, authErr.Code)
	assert.Equal(t, "Email or password is incorrect.", authErr.Message)
	assert.Nil(t, c.Current())
}

func TestSignIn_TransportFailureIsUnavailable(t *testing.T) {
	m := &mockHTTPClient{}
	m.On("Do", mock.Anything).Return(nil, errors.New("dial tcp: refused"))

	c := NewClient("http://dir.test")
	c.SetHTTPClient(m)

	_, err := c.SignIn(context.Background(), "ann@example.com", "secret1")

	var authErr *directory.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, directory.CodeUnavailable, authErr.Code)
}

func TestPutDocument_CreateAndMerge(t *testing.T) {
	m := &mockHTTPClient{}
	m.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		return req.Method == http.MethodPost && req.URL.Path == "/v1/collections/applications/documents"
	})).Return(jsonResponse(http.StatusCreated, `{"id":"doc-1"}`), nil).Once()
	m.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		return req.Method == http.MethodPut && req.URL.Path == "/v1/collections/applications/documents/doc-1"
	})).Return(jsonResponse(http.StatusOK, `{"id":"doc-1"}`), nil).Once()

	c := NewClient("http://dir.test")
	c.SetHTTPClient(m)

	id, err := c.PutDocument(context.Background(), "applications", "", directory.Record{"status": "pending"})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", id)

	id, err = c.PutDocument(context.Background(), "applications", "doc-1", directory.Record{"status": "approved"})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", id)
	m.AssertExpectations(t)
}

func TestPutDocument_ErrorsWrapStoreError(t *testing.T) {
	tests := []struct {
		name   string
		resp   *http.Response
		err    error
		target error
	}{
		{"forbidden", jsonResponse(http.StatusForbidden, `{"error":{"code":"forbidden","message":"nope"}}`), nil, directory.ErrForbidden},
		{"unknown collection", jsonResponse(http.StatusNotFound, `{"error":{"code":"unknown_collection","message":"x"}}`), nil, directory.ErrUnknownCollection},
		{"missing document", jsonResponse(http.StatusNotFound, `{"error":{"code":"not_found","message":"x"}}`), nil, directory.ErrNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := &mockHTTPClient{}
			m.On("Do", mock.Anything).Return(tc.resp, tc.err)

			c := NewClient("http://dir.test")
			c.SetHTTPClient(m)

			_, err := c.PutDocument(context.Background(), "jobs", "j1", directory.Record{"title": "x"})

			var storeErr *directory.StoreError
			require.ErrorAs(t, err, &storeErr)
			assert.Equal(t, "put", storeErr.Op)
			assert.ErrorIs(t, err, tc.target)
		})
	}
}

func TestPutDocument_RejectsBadCollectionLocally(t *testing.T) {
	m := &mockHTTPClient{}
	c := NewClient("http://dir.test")
	c.SetHTTPClient(m)

	_, err := c.PutDocument(context.Background(), "../etc", "", directory.Record{})
	assert.ErrorIs(t, err, directory.ErrUnknownCollection)
	m.AssertNotCalled(t, "Do", mock.Anything)
}

func TestQueryDocuments_EncodesFiltersAndDecodesItems(t *testing.T) {
	var mu sync.Mutex
	var seen url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = r.URL.Query()
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":"a1","status":"pending","rank":2}],"count":1}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	recs, err := c.QueryDocuments(context.Background(), "applications",
		[]directory.Filter{directory.Where("applicantId", directory.OpEq, "u1")},
		[]directory.Order{directory.OrderBy("appliedAt", true)},
	)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a1", recs[0][directory.IDField])
	assert.Equal(t, json.Number("2"), recs[0]["rank"])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`applicantId,==,"u1"`}, seen["where"])
	assert.Equal(t, []string{"appliedAt,desc"}, seen["orderBy"])
}

func TestAuthedCallRefreshesOnceOn401(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls[r.URL.Path]++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/auth/signin":
			http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "r-1", Path: "/auth"})
			_, _ = w.Write([]byte(strings.Replace(sessionBody, "tok-1", "stale", 1)))
		case "/auth/refresh":
			ck, err := r.Cookie("refresh_token")
			if err != nil || ck.Value != "r-1" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"code":"invalid_refresh","message":"Invalid refresh token"}}`))
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "r-2", Path: "/auth"})
			_, _ = w.Write([]byte(sessionBody))
		default:
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"expired"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"items":[],"count":0}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.SignIn(context.Background(), "ann@example.com", "secret1")
	require.NoError(t, err)

	recs, err := c.QueryDocuments(context.Background(), "jobs", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)

	mu.Lock()
	assert.Equal(t, 1, calls["/auth/refresh"])
	assert.Equal(t, 2, calls["/v1/collections/jobs/documents"])
	mu.Unlock()
	assert.Equal(t, "tok-1", c.Current().AccessToken)
}

func TestSignOut_ForgetsSessionEvenOnFailure(t *testing.T) {
	m := &mockHTTPClient{}
	resp := jsonResponse(http.StatusOK, sessionBody)
	m.On("Do", mock.MatchedBy(func(req *http.Request) bool { return req.URL.Path == "/auth/signin" })).Return(resp, nil)
	m.On("Do", mock.MatchedBy(func(req *http.Request) bool { return req.URL.Path == "/auth/signout" })).
		Return(nil, errors.New("offline"))

	c := NewClient("http://dir.test")
	c.SetHTTPClient(m)

	_, err := c.SignIn(context.Background(), "ann@example.com", "secret1")
	require.NoError(t, err)

	err = c.SignOut(context.Background())
	assert.Error(t, err)
	assert.Nil(t, c.Current())
}

func TestSetRateLimit(t *testing.T) {
	c := NewClient("http://dir.test")
	c.SetRateLimit(5)
	require.NotNil(t, c.rateLimiter)

	c.SetRateLimit(0)
	assert.Nil(t, c.rateLimiter)
}
