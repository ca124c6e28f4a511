package integration_test

import (
	"net/http"
	"strings"
	"testing"
)

func TestAuthIntegration_SignUp_SignIn_Refresh_SignOut(t *testing.T) {
	router, _ := setupRouter(t)

	session, signupRefresh := signUp(t, router, "sam@example.com")
	if strings.TrimSpace(session.AccessToken) == "" || session.Identity.UID == "" {
		t.Fatalf("signup expected a session, got %+v", session)
	}

	// duplicate email, different case
	w, _ := doRequest(router, http.MethodPost, "/auth/signup", `{"email":"SAM@example.com","password":"secret1"}`, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate signup got status %d, body=%s", w.Code, w.Body.String())
	}

	w, _ = doRequest(router, http.MethodPost, "/auth/signin", `{"email":"sam@example.com","password":"nope-nope"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad signin got status %d", w.Code)
	}

	w, _ = doRequest(router, http.MethodPost, "/auth/signin", `{"email":"sam@example.com","password":"secret1"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("signin got status %d, body=%s", w.Code, w.Body.String())
	}

	// refresh rotates
	w, resp := doRequest(router, http.MethodPost, "/auth/refresh", "", "", signupRefresh)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh got status %d, body=%s", w.Code, w.Body.String())
	}
	rotated := refreshCookie(t, resp)

	w, _ = doRequest(router, http.MethodPost, "/auth/refresh", "", "", signupRefresh)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh(old cookie) got status %d, want %d", w.Code, http.StatusUnauthorized)
	}

	w, _ = doRequest(router, http.MethodPost, "/auth/signout", "", "", rotated)
	if w.Code != http.StatusNoContent {
		t.Fatalf("signout got status %d", w.Code)
	}

	w, _ = doRequest(router, http.MethodPost, "/auth/refresh", "", "", rotated)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after signout got status %d", w.Code)
	}
}

func TestAuthIntegration_PasswordResetEnqueuesTask(t *testing.T) {
	router, pool := setupRouter(t)
	signUp(t, router, "ann@example.com")

	for _, email := range []string{"ann@example.com", "nobody@example.com"} {
		w, _ := doRequest(router, http.MethodPost, "/auth/password-reset", `{"email":"`+email+`"}`, "")
		if w.Code != http.StatusAccepted {
			t.Fatalf("%s: got status %d, body=%s", email, w.Code, w.Body.String())
		}
	}

	var tasks, resets int
	if err := pool.QueryRow(t.Context(), `SELECT COUNT(*) FROM tasks WHERE type = 'password_reset_email'`).Scan(&tasks); err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if err := pool.QueryRow(t.Context(), `SELECT COUNT(*) FROM password_resets`).Scan(&resets); err != nil {
		t.Fatalf("count resets: %v", err)
	}
	if tasks != 1 || resets != 1 {
		t.Fatalf("expected one task and one reset row, got %d and %d", tasks, resets)
	}
}
