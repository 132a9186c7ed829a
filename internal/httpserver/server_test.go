package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"accountsvr/webauth/internal/auth"
)

type fakeAuthService struct {
	loginFunc      func(username, password string) (auth.StartedSession, error)
	signupFunc     func(params auth.SignupParams) (auth.StartedSession, error)
	validateFunc   func(token string) (auth.Session, auth.User, error)
	invalidateFunc func(sessionID string) error
}

func (f fakeAuthService) Login(username, password string) (auth.StartedSession, error) {
	if f.loginFunc == nil {
		return auth.StartedSession{}, errors.New("not implemented")
	}
	return f.loginFunc(username, password)
}

func (f fakeAuthService) Signup(params auth.SignupParams) (auth.StartedSession, error) {
	if f.signupFunc == nil {
		return auth.StartedSession{}, errors.New("not implemented")
	}
	return f.signupFunc(params)
}

func (f fakeAuthService) ValidateSessionToken(token string) (auth.Session, auth.User, error) {
	if f.validateFunc == nil {
		return auth.Session{}, auth.User{}, auth.ErrSessionNotFound
	}
	return f.validateFunc(token)
}

func (f fakeAuthService) InvalidateSession(sessionID string) error {
	if f.invalidateFunc == nil {
		return errors.New("not implemented")
	}
	return f.invalidateFunc(sessionID)
}

func startedSession(token string) auth.StartedSession {
	return auth.StartedSession{
		Token: token,
		Session: auth.Session{
			ID:        auth.SessionIDFromToken(token),
			UserID:    "USER1",
			ExpiresAt: time.Now().Add(15 * 24 * time.Hour).Unix(),
		},
		User: auth.User{ID: "USER1", Username: "alice", Email: "alice@example.com", Role: "user"},
	}
}

func postJSON(t *testing.T, handler http.Handler, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func sessionCookieFrom(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	return nil
}

func TestHealthz(t *testing.T) {
	handler := requestMiddleware(NewHandler(Deps{}), Deps{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header to be set")
	}
}

func TestReadyzFailsWhenCheckFails(t *testing.T) {
	handler := NewHandler(Deps{ReadyCheck: func(ctx context.Context) error {
		return errors.New("db down")
	}})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
}

func TestInfo(t *testing.T) {
	handler := NewHandler(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/v1/info", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if got["service"] != "webauth-api" {
		t.Fatalf("expected service 'webauth-api', got %q", got["service"])
	}
}

func TestLoginSuccessSetsCookie(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{loginFunc: func(username, password string) (auth.StartedSession, error) {
		if username != "alice" || password != "secret99" {
			return auth.StartedSession{}, auth.ErrInvalidCredentials
		}
		return startedSession("tok-login"), nil
	}}})

	rec := postJSON(t, handler, "/v1/auth/login", map[string]string{
		"username": "alice",
		"password": "secret99",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got struct {
		Message string `json:"message"`
		User    struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Role     string `json:"role"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if got.Message != "Login successful" {
		t.Fatalf("expected login message, got %q", got.Message)
	}
	if got.User.Username != "alice" || got.User.Role != "user" {
		t.Fatalf("unexpected user summary: %+v", got.User)
	}
	if strings.Contains(rec.Body.String(), "hashed_password") {
		t.Fatalf("response must not leak the password hash: %s", rec.Body.String())
	}

	cookie := sessionCookieFrom(rec)
	if cookie == nil {
		t.Fatalf("expected session cookie to be set")
	}
	if cookie.Value != "tok-login" {
		t.Fatalf("expected cookie to carry the raw token, got %q", cookie.Value)
	}
	if !cookie.HttpOnly || cookie.Path != "/" || cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie attributes: %+v", cookie)
	}
	if cookie.Secure {
		t.Fatalf("cookie must not be Secure outside production mode")
	}
}

func TestLoginSecureCookieInProduction(t *testing.T) {
	handler := NewHandler(Deps{Production: true, Auth: fakeAuthService{loginFunc: func(username, password string) (auth.StartedSession, error) {
		return startedSession("tok-prod"), nil
	}}})

	rec := postJSON(t, handler, "/v1/auth/login", map[string]string{
		"username": "alice",
		"password": "secret99",
	})

	cookie := sessionCookieFrom(rec)
	if cookie == nil {
		t.Fatalf("expected session cookie to be set")
	}
	if !cookie.Secure {
		t.Fatalf("expected Secure cookie in production mode")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{loginFunc: func(username, password string) (auth.StartedSession, error) {
		return auth.StartedSession{}, auth.ErrInvalidCredentials
	}}})

	for _, payload := range []map[string]string{
		{"username": "ghost", "password": "secret99"},
		{"username": "alice", "password": "wrongpass"},
	} {
		rec := postJSON(t, handler, "/v1/auth/login", payload)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Incorrect username or password") {
			t.Fatalf("expected generic credentials message, got %s", rec.Body.String())
		}
	}
}

func TestLoginLockedAccount(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{loginFunc: func(username, password string) (auth.StartedSession, error) {
		return auth.StartedSession{}, auth.ErrAccountLocked
	}}})

	rec := postJSON(t, handler, "/v1/auth/login", map[string]string{
		"username": "alice",
		"password": "whatever1",
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Account is locked. Please contact support.") {
		t.Fatalf("expected locked message, got %s", rec.Body.String())
	}
}

func TestLoginValidation(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{}})

	cases := []struct {
		name    string
		payload map[string]string
		wantMsg string
	}{
		{"missing username", map[string]string{"password": "secret99"}, "Invalid username"},
		{"short password", map[string]string{"username": "alice", "password": "pw"}, "Invalid password"},
		{"long password", map[string]string{"username": "alice", "password": strings.Repeat("x", 256)}, "Invalid password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, handler, "/v1/auth/login", tc.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.wantMsg) {
				t.Fatalf("expected message %q, got %s", tc.wantMsg, rec.Body.String())
			}
		})
	}
}

func TestSignupSuccess(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{signupFunc: func(params auth.SignupParams) (auth.StartedSession, error) {
		if params.Username != "newuser" || params.Email != "new@example.com" {
			t.Fatalf("unexpected signup params: %+v", params)
		}
		started := startedSession("tok-signup")
		started.User.Username = params.Username
		started.User.Email = params.Email
		return started, nil
	}}})

	rec := postJSON(t, handler, "/v1/auth/signup", map[string]string{
		"email":     "new@example.com",
		"username":  "newuser",
		"password":  "secret99",
		"password2": "secret99",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var got struct {
		Message string `json:"message"`
		User    struct {
			Username string `json:"username"`
			Email    string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if got.Message != "Account created successfully!" {
		t.Fatalf("expected signup message, got %q", got.Message)
	}
	if got.User.Username != "newuser" || got.User.Email != "new@example.com" {
		t.Fatalf("unexpected user summary: %+v", got.User)
	}
	if sessionCookieFrom(rec) == nil {
		t.Fatalf("expected signup to start a session")
	}
}

func TestSignupValidation(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{}})

	base := map[string]string{
		"email":     "new@example.com",
		"username":  "newuser",
		"password":  "secret99",
		"password2": "secret99",
	}
	cases := []struct {
		name     string
		override map[string]string
		wantMsg  string
	}{
		{"missing username", map[string]string{"username": ""}, "Invalid username"},
		{"two char username", map[string]string{"username": "ab"}, "Username must be 3-16 characters"},
		{"seventeen char username", map[string]string{"username": strings.Repeat("a", 17)}, "Username must be 3-16 characters"},
		{"non alphanumeric username", map[string]string{"username": "bad-name"}, "Username must be alphanumeric"},
		{"missing email", map[string]string{"email": ""}, "Invalid email"},
		{"overlong email", map[string]string{"email": strings.Repeat("e", 256)}, "Invalid email"},
		{"five char password", map[string]string{"password": "12345", "password2": "12345"}, "Password must be 6-255 characters"},
		{"password mismatch", map[string]string{"password2": "different1"}, "Passwords do not match"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := map[string]string{}
			for k, v := range base {
				payload[k] = v
			}
			for k, v := range tc.override {
				payload[k] = v
			}
			rec := postJSON(t, handler, "/v1/auth/signup", payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tc.wantMsg) {
				t.Fatalf("expected message %q, got %s", tc.wantMsg, rec.Body.String())
			}
		})
	}
}

func TestSignupConflicts(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"email taken", auth.ErrEmailTaken, "Email already in use"},
		{"username taken", auth.ErrUsernameTaken, "Username already taken"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler(Deps{Auth: fakeAuthService{signupFunc: func(params auth.SignupParams) (auth.StartedSession, error) {
				return auth.StartedSession{}, tc.err
			}}})

			rec := postJSON(t, handler, "/v1/auth/signup", map[string]string{
				"email":     "new@example.com",
				"username":  "newuser",
				"password":  "secret99",
				"password2": "secret99",
			})
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.wantMsg) {
				t.Fatalf("expected message %q, got %s", tc.wantMsg, rec.Body.String())
			}
		})
	}
}

func TestLogoutWithoutSession(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{}})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestLogoutInvalidatesAndClearsCookie(t *testing.T) {
	invalidated := ""
	started := startedSession("tok-logout")
	handler := NewHandler(Deps{Auth: fakeAuthService{
		validateFunc: func(token string) (auth.Session, auth.User, error) {
			if token != "tok-logout" {
				return auth.Session{}, auth.User{}, auth.ErrSessionNotFound
			}
			return started.Session, started.User, nil
		},
		invalidateFunc: func(sessionID string) error {
			invalidated = sessionID
			return nil
		},
	}})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "tok-logout"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if invalidated != started.Session.ID {
		t.Fatalf("expected session %q invalidated, got %q", started.Session.ID, invalidated)
	}

	var cleared *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName && c.Value == "" {
			cleared = c
		}
	}
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Fatalf("expected a clearing session cookie, got %+v", rec.Result().Cookies())
	}
}

func TestLogoutRedirectVariant(t *testing.T) {
	started := startedSession("tok-redir")
	handler := NewHandler(Deps{Auth: fakeAuthService{
		validateFunc: func(token string) (auth.Session, auth.User, error) {
			return started.Session, started.User, nil
		},
		invalidateFunc: func(sessionID string) error { return nil },
	}})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout?redirect=1", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "tok-redir"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Fatalf("expected redirect to /, got %q", loc)
	}
}

func TestMeRequiresSession(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{}})
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestMeReturnsUserSummary(t *testing.T) {
	started := startedSession("tok-me")
	started.User.DisplayName = "Alice"
	handler := NewHandler(Deps{Auth: fakeAuthService{
		validateFunc: func(token string) (auth.Session, auth.User, error) {
			return started.Session, started.User, nil
		},
	}})

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "tok-me"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if got["username"] != "alice" || got["display_name"] != "Alice" {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestAuthRoutesRejectWrongMethod(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{}})
	for _, target := range []string{"/v1/auth/login", "/v1/auth/signup", "/v1/auth/logout"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status 405 for GET %s, got %d", target, rec.Code)
		}
	}
}

func TestFrontendStaticAndSpaFallback(t *testing.T) {
	dist := t.TempDir()
	if err := os.WriteFile(filepath.Join(dist, "index.html"), []byte("<html>app</html>"), 0o644); err != nil {
		t.Fatalf("failed to write index.html: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dist, "app.js"), []byte("console.log('x')"), 0o644); err != nil {
		t.Fatalf("failed to write app.js: %v", err)
	}

	handler := NewHandler(Deps{FrontendDistDir: dist})

	cases := []struct {
		path     string
		wantBody string
	}{
		{"/", "<html>app</html>"},
		{"/app.js", "console.log('x')"},
		{"/login", "<html>app</html>"}, // SPA fallback
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: expected status 200, got %d", tc.path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), tc.wantBody) {
			t.Fatalf("GET %s: expected body %q, got %q", tc.path, tc.wantBody, rec.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/unknown", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown API route, got %d", rec.Code)
	}
}
