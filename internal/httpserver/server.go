package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"accountsvr/webauth/internal/audit"
	"accountsvr/webauth/internal/auth"
	"accountsvr/webauth/internal/config"
	"accountsvr/webauth/internal/observability"
)

type AuthService interface {
	Login(username, password string) (auth.StartedSession, error)
	Signup(params auth.SignupParams) (auth.StartedSession, error)
	ValidateSessionToken(token string) (auth.Session, auth.User, error)
	InvalidateSession(sessionID string) error
}

type AuditLogger interface {
	Log(e audit.Event) error
}

type Deps struct {
	Auth            AuthService
	Audit           AuditLogger
	Logger          *slog.Logger
	Metrics         *observability.Metrics
	ReadyCheck      func(ctx context.Context) error
	Production      bool
	FrontendDistDir string
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	handler := NewHandler(deps)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      requestMiddleware(handler, deps),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.ReadyCheck != nil {
			if err := deps.ReadyCheck(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.HandleFunc("/v1/info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "webauth-api",
			"version": "0.1.0",
		})
	})
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics.Handler())
	}

	registerAuthHandlers(mux, deps)
	registerFrontendHandlers(mux, deps.FrontendDistDir)

	return withSession(mux, deps)
}

var alphanumericPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

func registerAuthHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.Auth == nil {
			writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
			return
		}

		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Username == "" {
			writeError(w, http.StatusBadRequest, "Invalid username")
			return
		}
		if len(req.Password) < 6 || len(req.Password) > 255 {
			writeError(w, http.StatusBadRequest, "Invalid password")
			return
		}

		started, err := deps.Auth.Login(req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrAccountLocked) {
				auditReq(deps, r, req.Username, "auth.login", "failed", "", "account locked")
				writeError(w, http.StatusForbidden, "Account is locked. Please contact support.")
				return
			}
			if errors.Is(err, auth.ErrInvalidCredentials) {
				auditReq(deps, r, req.Username, "auth.login", "failed", "", "invalid credentials")
				writeError(w, http.StatusUnauthorized, "Incorrect username or password")
				return
			}
			deps.logger().Error("login failed", "error", err, "request_id", requestIDFromContext(r.Context()))
			auditReq(deps, r, req.Username, "auth.login", "failed", "", "internal error")
			writeError(w, http.StatusInternalServerError, "An error occurred during login")
			return
		}
		setSessionCookie(w, started.Token, started.Session.ExpiresAt, deps.Production)
		auditReq(deps, r, started.User.Username, "auth.login", "success", started.Session.ID, "")

		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Login successful",
			"user": map[string]any{
				"id":       started.User.ID,
				"username": started.User.Username,
				"role":     started.User.Role,
			},
		})
	})

	mux.HandleFunc("/v1/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.Auth == nil {
			writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
			return
		}

		var req struct {
			Email     string `json:"email"`
			Username  string `json:"username"`
			Password  string `json:"password"`
			Password2 string `json:"password2"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if msg := validateSignup(req.Email, req.Username, req.Password, req.Password2); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}

		started, err := deps.Auth.Signup(auth.SignupParams{
			Email:    req.Email,
			Username: req.Username,
			Password: req.Password,
		})
		if err != nil {
			if errors.Is(err, auth.ErrEmailTaken) {
				auditReq(deps, r, req.Username, "auth.signup", "failed", "", "email in use")
				writeError(w, http.StatusBadRequest, "Email already in use")
				return
			}
			if errors.Is(err, auth.ErrUsernameTaken) {
				auditReq(deps, r, req.Username, "auth.signup", "failed", "", "username taken")
				writeError(w, http.StatusBadRequest, "Username already taken")
				return
			}
			deps.logger().Error("signup failed", "error", err, "request_id", requestIDFromContext(r.Context()))
			auditReq(deps, r, req.Username, "auth.signup", "failed", "", "internal error")
			writeError(w, http.StatusInternalServerError, "An error occurred during registration")
			return
		}
		setSessionCookie(w, started.Token, started.Session.ExpiresAt, deps.Production)
		auditReq(deps, r, started.User.Username, "auth.signup", "success", started.Session.ID, "")

		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "Account created successfully!",
			"user": map[string]any{
				"id":       started.User.ID,
				"username": started.User.Username,
				"email":    started.User.Email,
			},
		})
	})

	mux.HandleFunc("/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.Auth == nil {
			writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
			return
		}

		sess, user := SessionFromContext(r.Context())
		if sess == nil {
			writeError(w, http.StatusUnauthorized, "no active session")
			return
		}
		if err := deps.Auth.InvalidateSession(sess.ID); err != nil {
			deps.logger().Error("logout failed", "error", err, "request_id", requestIDFromContext(r.Context()))
			writeError(w, http.StatusInternalServerError, "An error occurred during logout")
			return
		}
		clearSessionCookie(w, deps.Production)
		auditReq(deps, r, user.Username, "auth.logout", "success", sess.ID, "")

		if r.URL.Query().Get("redirect") != "" {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
	})

	mux.HandleFunc("/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		sess, user := SessionFromContext(r.Context())
		if user == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"id":           user.ID,
			"username":     user.Username,
			"email":        user.Email,
			"display_name": user.DisplayName,
			"role":         user.Role,
			"expires_at":   sess.ExpiresAt,
		})
	})
}

// validateSignup mirrors the signup form contract: field-specific messages,
// checked in a fixed order so the client always sees the first failure.
func validateSignup(email, username, password, password2 string) string {
	if username == "" {
		return "Invalid username"
	}
	if len(username) < 3 || len(username) > 16 {
		return "Username must be 3-16 characters"
	}
	if !alphanumericPattern.MatchString(username) {
		return "Username must be alphanumeric"
	}
	if email == "" || len(email) < 3 || len(email) > 255 {
		return "Invalid email"
	}
	if len(password) < 6 || len(password) > 255 {
		return "Password must be 6-255 characters"
	}
	if password != password2 {
		return "Passwords do not match"
	}
	return ""
}

func registerFrontendHandlers(mux *http.ServeMux, distDir string) {
	distDir = strings.TrimSpace(distDir)
	if distDir == "" {
		return
	}
	indexPath := filepath.Join(distDir, "index.html")
	if _, err := os.Stat(indexPath); err != nil {
		return
	}

	fileServer := http.FileServer(http.Dir(distDir))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" {
			http.NotFound(w, r)
			return
		}

		cleanPath := path.Clean(r.URL.Path)
		if cleanPath == "." || cleanPath == "/" {
			http.ServeFile(w, r, indexPath)
			return
		}

		fullPath := filepath.Join(distDir, strings.TrimPrefix(cleanPath, "/"))
		info, err := os.Stat(fullPath)
		if err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}

		// SPA fallback.
		http.ServeFile(w, r, indexPath)
	})
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func auditReq(deps Deps, r *http.Request, actor, action, outcome, sessionID, detail string) {
	if deps.Audit == nil {
		return
	}
	_ = deps.Audit.Log(audit.Event{
		Actor:     actor,
		Action:    action,
		Outcome:   outcome,
		RequestID: requestIDFromContext(r.Context()),
		IP:        clientIP(r),
		UserAgent: strings.TrimSpace(r.UserAgent()),
		SessionID: sessionID,
		Detail:    detail,
	})
}
