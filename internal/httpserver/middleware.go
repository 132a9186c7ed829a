package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"accountsvr/webauth/internal/auth"
)

const sessionCookieName = "session"

type requestIDKey struct{}

type sessionKey struct{}

type sessionState struct {
	session *auth.Session
	user    *auth.User
}

// withSession resolves the session cookie once per request. A valid token is
// renewed (sliding window) and the cookie reissued with the new expiry; a dead
// token gets a clearing cookie so the client stops resending it. Whatever
// (user, session) pair results is attached to the request context.
func withSession(next http.Handler, deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" || deps.Auth == nil {
			next.ServeHTTP(w, r.WithContext(contextWithSession(r.Context(), nil, nil)))
			return
		}

		sess, user, err := deps.Auth.ValidateSessionToken(cookie.Value)
		switch {
		case err == nil:
			setSessionCookie(w, cookie.Value, sess.ExpiresAt, deps.Production)
			r = r.WithContext(contextWithSession(r.Context(), &sess, &user))
		case errors.Is(err, auth.ErrSessionNotFound):
			clearSessionCookie(w, deps.Production)
			r = r.WithContext(contextWithSession(r.Context(), nil, nil))
		default:
			deps.logger().Error("session validation failed", "error", err, "request_id", requestIDFromContext(r.Context()))
			writeError(w, http.StatusInternalServerError, "An unexpected error occurred")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func contextWithSession(ctx context.Context, sess *auth.Session, user *auth.User) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionState{session: sess, user: user})
}

// SessionFromContext returns what the middleware attached; both values are nil
// for anonymous requests.
func SessionFromContext(ctx context.Context) (*auth.Session, *auth.User) {
	state, ok := ctx.Value(sessionKey{}).(sessionState)
	if !ok {
		return nil, nil
	}
	return state.session, state.user
}

func setSessionCookie(w http.ResponseWriter, token string, expiresAt int64, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Unix(expiresAt, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// requestMiddleware tags every request with an id, logs it, and feeds the
// metrics collector.
func requestMiddleware(next http.Handler, deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		if deps.Metrics != nil {
			deps.Metrics.ObserveRequest(r.Method, r.URL.Path, rec.status, elapsed)
		}
		deps.logger().Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", reqID,
			"ip", clientIP(r),
		)
	})
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
