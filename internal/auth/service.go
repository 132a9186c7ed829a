package auth

import (
	"errors"
	"fmt"
	"time"

	"accountsvr/webauth/internal/password"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
)

const defaultSessionTTL = 15 * 24 * time.Hour

// Service owns the session lifecycle: token issuance, hashed persistence,
// expiry-based validation with lazy purge, sliding renewal, and invalidation.
type Service struct {
	users    UserStore
	sessions SessionStore
	ttl      time.Duration
	nowFunc  func() time.Time
}

type ServiceConfig struct {
	SessionTTL time.Duration
}

func NewService(users UserStore, sessions SessionStore, cfg ServiceConfig) (*Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	return &Service{
		users:    users,
		sessions: sessions,
		ttl:      ttl,
		nowFunc:  time.Now,
	}, nil
}

// CreateSession persists a session row for the raw token and returns the
// stored descriptor. Only the token's hash reaches the store.
func (s *Service) CreateSession(token, userID string) (Session, error) {
	sess := Session{
		ID:        SessionIDFromToken(token),
		UserID:    userID,
		ExpiresAt: s.nowFunc().Add(s.ttl).Unix(),
	}
	if err := s.sessions.Insert(sess); err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// ValidateSessionToken resolves a raw token to its session and owning user.
// An expired row is deleted on the spot and reported as absent. A session
// whose user row has vanished is treated as absent too. On success the expiry
// slides forward by the full TTL, so the returned session always carries the
// renewed timestamp.
func (s *Service) ValidateSessionToken(token string) (Session, User, error) {
	id := SessionIDFromToken(token)

	sess, err := s.sessions.Get(id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Session{}, User{}, ErrSessionNotFound
		}
		return Session{}, User{}, fmt.Errorf("load session: %w", err)
	}

	if s.nowFunc().Unix() >= sess.ExpiresAt {
		// Lazy purge: reading an expired row deletes it.
		if err := s.sessions.Delete(id); err != nil {
			return Session{}, User{}, fmt.Errorf("purge expired session: %w", err)
		}
		return Session{}, User{}, ErrSessionNotFound
	}

	user, err := s.users.GetByID(sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, User{}, ErrSessionNotFound
		}
		return Session{}, User{}, fmt.Errorf("load session user: %w", err)
	}

	sess.ExpiresAt = s.nowFunc().Add(s.ttl).Unix()
	if err := s.sessions.UpdateExpiry(id, sess.ExpiresAt); err != nil {
		return Session{}, User{}, fmt.Errorf("renew session: %w", err)
	}

	return sess, user, nil
}

// InvalidateSession deletes the row unconditionally. Invalidating an already
// absent session is a no-op.
func (s *Service) InvalidateSession(sessionID string) error {
	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Login authenticates and starts a session. Unknown usernames and wrong
// passwords collapse into the same ErrInvalidCredentials so callers cannot
// tell them apart; locked accounts are surfaced distinctly.
func (s *Service) Login(username, pw string) (StartedSession, error) {
	user, err := s.users.GetByUsername(username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return StartedSession{}, ErrInvalidCredentials
		}
		return StartedSession{}, fmt.Errorf("load user: %w", err)
	}

	if user.Locked {
		return StartedSession{}, ErrAccountLocked
	}

	if !password.Verify(user.PasswordHash, pw) {
		return StartedSession{}, ErrInvalidCredentials
	}

	return s.startSession(user)
}

// Signup creates the account and logs it straight in. Uniqueness is checked
// per field first so the caller gets a specific message; the store's own
// constraints back the checks up against concurrent signups.
func (s *Service) Signup(params SignupParams) (StartedSession, error) {
	taken, err := s.users.EmailExists(params.Email)
	if err != nil {
		return StartedSession{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return StartedSession{}, ErrEmailTaken
	}

	taken, err = s.users.UsernameExists(params.Username)
	if err != nil {
		return StartedSession{}, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return StartedSession{}, ErrUsernameTaken
	}

	id, err := NewUserID()
	if err != nil {
		return StartedSession{}, err
	}
	hashed, err := password.Hash(params.Password)
	if err != nil {
		return StartedSession{}, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:           id,
		Username:     params.Username,
		Email:        params.Email,
		DisplayName:  params.Username,
		PasswordHash: hashed,
	}
	if err := s.users.Insert(user); err != nil {
		if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrUsernameTaken) {
			return StartedSession{}, err
		}
		return StartedSession{}, fmt.Errorf("insert user: %w", err)
	}

	return s.startSession(user)
}

func (s *Service) startSession(user User) (StartedSession, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return StartedSession{}, err
	}
	sess, err := s.CreateSession(token, user.ID)
	if err != nil {
		return StartedSession{}, err
	}
	return StartedSession{Token: token, Session: sess, User: user}, nil
}
