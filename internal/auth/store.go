package auth

import (
	"errors"
	"sync"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmailTaken      = errors.New("email already in use")
	ErrUsernameTaken   = errors.New("username already taken")
)

type UserStore interface {
	GetByID(id string) (User, error)
	GetByUsername(username string) (User, error)
	EmailExists(email string) (bool, error)
	UsernameExists(username string) (bool, error)
	// Insert fails with ErrEmailTaken or ErrUsernameTaken on a uniqueness
	// conflict, which closes the check-then-insert race at the store.
	Insert(user User) error
}

type SessionStore interface {
	Insert(sess Session) error
	Get(id string) (Session, error)
	UpdateExpiry(id string, expiresAt int64) error
	// Delete is idempotent; deleting an absent id is not an error.
	Delete(id string) error
}

type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]User // keyed by id
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[string]User)}
}

func (s *InMemoryUserStore) GetByID(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *InMemoryUserStore) GetByUsername(username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (s *InMemoryUserStore) EmailExists(email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryUserStore) UsernameExists(username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryUserStore) Insert(user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email {
			return ErrEmailTaken
		}
		if u.Username == user.Username {
			return ErrUsernameTaken
		}
	}
	s.users[user.ID] = user
	return nil
}

// Update replaces an existing user row. Account-management flows (locking,
// role changes) go through here; the API surface itself never deletes users.
func (s *InMemoryUserStore) Update(user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	s.users[user.ID] = user
	return nil
}

type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]Session)}
}

func (s *InMemorySessionStore) Insert(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *InMemorySessionStore) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *InMemorySessionStore) UpdateExpiry(id string, expiresAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.ExpiresAt = expiresAt
	s.sessions[id] = sess
	return nil
}

func (s *InMemorySessionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
