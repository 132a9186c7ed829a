package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// PostgresUserStore reads and writes the auth_users table. The schema comes
// from the embedded migrations, not from the store.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) (*PostgresUserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PostgresUserStore{db: db}, nil
}

func (s *PostgresUserStore) GetByID(id string) (User, error) {
	const q = `
SELECT id, username, email, display_name, hashed_password, locked, role
FROM auth_users WHERE id = $1`
	return s.scanUser(s.db.QueryRow(q, id))
}

func (s *PostgresUserStore) GetByUsername(username string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, ErrUserNotFound
	}

	const q = `
SELECT id, username, email, display_name, hashed_password, locked, role
FROM auth_users WHERE username = $1`
	return s.scanUser(s.db.QueryRow(q, username))
}

func (s *PostgresUserStore) scanUser(row *sql.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Locked, &u.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query auth user: %w", err)
	}
	return u, nil
}

func (s *PostgresUserStore) EmailExists(email string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM auth_users WHERE email = $1)`
	var exists bool
	if err := s.db.QueryRow(q, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresUserStore) UsernameExists(username string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM auth_users WHERE username = $1)`
	var exists bool
	if err := s.db.QueryRow(q, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("check username exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresUserStore) Insert(user User) error {
	const q = `
INSERT INTO auth_users (id, username, email, display_name, hashed_password, locked, role)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.Exec(q, user.ID, user.Username, user.Email, user.DisplayName, user.PasswordHash, user.Locked, user.Role)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Unique violation: two signups raced past the existence checks.
			if strings.Contains(pqErr.Constraint, "email") {
				return ErrEmailTaken
			}
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert auth user: %w", err)
	}
	return nil
}
