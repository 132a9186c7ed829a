package auth

import (
	"database/sql"
	"errors"
	"fmt"
)

// PostgresSessionStore reads and writes the auth_sessions table, keyed by the
// hashed token.
type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(db *sql.DB) (*PostgresSessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PostgresSessionStore{db: db}, nil
}

func (s *PostgresSessionStore) Insert(sess Session) error {
	const q = `INSERT INTO auth_sessions (id, user_id, expires_at) VALUES ($1, $2, $3)`
	if _, err := s.db.Exec(q, sess.ID, sess.UserID, sess.ExpiresAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) Get(id string) (Session, error) {
	const q = `SELECT id, user_id, expires_at FROM auth_sessions WHERE id = $1`
	var sess Session
	if err := s.db.QueryRow(q, id).Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("query session: %w", err)
	}
	return sess, nil
}

func (s *PostgresSessionStore) UpdateExpiry(id string, expiresAt int64) error {
	const q = `UPDATE auth_sessions SET expires_at = $2 WHERE id = $1`
	res, err := s.db.Exec(q, id, expiresAt)
	if err != nil {
		return fmt.Errorf("update session expiry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session expiry: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresSessionStore) Delete(id string) error {
	const q = `DELETE FROM auth_sessions WHERE id = $1`
	if _, err := s.db.Exec(q, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
