package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/artpar/procgate/ports"
)

// UserStore implements ports.UserStore using SQLite.
type UserStore struct {
	db *DB
}

// NewUserStore creates a SQLite user store.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// Put creates or replaces the password hash of username.
func (s *UserStore) Put(ctx context.Context, username string, hash []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash) VALUES (?, ?)
		ON CONFLICT (username) DO UPDATE SET password_hash = excluded.password_hash
	`, username, hash)
	return err
}

// PasswordHash returns the hash stored for username.
func (s *UserStore) PasswordHash(ctx context.Context, username string) ([]byte, error) {
	var hash []byte
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE username = ?`, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	return hash, err
}

var _ ports.UserStore = (*UserStore)(nil)
