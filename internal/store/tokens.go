package store

import (
	"database/sql"
	"errors"
	"time"
)

// CreateToken stores a login token for userID
func (s *Store) CreateToken(token, userID string, expiresAt time.Time) error {
	_, err := s.db.Exec(
		"INSERT INTO auth_tokens (token, user_id, expires_at) VALUES (?, ?, ?)",
		token, userID, expiresAt,
	)
	return err
}

// GetToken retrieves a token, returning nil if it is unknown or expired
func (s *Store) GetToken(token string) (*AuthToken, error) {
	t := &AuthToken{}
	err := s.db.QueryRow(
		"SELECT token, user_id, expires_at, created_at FROM auth_tokens WHERE token = ?",
		token,
	).Scan(&t.Token, &t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(t.ExpiresAt) {
		if err := s.DeleteToken(token); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return t, nil
}

// DeleteToken removes a token
func (s *Store) DeleteToken(token string) error {
	_, err := s.db.Exec("DELETE FROM auth_tokens WHERE token = ?", token)
	return err
}

// CleanupExpiredTokens removes all expired tokens and reports how many
func (s *Store) CleanupExpiredTokens() (int64, error) {
	res, err := s.db.Exec("DELETE FROM auth_tokens WHERE expires_at < ?", time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
