package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides SQLite persistence for accounts and login tokens
type Store struct {
	db *sql.DB
}

// New opens the database at dbPath and brings its schema up to date
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	// one connection so ":memory:" databases are not split per connection
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *Store) Ping() error {
	return s.db.Ping()
}

// User represents a registered player
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// AuthToken is a bearer token issued at login
type AuthToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
