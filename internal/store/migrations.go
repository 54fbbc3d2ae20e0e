package store

import (
	"fmt"
)

// Migration is one schema change, applied once in Version order.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations must stay sorted with versions 1..n; only append.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Users",
		SQL: `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		`,
	},
	{
		Version:     2,
		Description: "Login tokens",
		SQL: `
		CREATE TABLE IF NOT EXISTS auth_tokens (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			expires_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_auth_tokens_user ON auth_tokens(user_id);
		CREATE INDEX IF NOT EXISTS idx_auth_tokens_expires ON auth_tokens(expires_at);
		`,
	},
}

const schemaTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`

// appliedVersions returns the recorded migration versions in ascending order.
func (s *Store) appliedVersions() ([]int, error) {
	if _, err := s.db.Exec(schemaTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := s.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Migrate applies every migration newer than the highest recorded version.
func (s *Store) Migrate() error {
	applied, err := s.appliedVersions()
	if err != nil {
		return err
	}
	current := 0
	if n := len(applied); n > 0 {
		current = applied[n-1]
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := s.apply(m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

// apply runs m and records it in one transaction.
func (s *Store) apply(m Migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// MigrationStatus lists applied versions and the versions still to run.
func (s *Store) MigrationStatus() (applied, pending []int, err error) {
	applied, err = s.appliedVersions()
	if err != nil {
		return nil, nil, err
	}

	done := make(map[int]struct{}, len(applied))
	for _, v := range applied {
		done[v] = struct{}{}
	}
	for _, m := range migrations {
		if _, ok := done[m.Version]; !ok {
			pending = append(pending, m.Version)
		}
	}
	return applied, pending, nil
}
