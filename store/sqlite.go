package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements CredentialStore using SQLite.
// It uses the pure Go modernc.org/sqlite driver.
type SQLiteStore struct {
	db *sql.DB
}

const (
	nameToken = "access_token"
	nameUser  = "user"
)

// NewSQLite creates a new SQLite credential store.
// The database file is created if it doesn't exist.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		name       TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) save(name string, value []byte) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO credentials (name, value, updated_at) VALUES (?, ?, datetime('now'))",
		name, value,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) load(name string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM credentials WHERE name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load %s: %w", name, err)
	}
	return value, nil
}

// SaveToken persists the bearer token.
func (s *SQLiteStore) SaveToken(token string) error {
	return s.save(nameToken, []byte(token))
}

// Token returns the stored bearer token, or "" when absent.
func (s *SQLiteStore) Token() (string, error) {
	value, err := s.load(nameToken)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// SaveUser persists the serialized user profile.
func (s *SQLiteStore) SaveUser(data []byte) error {
	return s.save(nameUser, data)
}

// User returns the stored serialized user, or nil when absent.
func (s *SQLiteStore) User() ([]byte, error) {
	return s.load(nameUser)
}

// Clear removes the token and the user together.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM credentials"); err != nil {
		return fmt.Errorf("sqlite: failed to clear credentials: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
