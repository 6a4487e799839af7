package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore implements CredentialStore using MySQL.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQL creates a new MySQL credential store on an existing handle.
func NewMySQL(db *sql.DB) (*MySQLStore, error) {
	if err := createMySQLSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

// NewMySQLFromDSN creates a new MySQL credential store from a DSN.
// The DSN format is: user:password@tcp(host:port)/database
func NewMySQLFromDSN(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn+"?parseTime=true")
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to connect: %w", err)
	}

	return NewMySQL(db)
}

func createMySQLSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		name       VARCHAR(64) PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("mysql: failed to create schema: %w", err)
	}
	return nil
}

func (s *MySQLStore) save(name string, value []byte) error {
	query := `
	INSERT INTO credentials (name, value) VALUES (?, ?)
	ON DUPLICATE KEY UPDATE value = VALUES(value)
	`

	if _, err := s.db.Exec(query, name, value); err != nil {
		return fmt.Errorf("mysql: failed to save %s: %w", name, err)
	}
	return nil
}

func (s *MySQLStore) load(name string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM credentials WHERE name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to load %s: %w", name, err)
	}
	return value, nil
}

// SaveToken persists the bearer token.
func (s *MySQLStore) SaveToken(token string) error {
	return s.save(nameToken, []byte(token))
}

// Token returns the stored bearer token, or "" when absent.
func (s *MySQLStore) Token() (string, error) {
	value, err := s.load(nameToken)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// SaveUser persists the serialized user profile.
func (s *MySQLStore) SaveUser(data []byte) error {
	return s.save(nameUser, data)
}

// User returns the stored serialized user, or nil when absent.
func (s *MySQLStore) User() ([]byte, error) {
	return s.load(nameUser)
}

// Clear removes the token and the user together.
func (s *MySQLStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM credentials"); err != nil {
		return fmt.Errorf("mysql: failed to clear credentials: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
