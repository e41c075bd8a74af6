// Package database provides SQL-backed key-value persistence for local client state.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects placeholder syntax and the driver name.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

const opTimeout = 5 * time.Second

// KVStore stores string values by key in a single table. It satisfies history.Backend.
type KVStore struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database, runs migrations and returns the store.
// For SQLite, dsn is a file path; for Postgres, a connection URL.
func Open(dialect Dialect, dsn string) (*KVStore, error) {
	var source string
	switch dialect {
	case SQLite:
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		source = dsn + "?_journal_mode=WAL&_busy_timeout=5000"
	case Postgres:
		source = dsn
	default:
		return nil, fmt.Errorf("unsupported database dialect: %s", dialect)
	}

	db, err := sql.Open(string(dialect), source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := NewKVStore(db, dialect)
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// NewKVStore wraps an open connection. Migrate must have run before use.
func NewKVStore(db *sql.DB, dialect Dialect) *KVStore {
	return &KVStore{db: db, dialect: dialect}
}

// Migrate creates the table if needed.
func (s *KVStore) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS kv_store (
			store_key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *KVStore) Close() error {
	return s.db.Close()
}

// placeholders rewrites ? markers for Postgres.
func (s *KVStore) placeholders(query string) string {
	if s.dialect != Postgres {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// GetContext returns the value for key.
func (s *KVStore) GetContext(ctx context.Context, key string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, s.placeholders(`SELECT value FROM kv_store WHERE store_key = ?`), key)

	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetContext inserts or replaces the value for key.
func (s *KVStore) SetContext(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.placeholders(`
		INSERT INTO kv_store (store_key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (store_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		key, value, time.Now().UTC())
	return err
}

// RemoveContext deletes key. Missing keys are not an error.
func (s *KVStore) RemoveContext(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.placeholders(`DELETE FROM kv_store WHERE store_key = ?`), key)
	return err
}

// Get implements history.Backend.
func (s *KVStore) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return s.GetContext(ctx, key)
}

// Set implements history.Backend.
func (s *KVStore) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return s.SetContext(ctx, key, value)
}

// Remove implements history.Backend.
func (s *KVStore) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return s.RemoveContext(ctx, key)
}
