package kv

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle backing the key-value store.
type DB struct {
	*sqlx.DB
}

// NewSQLiteDB opens (or creates) the store database and applies the schema.
func NewSQLiteDB(dsn string) (*DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// Set pragmas for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// SQLiteStore implements Store over a sqlite kv table. A byte quota is
// enforced on writes so that quota-exceeded handling behaves the same as
// it does against browser-local storage.
type SQLiteStore struct {
	db    *DB
	quota int64
}

// NewSQLiteStore creates a quota-enforcing store over db. quota <= 0
// disables quota checks.
func NewSQLiteStore(db *DB, quota int64) *SQLiteStore {
	return &SQLiteStore{db: db, quota: quota}
}

func (s *SQLiteStore) GetItem(key string) (string, error) {
	var value string
	err := s.db.Get(&value, "SELECT value FROM kv WHERE key = ?", key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetItem(key, value string) error {
	if s.quota > 0 {
		used, err := s.usedBytes(key)
		if err != nil {
			return err
		}
		if used+int64(len(key))+int64(len(value)) > s.quota {
			return ErrQuotaExceeded
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	return err
}

func (s *SQLiteStore) RemoveItem(key string) error {
	_, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key)
	return err
}

func (s *SQLiteStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.Select(&keys, "SELECT key FROM kv ORDER BY key")
	return keys, err
}

// usedBytes sums stored key+value sizes excluding the key about to be
// overwritten.
func (s *SQLiteStore) usedBytes(excludeKey string) (int64, error) {
	var used int64
	err := s.db.Get(&used,
		"SELECT COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0) FROM kv WHERE key != ?", excludeKey)
	return used, err
}
