// Package sqlite provides durable key-value account storage backed by
// SQLite. The store knows nothing about account semantics: it persists
// opaque bytes under a key and enforces optimistic versioning on writes.
// Serialization and every invariant belong to the ledger.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/yuna-network/yuna/internal/domain"
)

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			key        TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			version    INTEGER NOT NULL DEFAULT 1,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
}

// ─── Store ──────────────────────────────────────────────────────────────────

// Store implements domain.AccountStore on a local SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
// Pass ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// A single writer avoids SQLITE_BUSY under concurrent ledger writes.
	db.SetMaxOpenConns(1)

	for _, stmt := range Migrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Get returns the stored bytes and version for a key.
func (s *Store) Get(key string) ([]byte, int64, bool, error) {
	var data []byte
	var version int64
	err := s.db.QueryRow(`
		SELECT data, version FROM accounts WHERE key = ?
	`, key).Scan(&data, &version)
	if err == sql.ErrNoRows {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("get %s: %w", key, err)
	}
	return data, version, true, nil
}

// Put writes data for a key, enforcing optimistic versioning.
// expectedVersion 0 inserts a new row; otherwise the stored version must
// match or domain.ErrVersionConflict is returned.
func (s *Store) Put(key string, data []byte, expectedVersion int64) error {
	if expectedVersion == 0 {
		_, err := s.db.Exec(`
			INSERT INTO accounts (key, data, version) VALUES (?, ?, 1)
		`, key, data)
		if err != nil {
			// A concurrent first write races on the primary key.
			if _, _, ok, getErr := s.Get(key); getErr == nil && ok {
				return domain.ErrVersionConflict
			}
			return fmt.Errorf("insert %s: %w", key, err)
		}
		return nil
	}

	res, err := s.db.Exec(`
		UPDATE accounts
		SET data = ?, version = version + 1, updated_at = datetime('now')
		WHERE key = ? AND version = ?
	`, data, key, expectedVersion)
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	if n == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// List returns every stored entry. Ordering is undefined; callers that
// need deterministic ordering sort the decoded records themselves.
func (s *Store) List() (map[string][]byte, error) {
	rows, err := s.db.Query(`SELECT key, data FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out[key] = data
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
