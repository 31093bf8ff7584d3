package durable

import (
	"context"
	"database/sql"
	"errors"
	"unicode/utf8"

	"go.trai.ch/zerr"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// migrations creates the cache table. Applied versions are tracked in
// schema_versions so later changes can be appended here.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS cache_entries (
    key         TEXT PRIMARY KEY,
    record      TEXT NOT NULL,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
	},
}

// SQLiteStore keeps one row per key in an on-device SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" gives
// a private in-memory database, useful in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to open sqlite store"), "path", path)
	}

	// SQLite allows a single writer, and an in-memory database only exists on
	// the connection that created it.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, zerr.Wrap(err, "failed to enable WAL")
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, zerr.Wrap(err, "failed to set busy timeout")
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return zerr.Wrap(err, "failed to create schema_versions")
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to check migration"), "version", m.version)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to apply migration"), "version", m.version)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to record migration"), "version", m.version)
		}
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Record, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM cache_entries WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read cache record"), "key", key)
	}

	rec, err := DecodeRecord([]byte(raw))
	if err != nil {
		return nil, zerr.With(err, "key", key)
	}
	return rec, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key string, rec Record) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return zerr.With(err, "key", key)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO cache_entries (key, record, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		key, string(data))
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write cache record"), "key", key)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return zerr.Wrap(err, "failed to begin delete")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM cache_entries WHERE key = ?`)
	if err != nil {
		return zerr.Wrap(err, "failed to prepare delete")
	}
	defer func() { _ = stmt.Close() }()

	for _, key := range keys {
		if _, err := stmt.ExecContext(ctx, key); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to delete cache record"), "key", key)
		}
	}

	if err := tx.Commit(); err != nil {
		return zerr.Wrap(err, "failed to commit delete")
	}
	return nil
}

// Keys implements Store.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM cache_entries WHERE substr(key, 1, ?) = ? ORDER BY key`,
		utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to list cache keys")
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, zerr.Wrap(err, "failed to scan cache key")
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, zerr.Wrap(err, "failed to list cache keys")
	}
	return keys, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
