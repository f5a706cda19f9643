package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS buckets (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS entries (
	bucket TEXT NOT NULL,
	key    TEXT NOT NULL,
	data   BLOB NOT NULL,
	PRIMARY KEY (bucket, key)
);
`

// SQLiteStore persists buckets in a local SQLite database.
// Bucket creation order is the autoincrement id of the buckets table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
// Use "file::memory:?cache=shared" for a throwaway in-memory database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// single writer; sqlite serializes writes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Open(ctx context.Context, bucket string) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO buckets (name) VALUES (?)", bucket)
	if err != nil {
		return fmt.Errorf("sqlite open bucket: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, bucket string, key RequestKey, entry *CacheEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO buckets (name) VALUES (?)", bucket); err != nil {
		return fmt.Errorf("sqlite open bucket: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO entries (bucket, key, data) VALUES (?, ?, ?)",
		bucket, key.String(), data,
	); err != nil {
		return fmt.Errorf("sqlite put: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, bucket string, key RequestKey) (*CacheEntry, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM entries WHERE bucket = ? AND key = ?",
		bucket, key.String(),
	).Scan(&data)
	return s.scanResult(data, err)
}

func (s *SQLiteStore) Match(ctx context.Context, key RequestKey) (*CacheEntry, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT e.data FROM entries e
		 JOIN buckets b ON b.name = e.bucket
		 WHERE e.key = ?
		 ORDER BY b.id ASC LIMIT 1`,
		key.String(),
	).Scan(&data)
	return s.scanResult(data, err)
}

func (s *SQLiteStore) scanResult(data []byte, err error) (*CacheEntry, bool, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get: %w", err)
	}
	entry, err := decodeEntry(data)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

func (s *SQLiteStore) Keys(ctx context.Context, bucket string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM entries WHERE bucket = ? ORDER BY key", bucket)
	if err != nil {
		return nil, fmt.Errorf("sqlite keys: %w", err)
	}
	return scanStrings(rows)
}

func (s *SQLiteStore) Buckets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM buckets ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("sqlite buckets: %w", err)
	}
	return scanStrings(rows)
}

func (s *SQLiteStore) Delete(ctx context.Context, bucket string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE bucket = ?", bucket); err != nil {
		return false, fmt.Errorf("sqlite delete entries: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM buckets WHERE name = ?", bucket)
	if err != nil {
		return false, fmt.Errorf("sqlite delete bucket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite commit: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite rows: %w", err)
	}
	return out, nil
}
