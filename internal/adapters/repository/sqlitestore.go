package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/tictac/pkg/metrics"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps records in a single SQLite table. Every write stamps a
// fresh uuid version; Transact commits with a version-guarded statement and
// retries when it affects no rows.
type SQLiteStore struct {
	db         *sql.DB
	maxRetries int
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrUnavailable)
	}
	cfg := newSettings(opts)

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("open sqlite db", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable("ping sqlite db", err)
	}
	if err := applyMigrations(ctx, db, migrationsFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, unavailable("run migrations", err)
	}
	return &SQLiteStore{db: db, maxRetries: cfg.maxRetries}, nil
}

// Get returns the stored value or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	defer observe("get", time.Now())
	if err := checkKey(key); err != nil {
		return nil, err
	}
	v, _, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *SQLiteStore) read(ctx context.Context, key string) ([]byte, string, error) {
	var (
		value   []byte
		version string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, version FROM records WHERE key = ?`, key).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		metrics.RecordStoreError("get")
		return nil, "", unavailable("get", err)
	}
	return value, version, nil
}

// Set writes value unconditionally.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	defer observe("set", time.Now())
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO records (key, value, version, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	value = excluded.value,
	version = excluded.version,
	updated_at = excluded.updated_at
`, key, value, uuid.NewString(), time.Now().UnixMilli())
	if err != nil {
		metrics.RecordStoreError("set")
		return unavailable("set", err)
	}
	return nil
}

// Update merges fields into the stored document.
func (s *SQLiteStore) Update(ctx context.Context, key string, fields Fields) error {
	defer observe("update", time.Now())
	_, err := s.transact(ctx, key, updateTransform(fields))
	return err
}

// Delete removes the record.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	defer observe("delete", time.Now())
	if err := checkKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
		metrics.RecordStoreError("delete")
		return unavailable("delete", err)
	}
	return nil
}

// Transact applies fn with optimistic concurrency control.
func (s *SQLiteStore) Transact(ctx context.Context, key string, fn Transform) ([]byte, error) {
	defer observe("transact", time.Now())
	return s.transact(ctx, key, fn)
}

func (s *SQLiteStore) transact(ctx context.Context, key string, fn Transform) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		current, version, err := s.read(ctx, key)
		if err != nil {
			return nil, err
		}
		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		ok, err := s.commit(ctx, key, current != nil, version, next)
		if err != nil {
			metrics.RecordStoreError("transact")
			return nil, unavailable("transact", err)
		}
		if ok {
			return next, nil
		}
		metrics.RecordTransactionConflict(RecordKind(key))
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrContention, key, s.maxRetries)
}

func (s *SQLiteStore) commit(ctx context.Context, key string, existed bool, version string, next []byte) (bool, error) {
	var (
		res sql.Result
		err error
	)
	now := time.Now().UnixMilli()
	switch {
	case next == nil && !existed:
		return true, nil
	case next == nil:
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM records WHERE key = ? AND version = ?`, key, version)
	case existed:
		res, err = s.db.ExecContext(ctx,
			`UPDATE records SET value = ?, version = ?, updated_at = ? WHERE key = ? AND version = ?`,
			next, uuid.NewString(), now, key, version)
	default:
		res, err = s.db.ExecContext(ctx, `
INSERT INTO records (key, value, version, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO NOTHING
`, key, next, uuid.NewString(), now)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Scan returns every record under prefix ordered by key.
func (s *SQLiteStore) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	defer observe("scan", time.Now())
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM records WHERE instr(key, ?) = 1 ORDER BY key`, prefix)
	if err != nil {
		metrics.RecordStoreError("scan")
		return nil, unavailable("scan", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, unavailable("scan", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("scan", err)
	}
	return out, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
