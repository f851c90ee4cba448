package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jobrunner/charttiler/internal/domain"
	"github.com/jobrunner/charttiler/internal/ports/output"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	namespace  TEXT    NOT NULL,
	chart      TEXT    NOT NULL,
	entry      TEXT    NOT NULL,
	data       BLOB    NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, chart, entry)
)`

// SQLiteStore implements CacheStore in a single SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates the cache database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &domain.CacheError{Operation: "open", Key: path, Err: err}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &domain.CacheError{Operation: "open", Key: path, Err: err}
	}
	// Writers serialize on one connection; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &domain.CacheError{Operation: "open", Key: path, Err: err}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, &domain.CacheError{Operation: "migrate", Key: path, Err: err}
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Get implements CacheStore.
func (s *SQLiteStore) Get(ctx context.Context, key output.CacheKey) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM cache WHERE namespace = ? AND chart = ? AND entry = ?",
		key.Namespace, key.Chart, key.Entry,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrCacheMiss)
	}
	if err != nil {
		return nil, &domain.CacheError{Operation: "get", Key: key.String(), Err: err}
	}
	return data, nil
}

// Put implements CacheStore.
func (s *SQLiteStore) Put(ctx context.Context, key output.CacheKey, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache (namespace, chart, entry, data, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (namespace, chart, entry)
		DO UPDATE SET data = excluded.data, created_at = excluded.created_at`,
		key.Namespace, key.Chart, key.Entry, data, time.Now().Unix(),
	)
	if err != nil {
		return &domain.CacheError{Operation: "put", Key: key.String(), Err: err}
	}
	return nil
}

// Exists implements CacheStore.
func (s *SQLiteStore) Exists(ctx context.Context, key output.CacheKey) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM cache WHERE namespace = ? AND chart = ? AND entry = ?",
		key.Namespace, key.Chart, key.Entry,
	).Scan(&n)
	if err != nil {
		return false, &domain.CacheError{Operation: "exists", Key: key.String(), Err: err}
	}
	return n > 0, nil
}

// Delete implements CacheStore.
func (s *SQLiteStore) Delete(ctx context.Context, key output.CacheKey) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM cache WHERE namespace = ? AND chart = ? AND entry = ?",
		key.Namespace, key.Chart, key.Entry,
	)
	if err != nil {
		return &domain.CacheError{Operation: "delete", Key: key.String(), Err: err}
	}
	return nil
}

// DeleteChart implements CacheStore.
func (s *SQLiteStore) DeleteChart(ctx context.Context, namespace, chart string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM cache WHERE namespace = ? AND chart = ?", namespace, chart)
	if err != nil {
		return &domain.CacheError{Operation: "delete", Key: namespace + "/" + chart, Err: err}
	}
	return nil
}

// Writable implements CacheStore.
func (s *SQLiteStore) Writable(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &domain.CacheError{Operation: "probe", Key: s.path, Err: err}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
