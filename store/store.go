// Package store keeps class-file bytes in a SQL database (SQLite or
// DuckDB) and serves them to loaders as a class path entry.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tliron/commonlog"

	"github.com/chazu/classreg/loader"
)

var log = commonlog.GetLogger("classreg.store")

// Drivers a Store can be opened with.
const (
	SQLite = "sqlite"
	DuckDB = "duckdb"
)

// DefaultCacheSize is the number of class files kept in memory.
const DefaultCacheSize = 1024

// Store is a class path entry backed by a "classes" table.
type Store struct {
	db     *sql.DB
	driver string
	path   string
	cache  *lru.Cache[string, []byte]
	mu     sync.Mutex
}

// Option tunes Open.
type Option func(*options)

type options struct {
	cacheSize int
}

// WithCacheSize sets how many class files are cached in memory.
func WithCacheSize(n int) Option { return func(o *options) { o.cacheSize = n } }

// Open opens or creates a store. driver is SQLite or DuckDB; path is the
// database file, or ":memory:".
func Open(driver, path string, opts ...Option) (*Store, error) {
	o := options{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if driver != SQLite && driver != DuckDB {
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn(driver, path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// In-memory databases exist per connection.
	db.SetMaxOpenConns(1)

	if driver == SQLite {
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting busy timeout: %w", err)
		}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS classes (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	cache, err := lru.New[string, []byte](o.cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	log.Debugf("opened %s store %s", driver, path)
	return &Store{db: db, driver: driver, path: path, cache: cache}, nil
}

// OpenLocation opens a store from a class path entry of the form
// "sqlite:<path>" or "duckdb:<path>".
func OpenLocation(location string, opts ...Option) (*Store, error) {
	driver, path, ok := strings.Cut(location, ":")
	if !ok || path == "" {
		return nil, fmt.Errorf("store location %q: want <driver>:<path>", location)
	}
	return Open(driver, path, opts...)
}

func dsn(driver, path string) string {
	if driver == DuckDB && path == ":memory:" {
		return ""
	}
	return path
}

// Close closes the database.
func (s *Store) Close() error {
	s.cache.Purge()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Location returns "<driver>:<path>".
func (s *Store) Location() string { return s.driver + ":" + s.path }

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

const upsert = "INSERT OR REPLACE INTO classes (name, data) VALUES (?, ?)"

// Put stores the class file for name.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, upsert, name, data); err != nil {
		return fmt.Errorf("saving class %s: %w", name, err)
	}
	s.cache.Remove(name)
	return nil
}

// PutAll stores every class of classes in one transaction.
func (s *Store) PutAll(ctx context.Context, classes map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	for name, data := range classes {
		if _, err := tx.ExecContext(ctx, upsert, name, data); err != nil {
			tx.Rollback()
			return fmt.Errorf("saving class %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing classes: %w", err)
	}
	for name := range classes {
		s.cache.Remove(name)
	}
	log.Infof("%s: stored %d classes", s.Location(), len(classes))
	return nil
}

// Delete removes name. Deleting an absent class is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM classes WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting class %s: %w", name, err)
	}
	s.cache.Remove(name)
	return nil
}

// ---------------------------------------------------------------------------
// loader.Source
// ---------------------------------------------------------------------------

// Find returns the class file for name.
func (s *Store) Find(ctx context.Context, name string) ([]byte, error) {
	if data, ok := s.cache.Get(name); ok {
		return data, nil
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM classes WHERE name = ?", name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s in %s", loader.ErrNotFound, name, s.Location())
		}
		return nil, fmt.Errorf("querying class %s: %w", name, err)
	}
	s.cache.Add(name, data)
	return data, nil
}

// Names lists the stored classes, sorted.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM classes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing classes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning class name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Len returns the number of stored classes.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM classes").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting classes: %w", err)
	}
	return n, nil
}

var _ loader.Source = (*Store)(nil)
