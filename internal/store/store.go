// Package store persists a datamap and its checkpoints in SQLite.
//
// Two drivers are registered: "sqlite3" (github.com/mattn/go-sqlite3, cgo)
// and "sqlite" (modernc.org/sqlite, pure Go). Both read and write the same
// schema, so a database created by one opens with the other.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"datamap/internal/logging"
)

// Drivers lists the accepted database/sql driver names.
var Drivers = []string{"sqlite3", "sqlite"}

// ErrUnknownDriver is returned by Open for driver names not in Drivers.
var ErrUnknownDriver = errors.New("store: unknown sqlite driver")

// Store is a SQLite-backed datamap store. Methods are safe for concurrent use.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	path   string
	driver string
}

// Open opens (creating if needed) the database at path. path may be
// ":memory:".
func Open(path, driver string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if !slices.Contains(Drivers, driver) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	logging.Store("Opening datamap store at %s (driver %s)", path, driver)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	s := &Store{db: db, path: path, driver: driver}
	if err := s.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	logging.StoreDebug("Datamap store ready")
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vertices (
			position INTEGER PRIMARY KEY,
			serial TEXT NOT NULL UNIQUE,
			payload TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS edges (
			position INTEGER PRIMARY KEY,
			source INTEGER NOT NULL REFERENCES vertices(position),
			attr TEXT NOT NULL,
			dest INTEGER NOT NULL REFERENCES vertices(position),
			tested INTEGER NOT NULL DEFAULT 0,
			created INTEGER NOT NULL DEFAULT 0,
			generated INTEGER NOT NULL DEFAULT 0,
			prov_file TEXT NOT NULL DEFAULT '',
			prov_line INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source)`,
		`CREATE TABLE IF NOT EXISTS datamap_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL DEFAULT '',
			vertex_count INTEGER NOT NULL,
			edge_count INTEGER NOT NULL,
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Driver returns the database/sql driver name.
func (s *Store) Driver() string { return s.driver }

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logging.StoreDebug("Closing datamap store %s", s.path)
	return s.db.Close()
}
