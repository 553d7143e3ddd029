// Package store persists uploads, activities and their records in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrDuplicateUpload is returned when (user, original_filename) already exists.
var ErrDuplicateUpload = errors.New("upload already exists for this user and filename")

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DefaultRecordBatchSize is the number of records written per INSERT statement.
const DefaultRecordBatchSize = 500

// Options configures Open.
type Options struct {
	BusyTimeout     time.Duration
	RecordBatchSize int
}

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
	queries
}

// Open opens (creating if necessary) the database at path and runs migrations.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{"PRAGMA foreign_keys = ON"}
	if opts.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout.Milliseconds()))
	}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return newStore(db, opts), nil
}

func newStore(db *sql.DB, opts Options) *Store {
	batch := opts.RecordBatchSize
	if batch <= 0 {
		batch = DefaultRecordBatchSize
	}
	return &Store{db: db, queries: queries{db: db, batchSize: batch}}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced operations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Atomic runs fn inside one transaction. The transaction commits only if fn
// returns nil; any error or panic rolls back every write fn made.
func (s *Store) Atomic(ctx context.Context, fn func(Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(queries{db: tx, batchSize: s.batchSize}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xFF == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}
