// Package store is Mira's persistence layer: a single embedded relational
// database (SQLite) plus an embedded vector index (sqlite-vec), a small
// connection pool, and numbered checksum-verified migrations.
//
// Grounded on the teacher's internal/store/local_core.go pool/pragma setup
// and internal/store/init_vec.go sqlite-vec registration.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mira/internal/logging"
	"mira/internal/merr"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the pooled SQLite connection and exposes the interact/
// interact_tx bridge primitives from spec.md §4.1/§5.
type Store struct {
	db        *sql.DB
	path      string
	mu        sync.RWMutex
	vectorExt bool
}

// Open opens (creating if necessary) the database at path, sets the pragmas
// required by spec.md §4.1 (WAL, foreign keys, busy timeout, synchronous
// NORMAL), runs migrations, and detects sqlite-vec availability.
func Open(path string, busyTimeoutMillis int) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, merr.Fatalf("store.Open", err, "create directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, merr.Fatalf("store.Open", err, "open database %s", path)
	}

	// SQLite serializes writers regardless of pool size; a single
	// connection is the simplest way to get consistent interact/
	// interact_tx semantics without a separate lock, matching the
	// teacher's local_core.go exactly.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeoutMillis <= 0 {
		busyTimeoutMillis = 5000
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMillis)); err != nil {
		logging.StoreDebug("set busy_timeout failed: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("set journal_mode=WAL failed: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("set synchronous=NORMAL failed: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("set foreign_keys=ON failed: %v", err)
	}

	s := &Store{db: db, path: path}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, merr.Fatalf("store.Open", err, "run migrations")
	}

	s.vectorExt = detectVecExtension(db)
	if s.vectorExt {
		logging.Store("sqlite-vec extension detected and enabled")
	} else {
		logging.Get(logging.CategoryStore).Warn("sqlite-vec extension unavailable; falling back to brute-force cosine scan")
	}

	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// HasVectorExtension reports whether sqlite-vec's vec0 module is loaded.
func (s *Store) HasVectorExtension() bool { return s.vectorExt }

// DB returns the underlying *sql.DB, for components (like the vector
// wrapper) that need direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Interact runs f against the pooled connection. Named for the
// interact<T> primitive from spec.md §4.1: it bridges a blocking
// database call into the caller's context, translating sql.ErrNoRows and
// busy/locked errors into the appropriate merr.Kind.
func Interact[T any](ctx context.Context, s *Store, op string, f func(ctx context.Context, db *sql.DB) (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, merr.Wrap(merr.Transient, op, "context cancelled", ctx.Err())
	default:
	}
	v, err := f(ctx, s.db)
	if err != nil {
		return zero, classifyErr(op, err)
	}
	return v, nil
}

// InteractTx runs f inside a transaction. On any error, the transaction is
// rolled back; reads and writes within f are linearizable per spec.md §5.
func InteractTx[T any](ctx context.Context, s *Store, op string, f func(ctx context.Context, tx *sql.Tx) (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, merr.Wrap(merr.Transient, op, "context cancelled", ctx.Err())
	default:
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return zero, classifyErr(op, err)
	}
	v, err := f(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return zero, classifyErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return zero, classifyErr(op, err)
	}
	return v, nil
}

func classifyErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return merr.Wrap(merr.NotFound, op, "not found", err)
	}
	var kinded *merr.Error
	if errors.As(err, &kinded) {
		return err
	}
	msg := err.Error()
	if containsAny(msg, "database is locked", "busy") {
		return merr.Wrap(merr.Transient, op, "database busy", err)
	}
	if containsAny(msg, "UNIQUE constraint failed") {
		return merr.Wrap(merr.Conflict, op, "unique constraint violated", err)
	}
	return merr.Wrap(merr.Fatal, op, "unexpected store error", err)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func detectVecExtension(db *sql.DB) bool {
	if _, err := db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err == nil {
		_, _ = db.Exec("DROP TABLE IF EXISTS vec_probe")
		return true
	}
	return false
}
