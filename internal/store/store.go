// Package store owns the panel database.
//
// The store provides:
// - A single SQLite connection pool (modernc.org/sqlite, no CGO)
// - Ordered, versioned schema migrations recorded in schema_migrations
// - Transaction helpers shared by the command layer
// - Typed account rows (admins, customers) used by auth and commands
//
// All writes of one panel command run inside one transaction. The pool is
// limited to a single connection, so code running inside WithTx must only
// use the Querier it was handed.
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

	"grimm.is/hearth/internal/clock"

	_ "modernc.org/sqlite"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	ErrClosed   = errors.New("store is closed")
)

// Querier is satisfied by *sql.DB, *sql.Tx and *Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options configures the database.
type Options struct {
	Path        string      // Database file path (":memory:" for in-memory)
	WALMode     bool        // Enable WAL journal for file databases
	BusyTimeout int         // Milliseconds to wait on a locked database
	Clock       clock.Clock // Optional: time source (defaults to clock.Default())
}

// DefaultOptions returns sensible defaults.
func DefaultOptions(path string) Options {
	return Options{
		Path:        path,
		WALMode:     true,
		BusyTimeout: 5000,
	}
}

// DB is the panel database handle.
type DB struct {
	db     *sql.DB
	clock  clock.Clock
	mu     sync.RWMutex
	closed bool
}

// Open opens (and creates, if needed) the database. Migrations are not run;
// call Migrate.
func Open(opts Options) (*DB, error) {
	if opts.Path == "" {
		return nil, errors.New("database path is required")
	}

	dsn := opts.Path
	if opts.Path != ":memory:" && !strings.HasPrefix(opts.Path, "file:") {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0750); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		pragmas := []string{"_pragma=foreign_keys(0)"}
		if opts.BusyTimeout > 0 {
			pragmas = append(pragmas, fmt.Sprintf("_pragma=busy_timeout(%d)", opts.BusyTimeout))
		}
		if opts.WALMode {
			pragmas = append(pragmas, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
		}
		dsn += "?" + strings.Join(pragmas, "&")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer and in-memory databases are
	// private to their connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Default()
	}
	return &DB{db: db, clock: clk}, nil
}

// OpenMemory opens a migrated in-memory database. Used by tests and
// "hearth check".
func OpenMemory(ctx context.Context) (*DB, error) {
	db, err := Open(Options{Path: ":memory:"})
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SQL exposes the underlying pool for read-only helpers outside a transaction.
func (d *DB) SQL() *sql.DB { return d.db }

// Clock returns the time source of the store.
func (d *DB) Clock() clock.Clock { return d.clock }

// Now returns the current unix time from the store clock.
func (d *DB) Now() int64 { return d.clock.Now().Unix() }

// Close closes the database.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

// Tx is the Querier WithTx hands to its callback.
type Tx struct {
	*sql.Tx
	after []func()
}

// AfterCommit queues fn until the transaction has committed. Queued
// functions are dropped on rollback.
func (t *Tx) AfterCommit(fn func()) {
	t.after = append(t.after, fn)
}

// AfterCommit defers fn until q's transaction commits. Outside WithTx every
// statement commits on its own, so fn runs immediately.
func AfterCommit(q Querier, fn func()) {
	if tx, ok := q.(*Tx); ok {
		tx.AfterCommit(fn)
		return
	}
	fn()
}

// WithTx runs fn in a transaction. The transaction commits when fn returns
// nil and rolls back otherwise; fn's error is returned unchanged. Functions
// registered with AfterCommit run in order after a successful commit.
func (d *DB) WithTx(ctx context.Context, fn func(q Querier) error) error {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	tx := &Tx{Tx: sqlTx}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	for _, f := range tx.after {
		f()
	}
	return nil
}

// Exists reports whether query returns at least one row.
func Exists(ctx context.Context, q Querier, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM ("+query+") LIMIT 1", args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Count runs a SELECT COUNT(*) style query and returns the number.
func Count(ctx context.Context, q Querier, query string, args ...any) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Int64s collects a single integer column.
func Int64s(ctx context.Context, q Querier, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Strings collects a single text column.
func Strings(ctx context.Context, q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Placeholders returns "?, ?, ?" for n arguments and the ids as []any.
func Placeholders(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}
