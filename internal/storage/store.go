// Package storage persists session records in a single-file SQLite database.
//
// Concurrency: WAL journal mode allows many concurrent readers with one
// serialized writer. Every pooled connection receives the same pragmas
// through the DSN, and transactions take the write lock up front
// (_txlock=immediate) so read-modify-write sequences cannot hit a snapshot
// upgrade conflict. Contention that outlasts the busy timeout surfaces as
// SQLITE_BUSY and is retried a bounded number of times.
//
// Error policy: once the schema exists, storage failures never propagate to
// callers. Every operation absorbs its error into a logged diagnostic plus a
// zero value (false, empty, 0); callers reason only in terms of
// success/failure. Open and RunMigrations are the exceptions: a connection
// or schema initialization error is fatal to the process.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store is the persistent session store. One Store owns one database/sql
// pool; it is safe for concurrent use from any number of goroutines.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Options tune the SQLite connection pool.
type Options struct {
	// MaxConns bounds the connection pool. WAL permits one writer at a
	// time, so this is effectively the read parallelism limit.
	MaxConns int
	// BusyTimeout is how long a statement waits for the write lock before
	// failing with SQLITE_BUSY.
	BusyTimeout time.Duration
}

// Open opens (creating if necessary) the database at path and verifies the
// connection. Callers must apply the schema with RunMigrations before using
// the store.
func Open(ctx context.Context, path string, opts Options, logger *slog.Logger) (*Store, error) {
	if opts.MaxConns <= 0 {
		opts.MaxConns = 8
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("storage: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(opts.MaxConns)
	db.SetMaxIdleConns(opts.MaxConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping %s: %w", path, err)
	}

	logger.Info("storage: sqlite ready", "path", path, "max_conns", opts.MaxConns)
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// dsn applies the session pragmas to every pooled connection. journal_mode
// is persistent in the database file but harmless to re-assert per
// connection; the rest are connection-scoped and must be in the DSN.
func dsn(path string, busyTimeout time.Duration) string {
	return "file:" + path +
		"?_txlock=immediate" +
		"&_pragma=busy_timeout(" + strconv.FormatInt(busyTimeout.Milliseconds(), 10) + ")" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)" +
		"&_pragma=mmap_size(268435456)"
}

// Close releases the connection pool. Safe to call more than once.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable. Health checks are the one caller
// that wants the raw error rather than an absorbed zero value.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isBusy reports whether err is SQLite telling us the database is locked by
// another writer.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// isConstraint reports whether err is a constraint violation (duplicate
// primary key on insert).
func isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

// withRetry executes fn, retrying a bounded number of times when SQLite
// reports busy or locked. The busy timeout pragma already absorbs short
// contention; this covers writer pile-ups that outlast it. Retries use
// jittered exponential backoff.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	const maxRetries = 3
	delay := 50 * time.Millisecond

	var err error
	for attempt := range maxRetries + 1 {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return err
}
