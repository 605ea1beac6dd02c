package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteBackend is the central store: every process pointing at the same
// database file shares projects and locks. Writes are conditional UPDATEs
// on the version column.
type SQLiteBackend struct {
	db          *sql.DB
	path        string
	lockTimeout time.Duration
	staleAfter  time.Duration
	logger      *zap.Logger
}

// SQLiteOptions tunes a SQLiteBackend. Zero values take the defaults.
type SQLiteOptions struct {
	LockTimeout time.Duration
	StaleAfter  time.Duration
	Logger      *zap.Logger
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(path string, opts SQLiteOptions) (*SQLiteBackend, error) {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleLockAfter
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("project: create database dir: %w", err)
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("project: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("project: pragma %q: %w", p, err)
		}
	}

	b := &SQLiteBackend{
		db:          db,
		path:        path,
		lockTimeout: opts.LockTimeout,
		staleAfter:  opts.StaleAfter,
		logger:      opts.Logger,
	}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("project: migration: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			name       TEXT PRIMARY KEY,
			version    INTEGER NOT NULL,
			data       TEXT    NOT NULL,
			updated_at TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS project_locks (
			name       TEXT PRIMARY KEY,
			holder     TEXT    NOT NULL,
			expires_at INTEGER NOT NULL
		);
	`
	_, err := b.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Path returns the database file path.
func (b *SQLiteBackend) Path() string { return b.path }

// Name implements Backend.
func (b *SQLiteBackend) Name() string { return "sqlite" }

// Available implements Backend.
func (b *SQLiteBackend) Available(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Read implements Backend.
func (b *SQLiteBackend) Read(ctx context.Context, name string) (*Record, error) {
	var rec Record
	var data string
	err := b.db.QueryRowContext(ctx,
		`SELECT data, version FROM projects WHERE name = ?`, name,
	).Scan(&data, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading project %q: %w", name, err)
	}
	rec.Data = []byte(data)
	return &rec, nil
}

// CompareAndSwap implements Backend.
func (b *SQLiteBackend) CompareAndSwap(ctx context.Context, name string, expected int64, data []byte) (SwapResult, error) {
	now := nowRFC3339()
	var (
		res sql.Result
		err error
	)
	if expected == 0 {
		res, err = b.db.ExecContext(ctx,
			`INSERT INTO projects (name, version, data, updated_at) VALUES (?, 1, ?, ?)
			 ON CONFLICT(name) DO NOTHING`,
			name, string(data), now)
	} else {
		res, err = b.db.ExecContext(ctx,
			`UPDATE projects SET version = version + 1, data = ?, updated_at = ?
			 WHERE name = ? AND version = ?`,
			string(data), now, name, expected)
	}
	if err != nil {
		if isBusy(err) {
			return SwapResult{Outcome: SwapTimeout}, nil
		}
		return SwapResult{}, fmt.Errorf("writing project %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return SwapResult{}, fmt.Errorf("writing project %q: %w", name, err)
	}
	if n == 1 {
		return SwapResult{Outcome: SwapOK, Version: expected + 1}, nil
	}

	var current int64
	err = b.db.QueryRowContext(ctx, `SELECT version FROM projects WHERE name = ?`, name).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return SwapResult{}, fmt.Errorf("reading version of %q: %w", name, err)
	}
	return SwapResult{Outcome: SwapConflict, Version: current}, nil
}

// Lock implements Backend. Expired rows are cleared before each attempt,
// so a crashed holder releases its lock after the stale ceiling.
func (b *SQLiteBackend) Lock(ctx context.Context, name string) (Unlock, error) {
	holder := uuid.NewString()
	err := acquireWithRetry(ctx, name, b.lockTimeout, func() (bool, error) {
		return b.tryLock(ctx, name, holder)
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	var unlockErr error
	return func() error {
		once.Do(func() {
			// Released on a fresh context: the caller's may be done already.
			_, err := b.db.ExecContext(context.Background(),
				`DELETE FROM project_locks WHERE name = ? AND holder = ?`, name, holder)
			if err != nil {
				unlockErr = fmt.Errorf("releasing lock for %q: %w", name, err)
			}
		})
		return unlockErr
	}, nil
}

func (b *SQLiteBackend) tryLock(ctx context.Context, name, holder string) (bool, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			return false, nil
		}
		return false, fmt.Errorf("begin lock transaction: %w", err)
	}
	defer tx.Rollback()

	now := timeNow().UTC()
	res, err := tx.ExecContext(ctx,
		`DELETE FROM project_locks WHERE name = ? AND expires_at <= ?`, name, now.UnixMilli())
	if err != nil {
		if isBusy(err) {
			return false, nil
		}
		return false, fmt.Errorf("clean expired locks: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		b.logger.Warn("force-released expired project lock", zap.String("project", name))
	}

	res, err = tx.ExecContext(ctx,
		`INSERT INTO project_locks (name, holder, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, holder, now.Add(b.staleAfter).UnixMilli())
	if err != nil {
		if isBusy(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert lock: %w", err)
	}
	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return false, nil
		}
		return false, fmt.Errorf("commit lock: %w", err)
	}
	return n == 1, nil
}

// List implements Backend.
func (b *SQLiteBackend) List(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT name FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning project name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
