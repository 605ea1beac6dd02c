package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// ProjectsDir is the subdirectory of the data dir holding project files.
	ProjectsDir = "projects"
	recordExt   = ".json"
	lockExt     = ".lock"
)

// envelope is the on-disk form of a record.
type envelope struct {
	Version   int64           `json:"version"`
	UpdatedAt string          `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// FileBackend stores one JSON file per project under <dir>/projects.
//
// Writes go to a temp file that is renamed over the record, so a reader
// never sees a half-written project. Cross-process exclusion uses
// <name>.lock files created with O_EXCL. CompareAndSwap is atomic within
// a process; across processes callers hold Lock around it.
type FileBackend struct {
	dir         string
	lockTimeout time.Duration
	staleAfter  time.Duration
	logger      *zap.Logger

	mu sync.Mutex
}

// FileOptions tunes a FileBackend. Zero values take the defaults.
type FileOptions struct {
	LockTimeout time.Duration
	StaleAfter  time.Duration
	Logger      *zap.Logger
}

// NewFileBackend creates a file backend rooted at dataDir.
func NewFileBackend(dataDir string, opts FileOptions) *FileBackend {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleLockAfter
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &FileBackend{
		dir:         filepath.Join(dataDir, ProjectsDir),
		lockTimeout: opts.LockTimeout,
		staleAfter:  opts.StaleAfter,
		logger:      opts.Logger,
	}
}

// Name implements Backend.
func (b *FileBackend) Name() string { return "file" }

// Dir returns the directory holding project files.
func (b *FileBackend) Dir() string { return b.dir }

// Available implements Backend.
func (b *FileBackend) Available(_ context.Context) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *FileBackend) recordPath(name string) string {
	return filepath.Join(b.dir, name+recordExt)
}

func (b *FileBackend) lockPath(name string) string {
	return filepath.Join(b.dir, name+lockExt)
}

// Read implements Backend.
func (b *FileBackend) Read(ctx context.Context, name string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env, err := b.readEnvelope(name)
	if err != nil {
		return nil, err
	}
	return &Record{Data: env.Data, Version: env.Version}, nil
}

func (b *FileBackend) readEnvelope(name string) (*envelope, error) {
	data, err := os.ReadFile(b.recordPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading project %q: %w", name, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing project file for %q: %w", name, err)
	}
	return &env, nil
}

// CompareAndSwap implements Backend.
func (b *FileBackend) CompareAndSwap(ctx context.Context, name string, expected int64, data []byte) (SwapResult, error) {
	if err := ctx.Err(); err != nil {
		return SwapResult{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var current int64
	env, err := b.readEnvelope(name)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return SwapResult{}, err
	default:
		current = env.Version
	}
	if current != expected {
		return SwapResult{Outcome: SwapConflict, Version: current}, nil
	}

	next := &envelope{Version: current + 1, UpdatedAt: nowRFC3339(), Data: json.RawMessage(data)}
	if err := b.writeAtomic(name, next); err != nil {
		return SwapResult{}, err
	}
	return SwapResult{Outcome: SwapOK, Version: next.Version}, nil
}

func (b *FileBackend) writeAtomic(name string, env *envelope) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("creating projects directory: %w", err)
	}
	payload, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling project %q: %w", name, err)
	}

	f, err := os.CreateTemp(b.dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %q: %w", name, err)
	}
	tmpPath := f.Name()
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing project %q: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing project %q: %w", name, err)
	}
	f.Close()

	if err := os.Rename(tmpPath, b.recordPath(name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalizing project %q: %w", name, err)
	}
	return nil
}

// Lock implements Backend. A lock file older than the stale ceiling is
// assumed to belong to a crashed holder and is removed.
func (b *FileBackend) Lock(ctx context.Context, name string) (Unlock, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating projects directory: %w", err)
	}
	path := b.lockPath(name)
	holder := uuid.NewString()

	err := acquireWithRetry(ctx, name, b.lockTimeout, func() (bool, error) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(holder)
			f.Close()
			if werr != nil {
				os.Remove(path)
				return false, fmt.Errorf("writing lock for %q: %w", name, werr)
			}
			return true, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return false, fmt.Errorf("creating lock for %q: %w", name, err)
		}
		info, statErr := os.Stat(path)
		if statErr != nil {
			// Released between our open and stat: try again now.
			return false, nil
		}
		if age := timeNow().Sub(info.ModTime()); age > b.staleAfter {
			stale, readErr := os.ReadFile(path)
			if readErr != nil {
				return false, nil
			}
			if err := b.breakStaleLock(name, string(stale), age); err != nil {
				return false, err
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	var unlockErr error
	return func() error {
		once.Do(func() {
			// Only remove the lock if it is still ours; it may have been
			// force-released and re-acquired by someone else.
			data, err := os.ReadFile(path)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					unlockErr = fmt.Errorf("reading lock for %q: %w", name, err)
				}
				return
			}
			if string(data) != holder {
				return
			}
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				unlockErr = fmt.Errorf("releasing lock for %q: %w", name, err)
			}
		})
		return unlockErr
	}, nil
}

// breakStaleLock removes the lock of name only while it still carries
// staleHolder. The file is moved aside before it is checked, so a lock
// that another waiter re-created in the meantime is put back untouched.
func (b *FileBackend) breakStaleLock(name, staleHolder string, age time.Duration) error {
	path := b.lockPath(name)
	aside := filepath.Join(b.dir, "."+name+"-"+uuid.NewString()+".stale")
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("moving stale lock for %q: %w", name, err)
	}
	defer os.Remove(aside)

	data, err := os.ReadFile(aside)
	if err != nil {
		return fmt.Errorf("reading stale lock for %q: %w", name, err)
	}
	if string(data) != staleHolder {
		if err := os.Link(aside, path); err != nil {
			b.logger.Warn("could not restore live project lock",
				zap.String("project", name), zap.Error(err))
		}
		return nil
	}
	b.logger.Warn("force-released stale project lock",
		zap.String("project", name), zap.Duration("age", age))
	return nil
}

// List implements Backend.
func (b *FileBackend) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading projects directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || !strings.HasSuffix(n, recordExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(n, recordExt))
	}
	sort.Strings(names)
	return names, nil
}
