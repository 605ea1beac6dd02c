package project

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a project name.
	ErrNotFound = errors.New("project not found")
	// ErrVersionConflict is returned when a conditional write loses a race.
	ErrVersionConflict = errors.New("project version conflict")
	// ErrLockTimeout matches any LockTimeoutError via errors.Is.
	ErrLockTimeout = errors.New("project lock timeout")
	// ErrUnavailable is returned by backends that cannot currently serve.
	ErrUnavailable = errors.New("project backend unavailable")
	// ErrNameTaken is returned when an explicitly named project exists.
	ErrNameTaken = errors.New("project name already taken")
)

// LockTimeoutError reports that the project lock could not be acquired in
// the bounded wait. The caller should retry the operation.
type LockTimeoutError struct {
	Name   string
	Waited time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for lock on project %q; retry the operation", e.Waited, e.Name)
}

// Is makes errors.Is(err, ErrLockTimeout) true.
func (e *LockTimeoutError) Is(target error) bool {
	return target == ErrLockTimeout
}

// Record is the raw persisted bytes of a project and their version.
type Record struct {
	Data    []byte
	Version int64
}

// Outcome tags the result of a compare-and-swap.
type Outcome int

const (
	SwapOK Outcome = iota
	SwapConflict
	SwapTimeout
)

func (o Outcome) String() string {
	switch o {
	case SwapOK:
		return "ok"
	case SwapConflict:
		return "conflict"
	case SwapTimeout:
		return "timeout"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// SwapResult is the result of Backend.CompareAndSwap. Version is the
// version now stored (the new one on OK, the current one on Conflict).
type SwapResult struct {
	Outcome Outcome
	Version int64
}

// Unlock releases a project lock. It is safe to call more than once.
type Unlock func() error

// Backend owns the durable bytes. Versions start at 1 for a new record;
// expected version 0 means "create, must not exist".
type Backend interface {
	Name() string
	Available(ctx context.Context) error
	Read(ctx context.Context, name string) (*Record, error)
	CompareAndSwap(ctx context.Context, name string, expected int64, data []byte) (SwapResult, error)
	Lock(ctx context.Context, name string) (Unlock, error)
	List(ctx context.Context) ([]string, error)
}

// Resolver is implemented by composite backends that pick a concrete
// backend once per operation, so a lock and the writes under it always
// hit the same place.
type Resolver interface {
	Resolve(ctx context.Context) Backend
}

func resolve(ctx context.Context, b Backend) Backend {
	if r, ok := b.(Resolver); ok {
		return r.Resolve(ctx)
	}
	return b
}
