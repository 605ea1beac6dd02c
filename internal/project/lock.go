package project

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultLockTimeout bounds how long Lock waits before giving up.
	DefaultLockTimeout = 5 * time.Second
	// DefaultStaleLockAfter is the age past which a lock is treated as
	// abandoned by a crashed holder and force-released.
	DefaultStaleLockAfter = 10 * time.Second

	lockRetryInterval = 20 * time.Millisecond
)

// acquireWithRetry calls try until it reports success, an error, or the
// bounded wait elapses. Retries are paced by a limiter so contending
// processes do not spin.
func acquireWithRetry(ctx context.Context, name string, timeout time.Duration, try func() (bool, error)) error {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(lockRetryInterval), 1)
	start := timeNow()
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := limiter.Wait(waitCtx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &LockTimeoutError{Name: name, Waited: timeNow().Sub(start).Round(time.Millisecond)}
		}
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return &LockTimeoutError{Name: name, Waited: timeNow().Sub(start).Round(time.Millisecond)}
		}
	}
}
