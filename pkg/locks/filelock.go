// Package locks provides advisory file locking and a watchdog for
// long-held resource acquisitions.
package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when a lock is not acquired within the timeout
var ErrLockTimeout = errors.New("timed out acquiring file lock")

// FileLock wraps an advisory OS lock on a dedicated lock file
type FileLock struct {
	fl      *flock.Flock
	tracker *Tracker
	name    string
}

// NewFileLock creates a lock on the given path. The tracker is optional.
func NewFileLock(path string, tracker *Tracker) *FileLock {
	return &FileLock{
		fl:      flock.New(path),
		tracker: tracker,
		name:    path,
	}
}

// Acquire blocks until the lock is held or the timeout elapses. A zero
// timeout blocks until the context is canceled.
func (l *FileLock) Acquire(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ok, err := l.fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, l.name)
		}
		return fmt.Errorf("acquiring lock %s: %w", l.name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockTimeout, l.name)
	}

	if l.tracker != nil {
		l.tracker.Acquired(l.name)
	}
	return nil
}

// TryAcquire attempts the lock without blocking
func (l *FileLock) TryAcquire() (bool, error) {
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquiring lock %s: %w", l.name, err)
	}
	if ok && l.tracker != nil {
		l.tracker.Acquired(l.name)
	}
	return ok, nil
}

// Release releases the lock. Releasing an unheld lock is a no-op.
func (l *FileLock) Release() error {
	if l.tracker != nil {
		l.tracker.Released(l.name)
	}
	return l.fl.Unlock()
}
