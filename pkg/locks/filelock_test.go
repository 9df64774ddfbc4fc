package locks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLockAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	l := NewFileLock(path, nil)

	require.NoError(t, l.Acquire(context.Background(), time.Second))
	require.NoError(t, l.Release())
}

func TestFileLockTryAcquireContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	first := NewFileLock(path, nil)
	ok, err := first.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	defer first.Release()

	// flock is per-handle, so a second handle on the same path contends
	second := NewFileLock(path, nil)
	ok, err = second.TryAcquire()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileLockAcquireTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	holder := NewFileLock(path, nil)
	require.NoError(t, holder.Acquire(context.Background(), time.Second))
	defer holder.Release()

	waiter := NewFileLock(path, nil)
	err := waiter.Acquire(context.Background(), 200*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestFileLockReleaseUnheld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	l := NewFileLock(path, nil)
	assert.NoError(t, l.Release())
}

func TestTrackerRecordsHolds(t *testing.T) {
	tracker := NewTracker(time.Minute)
	tracker.Acquired("resource-a")
	tracker.Released("resource-a")

	tracker.Start(10 * time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	tracker.Stop()

	// Stop twice is safe
	tracker.Stop()
}

func TestFileLockReportsToTracker(t *testing.T) {
	tracker := NewTracker(time.Minute)
	path := filepath.Join(t.TempDir(), "tracked.lock")
	l := NewFileLock(path, tracker)

	require.NoError(t, l.Acquire(context.Background(), time.Second))
	tracker.mu.Lock()
	_, held := tracker.held[path]
	tracker.mu.Unlock()
	assert.True(t, held)

	require.NoError(t, l.Release())
	tracker.mu.Lock()
	_, held = tracker.held[path]
	tracker.mu.Unlock()
	assert.False(t, held)
}
