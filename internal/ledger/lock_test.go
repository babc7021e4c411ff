package ledger

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/mailroute/internal/logging"
)

func TestLock_AcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	lock := NewLock(path, WithLockLogger(logging.Discard()))

	release, err := lock.Acquire(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))

	require.NoError(t, release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Reacquirable after release.
	release, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestLock_TimesOutWhileHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))

	now := time.Now()
	var polls int
	lock := NewLock(path,
		WithTimeout(time.Second),
		WithLockLogger(logging.Discard()),
		WithClock(
			func() time.Time { return now },
			func(_ context.Context, d time.Duration) error {
				polls++
				now = now.Add(d)
				return nil
			},
		),
	)

	_, err := lock.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Contains(t, err.Error(), "4242")
	assert.Equal(t, 10, polls, "expected spin-wait at 100ms until the 1s deadline")

	// A foreign lock is never removed by a failed acquirer.
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLock_AcquiredOnceHolderReleases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))

	now := time.Now()
	lock := NewLock(path,
		WithLockLogger(logging.Discard()),
		WithClock(
			func() time.Time { return now },
			func(_ context.Context, d time.Duration) error {
				now = now.Add(d)
				_ = os.Remove(path)
				return nil
			},
		),
	)

	release, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestLock_BreaksStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))

	later := time.Now().Add(time.Hour)
	lock := NewLock(path,
		WithStaleAfter(10*time.Minute),
		WithLockLogger(logging.Discard()),
		WithClock(func() time.Time { return later }, SleepContext),
	)

	release, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	defer func() { _ = release() }()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))
}

func TestLock_ReleaseLeavesForeignLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	lock := NewLock(path, WithLockLogger(logging.Discard()))

	release, err := lock.Acquire(context.Background())
	require.NoError(t, err)

	// Someone broke our lock and took it over.
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))
	require.NoError(t, release())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
