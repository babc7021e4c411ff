package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/mailroute/internal/logging"
)

const (
	// DefaultLockTimeout is how long Acquire waits for a held lock.
	DefaultLockTimeout = 30 * time.Second

	// DefaultLockPoll is the spin-wait interval.
	DefaultLockPoll = 100 * time.Millisecond

	// DefaultLockStaleAfter is the age after which a lock file is treated
	// as left behind by a killed process.
	DefaultLockStaleAfter = 10 * time.Minute
)

// ErrLockTimeout is returned when a lock could not be acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Lock is an exclusive, cross-process lock backed by a file created with
// O_EXCL. The file holds the owner's pid.
type Lock struct {
	path       string
	timeout    time.Duration
	poll       time.Duration
	staleAfter time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	logger     logging.Logger
}

// LockOption configures a Lock.
type LockOption func(*Lock)

// WithTimeout sets the acquisition timeout.
func WithTimeout(d time.Duration) LockOption {
	return func(l *Lock) { l.timeout = d }
}

// WithPoll sets the spin-wait interval.
func WithPoll(d time.Duration) LockOption {
	return func(l *Lock) { l.poll = d }
}

// WithStaleAfter sets the stale-lock age. Zero disables stale detection.
func WithStaleAfter(d time.Duration) LockOption {
	return func(l *Lock) { l.staleAfter = d }
}

// WithClock replaces the time source and sleep function (tests).
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) LockOption {
	return func(l *Lock) {
		l.now = now
		l.sleep = sleep
	}
}

// WithLockLogger sets the logger.
func WithLockLogger(logger logging.Logger) LockOption {
	return func(l *Lock) { l.logger = logger }
}

// NewLock returns a Lock on path. Nothing touches the filesystem until
// Acquire.
func NewLock(path string, opts ...LockOption) *Lock {
	l := &Lock{
		path:       path,
		timeout:    DefaultLockTimeout,
		poll:       DefaultLockPoll,
		staleAfter: DefaultLockStaleAfter,
		now:        time.Now,
		sleep:      SleepContext,
		logger:     logging.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Acquire spins until the lock file can be created exclusively, the timeout
// elapses or ctx is done. The returned release func removes the file.
func (l *Lock) Acquire(ctx context.Context) (release func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	deadline := l.now().Add(l.timeout)
	pid := os.Getpid()

	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(pid) + "\n")
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(l.path)
				return nil, fmt.Errorf("failed to write lock file %s: %w", l.path, errors.Join(werr, cerr))
			}
			return func() error { return l.release(pid) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file %s: %w", l.path, err)
		}

		if l.breakIfStale() {
			continue
		}

		if !l.now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s held by pid %s after %s", ErrLockTimeout, l.path, l.holder(), l.timeout)
		}
		if err := l.sleep(ctx, l.poll); err != nil {
			return nil, err
		}
	}
}

func (l *Lock) breakIfStale() bool {
	if l.staleAfter <= 0 {
		return false
	}
	info, err := os.Stat(l.path)
	if err != nil {
		// Vanished between create and stat; retry immediately.
		return errors.Is(err, os.ErrNotExist)
	}
	age := l.now().Sub(info.ModTime())
	if age < l.staleAfter {
		return false
	}
	l.logger.Warn("breaking stale lock",
		logging.KeyFile, l.path, "holder_pid", l.holder(), "age", age.String())
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false
	}
	return true
}

func (l *Lock) holder() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(data))
}

// release removes the lock file if it still belongs to pid.
func (l *Lock) release(pid int) error {
	if l.holder() != strconv.Itoa(pid) {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file %s: %w", l.path, err)
	}
	return nil
}
