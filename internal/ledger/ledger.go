package ledger

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/teemow/mailroute/internal/instrumentation"
	"github.com/teemow/mailroute/internal/logging"
)

var (
	// ErrReadFailed is returned by Record when the current ledger cannot be
	// read. Record never rewrites the file from a partial view.
	ErrReadFailed = errors.New("ledger read failed")

	// ErrWriteFailed is returned by Record when the rewrite could not be
	// completed within the retry policy.
	ErrWriteFailed = errors.New("ledger write failed")
)

// Ledger is the durable set of processed item ids.
//
// Contains is answered from an in-memory snapshot loaded on first use.
// Record re-reads the file under the ledger lock before rewriting it so
// that ids recorded by an overlapping process are preserved.
type Ledger struct {
	path    string
	legacy  []string
	retry   RetryPolicy
	lock    *Lock
	logger  logging.Logger
	metrics *instrumentation.Metrics

	mu     sync.Mutex
	ids    map[string]struct{}
	loaded bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLegacy adds read-only ledger files whose ids count as processed.
func WithLegacy(paths ...string) Option {
	return func(l *Ledger) {
		l.legacy = append(l.legacy, paths...)
	}
}

// WithRetryPolicy overrides the I/O retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(l *Ledger) {
		l.retry = p
	}
}

// WithLock overrides the lock guarding Record. By default a lock file next
// to the ledger (path + ".lock") is used.
func WithLock(lock *Lock) Option {
	return func(l *Ledger) {
		l.lock = lock
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics records retry counts on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// New returns a Ledger backed by the file at path. Nothing is read until
// the first call to Load, Contains or Record.
func New(path string, opts ...Option) *Ledger {
	l := &Ledger{
		path:   path,
		retry:  DefaultRetryPolicy(),
		logger: logging.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.lock == nil {
		l.lock = NewLock(path+".lock", WithLockLogger(l.logger))
	}
	return l
}

// Path returns the primary ledger file.
func (l *Ledger) Path() string {
	return l.path
}

// Load (re)reads the primary and legacy files and returns the number of
// known ids. A file that stays unreadable after retries contributes an
// empty set; the failure is logged, not returned.
func (l *Ledger) Load(ctx context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loadLocked(ctx)
	return len(l.ids)
}

func (l *Ledger) loadLocked(ctx context.Context) {
	ids := make(map[string]struct{})
	for _, p := range append([]string{l.path}, l.legacy...) {
		set, err := l.read(ctx, p)
		if err != nil {
			l.logger.Error("ledger unreadable, treating as empty",
				logging.KeyFile, p, logging.KeyError, err.Error())
			continue
		}
		for id := range set {
			ids[id] = struct{}{}
		}
	}
	l.ids = ids
	l.loaded = true
}

// Contains reports whether id has been recorded.
func (l *Ledger) Contains(ctx context.Context, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		l.loadLocked(ctx)
	}
	_, ok := l.ids[strings.TrimSpace(id)]
	return ok
}

// Record durably adds id to the ledger.
func (l *Ledger) Record(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("cannot record empty id")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		l.loadLocked(ctx)
	}

	release, err := l.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := release(); rerr != nil {
			l.logger.Warn("failed to release ledger lock", logging.KeyError, rerr.Error())
		}
	}()

	current, err := l.read(ctx, l.path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrReadFailed, l.path, err)
	}
	current[id] = struct{}{}

	data := Encode(current)
	err = l.withRetry(ctx, "write", func() error {
		return WriteFileAtomic(l.path, data, 0o644)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, l.path, err)
	}

	for k := range current {
		l.ids[k] = struct{}{}
	}
	return nil
}

// IDs returns the known ids in sorted order.
func (l *Ledger) IDs(ctx context.Context) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		l.loadLocked(ctx)
	}
	out := make([]string, 0, len(l.ids))
	for id := range l.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (l *Ledger) read(ctx context.Context, path string) (map[string]struct{}, error) {
	var data []byte
	err := l.withRetry(ctx, "read", func() error {
		var err error
		data, err = readFileIfExists(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return Decode(data), nil
}

func (l *Ledger) withRetry(ctx context.Context, op string, fn func() error) error {
	p := l.retry
	p.OnRetry = func(attempt int, err error) {
		l.metrics.RecordLedgerRetry(ctx, op)
		l.logger.Warn("ledger io failed, retrying",
			logging.KeyOperation, op, logging.KeyFile, l.path,
			"attempt", attempt, logging.KeyError, err.Error())
	}
	return p.Do(ctx, fn)
}

// Decode parses newline-delimited ids, ignoring blank lines and
// surrounding whitespace.
func Decode(data []byte) map[string]struct{} {
	ids := make(map[string]struct{})
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids
}

// Encode renders ids sorted, one per line, with a trailing newline.
func Encode(ids map[string]struct{}) []byte {
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	slices.Sort(sorted)

	var buf bytes.Buffer
	for _, id := range sorted {
		buf.WriteString(id)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
