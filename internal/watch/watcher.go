package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teemow/mailroute/internal/ledger"
	"github.com/teemow/mailroute/internal/logging"
)

// DefaultDebounce is the quiet period after the last event before the
// callback runs.
const DefaultDebounce = 5 * time.Second

// TriggerFunc is invoked once per settled burst of events.
type TriggerFunc func(ctx context.Context) error

// Watcher runs a TriggerFunc when files are created in a directory.
type Watcher struct {
	dir      string
	trigger  TriggerFunc
	debounce time.Duration
	interval time.Duration
	initial  bool
	logger   logging.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithInterval re-runs the trigger every d even without events. Zero
// disables it.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) { w.interval = d }
}

// WithInitialRun makes Run invoke the trigger once before waiting.
func WithInitialRun(enabled bool) Option {
	return func(w *Watcher) { w.initial = enabled }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a Watcher for dir.
func New(dir string, trigger TriggerFunc, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		trigger:  trigger,
		debounce: DefaultDebounce,
		initial:  true,
		logger:   logging.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	return w
}

// Run blocks until ctx is cancelled or the underlying watcher fails.
// Trigger errors are logged and do not stop the loop; a cancelled
// context returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create watched directory %s: %w", w.dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		if err := fw.Close(); err != nil {
			w.logger.Warn("failed to close watcher", logging.Err(err))
		}
	}()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching directory", "dir", w.dir, "debounce", w.debounce.String())

	if w.initial {
		w.fire(ctx, "startup")
	}

	// A stopped timer with a drained channel; armed on the first event.
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("inbox event", logging.File(filepath.Base(event.Name)), "op", event.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			w.logger.Warn("watcher error", logging.Err(err))

		case <-timer.C:
			w.fire(ctx, "change")

		case <-tick:
			w.fire(ctx, "interval")
		}
	}
}

func (w *Watcher) fire(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	w.logger.Debug("running trigger", "reason", reason)
	if err := w.trigger(ctx); err != nil {
		w.logger.Error("triggered run failed", "reason", reason, logging.Err(err))
	}
}

// relevant keeps files arriving in the directory. Removals and renames
// away are what a run itself produces, so they do not re-arm the timer.
func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	return !ledger.IsTempName(filepath.Base(event.Name))
}
