package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/mailroute/internal/audit"
	"github.com/teemow/mailroute/internal/classify"
	"github.com/teemow/mailroute/internal/inbox"
	"github.com/teemow/mailroute/internal/instrumentation"
	"github.com/teemow/mailroute/internal/ledger"
	"github.com/teemow/mailroute/internal/logging"
)

// Classifier decides where a document goes.
type Classifier interface {
	Classify(ctx context.Context, doc classify.Document) classify.Result
}

// Config holds the router's directories and policies.
type Config struct {
	Inbox      string
	Review     string
	Quarantine string
	// MaxAttempts moves an item to Quarantine after that many ERROR
	// outcomes. Zero disables quarantine.
	MaxAttempts int
	// OrphanGrace is how old a payload without sidecar must be before it
	// is moved to Review.
	OrphanGrace time.Duration
	// AttemptsFile persists failure counters across runs.
	AttemptsFile string
	// SummaryPath receives the run summary. Empty skips it.
	SummaryPath string
}

// RunOptions tune one Run.
type RunOptions struct {
	DryRun bool
	// Max bounds the number of items handled. Zero means no bound.
	Max int
}

// Summary describes one Run.
type Summary struct {
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	DryRun      bool           `json:"dry_run"`
	Scanned     int            `json:"scanned"`
	Skipped     int            `json:"skipped"`
	Moved       int            `json:"moved"`
	Review      int            `json:"review"`
	Quarantined int            `json:"quarantined"`
	Failed      int            `json:"failed"`
	Statuses    map[Status]int `json:"statuses"`
}

func (s *Summary) add(st Status) {
	s.Statuses[st]++
	switch {
	case st == StatusMoved:
		s.Moved++
	case st.ToReview():
		s.Review++
	case st == StatusQuarantined:
		s.Quarantined++
	case st == StatusError:
		s.Failed++
	}
}

// Router moves classified inbox items to their destinations.
type Router struct {
	cfg        Config
	classifier Classifier
	audit      *audit.Log
	lock       *ledger.Lock
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithLock serializes runs through lock.
func WithLock(lock *ledger.Lock) Option {
	return func(r *Router) { r.lock = lock }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// New creates a Router.
func New(cfg Config, classifier Classifier, auditLog *audit.Log, opts ...Option) *Router {
	r := &Router{
		cfg:        cfg,
		classifier: classifier,
		audit:      auditLog,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// item is one unit of work: a sidecar with or without its payload, or an
// orphan payload.
type item struct {
	payload string
	meta    string
	md      inbox.Metadata
}

// Run routes every item currently in the inbox, in lexicographic order.
// Per-item failures are audited and do not stop the run; only lock and
// inbox listing failures are returned.
func (r *Router) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	sum := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: r.now().UTC(),
		DryRun:    opts.DryRun,
		Statuses:  make(map[Status]int),
	}
	logger := logging.WithRun(r.logger, logging.StageRoute, sum.RunID)

	ctx, span := instrumentation.StartStageSpan(ctx, logging.StageRoute, sum.RunID, opts.DryRun)
	defer span.End()

	runStatus := instrumentation.StatusSuccess
	defer func() {
		r.metrics.RecordRun(ctx, logging.StageRoute, runStatus, r.now().Sub(sum.StartedAt))
	}()

	if r.lock != nil {
		release, err := r.lock.Acquire(ctx)
		if err != nil {
			runStatus = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
			return sum, fmt.Errorf("failed to acquire router lock: %w", err)
		}
		defer func() {
			if err := release(); err != nil {
				logger.Warn("failed to release router lock", logging.Err(err))
			}
		}()
	}

	listing, err := inbox.Scan(r.cfg.Inbox)
	if err != nil {
		runStatus = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		return sum, err
	}

	att, err := loadAttempts(r.cfg.AttemptsFile)
	if err != nil {
		logger.Warn("starting with empty attempt counters", logging.Err(err))
	}

	items, waiting := r.collect(listing, logger)
	sum.Skipped = waiting
	logger.Info("router run started",
		slog.Int("items", len(items)),
		slog.Int("orphans_waiting", waiting),
		slog.Bool("dry_run", opts.DryRun))

	for _, it := range items {
		if opts.Max > 0 && sum.Scanned >= opts.Max {
			sum.Skipped += len(items) - sum.Scanned
			break
		}
		if err := ctx.Err(); err != nil {
			runStatus = instrumentation.StatusError
			return sum, err
		}
		sum.Scanned++

		st := r.route(ctx, it, opts.DryRun, att, logger)
		sum.add(st)
		r.metrics.RecordItem(ctx, logging.StageRoute, string(st))
	}

	if !opts.DryRun {
		if err := att.save(); err != nil {
			logger.Error("failed to save attempt counters", logging.Err(err))
		}
	}

	sum.FinishedAt = r.now().UTC()
	if r.cfg.SummaryPath != "" {
		if err := ledger.WriteJSONAtomic(r.cfg.SummaryPath, sum); err != nil {
			logger.Warn("failed to write run summary", logging.Err(err))
		}
	}

	instrumentation.SetSpanSuccess(span)
	logger.Info("router run finished",
		slog.Int("scanned", sum.Scanned),
		slog.Int("moved", sum.Moved),
		slog.Int("review", sum.Review),
		slog.Int("quarantined", sum.Quarantined),
		slog.Int("failed", sum.Failed))
	return sum, nil
}

// collect pairs sidecars with payloads. Orphan payloads younger than the
// grace period are left for a later run and only counted.
func (r *Router) collect(listing inbox.Listing, logger *slog.Logger) ([]item, int) {
	items := make([]item, 0, len(listing.Metas))
	claimed := make(map[string]bool, len(listing.Metas))

	for _, meta := range listing.Metas {
		md, err := inbox.ReadMetadata(filepath.Join(r.cfg.Inbox, meta))
		if err != nil {
			logger.Warn("unreadable sidecar, routing by filename", logging.File(meta), logging.Err(err))
		}
		payload := inbox.PayloadName(meta)
		if name := md.SavedFilename; name != "" && filepath.Base(name) == name && !inbox.IsMetaName(name) {
			payload = name
		}
		claimed[payload] = true
		items = append(items, item{payload: payload, meta: meta, md: md})
	}

	waiting := 0
	now := r.now()
	for _, p := range listing.Orphans(claimed) {
		if age := now.Sub(listing.ModTime(p)); age < r.cfg.OrphanGrace {
			logger.Debug("orphan payload within grace period", logging.File(p), slog.Duration("age", age))
			waiting++
			continue
		}
		items = append(items, item{payload: p})
	}
	return items, waiting
}

func (r *Router) route(ctx context.Context, it item, dryRun bool, att *attempts, logger *slog.Logger) Status {
	rec := audit.Record{
		Time:    r.now(),
		File:    it.payload,
		Meta:    it.meta,
		From:    it.md.From,
		Subject: it.md.Subject,
	}
	setEvaluation(&rec, classify.DefaultEvaluation())

	payloadPath := filepath.Join(r.cfg.Inbox, it.payload)
	switch {
	case it.meta == "":
		rec.Decision = classify.Review
		return r.finish(ctx, &rec, r.orphanToReview(it, dryRun, &rec), logger)
	case !exists(payloadPath):
		rec.Decision = classify.Review
		return r.finish(ctx, &rec, r.metaToReview(it, dryRun, &rec), logger)
	}

	res := r.classifier.Classify(ctx, r.document(it))
	rec.Decision = res.Decision
	setEvaluation(&rec, res.Evaluation)

	dest := res.Target
	if res.Decision == classify.Review || dest == "" {
		rec.Decision = classify.Review
		dest = r.cfg.Review
	}
	rec.Destination = dest

	if dryRun {
		return r.finish(ctx, &rec, StatusDryRun, logger)
	}

	st, err := r.movePair(it, dest, &rec)
	if err != nil {
		logger.Error("failed to route item",
			logging.File(it.payload),
			slog.String("destination", dest),
			logging.SenderDomain(it.md.From),
			logging.Err(err))
		st = r.fail(it, att, &rec, logger)
	} else {
		att.clear(it.payload)
	}
	return r.finish(ctx, &rec, st, logger)
}

// movePair moves payload then sidecar into dest. An occupied destination
// diverts the pair to Review.
func (r *Router) movePair(it item, dest string, rec *audit.Record) (Status, error) {
	if dest == r.cfg.Review {
		if err := r.pairTo(it, r.cfg.Review, true, rec); err != nil {
			return StatusError, err
		}
		return StatusMoved, nil
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return StatusError, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if exists(filepath.Join(dest, it.payload)) || exists(filepath.Join(dest, inbox.MetaName(it.payload))) {
		rec.Decision = classify.Review
		rec.Destination = r.cfg.Review
		if err := r.pairTo(it, r.cfg.Review, true, rec); err != nil {
			return StatusError, err
		}
		return StatusCollisionToReview, nil
	}

	if err := r.pairTo(it, dest, false, rec); err != nil {
		if errors.Is(err, errDestinationExists) && exists(filepath.Join(r.cfg.Inbox, it.payload)) {
			// Lost a race with another writer; treat as a collision.
			rec.Decision = classify.Review
			rec.Destination = r.cfg.Review
			if err := r.pairTo(it, r.cfg.Review, true, rec); err != nil {
				return StatusError, err
			}
			return StatusCollisionToReview, nil
		}
		return StatusError, err
	}
	return StatusMoved, nil
}

// pairTo moves payload and sidecar into dir. With rename set, an occupied
// name is replaced by a __DUP__ variant instead of failing.
func (r *Router) pairTo(it item, dir string, rename bool, rec *audit.Record) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	src := filepath.Join(r.cfg.Inbox, it.payload)
	name := it.payload
	if rename {
		name = freeName(dir, it.payload, hash8(src))
	}
	metaName := inbox.MetaName(name)

	if err := moveFile(src, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to move payload: %w", err)
	}
	rec.File = name
	if it.meta == "" {
		return nil
	}
	if err := moveFile(filepath.Join(r.cfg.Inbox, it.meta), filepath.Join(dir, metaName)); err != nil {
		// No multi-file transaction: the payload stays moved and the lone
		// sidecar is picked up by the next run. The ERROR row names where
		// the payload went so it can be matched with that later row.
		moved := filepath.Join(dir, name)
		rec.File = moved
		r.logger.Error("payload moved but sidecar left behind",
			logging.File(it.meta),
			slog.String("payload_destination", moved),
			logging.Err(err))
		return fmt.Errorf("failed to move sidecar after payload: %w", err)
	}
	rec.Meta = metaName
	return nil
}

func (r *Router) metaToReview(it item, dryRun bool, rec *audit.Record) Status {
	rec.Destination = r.cfg.Review
	if dryRun {
		return StatusDryRun
	}
	if err := os.MkdirAll(r.cfg.Review, 0o755); err != nil {
		r.logger.Error("failed to create review dir", logging.Err(err))
		return StatusError
	}
	src := filepath.Join(r.cfg.Inbox, it.meta)
	name := freeMetaName(r.cfg.Review, it.meta, hash8(src))
	if err := moveFile(src, filepath.Join(r.cfg.Review, name)); err != nil {
		r.logger.Error("failed to move sidecar to review", logging.File(it.meta), logging.Err(err))
		return StatusError
	}
	rec.Meta = name
	return StatusMetaMovedToReview
}

func (r *Router) orphanToReview(it item, dryRun bool, rec *audit.Record) Status {
	rec.Destination = r.cfg.Review
	if dryRun {
		return StatusDryRun
	}
	if err := r.pairTo(it, r.cfg.Review, true, rec); err != nil {
		r.logger.Error("failed to move orphan payload to review", logging.File(it.payload), logging.Err(err))
		return StatusError
	}
	return StatusPayloadMovedToReview
}

// fail counts the failure and quarantines the item once it has failed
// MaxAttempts times.
func (r *Router) fail(it item, att *attempts, rec *audit.Record, logger *slog.Logger) Status {
	n := att.inc(it.payload)
	if r.cfg.MaxAttempts <= 0 || n < r.cfg.MaxAttempts || r.cfg.Quarantine == "" {
		return StatusError
	}
	if !exists(filepath.Join(r.cfg.Inbox, it.payload)) {
		// Payload already left; the sidecar will surface as META_MOVED_TO_REVIEW.
		return StatusError
	}
	rec.Destination = r.cfg.Quarantine
	if err := r.pairTo(it, r.cfg.Quarantine, true, rec); err != nil {
		logger.Error("failed to quarantine item", logging.File(it.payload), slog.Int("attempts", n), logging.Err(err))
		return StatusError
	}
	logger.Warn("item quarantined", logging.File(it.payload), slog.Int("attempts", n))
	att.clear(it.payload)
	return StatusQuarantined
}

func (r *Router) finish(ctx context.Context, rec *audit.Record, st Status, logger *slog.Logger) Status {
	rec.Status = string(st)
	if r.audit != nil {
		if err := r.audit.Write(ctx, *rec); err != nil {
			logger.Error("failed to write audit record", logging.File(rec.File), logging.Err(err))
		}
	}
	return st
}

func setEvaluation(rec *audit.Record, ev classify.Evaluation) {
	rec.Risk = ev.Risk
	rec.Category = ev.Category
	rec.Urgency = ev.Urgency
	rec.Quality = ev.Quality
}
