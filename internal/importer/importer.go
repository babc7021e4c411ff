package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/mailroute/internal/audit"
	"github.com/teemow/mailroute/internal/inbox"
	"github.com/teemow/mailroute/internal/instrumentation"
	"github.com/teemow/mailroute/internal/ledger"
	"github.com/teemow/mailroute/internal/logging"
)

// DefaultMaxPerRun caps candidates fetched per run.
const DefaultMaxPerRun = 50

// LogHeader is the column order of the import log.
var LogHeader = []string{"ts_utc", "source_id", "saved_file", "sha256", "from", "subject", "received_at"}

// Item statuses recorded as metrics.
const (
	ItemSaved   = "saved"
	ItemSkipped = "skipped"
	ItemFailed  = "failed"
	ItemDryRun  = "dry_run"
)

// Config holds the importer's destinations.
type Config struct {
	// Inbox receives payloads and sidecars.
	Inbox string
	// NameMaxLen bounds the sanitized original filename.
	NameMaxLen int
	// LogPath is the CSV import log. Empty disables it.
	LogPath string
	// SummaryPath receives the run summary. Empty skips it.
	SummaryPath string
}

// RunOptions tune one Run.
type RunOptions struct {
	DryRun bool
	Max    int
}

// Summary describes one Run.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	Query      string    `json:"query,omitempty"`
	Scanned    int       `json:"scanned"`
	Skipped    int       `json:"skipped"`
	Imported   int       `json:"imported"`
	Saved      int       `json:"saved"`
	Failed     int       `json:"failed"`
}

// Importer pulls new items from a Source into the inbox.
type Importer struct {
	cfg     Config
	source  Source
	ledger  Ledger
	log     *audit.Appender
	lock    *ledger.Lock
	metrics *instrumentation.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithLock serializes runs through lock.
func WithLock(lock *ledger.Lock) Option {
	return func(i *Importer) { i.lock = lock }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(i *Importer) { i.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Importer) { i.logger = l }
}

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(i *Importer) { i.now = now }
}

// New creates an Importer.
func New(cfg Config, source Source, ledger Ledger, opts ...Option) *Importer {
	if cfg.NameMaxLen <= 0 {
		cfg.NameMaxLen = inbox.DefaultNameMaxLen
	}
	i := &Importer{
		cfg:    cfg,
		source: source,
		ledger: ledger,
		logger: slog.Default(),
		now:    time.Now,
	}
	if cfg.LogPath != "" {
		i.log = audit.NewAppender(cfg.LogPath, LogHeader)
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run imports up to opts.Max new candidates. A candidate's id is recorded
// only after all of its payloads and sidecars are on disk, so a crash
// leaves it to be retried. Per-candidate failures are logged and counted;
// authentication and listing failures abort the run. Ledger write
// failures do not stop the run but are returned once it completes.
func (i *Importer) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	if opts.Max <= 0 {
		opts.Max = DefaultMaxPerRun
	}
	sum := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: i.now().UTC(),
		DryRun:    opts.DryRun,
	}
	if q, ok := i.source.(Querier); ok {
		sum.Query = q.Query()
	}
	logger := logging.WithRun(i.logger, logging.StageImport, sum.RunID)

	ctx, span := instrumentation.StartStageSpan(ctx, logging.StageImport, sum.RunID, opts.DryRun)
	defer span.End()

	runStatus := instrumentation.StatusSuccess
	defer func() {
		i.metrics.RecordRun(ctx, logging.StageImport, runStatus, i.now().Sub(sum.StartedAt))
	}()
	fail := func(err error) (*Summary, error) {
		runStatus = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		return sum, err
	}

	if i.lock != nil {
		release, err := i.lock.Acquire(ctx)
		if err != nil {
			return fail(fmt.Errorf("failed to acquire importer lock: %w", err))
		}
		defer func() {
			if err := release(); err != nil {
				logger.Warn("failed to release importer lock", logging.Err(err))
			}
		}()
	}

	candidates, err := i.source.List(ctx, opts.Max)
	if err != nil {
		return fail(fmt.Errorf("failed to list candidates: %w", err))
	}
	if len(candidates) > opts.Max {
		candidates = candidates[:opts.Max]
	}
	logger.Info("import run started",
		slog.String("source", i.source.Name()),
		slog.String("query", sum.Query),
		slog.Int("candidates", len(candidates)),
		slog.Bool("dry_run", opts.DryRun))

	var recordErrs []error
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		sum.Scanned++

		if i.ledger.Contains(ctx, c.ID) {
			sum.Skipped++
			i.metrics.RecordItem(ctx, logging.StageImport, ItemSkipped)
			continue
		}
		if opts.DryRun {
			logger.Info("would import", logging.SourceID(c.ID))
			i.metrics.RecordItem(ctx, logging.StageImport, ItemDryRun)
			continue
		}

		msg, err := i.source.Fetch(ctx, c.ID)
		if err != nil {
			if errors.Is(err, ErrAuth) {
				return fail(err)
			}
			sum.Failed++
			i.metrics.RecordItem(ctx, logging.StageImport, ItemFailed)
			logger.Warn("failed to fetch candidate", logging.SourceID(c.ID), logging.Err(err))
			continue
		}

		saved, err := i.save(msg)
		if err != nil {
			sum.Failed++
			i.metrics.RecordItem(ctx, logging.StageImport, ItemFailed)
			logger.Warn("failed to save candidate", logging.SourceID(c.ID), logging.SenderDomain(msg.From), logging.Err(err))
			continue
		}

		if err := i.ledger.Record(ctx, c.ID); err != nil {
			sum.Failed++
			i.metrics.RecordItem(ctx, logging.StageImport, ItemFailed)
			logger.Error("payloads saved but id not recorded", logging.SourceID(c.ID), logging.Err(err))
			recordErrs = append(recordErrs, fmt.Errorf("record %s: %w", c.ID, err))
			continue
		}

		sum.Imported++
		sum.Saved += len(saved)
		i.metrics.RecordItem(ctx, logging.StageImport, ItemSaved)
		logger.Info("candidate imported",
			logging.SourceID(c.ID),
			logging.SenderDomain(msg.From),
			slog.Int("payloads", len(saved)))
	}

	sum.FinishedAt = i.now().UTC()
	if i.cfg.SummaryPath != "" {
		if err := ledger.WriteJSONAtomic(i.cfg.SummaryPath, sum); err != nil {
			logger.Warn("failed to write run summary", logging.Err(err))
		}
	}

	logger.Info("import run finished",
		slog.Int("scanned", sum.Scanned),
		slog.Int("skipped", sum.Skipped),
		slog.Int("imported", sum.Imported),
		slog.Int("saved", sum.Saved),
		slog.Int("failed", sum.Failed))

	if err := errors.Join(recordErrs...); err != nil {
		return fail(err)
	}
	instrumentation.SetSpanSuccess(span)
	return sum, nil
}

// save writes every attachment of msg, payload first, then its sidecar.
// It returns the saved payload names.
func (i *Importer) save(msg *Message) ([]string, error) {
	if len(msg.Attachments) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(i.cfg.Inbox, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create inbox: %w", err)
	}

	received := msg.ReceivedAt
	if received.IsZero() {
		received = i.now()
	}
	importTime := i.now().UTC().Format(inbox.TimeLayout)

	used := make(map[string]bool, len(msg.Attachments))
	saved := make([]string, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		name := i.freeName(inbox.OutputName(received, msg.ID, att.Filename, i.cfg.NameMaxLen), msg.ID, used)
		used[name] = true

		sum := sha256.Sum256(att.Data)
		hash := hex.EncodeToString(sum[:])

		path := filepath.Join(i.cfg.Inbox, name)
		if err := ledger.WriteFileAtomic(path, att.Data, 0o644); err != nil {
			return saved, fmt.Errorf("failed to write %s: %w", name, err)
		}
		md := inbox.Metadata{
			Source:           i.source.Name(),
			SourceID:         msg.ID,
			From:             msg.From,
			Subject:          msg.Subject,
			ReceivedAt:       received.UTC().Format(inbox.TimeLayout),
			OriginalFilename: att.Filename,
			SavedFilename:    name,
			SHA256:           hash,
			ImportTime:       importTime,
		}
		if err := inbox.WriteMetadata(filepath.Join(i.cfg.Inbox, inbox.MetaName(name)), md); err != nil {
			return saved, fmt.Errorf("failed to write sidecar for %s: %w", name, err)
		}
		saved = append(saved, name)

		if i.log != nil {
			row := []string{
				i.now().UTC().Format(time.RFC3339), msg.ID, name, hash,
				audit.Truncate(msg.From, audit.MaxFieldLen),
				audit.Truncate(msg.Subject, audit.MaxFieldLen),
				md.ReceivedAt,
			}
			if err := i.log.Append(row); err != nil {
				i.logger.Warn("failed to append import log", logging.File(name), logging.Err(err))
			}
		}
	}
	return saved, nil
}

// freeName numbers name until it is neither used by an earlier attachment
// of the same candidate nor held in the inbox by another item. A file is
// reused only when its sidecar names the same source id; a payload without
// a readable sidecar is never overwritten.
func (i *Importer) freeName(name, id string, used map[string]bool) string {
	for n := 1; ; n++ {
		candidate := inbox.NumberedName(name, n)
		if used[candidate] {
			continue
		}
		path := filepath.Join(i.cfg.Inbox, candidate)
		if _, err := os.Stat(path); err != nil {
			return candidate
		}
		md, err := inbox.ReadMetadata(filepath.Join(i.cfg.Inbox, inbox.MetaName(candidate)))
		if err == nil && md.SourceID == id {
			return candidate
		}
	}
}
