package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/teemow/mailroute/internal/audit"
	"github.com/teemow/mailroute/internal/classify"
	"github.com/teemow/mailroute/internal/config"
	"github.com/teemow/mailroute/internal/gmail"
	"github.com/teemow/mailroute/internal/google"
	"github.com/teemow/mailroute/internal/importer"
	"github.com/teemow/mailroute/internal/instrumentation"
	"github.com/teemow/mailroute/internal/ledger"
	"github.com/teemow/mailroute/internal/logging"
	"github.com/teemow/mailroute/internal/router"
)

// globalOptions holds the persistent flags of the root command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

var globals globalOptions

// app bundles what every command needs: configuration, root logger,
// instrumentation and the shared ledger.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *instrumentation.Provider
	ledger   *ledger.Ledger
}

// newApp loads the configuration and wires the ambient stack. Logs always
// go to stderr so that stdout stays free for the MCP stdio transport.
func newApp(ctx context.Context, stage string) (*app, error) {
	cfg, err := config.Load(configPath(globals.configPath))
	if err != nil {
		return nil, err
	}
	if globals.logLevel != "" {
		cfg.Logging.Level = globals.logLevel
	}
	if globals.logFormat != "" {
		cfg.Logging.Format = globals.logFormat
	}

	base, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(base)
	logger := logging.WithStage(base, stage)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instrumentation configuration: %w", err)
	}
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	adapter := logging.NewSlogAdapter(logger)
	l := ledger.New(cfg.Ledger.File,
		ledger.WithLegacy(cfg.Ledger.Legacy...),
		ledger.WithRetryPolicy(ledger.RetryPolicy{
			Attempts: cfg.Ledger.Retries,
			Backoff:  cfg.Ledger.RetryBackoff,
		}),
		ledger.WithLock(newLock(cfg, filepath.Base(cfg.Ledger.File)+".lock", adapter)),
		ledger.WithLogger(adapter),
		ledger.WithMetrics(provider.Metrics()),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		ledger:   l,
	}, nil
}

// configPath picks the flag, then MAILROUTE_CONFIG, then ./mailroute.yaml
// if present. Empty means built-in defaults.
func configPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("MAILROUTE_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat(config.DefaultFile); err == nil {
		return config.DefaultFile
	}
	return ""
}

func newLock(cfg *config.Config, name string, logger logging.Logger) *ledger.Lock {
	return ledger.NewLock(filepath.Join(cfg.Paths.State, name),
		ledger.WithTimeout(cfg.Ledger.LockTimeout),
		ledger.WithStaleAfter(cfg.Ledger.LockStaleAfter),
		ledger.WithLockLogger(logger),
	)
}

func (a *app) metrics() *instrumentation.Metrics {
	return a.provider.Metrics()
}

// close pushes batch metrics for stage (when a Pushgateway is configured)
// and shuts the provider down.
func (a *app) close(ctx context.Context, stage string) {
	if stage != "" {
		if err := a.provider.Push(ctx, stage); err != nil {
			a.logger.Warn("failed to push metrics", logging.Err(err))
		}
	}
	if err := a.provider.Shutdown(ctx); err != nil {
		a.logger.Warn("error during instrumentation shutdown", logging.Err(err))
	}
}

// newEvaluator maps the configured provider to an Evaluator. A remote
// evaluator that cannot be created degrades to the heuristic one.
func (a *app) newEvaluator(ctx context.Context) classify.Evaluator {
	ev := a.cfg.Classifier.Evaluator
	heuristic := classify.NewHeuristicEvaluator(a.cfg.Classifier.Heuristics)

	switch ev.Provider {
	case config.EvaluatorHeuristic:
		return heuristic
	case config.EvaluatorGenAI:
		remote, err := classify.NewGenAIEvaluator(ctx, ev.APIKey, ev.Model)
		if err != nil {
			a.logger.Warn("remote evaluator unavailable, using heuristic evaluator", logging.Err(err))
			return heuristic
		}
		return remote
	default:
		return nil
	}
}

func (a *app) newClassifier(ctx context.Context) *classify.Classifier {
	opts := []classify.Option{
		classify.WithFallback(classify.NewHeuristicEvaluator(a.cfg.Classifier.Heuristics)),
		classify.WithPreviewOptions(a.cfg.Classifier.Preview),
		classify.WithMetrics(a.metrics()),
		classify.WithLogger(a.logger),
	}
	if a.cfg.Classifier.Evaluator.Timeout > 0 {
		opts = append(opts, classify.WithEvaluatorTimeout(a.cfg.Classifier.Evaluator.Timeout))
	}
	if ev := a.newEvaluator(ctx); ev != nil {
		opts = append(opts, classify.WithEvaluator(ev))
	}
	return classify.New(a.cfg.Classifier.Rules, opts...)
}

func (a *app) newRouter(ctx context.Context) *router.Router {
	cfg := a.cfg
	return router.New(router.Config{
		Inbox:        cfg.Paths.Inbox,
		Review:       cfg.Paths.Review,
		Quarantine:   cfg.Paths.Quarantine,
		MaxAttempts:  cfg.Router.MaxAttempts,
		OrphanGrace:  cfg.Router.OrphanGrace,
		AttemptsFile: cfg.Router.AttemptsFile,
		SummaryPath:  cfg.RunSummaryPath(logging.StageRoute),
	},
		a.newClassifier(ctx),
		audit.NewLog(cfg.Router.AuditLog, a.logger),
		router.WithLock(newLock(cfg, "router.lock", logging.NewSlogAdapter(a.logger))),
		router.WithMetrics(a.metrics()),
		router.WithLogger(a.logger),
	)
}

// sourceOverrides are per-invocation changes to the Gmail configuration.
type sourceOverrides struct {
	account string
	query   string
	labels  []string
}

func (a *app) newImporter(ctx context.Context, o sourceOverrides) (*importer.Importer, error) {
	cfg := a.cfg
	account := cfg.Gmail.Account
	if o.account != "" {
		account = o.account
	}
	if err := google.ValidateAccountName(account); err != nil {
		return nil, err
	}
	gcfg := gmail.Config{
		Query:    cfg.Gmail.Query,
		Labels:   cfg.Gmail.Labels,
		Endpoint: cfg.Gmail.Endpoint,
	}
	if o.query != "" {
		gcfg.Query = o.query
	}
	if len(o.labels) > 0 {
		gcfg.Labels = o.labels
	}

	src, err := gmail.NewForAccount(ctx, google.NewTokenStore(cfg.Gmail.TokenDir), account, gcfg,
		gmail.WithMetrics(a.metrics()),
		gmail.WithLogger(a.logger))
	if err != nil {
		if errors.Is(err, importer.ErrAuth) {
			return nil, fmt.Errorf("%w (token file: %s)", err, google.NewTokenStore(cfg.Gmail.TokenDir).Path(account))
		}
		return nil, err
	}

	return importer.New(importer.Config{
		Inbox:       cfg.Paths.Inbox,
		NameMaxLen:  cfg.Importer.NameMaxLen,
		LogPath:     cfg.Importer.ImportLog,
		SummaryPath: cfg.RunSummaryPath(logging.StageImport),
	},
		src,
		a.ledger,
		importer.WithLock(newLock(cfg, "import.lock", logging.NewSlogAdapter(a.logger))),
		importer.WithMetrics(a.metrics()),
		importer.WithLogger(a.logger),
	), nil
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace and dropping empty entries.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
