package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/teemow/mailroute/internal/classify"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "mailroute.yaml"

// Evaluator providers.
const (
	EvaluatorNone      = "none"
	EvaluatorHeuristic = "heuristic"
	EvaluatorGenAI     = "genai"
)

// Config is the whole pipeline configuration.
type Config struct {
	// Root anchors every relative path below.
	Root string `yaml:"root" validate:"required"`

	Paths      Paths            `yaml:"paths"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Importer   ImporterConfig   `yaml:"importer"`
	Gmail      GmailConfig      `yaml:"gmail"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Router     RouterConfig     `yaml:"router"`
	Watch      WatchConfig      `yaml:"watch"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Paths are the directories shared by the stages.
type Paths struct {
	Inbox      string `yaml:"inbox" validate:"required"`
	Review     string `yaml:"review" validate:"required"`
	Quarantine string `yaml:"quarantine" validate:"required"`
	// State holds the ledger, attempt counters and run summaries.
	State string `yaml:"state" validate:"required"`
	// Logs holds the audit and import CSVs.
	Logs string `yaml:"logs" validate:"required"`
}

// LedgerConfig tunes the processed-id ledger.
type LedgerConfig struct {
	File           string        `yaml:"file" validate:"required"`
	Legacy         []string      `yaml:"legacy" validate:"dive,required"`
	Retries        int           `yaml:"retries" validate:"min=1"`
	RetryBackoff   time.Duration `yaml:"retry_backoff" validate:"min=0"`
	LockTimeout    time.Duration `yaml:"lock_timeout" validate:"gt=0"`
	LockStaleAfter time.Duration `yaml:"lock_stale_after" validate:"min=0"`
}

// ImporterConfig tunes the import stage.
type ImporterConfig struct {
	MaxPerRun  int    `yaml:"max_per_run" validate:"min=1"`
	NameMaxLen int    `yaml:"name_max_len" validate:"min=16"`
	ImportLog  string `yaml:"import_log" validate:"required"`
}

// GmailConfig selects the mailbox and the candidate query.
type GmailConfig struct {
	Account string `yaml:"account" validate:"required"`
	// Query overrides Labels when set.
	Query  string   `yaml:"query"`
	Labels []string `yaml:"labels" validate:"dive,required"`
	// TokenDir holds <account>.token files; defaults to the user config dir.
	TokenDir string `yaml:"token_dir"`
	// Endpoint overrides the API base URL.
	Endpoint string `yaml:"endpoint"`
}

// ClassifierConfig holds rule-sets and the enrichment tier.
type ClassifierConfig struct {
	Rules      classify.Rules          `yaml:"rules" validate:"required,min=1,dive"`
	Heuristics classify.HeuristicRules `yaml:"heuristics"`
	Evaluator  EvaluatorConfig         `yaml:"evaluator"`
	Preview    classify.PreviewOptions `yaml:"preview"`
}

// EvaluatorConfig selects the Evaluator implementation.
type EvaluatorConfig struct {
	Provider string        `yaml:"provider" validate:"oneof=none heuristic genai"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout" validate:"min=0"`
	// APIKey is only read from the environment.
	APIKey string `yaml:"-"`
}

// RouterConfig tunes the route stage.
type RouterConfig struct {
	MaxPerRun    int           `yaml:"max_per_run" validate:"min=0"`
	MaxAttempts  int           `yaml:"max_attempts" validate:"min=1"`
	OrphanGrace  time.Duration `yaml:"orphan_grace" validate:"min=0"`
	AuditLog     string        `yaml:"audit_log" validate:"required"`
	AttemptsFile string        `yaml:"attempts_file" validate:"required"`
}

// WatchConfig tunes the long-running watch mode.
type WatchConfig struct {
	Debounce    time.Duration `yaml:"debounce" validate:"min=0"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// LoggingConfig selects level and format of the root logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the configuration of the original deployment, rooted at
// the current directory.
func Default() *Config {
	return &Config{
		Root: ".",
		Paths: Paths{
			Inbox:      "CASES/_INBOX",
			Review:     "CASES/_REVIEW",
			Quarantine: "CASES/_QUARANTINE",
			State:      "00_INBOX/MAIL_RAW/_STATE",
			Logs:       "00_INBOX/_ROUTER_LOGS",
		},
		Ledger: LedgerConfig{
			File:           "processed_gmail_all.txt",
			Legacy:         []string{"gmail_icloud_processed_ids.txt"},
			Retries:        3,
			RetryBackoff:   500 * time.Millisecond,
			LockTimeout:    30 * time.Second,
			LockStaleAfter: 10 * time.Minute,
		},
		Importer: ImporterConfig{
			MaxPerRun:  50,
			NameMaxLen: 180,
			ImportLog:  "gmail_import_log.csv",
		},
		Gmail: GmailConfig{
			Account: "default",
		},
		Classifier: ClassifierConfig{
			Rules:      classify.DefaultRules(),
			Heuristics: classify.DefaultHeuristicRules(),
			Evaluator: EvaluatorConfig{
				Provider: EvaluatorNone,
				Model:    classify.DefaultGenAIModel,
				Timeout:  classify.DefaultEvaluatorTimeout,
			},
			Preview: classify.DefaultPreviewOptions(),
		},
		Router: RouterConfig{
			MaxAttempts:  5,
			OrphanGrace:  10 * time.Minute,
			AuditLog:     "router_log.csv",
			AttemptsFile: "router_attempts.json",
		},
		Watch: WatchConfig{
			Debounce: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides, resolves relative paths and validates the result. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	cfg.Resolve()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from MAILROUTE_* variables and GEMINI_API_KEY.
func (c *Config) ApplyEnv() {
	c.Root = getEnvOrDefault("MAILROUTE_ROOT", c.Root)
	c.Classifier.Evaluator.Provider = strings.ToLower(getEnvOrDefault("MAILROUTE_EVALUATOR", c.Classifier.Evaluator.Provider))
	c.Classifier.Evaluator.APIKey = getEnvOrDefault("GEMINI_API_KEY", c.Classifier.Evaluator.APIKey)
	c.Gmail.Query = getEnvOrDefault("MAILROUTE_GMAIL_QUERY", c.Gmail.Query)
	if labels := os.Getenv("MAILROUTE_GMAIL_LABELS"); labels != "" {
		c.Gmail.Labels = splitList(labels)
	}
	c.Logging.Level = getEnvOrDefault("MAILROUTE_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvOrDefault("MAILROUTE_LOG_FORMAT", c.Logging.Format)
}

// Resolve anchors relative paths: directories against Root, ledger files
// against Paths.State, CSV logs against Paths.Logs and rule targets
// against Root.
func (c *Config) Resolve() {
	if abs, err := filepath.Abs(c.Root); err == nil {
		c.Root = abs
	}
	c.Paths.Inbox = c.under(c.Root, c.Paths.Inbox)
	c.Paths.Review = c.under(c.Root, c.Paths.Review)
	c.Paths.Quarantine = c.under(c.Root, c.Paths.Quarantine)
	c.Paths.State = c.under(c.Root, c.Paths.State)
	c.Paths.Logs = c.under(c.Root, c.Paths.Logs)

	c.Ledger.File = c.under(c.Paths.State, c.Ledger.File)
	for i, p := range c.Ledger.Legacy {
		c.Ledger.Legacy[i] = c.under(c.Paths.State, p)
	}
	c.Router.AttemptsFile = c.under(c.Paths.State, c.Router.AttemptsFile)
	c.Router.AuditLog = c.under(c.Paths.Logs, c.Router.AuditLog)
	c.Importer.ImportLog = c.under(c.Paths.Logs, c.Importer.ImportLog)

	rules := make(classify.Rules, len(c.Classifier.Rules))
	for i, r := range c.Classifier.Rules {
		r.Target = c.under(c.Root, r.Target)
		rules[i] = r
	}
	c.Classifier.Rules = rules
}

func (c *Config) under(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// RunSummaryPath is where the last run of stage is recorded.
func (c *Config) RunSummaryPath(stage string) string {
	return filepath.Join(c.Paths.State, "last_run_"+stage+".json")
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	seen := make(map[string]bool, len(c.Classifier.Rules))
	for _, r := range c.Classifier.Rules {
		name := strings.ToUpper(r.Name)
		if name == classify.Review {
			return fmt.Errorf("%w: rule-set name %q is reserved", ErrInvalid, r.Name)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate rule-set name %q", ErrInvalid, r.Name)
		}
		seen[name] = true
	}

	if c.Paths.Inbox == c.Paths.Review {
		return fmt.Errorf("%w: inbox and review must differ", ErrInvalid)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
