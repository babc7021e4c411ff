package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/mailroute/internal/classify"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mailroute.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"MAILROUTE_ROOT", "MAILROUTE_EVALUATOR", "MAILROUTE_GMAIL_QUERY",
		"MAILROUTE_GMAIL_LABELS", "MAILROUTE_LOG_LEVEL", "MAILROUTE_LOG_FORMAT", "GEMINI_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	t.Setenv("MAILROUTE_ROOT", root)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "CASES", "_INBOX"), cfg.Paths.Inbox)
	assert.Equal(t, filepath.Join(root, "CASES", "_REVIEW"), cfg.Paths.Review)
	assert.Equal(t, filepath.Join(root, "00_INBOX", "MAIL_RAW", "_STATE", "processed_gmail_all.txt"), cfg.Ledger.File)
	assert.Equal(t, []string{filepath.Join(root, "00_INBOX", "MAIL_RAW", "_STATE", "gmail_icloud_processed_ids.txt")}, cfg.Ledger.Legacy)
	assert.Equal(t, filepath.Join(root, "00_INBOX", "_ROUTER_LOGS", "router_log.csv"), cfg.Router.AuditLog)
	assert.Equal(t, 50, cfg.Importer.MaxPerRun)
	assert.Equal(t, 3, cfg.Ledger.Retries)
	assert.Equal(t, 500*time.Millisecond, cfg.Ledger.RetryBackoff)
	assert.Equal(t, EvaluatorNone, cfg.Classifier.Evaluator.Provider)

	require.Len(t, cfg.Classifier.Rules, 3)
	assert.Equal(t, "CAR", cfg.Classifier.Rules[0].Name)
	assert.Equal(t, filepath.Join(root, "CASES", "03_CAR", "_INBOX"), cfg.Classifier.Rules[0].Target)
	assert.Equal(t, filepath.Join(root, "00_INBOX", "MAIL_RAW", "_STATE", "last_run_import.json"), cfg.RunSummaryPath("import"))
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	path := writeConfig(t, `
root: `+root+`
ledger:
  retries: 5
  retry_backoff: 250ms
  lock_timeout: 1m
importer:
  max_per_run: 10
classifier:
  rules:
    - name: FINANCE
      target: out/finance
      match: [inv, faktura]
      exclude: [newsletter]
  evaluator:
    provider: heuristic
router:
  orphan_grace: 2m
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Ledger.Retries)
	assert.Equal(t, 250*time.Millisecond, cfg.Ledger.RetryBackoff)
	assert.Equal(t, time.Minute, cfg.Ledger.LockTimeout)
	assert.Equal(t, 10, cfg.Importer.MaxPerRun)
	assert.Equal(t, 2*time.Minute, cfg.Router.OrphanGrace)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, EvaluatorHeuristic, cfg.Classifier.Evaluator.Provider)
	assert.Equal(t, classify.Rules{{
		Name:    "FINANCE",
		Target:  filepath.Join(root, "out", "finance"),
		Match:   []string{"inv", "faktura"},
		Exclude: []string{"newsletter"},
	}}, cfg.Classifier.Rules)
	// untouched sections keep defaults
	assert.Equal(t, 5, cfg.Router.MaxAttempts)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	t.Setenv("MAILROUTE_ROOT", root)
	t.Setenv("MAILROUTE_EVALUATOR", "GenAI")
	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("MAILROUTE_GMAIL_LABELS", "Klienci, Faktury,,")
	t.Setenv("MAILROUTE_GMAIL_QUERY", "from:x@y.pl has:attachment")
	t.Setenv("MAILROUTE_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, EvaluatorGenAI, cfg.Classifier.Evaluator.Provider)
	assert.Equal(t, "secret", cfg.Classifier.Evaluator.APIKey)
	assert.Equal(t, []string{"Klienci", "Faktury"}, cfg.Gmail.Labels)
	assert.Equal(t, "from:x@y.pl has:attachment", cfg.Gmail.Query)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown field", content: "bogus: 1\n"},
		{name: "reserved rule name", content: "classifier:\n  rules:\n    - {name: review, target: x, match: [a]}\n"},
		{name: "duplicate rule name", content: "classifier:\n  rules:\n    - {name: A, target: x, match: [a]}\n    - {name: a, target: y, match: [b]}\n"},
		{name: "rule without keywords", content: "classifier:\n  rules:\n    - {name: A, target: x, match: []}\n"},
		{name: "empty rules", content: "classifier:\n  rules: []\n"},
		{name: "bad provider", content: "classifier:\n  evaluator:\n    provider: magic\n"},
		{name: "bad log level", content: "logging:\n  level: loud\n"},
		{name: "zero retries", content: "ledger:\n  retries: 0\n"},
		{name: "inbox equals review", content: "paths:\n  inbox: same\n  review: same\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("MAILROUTE_ROOT", t.TempDir())
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			if tt.name != "unknown field" {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
