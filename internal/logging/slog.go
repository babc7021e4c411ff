package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Common log attribute keys for consistent naming across the pipeline.
const (
	KeyOperation = "operation"
	KeyStage     = "stage"
	KeyRunID     = "run_id"
	KeySourceID  = "source_id"
	KeyFile      = "file"
	KeyDecision  = "decision"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyDomain    = "sender_domain"
)

// Stage names used as the value of KeyStage.
const (
	StageImport = "import"
	StageRoute  = "route"
	StageWatch  = "watch"
	StageServe  = "serve"
)

// Formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New builds a slog.Logger writing to w with the given level and format.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", FormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q, must be one of: text, json", format)
	}
}

// ParseLevel maps debug|info|warn|error to a slog.Level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// WithStage returns a logger with the stage attribute set.
func WithStage(logger *slog.Logger, stage string) *slog.Logger {
	return logger.With(slog.String(KeyStage, stage))
}

// WithRun returns a logger tagged with the stage and run id of a batch run.
func WithRun(logger *slog.Logger, stage, runID string) *slog.Logger {
	return logger.With(slog.String(KeyStage, stage), slog.String(KeyRunID, runID))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// SourceID returns a slog attribute for the external item id.
func SourceID(id string) slog.Attr {
	return slog.String(KeySourceID, id)
}

// File returns a slog attribute for a payload or metadata file name.
func File(name string) slog.Attr {
	return slog.String(KeyFile, name)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Decision returns a slog attribute for a routing decision.
func Decision(decision string) slog.Attr {
	return slog.String(KeyDecision, decision)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
//
//	logger.Info("moved", logging.Err(err)) // safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// ExtractDomain returns the domain part of an email address, tolerating
// display-name forms like "Jane <jane@example.com>".
func ExtractDomain(address string) string {
	address = strings.TrimSpace(address)
	if i := strings.LastIndex(address, "<"); i >= 0 {
		address = strings.TrimSuffix(address[i+1:], ">")
	}
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

// SenderDomain returns a slog attribute carrying only the domain of an origin
// address. Full addresses belong in the audit log, not in operational logs.
func SenderDomain(address string) slog.Attr {
	return slog.String(KeyDomain, ExtractDomain(address))
}
