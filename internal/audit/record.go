package audit

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"
)

// MaxFieldLen caps free-text fields (origin address, subject), in runes.
const MaxFieldLen = 200

// Header is the fixed column order of the routing audit log.
var Header = []string{
	"ts_utc", "decision", "status", "file", "meta",
	"from", "subject", "risk", "category", "urgency", "quality",
}

// Record is one routing outcome.
type Record struct {
	Time     time.Time
	Decision string
	Status   string
	File     string
	Meta     string
	From     string
	Subject  string
	Risk     string
	Category string
	Urgency  string
	Quality  string

	// Destination is mirrored to slog only; it is not a CSV column.
	Destination string
}

// Row renders the record in Header order.
func (r Record) Row() []string {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return []string{
		ts.UTC().Format(time.RFC3339),
		r.Decision,
		r.Status,
		r.File,
		r.Meta,
		Truncate(r.From, MaxFieldLen),
		Truncate(r.Subject, MaxFieldLen),
		r.Risk,
		r.Category,
		r.Urgency,
		r.Quality,
	}
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Log is the routing audit log.
type Log struct {
	csv    *Appender
	logger *slog.Logger
}

// NewLog returns a Log appending to the CSV file at path. A nil logger
// disables the slog mirror.
func NewLog(path string, logger *slog.Logger) *Log {
	return &Log{csv: NewAppender(path, Header), logger: logger}
}

// Path returns the CSV file path.
func (l *Log) Path() string {
	return l.csv.Path()
}

// Write appends r to the CSV file and mirrors it to slog.
func (l *Log) Write(ctx context.Context, r Record) error {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	if l.logger != nil {
		l.logger.LogAttrs(ctx, slog.LevelInfo, "routing_decision",
			slog.String("decision", r.Decision),
			slog.String("status", r.Status),
			slog.String("file", r.File),
			slog.String("meta", r.Meta),
			slog.String("destination", r.Destination),
			slog.String("risk", r.Risk),
			slog.String("category", r.Category),
			slog.String("urgency", r.Urgency),
			slog.String("quality", r.Quality),
		)
	}
	return l.csv.Append(r.Row())
}
