package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Appender appends rows to a CSV file. Safe for concurrent use within a
// process; rows from separate processes may interleave but are never torn
// because each row is written with a single append.
type Appender struct {
	path   string
	header []string

	mu sync.Mutex
}

// NewAppender returns an Appender for path. The file is created on the
// first Append.
func NewAppender(path string, header []string) *Appender {
	return &Appender{path: path, header: header}
}

// Path returns the CSV file path.
func (a *Appender) Path() string {
	return a.path
}

// Append writes row, preceded by the header if the file is empty.
func (a *Appender) Append(row []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", a.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", a.path, err)
	}

	// Buffer header and row so they hit the file in one write.
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 && len(a.header) > 0 {
		if err := w.Write(a.header); err != nil {
			return err
		}
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append to %s: %w", a.path, err)
	}
	return f.Sync()
}
