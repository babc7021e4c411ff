package inbox

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/teemow/mailroute/internal/ledger"
)

// MetaSuffix is appended to a payload name to form its sidecar name.
const MetaSuffix = ".meta.json"

// TimeLayout is the timestamp format used in sidecars.
const TimeLayout = time.RFC3339

// Metadata is the sidecar written next to every imported payload.
type Metadata struct {
	Source           string `json:"source,omitempty"`
	SourceID         string `json:"source_id"`
	From             string `json:"from"`
	Subject          string `json:"subject"`
	ReceivedAt       string `json:"received_at"`
	OriginalFilename string `json:"original_filename"`
	SavedFilename    string `json:"saved_filename"`
	SHA256           string `json:"sha256"`
	ImportTime       string `json:"import_time"`
}

// MetaName returns the sidecar name for a payload name.
func MetaName(payload string) string {
	return payload + MetaSuffix
}

// IsMetaName reports whether name is a sidecar name.
func IsMetaName(name string) bool {
	return strings.HasSuffix(name, MetaSuffix) && len(name) > len(MetaSuffix)
}

// PayloadName derives the payload name from a sidecar name.
func PayloadName(meta string) string {
	return strings.TrimSuffix(meta, MetaSuffix)
}

// ReadMetadata parses the sidecar at path. A malformed file yields the zero
// Metadata together with the parse error, so callers can fall back to
// filename-only handling.
func ReadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("malformed metadata %s: %w", path, err)
	}
	return m, nil
}

// WriteMetadata writes m as indented JSON, atomically.
func WriteMetadata(path string, m Metadata) error {
	return ledger.WriteJSONAtomic(path, m)
}
