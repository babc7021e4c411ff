package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestLog_HeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "router_log.csv")
	ctx := context.Background()

	log := NewLog(path, nil)
	require.NoError(t, log.Write(ctx, Record{Decision: "FINANCE", Status: "MOVED", File: "a.pdf"}))

	// A second writer on the same file must not repeat the header.
	again := NewLog(path, nil)
	require.NoError(t, again.Write(ctx, Record{Decision: "REVIEW", Status: "COLLISION_TO_REVIEW", File: "b.pdf"}))

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "MOVED", rows[1][2])
	assert.Equal(t, "COLLISION_TO_REVIEW", rows[2][2])
}

func TestRecord_Row(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	r := Record{
		Time:     ts,
		Decision: "FINANCE",
		Status:   "MOVED",
		File:     "20240315__m001__inv.pdf",
		Meta:     "20240315__m001__inv.pdf.meta.json",
		From:     strings.Repeat("a", 250),
		Subject:  strings.Repeat("ż", 250),
		Risk:     "low",
		Category: "administrative",
		Urgency:  "normal",
		Quality:  "clear",
	}

	row := r.Row()
	require.Len(t, row, len(Header))
	assert.Equal(t, "2024-03-15T10:00:00Z", row[0])
	assert.Len(t, row[5], MaxFieldLen)
	assert.Equal(t, MaxFieldLen, len([]rune(row[6])))
	assert.Equal(t, "clear", row[10])
}

func TestLog_QuotesEmbeddedSeparators(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router_log.csv")
	log := NewLog(path, nil)
	subject := "Re: \"offer\", kitchen\nsecond line"
	require.NoError(t, log.Write(context.Background(), Record{Subject: subject}))

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, subject, rows[1][6])
}

func TestLog_MirrorsToSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	log := NewLog(filepath.Join(t.TempDir(), "router_log.csv"), logger)

	require.NoError(t, log.Write(context.Background(), Record{Decision: "CAR", Status: "DRY_RUN", Destination: "/cases/car"}))

	out := buf.String()
	assert.Contains(t, out, "routing_decision")
	assert.Contains(t, out, "status=DRY_RUN")
	assert.Contains(t, out, "destination=/cases/car")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "żó", Truncate("żółw", 2))
}
