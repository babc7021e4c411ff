package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/mailroute/internal/logging"
)

func newTestLedger(t *testing.T, path string, opts ...Option) *Ledger {
	t.Helper()
	sleeper := &fakeSleeper{}
	p := DefaultRetryPolicy()
	p.Sleep = sleeper.Sleep
	base := []Option{WithRetryPolicy(p), WithLogger(logging.Discard())}
	return New(path, append(base, opts...)...)
}

func TestLedger_MissingFileIsEmpty(t *testing.T) {
	l := newTestLedger(t, filepath.Join(t.TempDir(), "processed.txt"))
	ctx := context.Background()

	assert.Equal(t, 0, l.Load(ctx))
	assert.False(t, l.Contains(ctx, "m-001"))
}

func TestLedger_RecordThenContains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "processed.txt")
	l := newTestLedger(t, path)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, "m-002"))
	require.NoError(t, l.Record(ctx, "m-001"))
	require.NoError(t, l.Record(ctx, "m-002"))

	assert.True(t, l.Contains(ctx, "m-001"))
	assert.True(t, l.Contains(ctx, " m-002 "))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "m-001\nm-002\n", string(data))

	// A fresh instance sees the persisted ids.
	reopened := newTestLedger(t, path)
	assert.True(t, reopened.Contains(ctx, "m-001"))
	assert.Equal(t, []string{"m-001", "m-002"}, reopened.IDs(ctx))

	_, err = os.Stat(path + ".lock")
	assert.True(t, os.IsNotExist(err), "lock file should be released")
}

func TestLedger_RecordPreservesExternalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.txt")
	l := newTestLedger(t, path)
	ctx := context.Background()
	l.Load(ctx)

	// Another process records an id after our snapshot was taken.
	require.NoError(t, os.WriteFile(path, []byte("other\n"), 0o644))

	require.NoError(t, l.Record(ctx, "mine"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mine\nother\n", string(data))
	assert.True(t, l.Contains(ctx, "other"))
}

func TestLedger_LegacyIsReadOnlyUnion(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "old_ids.txt")
	require.NoError(t, os.WriteFile(legacy, []byte("old-1\n\n  old-2\n"), 0o644))

	path := filepath.Join(dir, "processed.txt")
	l := newTestLedger(t, path, WithLegacy(legacy))
	ctx := context.Background()

	assert.Equal(t, 2, l.Load(ctx))
	assert.True(t, l.Contains(ctx, "old-2"))

	require.NoError(t, l.Record(ctx, "new-1"))

	primary, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new-1\n", string(primary))

	old, err := os.ReadFile(legacy)
	require.NoError(t, err)
	assert.Equal(t, "old-1\n\n  old-2\n", string(old))
}

func TestLedger_UnreadableFileLoadsEmpty(t *testing.T) {
	// A directory in place of the ledger file fails every read.
	path := filepath.Join(t.TempDir(), "processed.txt")
	require.NoError(t, os.Mkdir(path, 0o755))

	l := newTestLedger(t, path)
	ctx := context.Background()

	assert.Equal(t, 0, l.Load(ctx))
	assert.False(t, l.Contains(ctx, "anything"))

	err := l.Record(ctx, "m-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadFailed)
}

func TestLedger_RecordEmptyID(t *testing.T) {
	l := newTestLedger(t, filepath.Join(t.TempDir(), "processed.txt"))
	assert.Error(t, l.Record(context.Background(), "   "))
}

func TestEncodeDecode(t *testing.T) {
	ids := Decode([]byte("b\r\na\n\n b \nc"))
	assert.Len(t, ids, 3)
	assert.Equal(t, "a\nb\nc\n", string(Encode(ids)))
	assert.Empty(t, Encode(map[string]struct{}{}))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "file.txt")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLedger_StrayTempFileIsIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed.txt")
	require.NoError(t, os.WriteFile(path, []byte("m-001\nm-002\n"), 0o644))
	// Truncated temp file left by a run killed before its rename.
	stray := filepath.Join(dir, ".processed.txt.4242.tmp")
	require.NoError(t, os.WriteFile(stray, []byte("m-001\nm-0"), 0o644))

	l := newTestLedger(t, path)
	ctx := context.Background()
	assert.Equal(t, []string{"m-001", "m-002"}, l.IDs(ctx))
	assert.False(t, l.Contains(ctx, "m-0"))

	require.NoError(t, l.Record(ctx, "m-003"))
	require.NoError(t, l.Record(ctx, "m-002"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "m-001\nm-002\nm-003\n", string(data))
}

func TestLedger_InterruptedWriteKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed.txt")
	l := newTestLedger(t, path)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, "m-002"))
	require.NoError(t, l.Record(ctx, "m-001"))

	// Corrupt the temp file and fail before it is renamed into place.
	renameFile = func(oldpath, _ string) error {
		_ = os.WriteFile(oldpath, []byte("garbage"), 0o644)
		return errors.New("killed before rename")
	}
	err := l.Record(ctx, "m-003")
	renameFile = os.Rename
	require.ErrorIs(t, err, ErrWriteFailed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "m-001\nm-002\n", string(data))

	reopened := newTestLedger(t, path)
	assert.Equal(t, []string{"m-001", "m-002"}, reopened.IDs(ctx))
	assert.False(t, reopened.Contains(ctx, "m-003"))

	require.NoError(t, reopened.Record(ctx, "m-003"))
	require.NoError(t, reopened.Record(ctx, "m-001"))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "m-001\nm-002\nm-003\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, IsTempName(e.Name()), "temp file %s left behind", e.Name())
	}
}

func TestIsTempName(t *testing.T) {
	assert.True(t, IsTempName(".processed.txt.12345.tmp"))
	assert.False(t, IsTempName("report.tmp"))
	assert.False(t, IsTempName(".hidden"))
}
