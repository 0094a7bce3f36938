package segment_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/privstream/privrec/internal/modules/config"
	"github.com/privstream/privrec/internal/services/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func newTestStore(t *testing.T, timecodes bool) (*segment.Store, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		Label:          "rec",
		OutputDir:      t.TempDir(),
		SegmentExt:     "mp4",
		WriteTimecodes: timecodes,
		FlushInterval:  time.Second,
	}
	return segment.NewStore(fxtest.NewLifecycle(t), cfg), cfg
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestOpenCreatesTempFile(t *testing.T) {
	store, cfg := newTestStore(t, false)

	start := time.Date(2026, 8, 25, 14, 30, 0, 0, time.Local)
	seg, err := store.Open("stream01", start)
	require.NoError(t, err)

	names := listDir(t, filepath.Join(cfg.OutputDir, "stream01"))
	require.Len(t, names, 1)
	assert.Equal(t, "temp_rec_stream01_260825_143000.mp4", names[0])

	current, ok := store.Current("stream01")
	require.True(t, ok)
	assert.Same(t, seg, current)
}

func TestFinalizeRenamesAtomically(t *testing.T) {
	store, cfg := newTestStore(t, false)

	seg, err := store.Open("stream01", time.Date(2026, 8, 25, 14, 30, 0, 0, time.Local))
	require.NoError(t, err)

	payload := []byte("frame-bytes")
	require.NoError(t, seg.Write(payload, time.Now()))

	finalPath, err := store.Finalize(seg)
	require.NoError(t, err)
	assert.Equal(t, "rec_stream01_260825_143000.mp4", filepath.Base(finalPath))

	names := listDir(t, filepath.Join(cfg.OutputDir, "stream01"))
	require.Len(t, names, 1)
	assert.False(t, strings.HasPrefix(names[0], segment.TempPrefix))

	data, err := os.ReadFile(finalPath)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	_, ok := store.Current("stream01")
	assert.False(t, ok)
}

// Double finalize must leave exactly one file and report the same path twice.
func TestFinalizeIdempotent(t *testing.T) {
	store, cfg := newTestStore(t, false)

	seg, err := store.Open("stream01", time.Now())
	require.NoError(t, err)
	require.NoError(t, seg.Write([]byte("x"), time.Now()))

	first, err := store.Finalize(seg)
	require.NoError(t, err)
	second, err := store.Finalize(seg)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Len(t, listDir(t, filepath.Join(cfg.OutputDir, "stream01")), 1)
}

func TestWriteAfterFinalizeFails(t *testing.T) {
	store, _ := newTestStore(t, false)

	seg, err := store.Open("stream01", time.Now())
	require.NoError(t, err)
	_, err = store.Finalize(seg)
	require.NoError(t, err)

	assert.Error(t, seg.Write([]byte("late"), time.Now()))
	assert.True(t, seg.Finalized())
}

func TestTimecodeSidecar(t *testing.T) {
	store, cfg := newTestStore(t, true)

	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.Local)
	seg, err := store.Open("stream01", start)
	require.NoError(t, err)

	require.NoError(t, seg.Write([]byte("a"), start.Add(40*time.Millisecond)))
	require.NoError(t, seg.Write([]byte("b"), start.Add(80*time.Millisecond)))

	finalPath, err := store.Finalize(seg)
	require.NoError(t, err)

	srtPath := strings.TrimSuffix(finalPath, ".mp4") + ".srt"
	data, err := os.ReadFile(srtPath)
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "1\n00:00:00,000 --> 00:00:00,040\n")
	assert.Contains(t, text, "2\n00:00:00,040 --> 00:00:00,080\n")

	names := listDir(t, filepath.Join(cfg.OutputDir, "stream01"))
	assert.Len(t, names, 2)
	for _, name := range names {
		assert.False(t, strings.HasPrefix(name, segment.TempPrefix))
	}
}

func TestAbandonLeavesTempName(t *testing.T) {
	store, cfg := newTestStore(t, false)

	seg, err := store.Open("stream01", time.Now())
	require.NoError(t, err)
	require.NoError(t, seg.Write([]byte("partial"), time.Now()))

	store.Abandon(seg)

	names := listDir(t, filepath.Join(cfg.OutputDir, "stream01"))
	require.Len(t, names, 1)
	assert.True(t, strings.HasPrefix(names[0], segment.TempPrefix))

	_, ok := store.Current("stream01")
	assert.False(t, ok)
}

func TestFinalizeAll(t *testing.T) {
	store, cfg := newTestStore(t, false)

	for _, id := range []string{"stream01", "stream02"} {
		seg, err := store.Open(id, time.Now())
		require.NoError(t, err)
		require.NoError(t, seg.Write([]byte("x"), time.Now()))
	}

	store.FinalizeAll()

	for _, id := range []string{"stream01", "stream02"} {
		names := listDir(t, filepath.Join(cfg.OutputDir, id))
		require.Len(t, names, 1)
		assert.False(t, strings.HasPrefix(names[0], segment.TempPrefix))
		_, ok := store.Current(id)
		assert.False(t, ok)
	}
}
