package relocate_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/privstream/privrec/internal/modules/config"
	"github.com/privstream/privrec/internal/services/relocate"
	"github.com/privstream/privrec/internal/services/stats"
	"github.com/privstream/privrec/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func newRelocator(t *testing.T) (*relocate.Service, *stats.Service, *config.Config) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Label:           "rec",
		OutputDir:       filepath.Join(root, "records"),
		ArchiveDir:      filepath.Join(root, "archive"),
		TwoStageStorage: true,
		IndexPath:       filepath.Join(root, "data", "segments.db"),
		RelocateWorkers: 2,
		ProcessingQueue: 4,
		PersistQueue:    4,
		StatsInterval:   time.Minute,
	}

	lc := fxtest.NewLifecycle(t)
	st := stats.NewService(lc, cfg, types.NewQueues(cfg.ProcessingQueue, cfg.PersistQueue))
	svc, err := relocate.NewService(lc, cfg, st)
	require.NoError(t, err)
	lc.RequireStart()
	t.Cleanup(lc.RequireStop)
	return svc, st, cfg
}

func writeSegment(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("segment-bytes"), 0644))
	return path
}

func waitGone(t *testing.T, path string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 3*time.Second, 10*time.Millisecond)
}

// Files finalized by a previous run are picked up by the startup sweep and
// land in their date/hour partition.
func TestSweepRelocatesExistingSegments(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{
		Label:           "rec",
		OutputDir:       filepath.Join(root, "records"),
		ArchiveDir:      filepath.Join(root, "archive"),
		TwoStageStorage: true,
		IndexPath:       filepath.Join(root, "data", "segments.db"),
		RelocateWorkers: 2,
		ProcessingQueue: 4,
		PersistQueue:    4,
		StatsInterval:   time.Minute,
	}

	streamDir := filepath.Join(cfg.OutputDir, "stream01")
	src := writeSegment(t, streamDir, "rec_stream01_260825_143000.mp4")
	tempSrc := writeSegment(t, streamDir, "temp_rec_stream01_260825_144000.mp4")

	lc := fxtest.NewLifecycle(t)
	st := stats.NewService(lc, cfg, types.NewQueues(4, 4))
	svc, err := relocate.NewService(lc, cfg, st)
	require.NoError(t, err)
	lc.RequireStart()
	t.Cleanup(lc.RequireStop)

	waitGone(t, src)

	dst := filepath.Join(cfg.ArchiveDir, "2026", "08", "25", "14", "rec_stream01_260825_143000.mp4")
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("segment-bytes"), data)

	// still being written, must not move
	_, err = os.Stat(tempSrc)
	assert.NoError(t, err)

	require.Eventually(t, func() bool {
		return st.Snapshot().Pipeline.Relocated == 1
	}, time.Second, 10*time.Millisecond)

	records, err := svc.ListSegments("stream01")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "stream01", records[0].StreamID)
	assert.Equal(t, dst, records[0].DstPath)
	assert.EqualValues(t, len("segment-bytes"), records[0].SizeBytes)
}

// Segments finalized while running are observed through the watcher.
func TestWatcherRelocatesNewSegments(t *testing.T) {
	svc, _, cfg := newRelocator(t)

	// per-stream dir appears first, then the finalized file
	streamDir := filepath.Join(cfg.OutputDir, "stream02")
	require.NoError(t, os.MkdirAll(streamDir, 0755))
	time.Sleep(50 * time.Millisecond) // let the watcher pick up the new dir

	src := writeSegment(t, streamDir, "rec_stream02_260825_150000.mp4")
	waitGone(t, src)

	dst := filepath.Join(cfg.ArchiveDir, "2026", "08", "25", "15", "rec_stream02_260825_150000.mp4")
	_, err := os.Stat(dst)
	assert.NoError(t, err)

	records, err := svc.ListSegments("")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSidecarFollowsVideoWithoutIndexEntry(t *testing.T) {
	svc, st, cfg := newRelocator(t)

	streamDir := filepath.Join(cfg.OutputDir, "stream03")
	require.NoError(t, os.MkdirAll(streamDir, 0755))
	time.Sleep(50 * time.Millisecond)

	video := writeSegment(t, streamDir, "rec_stream03_260825_160000.mp4")
	sidecar := writeSegment(t, streamDir, "rec_stream03_260825_160000.srt")
	waitGone(t, video)
	waitGone(t, sidecar)

	partition := filepath.Join(cfg.ArchiveDir, "2026", "08", "25", "16")
	for _, name := range []string{"rec_stream03_260825_160000.mp4", "rec_stream03_260825_160000.srt"} {
		_, err := os.Stat(filepath.Join(partition, name))
		assert.NoError(t, err)
	}

	// only the video is indexed and counted
	records, err := svc.ListSegments("stream03")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	require.Eventually(t, func() bool {
		return st.Snapshot().Pipeline.Relocated == 1
	}, time.Second, 10*time.Millisecond)
}
