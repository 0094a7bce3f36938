package file_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/privstream/privrec/internal/modules/config"
	"github.com/privstream/privrec/internal/services/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*file.Service, string) {
	t.Helper()
	root := t.TempDir()
	svc := file.NewService(&config.Config{ArchiveDir: root})

	partition := filepath.Join(root, "2026", "08", "25", "14")
	require.NoError(t, os.MkdirAll(partition, 0755))
	for _, name := range []string{
		"rec_stream01_260825_143000.mp4",
		"rec_stream01_260825_143000.srt",
		"stray.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(partition, name), []byte("x"), 0644))
	}
	return svc, root
}

func TestListTreeRoot(t *testing.T) {
	svc, _ := newService(t)

	entries, err := svc.ListTree("")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2026", entries[0].Name)
	assert.True(t, entries[0].IsDir)
}

func TestListSegmentFilesFiltersForeign(t *testing.T) {
	svc, _ := newService(t)

	entries, err := svc.ListSegmentFiles("2026/08/25/14")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	names := []string{entries[0].Name, entries[1].Name}
	assert.Contains(t, names, "rec_stream01_260825_143000.mp4")
	assert.Contains(t, names, "rec_stream01_260825_143000.srt")
	for _, e := range entries {
		assert.Equal(t, filepath.Join("2026", "08", "25", "14", e.Name), e.Path)
	}
}

func TestPathTraversalDenied(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.ListTree("../../etc")
	assert.ErrorIs(t, err, file.ErrAccessDenied)
}

func TestMissingPath(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.ListTree("2030/01")
	assert.Error(t, err)
}
