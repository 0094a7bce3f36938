package relocate_test

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/privstream/privrec/internal/services/relocate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSegmentName(t *testing.T) {
	rec, err := relocate.ParseSegmentName("rec_stream01_260825_143000.mp4")
	require.NoError(t, err)

	assert.Equal(t, "rec", rec.Label)
	assert.Equal(t, "stream01", rec.StreamID)
	assert.Equal(t, "mp4", rec.Ext)
	assert.Equal(t, time.Date(2026, 8, 25, 14, 30, 0, 0, time.Local), rec.StartTime)
}

func TestParseSegmentNameSidecar(t *testing.T) {
	rec, err := relocate.ParseSegmentName("rec_stream01_260825_143000.srt")
	require.NoError(t, err)
	assert.Equal(t, "srt", rec.Ext)
}

func TestParseSegmentNameUnderscoredStreamID(t *testing.T) {
	rec, err := relocate.ParseSegmentName("rec_front_door_260825_143000.mp4")
	require.NoError(t, err)
	assert.Equal(t, "front_door", rec.StreamID)
}

func TestParseSegmentNameRejectsForeignFiles(t *testing.T) {
	cases := []string{
		"README.md",
		"rec_stream01.mp4",
		"rec_stream01_260825.mp4",
		"rec_stream01_260825_143000.avi",
		"rec_stream01_261340_143000.mp4", // month 13
	}
	for _, base := range cases {
		_, err := relocate.ParseSegmentName(base)
		assert.Error(t, err, base)
	}
}

func TestPartitionAndIndexKey(t *testing.T) {
	rec, err := relocate.ParseSegmentName("rec_stream01_260805_091500.mp4")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("2026", "08", "05", "09"), rec.Partition())

	start := time.Date(2026, 8, 5, 9, 15, 0, 0, time.Local)
	assert.Equal(t, "stream01/"+strconv.FormatInt(start.Unix(), 10), rec.IndexKey())
}
