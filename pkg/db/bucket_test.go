package db_test

import (
	"path/filepath"
	"testing"

	"github.com/privstream/privrec/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func openTestDB(t *testing.T) *db.Client {
	t.Helper()
	client, err := db.Open(filepath.Join(t.TempDir(), "nested", "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPutGetJSON(t *testing.T) {
	client := openTestDB(t)

	bucket, err := client.Bucket("segments")
	require.NoError(t, err)

	want := entry{Name: "a.mp4", Size: 1024}
	require.NoError(t, bucket.PutJSON("stream01/100", want))

	var got entry
	found, err := bucket.GetJSON("stream01/100", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)
}

func TestGetJSONMissingKey(t *testing.T) {
	client := openTestDB(t)

	bucket, err := client.Bucket("segments")
	require.NoError(t, err)

	var got entry
	found, err := bucket.GetJSON("nope", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestForEachAndCount(t *testing.T) {
	client := openTestDB(t)

	bucket, err := client.Bucket("segments")
	require.NoError(t, err)

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, bucket.Put([]byte(key), []byte("v")))
	}

	count, err := bucket.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	var keys []string
	require.NoError(t, bucket.ForEach(func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}
