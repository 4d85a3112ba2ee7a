package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID    string  `json:"id"`
	Share float64 `json:"share"`
}

func TestFileCacheRoundTrip(t *testing.T) {
	fc := NewFileCache[record](filepath.Join(t.TempDir(), "predictions"))
	key := fc.GenerateKey("field7.zip", 1024, "rgb-14-v1")

	_, ok := fc.Get(key)
	assert.False(t, ok)

	require.NoError(t, fc.Set(key, record{ID: "a", Share: 12.5}))
	got, ok := fc.Get(key)
	require.True(t, ok)
	assert.Equal(t, record{ID: "a", Share: 12.5}, got)

	require.NoError(t, fc.Delete(key))
	_, ok = fc.Get(key)
	assert.False(t, ok)
	assert.NoError(t, fc.Delete(key))
}

func TestFileCacheKeysAreStable(t *testing.T) {
	fc := NewFileCache[record](t.TempDir())
	assert.Equal(t, fc.GenerateKey("a", 1), fc.GenerateKey("a", 1))
	assert.NotEqual(t, fc.GenerateKey("a", 1), fc.GenerateKey("a", 2))
}

func TestFileCacheRejectsTamperedEntry(t *testing.T) {
	fc := NewFileCache[record](t.TempDir())
	require.NoError(t, fc.Set("k", record{ID: "a", Share: 1}))

	path := filepath.Join(fc.Dir(), "k.json")
	tampered := `{"data":{"id":"b","share":1},"created_at":"2024-01-01T00:00:00Z","checksum":"0"}`
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o644))

	_, ok := fc.Get("k")
	assert.False(t, ok)
}

func TestFileCacheExpires(t *testing.T) {
	fc := NewFileCache[record](t.TempDir()).WithTTL(time.Nanosecond)
	require.NoError(t, fc.Set("k", record{ID: "a"}))
	time.Sleep(time.Millisecond)
	_, ok := fc.Get("k")
	assert.False(t, ok)
}
