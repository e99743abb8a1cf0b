package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDedupeMissingFile(t *testing.T) {
	d, err := LoadDedupe(filepath.Join(t.TempDir(), "seen.txt"), testLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, d.Len())
}

func TestDedupePersistsEveryBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.txt")
	d, err := LoadDedupe(path, testLogger())
	require.NoError(t, err)

	for i := 0; i < defaultPersistBatch-1; i++ {
		d.Add(fmt.Sprintf("key-%02d", i))
	}
	assert.NoFileExists(t, path, "set is not persisted until a full batch accumulates")

	d.Add("key-final")
	assert.FileExists(t, path)

	reloaded, err := LoadDedupe(path, testLogger())
	require.NoError(t, err)
	assert.Equal(t, defaultPersistBatch, reloaded.Len())
	assert.True(t, reloaded.Contains("key-final"))
}

func TestDedupeAddIsIdempotent(t *testing.T) {
	d, err := LoadDedupe(filepath.Join(t.TempDir(), "seen.txt"), testLogger())
	require.NoError(t, err)

	d.Add("same")
	d.Add("same")
	d.Add("same")
	assert.Equal(t, 1, d.Len())
}

func TestDedupeFlushAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.txt")
	d, err := LoadDedupe(path, testLogger())
	require.NoError(t, err)

	d.Add("b")
	d.Add("a")
	require.NoError(t, d.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data), "persisted form is sorted, one key per line")

	reloaded, err := LoadDedupe(path, testLogger())
	require.NoError(t, err)
	assert.True(t, reloaded.Contains("a"))
	assert.True(t, reloaded.Contains("b"))
}

func TestDedupeCompact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.txt")
	d, err := LoadDedupe(path, testLogger())
	require.NoError(t, err)

	d.Add("keep")
	d.Add("gone1")
	d.Add("gone2")

	require.NoError(t, d.Compact([]string{"keep", "never-seen"}))

	assert.Equal(t, 1, d.Len())
	assert.True(t, d.Contains("keep"))
	assert.False(t, d.Contains("never-seen"), "compaction never adds keys")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep\n", string(data), "compaction persists immediately")
}
