package tmpfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	dst := filepath.Join("/data", "out", "backup.tar.zst")
	name := Name(dst)
	assert.Equal(t, filepath.Dir(dst), filepath.Dir(name))
	assert.True(t, strings.HasPrefix(filepath.Base(name), ".backup.tar.zst."))
	assert.True(t, strings.HasSuffix(name, Suffix))
	assert.NotEqual(t, name, Name(dst))
}

func TestCreateCommit(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0644))

	f, err := Create(dst, 0644)
	require.NoError(t, err)
	defer f.Discard()
	assert.Equal(t, 1, Pending())

	_, err = f.WriteString("new")
	require.NoError(t, err)
	require.NoError(t, f.Commit())
	assert.Equal(t, 0, Pending())

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Error(t, f.Commit())
}

func TestDiscard(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.bin")

	f, err := Create(dst, 0644)
	require.NoError(t, err)
	tmpPath := f.Name()
	f.Discard()
	f.Discard()

	_, err = os.Stat(tmpPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, Pending())
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	f, err := Create(filepath.Join(dir, "a"), 0644)
	require.NoError(t, err)
	tmpPath := f.Name()
	f.File.Close()

	Cleanup()
	_, err = os.Stat(tmpPath)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, Pending())
}
