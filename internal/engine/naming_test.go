package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/bale/internal/container"
)

func TestResolveName_Collisions(t *testing.T) {
	dir := t.TempDir()

	want := []string{"backup.tar.zst", "backup.1.tar.zst", "backup.2.tar.zst"}
	for _, expected := range want {
		path, err := ResolveName(dir, "backup", container.TarZst)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, expected), path)
		require.NoError(t, os.WriteFile(path, nil, 0644))
	}
}

func TestResolveName_KindsDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backup.zip"), nil, 0644))

	path, err := ResolveName(dir, "backup", container.TarGz)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "backup.tar.gz"), path)
}

func TestResolveName_Invalid(t *testing.T) {
	dir := t.TempDir()
	for _, base := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := ResolveName(dir, base, container.Zip)
		assert.ErrorIs(t, err, ErrPathInvalid, base)
	}

	_, err := ResolveName(dir, "ok", container.Kind(0))
	assert.ErrorIs(t, err, container.ErrUnsupportedKind)
}

func TestNameFromTemplate(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "20240309_140507", NameFromTemplate("", at))
	assert.Equal(t, "music-2024-03-09", NameFromTemplate("music-%Y-%m-%d", at))
}

func TestPool(t *testing.T) {
	p := NewPool(3)
	assert.Equal(t, 3, p.Size())

	seen := make(chan int, 3)
	p.Run(func(worker int) { seen <- worker })
	close(seen)

	var ids []int
	for id := range seen {
		ids = append(ids, id)
	}
	assert.ElementsMatch(t, []int{0, 1, 2}, ids)

	assert.Positive(t, NewPool(0).Size())
	assert.Positive(t, NewPool(-4).Size())
}
