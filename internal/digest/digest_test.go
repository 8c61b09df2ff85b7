package digest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestHashFile_KnownVectors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "abc.txt", []byte("abc"))

	tests := []struct {
		alg  Algorithm
		want string
	}{
		{SHA256, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{SHA3_256, "3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532"},
		{BLAKE3, "6437b3ac38465133ffb63b75273a8db548c558465d79db03fd359c6cd5bd9d85"},
	}
	for _, tt := range tests {
		t.Run(tt.alg.String(), func(t *testing.T) {
			got, err := HashFile(path, tt.alg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHashFile_Deterministic(t *testing.T) {
	dir := t.TempDir()
	data := []byte(strings.Repeat("archive-content-", 10000))
	path := writeFile(t, dir, "data.bin", data)

	first, err := HashFile(path, SHA256)
	require.NoError(t, err)
	second, err := HashFile(path, SHA256)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	data[len(data)/2] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0644))
	changed, err := HashFile(path, SHA256)
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestHashFile_Missing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "nope"), SHA256)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
	}{
		{"sha256", SHA256},
		{"SHA-256", SHA256},
		{"Sha3", SHA3_256},
		{"sha3-256", SHA3_256},
		{"BLAKE3", BLAKE3},
		{"xxhash", XXH64},
		{" xxh64 ", XXH64},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseAlgorithm("md5")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestAlgorithms_RoundTripNames(t *testing.T) {
	algs := Algorithms()
	require.NotEmpty(t, algs)
	assert.Equal(t, SHA256, algs[0])
	for _, alg := range algs {
		got, err := ParseAlgorithm(alg.String())
		require.NoError(t, err)
		assert.Equal(t, alg, got)
	}
}

func TestParseAlgorithms_AlwaysIncludesSHA256(t *testing.T) {
	algs, err := ParseAlgorithms([]string{"blake3", "BLAKE3", "crc32", "sha3"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	assert.Contains(t, err.Error(), "crc32")
	assert.Equal(t, []Algorithm{SHA256, BLAKE3, SHA3_256}, algs)

	algs, err = ParseAlgorithms(nil)
	require.NoError(t, err)
	assert.Equal(t, []Algorithm{SHA256}, algs)
}

func TestFile_MultipleAlgorithms(t *testing.T) {
	path := writeFile(t, t.TempDir(), "abc.txt", []byte("abc"))

	set, err := File(path, SHA256, BLAKE3, XXH64)
	require.NoError(t, err)
	assert.Len(t, set, 3)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", set.SHA256())

	b3, ok := set.Get(BLAKE3)
	require.True(t, ok)
	assert.Len(t, b3, 64)

	xx, ok := set.Get(XXH64)
	require.True(t, ok)
	assert.Len(t, xx, 16)
}

func TestVerify_CaseInsensitive(t *testing.T) {
	path := writeFile(t, t.TempDir(), "abc.txt", []byte("abc"))
	upper := strings.ToUpper("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")

	ok, err := Verify(path, upper, SHA256)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(path, strings.Repeat("0", 64), SHA256)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSet_Clone(t *testing.T) {
	s := Set{"SHA-256": "aa"}
	c := s.Clone()
	c["SHA-256"] = "bb"
	assert.Equal(t, "aa", s.SHA256())
	assert.Nil(t, Set(nil).Clone())
}
