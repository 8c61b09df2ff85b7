// Package digest computes content digests of archive files and manages the
// SHA-256 sidecar files written next to them.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// ErrUnknownAlgorithm is returned for digest names that do not map to a
// supported algorithm.
var ErrUnknownAlgorithm = errors.New("unknown digest algorithm")

// bufSize is the read chunk used when streaming a file through a hash.
const bufSize = 64 * 1024

// Algorithm identifies a digest algorithm.
type Algorithm int

const (
	SHA256 Algorithm = iota + 1
	SHA3_256
	BLAKE3
	XXH64
)

var algorithmNames = [...]string{
	SHA256:   "SHA-256",
	SHA3_256: "SHA3-256",
	BLAKE3:   "BLAKE3",
	XXH64:    "XXH64",
}

// Algorithms returns every supported algorithm, SHA-256 first.
func Algorithms() []Algorithm {
	return []Algorithm{SHA256, SHA3_256, BLAKE3, XXH64}
}

// String returns the canonical name used as the key in a Set.
func (a Algorithm) String() string {
	if a > 0 && int(a) < len(algorithmNames) {
		return algorithmNames[a]
	}
	return "unknown"
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case SHA256:
		return sha256.New()
	case SHA3_256:
		return sha3.New256()
	case BLAKE3:
		return blake3.New()
	case XXH64:
		return xxhash.New()
	default:
		return nil
	}
}

// ParseAlgorithm maps a user-supplied name to an Algorithm. Matching is
// case-insensitive and accepts the common spellings of each algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sha256", "sha-256":
		return SHA256, nil
	case "sha3", "sha3-256", "sha3_256":
		return SHA3_256, nil
	case "blake3", "b3":
		return BLAKE3, nil
	case "xxh64", "xxhash", "xxhash64":
		return XXH64, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// ParseAlgorithms resolves a list of names. Unknown names are dropped and
// reported through the returned error; the valid subset is still returned.
// SHA-256 is always part of the result because the sidecar depends on it.
// Duplicates are removed, first occurrence wins.
func ParseAlgorithms(names []string) ([]Algorithm, error) {
	algs := []Algorithm{SHA256}
	seen := map[Algorithm]bool{SHA256: true}
	var errs []error
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		alg, err := ParseAlgorithm(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[alg] {
			continue
		}
		seen[alg] = true
		algs = append(algs, alg)
	}
	return algs, errors.Join(errs...)
}

// Set maps canonical algorithm names to lowercase hex digests.
type Set map[string]string

// SHA256 returns the SHA-256 digest, or "" if the set has none.
func (s Set) SHA256() string {
	return s[SHA256.String()]
}

// Get returns the digest for alg.
func (s Set) Get(alg Algorithm) (string, bool) {
	v, ok := s[alg.String()]
	return v, ok
}

// Clone returns an independent copy of s.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// HashFile streams the file at path through alg and returns the hex digest.
func HashFile(path string, alg Algorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sum, err := HashReader(f, alg)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return sum, nil
}

// HashReader streams r through alg and returns the hex digest.
func HashReader(r io.Reader, alg Algorithm) (string, error) {
	h := alg.newHash()
	if h == nil {
		return "", fmt.Errorf("%w: %d", ErrUnknownAlgorithm, int(alg))
	}
	buf := make([]byte, bufSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File computes every requested digest of the file at path. Each algorithm
// reads the file independently from the start.
func File(path string, algs ...Algorithm) (Set, error) {
	if len(algs) == 0 {
		algs = []Algorithm{SHA256}
	}
	set := make(Set, len(algs))
	for _, alg := range algs {
		sum, err := HashFile(path, alg)
		if err != nil {
			return nil, err
		}
		set[alg.String()] = sum
	}
	return set, nil
}

// Verify recomputes the alg digest of path and compares it with expected,
// ignoring case.
func Verify(path, expected string, alg Algorithm) (bool, error) {
	actual, err := HashFile(path, alg)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, strings.TrimSpace(expected)), nil
}
