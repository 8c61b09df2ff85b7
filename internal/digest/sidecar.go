package digest

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SidecarExt is appended to an archive path to name its checksum file.
const SidecarExt = ".sha256"

// ErrChecksumMismatch marks a verification that found a different digest.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Status is the outcome of comparing an archive against a reference digest.
type Status int

const (
	// StatusNoReference means there was nothing to compare against.
	StatusNoReference Status = iota
	StatusMatch
	StatusMismatch
)

func (s Status) String() string {
	switch s {
	case StatusMatch:
		return "match"
	case StatusMismatch:
		return "mismatch"
	default:
		return "no reference"
	}
}

// OK reports whether the status is not a failure. A missing reference is
// not a failure.
func (s Status) OK() bool {
	return s != StatusMismatch
}

// SidecarPath returns the checksum file path for archivePath.
func SidecarPath(archivePath string) string {
	return archivePath + SidecarExt
}

// WriteSidecar writes "<hex>  <archive-file-name>\n" next to the archive and
// returns the sidecar path.
func WriteSidecar(archivePath, sha256Hex string) (string, error) {
	path := SidecarPath(archivePath)
	line := fmt.Sprintf("%s  %s\n", strings.ToLower(sha256Hex), filepath.Base(archivePath))
	if err := os.WriteFile(path, []byte(line), 0644); err != nil {
		return "", fmt.Errorf("write sidecar %s: %w", path, err)
	}
	return path, nil
}

// ReadSidecar returns the digest and file name recorded in the sidecar of
// archivePath. A missing sidecar yields an error satisfying os.ErrNotExist.
func ReadSidecar(archivePath string) (sum, name string, err error) {
	path := SidecarPath(archivePath)
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", "", fmt.Errorf("read sidecar %s: %w", path, err)
		}
		return "", "", fmt.Errorf("read sidecar %s: empty file", path)
	}
	line := sc.Text()
	sum, name, found := strings.Cut(line, "  ")
	if !found || sum == "" {
		return "", "", fmt.Errorf("read sidecar %s: malformed line %q", path, line)
	}
	return sum, name, nil
}

// VerifySidecar checks archivePath against its sidecar. No sidecar is a
// StatusNoReference result, not an error.
func VerifySidecar(archivePath string) (Status, error) {
	sum, _, err := ReadSidecar(archivePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StatusNoReference, nil
		}
		return StatusNoReference, err
	}
	ok, err := Verify(archivePath, sum, SHA256)
	if err != nil {
		return StatusNoReference, err
	}
	if !ok {
		return StatusMismatch, nil
	}
	return StatusMatch, nil
}
