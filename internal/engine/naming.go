package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/bamsammich/bale/internal/container"
)

// DefaultNameFormat is the strftime layout used when no archive name is
// given.
const DefaultNameFormat = "%Y%m%d_%H%M%S"

const maxCollisionSuffix = 9999

// ErrNameExhausted is returned when every candidate archive name is taken.
var ErrNameExhausted = errors.New("no free archive name")

// NameFromTemplate expands a strftime layout at t. An empty layout uses
// DefaultNameFormat.
func NameFromTemplate(layout string, t time.Time) string {
	if layout == "" {
		layout = DefaultNameFormat
	}
	return strftime.Format(layout, t)
}

// ValidateName rejects base names that would escape the destination.
func ValidateName(base string) error {
	switch {
	case base == "", base == ".", base == "..":
		return fmt.Errorf("%w: archive name %q", ErrPathInvalid, base)
	case strings.ContainsAny(base, `/\`):
		return fmt.Errorf("%w: archive name %q contains a path separator", ErrPathInvalid, base)
	}
	return nil
}

// ResolveName returns the first free archive path in dir for base and kind:
// base.ext, then base.1.ext through base.9999.ext, then base.copy.ext.
func ResolveName(dir, base string, kind container.Kind) (string, error) {
	if err := ValidateName(base); err != nil {
		return "", err
	}
	ext := kind.Ext()
	if ext == "" {
		return "", fmt.Errorf("%w: %d", container.ErrUnsupportedKind, int(kind))
	}

	candidate := filepath.Join(dir, base+ext)
	free, err := isFree(candidate)
	if err != nil || free {
		return candidate, err
	}
	for n := 1; n <= maxCollisionSuffix; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s.%d%s", base, n, ext))
		free, err := isFree(candidate)
		if err != nil || free {
			return candidate, err
		}
	}
	candidate = filepath.Join(dir, base+".copy"+ext)
	free, err = isFree(candidate)
	if err != nil {
		return "", err
	}
	if !free {
		return "", fmt.Errorf("%w: %s in %s", ErrNameExhausted, base+ext, dir)
	}
	return candidate, nil
}

func isFree(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}
