// Package container writes and reads the archive container formats:
// tar wrapped in gzip, zstd or lz4, and zip with optional AES-256 entry
// encryption.
package container

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedKind = errors.New("unsupported container kind")
	// ErrInvalidLevel is a warning: the default level is used instead.
	ErrInvalidLevel = errors.New("invalid compression level")
)

// Kind identifies a container format.
type Kind int

const (
	TarGz Kind = iota + 1
	TarZst
	Zip
	TarLz4
)

type kindInfo struct {
	name     string
	ext      string
	min, max int
	def      int
	extreme  int // first level that needs AllowExtreme, 0 if none
}

var kinds = [...]kindInfo{
	TarGz:  {name: "tar.gz", ext: ".tar.gz", min: 0, max: 9, def: 6},
	TarZst: {name: "tar.zst", ext: ".tar.zst", min: 1, max: 22, def: 3, extreme: 20},
	Zip:    {name: "zip", ext: ".zip", min: 0, max: 9, def: 6},
	TarLz4: {name: "tar.lz4", ext: ".tar.lz4", min: 0, max: 9, def: 0},
}

// Kinds lists every supported kind in display order.
func Kinds() []Kind {
	return []Kind{TarGz, TarZst, Zip, TarLz4}
}

func (k Kind) valid() bool {
	return k > 0 && int(k) < len(kinds)
}

func (k Kind) String() string {
	if k.valid() {
		return kinds[k].name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Ext returns the file extension including the leading dot.
func (k Kind) Ext() string {
	if k.valid() {
		return kinds[k].ext
	}
	return ""
}

// IsTar reports whether the kind is a compressed tar stream.
func (k Kind) IsTar() bool {
	return k == TarGz || k == TarZst || k == TarLz4
}

// LevelRange returns the accepted compression levels and the default.
func (k Kind) LevelRange() (lo, hi, def int) {
	if !k.valid() {
		return 0, 0, 0
	}
	info := kinds[k]
	return info.min, info.max, info.def
}

// ParseKind maps a kind name or alias to a Kind, case-insensitively.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tar.gz", "gz", "tgz", "gzip":
		return TarGz, nil
	case "tar.zst", "zst", "zstd", "tzst":
		return TarZst, nil
	case "zip":
		return Zip, nil
	case "tar.lz4", "lz4":
		return TarLz4, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedKind, name)
	}
}

// KindFromPath infers the kind from an archive file name. Envelope suffixes
// such as ".age" are not stripped; callers pass the archive path itself.
func KindFromPath(path string) (Kind, error) {
	lower := strings.ToLower(path)
	for _, k := range Kinds() {
		if strings.HasSuffix(lower, k.Ext()) {
			return k, nil
		}
	}
	switch {
	case strings.HasSuffix(lower, ".tgz"):
		return TarGz, nil
	case strings.HasSuffix(lower, ".tzst"):
		return TarZst, nil
	}
	return 0, fmt.Errorf("%w: cannot infer from %q", ErrUnsupportedKind, path)
}

// ResolveLevel returns the level to use for kind. When set is false the
// kind's default is returned. An out-of-range level, or an extreme zstd
// level without allowExtreme, yields the default together with an error
// wrapping ErrInvalidLevel that callers report as a warning.
func ResolveLevel(k Kind, level int, set, allowExtreme bool) (int, error) {
	if !k.valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedKind, int(k))
	}
	info := kinds[k]
	if !set {
		return info.def, nil
	}
	if level < info.min || level > info.max {
		return info.def, fmt.Errorf("%w: %d for %s (valid %d..%d), using default %d",
			ErrInvalidLevel, level, k, info.min, info.max, info.def)
	}
	if info.extreme > 0 && level >= info.extreme && !allowExtreme {
		return info.def, fmt.Errorf("%w: %d for %s requires extreme mode, using default %d",
			ErrInvalidLevel, level, k, info.def)
	}
	return level, nil
}
