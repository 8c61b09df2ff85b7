// Package state persists the provenance record of every archive produced:
// a single JSON document mapping archive names to their metadata.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bamsammich/bale/internal/digest"
)

// ErrCorrupt is returned when the state document cannot be trusted.
var ErrCorrupt = errors.New("archive state corrupt")

// Metadata describes one produced archive.
type Metadata struct {
	Name      string
	CreatedAt time.Time
	// Digests always carries SHA-256 for records produced or migrated by
	// this package.
	Digests digest.Set
	Kind    string // container kind, e.g. "tar.zst"

	SizeBytes  int64
	FileCount  int
	Encrypted  bool
	Encryption string // "", "aead:AES-256-GCM", "age", "zip-aes256", ...
	Contents   []string

	migrated bool
}

// Checksum returns the SHA-256 hex digest.
func (m Metadata) Checksum() string {
	return m.Digests.SHA256()
}

// Migrated reports whether the record was upgraded from the single
// checksum layout when it was loaded.
func (m Metadata) Migrated() bool {
	return m.migrated
}

// record is the on-disk layout. checksum and algorithm keep older readers
// working; digests and encryption are additions.
type record struct {
	Name       string     `json:"name"`
	CreatedAt  string     `json:"created_at"`
	Checksum   string     `json:"checksum"`
	Algorithm  string     `json:"algorithm"`
	SizeBytes  int64      `json:"size_bytes"`
	FileCount  int        `json:"file_count"`
	Encrypted  bool       `json:"encrypted"`
	Contents   []string   `json:"contents"`
	Digests    digest.Set `json:"digests,omitempty"`
	Encryption string     `json:"encryption,omitempty"`
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	contents := m.Contents
	if contents == nil {
		contents = []string{}
	}
	return json.Marshal(record{
		Name:       m.Name,
		CreatedAt:  m.CreatedAt.Format(time.RFC3339),
		Checksum:   m.Digests.SHA256(),
		Algorithm:  m.Kind,
		SizeBytes:  m.SizeBytes,
		FileCount:  m.FileCount,
		Encrypted:  m.Encrypted,
		Contents:   contents,
		Digests:    m.Digests,
		Encryption: m.Encryption,
	})
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}

	var created time.Time
	if r.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: record %q: created_at: %v", ErrCorrupt, r.Name, err)
		}
		created = t
	}

	digests, migrated, err := mergeChecksum(r.Digests, r.Checksum)
	if err != nil {
		return fmt.Errorf("record %q: %w", r.Name, err)
	}

	*m = Metadata{
		Name:       r.Name,
		CreatedAt:  created,
		Digests:    digests,
		Kind:       r.Algorithm,
		SizeBytes:  r.SizeBytes,
		FileCount:  r.FileCount,
		Encrypted:  r.Encrypted,
		Encryption: r.Encryption,
		Contents:   r.Contents,
		migrated:   migrated,
	}
	return nil
}

// mergeChecksum folds the legacy checksum field into the digest set. A
// checksum that disagrees with the set's SHA-256 is corruption.
func mergeChecksum(set digest.Set, checksum string) (digest.Set, bool, error) {
	checksum = strings.ToLower(strings.TrimSpace(checksum))
	set = set.Clone()
	if checksum == "" {
		return set, false, nil
	}
	if set == nil {
		set = make(digest.Set, 1)
	}
	key := digest.SHA256.String()
	existing, ok := set[key]
	if !ok {
		set[key] = checksum
		return set, true, nil
	}
	if !strings.EqualFold(existing, checksum) {
		return nil, false, fmt.Errorf("%w: checksum %s disagrees with %s digest %s",
			ErrCorrupt, checksum, key, existing)
	}
	return set, false, nil
}
