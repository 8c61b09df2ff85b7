package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/bamsammich/bale/internal/tmpfile"
)

// FileName is the state document's base name.
const FileName = "archives.json"

// Store is the in-memory view of the state document. It is not safe for
// concurrent use, and concurrent processes writing the same file race.
type Store struct {
	path     string
	archives map[string]Metadata
}

type document struct {
	Archives map[string]Metadata `json:"archives"`
}

// DefaultPath returns $XDG_DATA_HOME/bale/archives.json, falling back to
// ~/.local/share.
func DefaultPath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "bale", FileName)
}

// Load reads the state document at path. A missing file yields an empty
// store. Comments and trailing commas are tolerated. Records carrying only
// the legacy checksum are migrated in memory; nothing is written until Save.
func Load(path string) (*Store, error) {
	s := &Store{path: path, archives: make(map[string]Metadata)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read state %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		if errors.Is(err, ErrCorrupt) {
			return nil, fmt.Errorf("load state %s: %w", path, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	var migrated int
	for key, m := range doc.Archives {
		if m.Name == "" {
			m.Name = key
		}
		if m.Name != key {
			slog.Warn("state record name differs from its key; using key", "key", key, "name", m.Name)
			m.Name = key
		}
		if m.migrated {
			migrated++
		}
		s.archives[key] = m
	}
	if migrated > 0 {
		slog.Debug("migrated legacy state records", "path", path, "count", migrated)
	}
	return s, nil
}

// Path returns the document path the store loads from and saves to.
func (s *Store) Path() string {
	return s.path
}

// Save writes the whole document atomically, creating parent directories.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(document{Archives: s.archives}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	data = append(data, '\n')

	f, err := tmpfile.Create(s.path, 0644)
	if err != nil {
		return err
	}
	defer f.Discard()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write state %s: %w", f.Name(), err)
	}
	return f.Commit()
}

// Put inserts or fully replaces the record with m.Name.
func (s *Store) Put(m Metadata) error {
	if m.Name == "" {
		return errors.New("archive metadata has no name")
	}
	m.Digests = m.Digests.Clone()
	m.Contents = append([]string(nil), m.Contents...)
	s.archives[m.Name] = m
	return nil
}

// Get returns the record named name.
func (s *Store) Get(name string) (Metadata, bool) {
	m, ok := s.archives[name]
	return m, ok
}

// List returns all records, newest first; equal timestamps order by name.
func (s *Store) List() []Metadata {
	out := make([]Metadata, 0, len(s.archives))
	for _, m := range s.archives {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.archives)
}
