// Package tmpfile creates sibling temporary files that are renamed into
// place once complete, and tracks them so an interrupted run can remove
// leftovers.
package tmpfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Suffix marks every temporary file this package creates.
const Suffix = ".bale-tmp"

var global = &registry{}

type registry struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// Register adds a temporary file path to the global registry.
func Register(path string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	if global.paths == nil {
		global.paths = make(map[string]struct{})
	}
	global.paths[path] = struct{}{}
}

// Deregister removes a temporary file path from the global registry.
func Deregister(path string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	delete(global.paths, path)
}

// Pending returns the number of registered paths.
func Pending() int {
	global.mu.Lock()
	defer global.mu.Unlock()
	return len(global.paths)
}

// Cleanup removes all registered temporary files.
func Cleanup() {
	global.mu.Lock()
	paths := make([]string, 0, len(global.paths))
	for p := range global.paths {
		paths = append(paths, p)
	}
	global.paths = nil
	global.mu.Unlock()

	for _, p := range paths {
		_ = os.Remove(p)
	}
}

// Name returns a hidden temporary path next to dst.
func Name(dst string) string {
	dir := filepath.Dir(dst)
	base := filepath.Base(dst)
	return filepath.Join(dir, fmt.Sprintf(".%s.%s%s", base, uuid.New().String()[:8], Suffix))
}

// File is a registered temporary file destined for a final path.
type File struct {
	*os.File
	dst  string
	done bool
}

// Create opens a new exclusive temporary file next to dst.
func Create(dst string, perm os.FileMode) (*File, error) {
	tmpPath := Name(dst)
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return nil, fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}
	Register(tmpPath)
	return &File{File: f, dst: dst}, nil
}

// Commit syncs and closes the file, then renames it over its destination.
func (t *File) Commit() error {
	if t.done {
		return fmt.Errorf("tmp %s already finished", t.Name())
	}
	t.done = true
	tmpPath := t.Name()
	defer Deregister(tmpPath)

	if err := t.Sync(); err != nil {
		t.File.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync tmp %s: %w", tmpPath, err)
	}
	if err := t.File.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, t.dst); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, t.dst, err)
	}
	return nil
}

// Discard closes and removes the file. It is a no-op after Commit, so it is
// safe to defer.
func (t *File) Discard() {
	if t.done {
		return
	}
	t.done = true
	tmpPath := t.Name()
	t.File.Close()
	_ = os.Remove(tmpPath)
	Deregister(tmpPath)
}
