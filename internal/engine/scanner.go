package engine

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bamsammich/bale/internal/event"
	"github.com/bamsammich/bale/internal/filter"
	"github.com/bamsammich/bale/internal/stats"
)

// FileEntry is one regular file found under the source root.
type FileEntry struct {
	Path    string // path on disk
	RelPath string // slash-separated, relative to the root
	Size    int64
}

// SkipError reports an entry the scanner could not read.
type SkipError struct {
	Path string
	Err  error
}

func (e *SkipError) Error() string { return fmt.Sprintf("skip %s: %v", e.Path, e.Err) }
func (e *SkipError) Unwrap() error { return e.Err }

// ScannerConfig controls scanner behavior.
type ScannerConfig struct {
	Root   string
	Pool   *Pool
	Filter *filter.Chain // nil keeps everything
}

// Scanner traverses a directory tree in parallel and emits regular files.
// Symlinks are neither followed nor emitted.
type Scanner struct {
	cfg     ScannerConfig
	entries chan FileEntry
	errs    chan error
}

// NewScanner creates a scanner with the given config.
func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.Pool == nil {
		cfg.Pool = NewPool(0)
	}
	return &Scanner{
		cfg:     cfg,
		entries: make(chan FileEntry, cfg.Pool.Size()*4),
		errs:    make(chan error, cfg.Pool.Size()*4),
	}
}

// Scan starts the scanner and returns channels for entries and skipped
// paths. The caller must consume from both channels until they close.
func (s *Scanner) Scan(ctx context.Context) (<-chan FileEntry, <-chan error) {
	go func() {
		defer close(s.entries)
		defer close(s.errs)
		s.scanTree(ctx)
	}()

	return s.entries, s.errs
}

func (s *Scanner) scanTree(ctx context.Context) {
	workQueue := make(chan string, s.cfg.Pool.Size()*2)
	var outstanding sync.WaitGroup // directories queued but not yet processed

	outstanding.Add(1)
	workQueue <- s.cfg.Root

	// Close the queue once every queued directory is processed so workers
	// exit their range loop.
	go func() {
		outstanding.Wait()
		close(workQueue)
	}()

	s.cfg.Pool.Run(func(int) {
		for dirPath := range workQueue {
			s.scanDir(ctx, dirPath, workQueue, &outstanding)
			outstanding.Done()
		}
	})
}

func (s *Scanner) scanDir(ctx context.Context, dirPath string, workQueue chan<- string, outstanding *sync.WaitGroup) {
	if ctx.Err() != nil {
		return
	}
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		s.sendErr(&SkipError{Path: s.rel(dirPath), Err: err})
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		entryPath := filepath.Join(dirPath, entry.Name())
		relPath := s.rel(entryPath)

		switch typ := entry.Type(); {
		case typ.IsDir():
			if !s.keep(relPath, true, 0) {
				continue
			}
			outstanding.Add(1)
			// Never block a worker on a full queue: every worker could be
			// pushing at once.
			select {
			case workQueue <- entryPath:
			default:
				go func() { workQueue <- entryPath }()
			}

		case typ.IsRegular():
			info, err := entry.Info()
			if err != nil {
				s.sendErr(&SkipError{Path: relPath, Err: err})
				continue
			}
			if !s.keep(relPath, false, info.Size()) {
				continue
			}
			s.entries <- FileEntry{Path: entryPath, RelPath: relPath, Size: info.Size()}

		default:
			// symlinks, devices, sockets, pipes
		}
	}
}

func (s *Scanner) keep(relPath string, isDir bool, size int64) bool {
	if s.cfg.Filter.Empty() {
		return true
	}
	d := s.cfg.Filter.Decide(relPath, isDir, size)
	if !d.Include {
		slog.Debug("excluded", "path", relPath, "rule", d.Reason)
	}
	return d.Include
}

func (s *Scanner) rel(path string) string {
	rel, err := filepath.Rel(s.cfg.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (s *Scanner) sendErr(err error) {
	s.errs <- err
}

// CollectConfig describes one collection pass.
type CollectConfig struct {
	Root       string
	SortBySize bool
	Pool       *Pool
	Filter     *filter.Chain
	Stats      *stats.Collector
	Events     chan<- event.Event
}

// Collect enumerates every regular file under cfg.Root that cfg.Filter
// keeps. Entries are ordered by relative path, then, with SortBySize,
// stable-sorted largest first. Unreadable entries are skipped and logged.
func Collect(ctx context.Context, cfg CollectConfig) ([]FileEntry, error) {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: source %s: %v", ErrPathInvalid, cfg.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: source %s is not a directory", ErrPathInvalid, cfg.Root)
	}

	event.Emit(cfg.Events, event.Event{Type: event.ScanStarted, Path: cfg.Root})

	scanner := NewScanner(ScannerConfig{Root: cfg.Root, Pool: cfg.Pool, Filter: cfg.Filter})
	entries, errs := scanner.Scan(ctx)

	var files []FileEntry
	var totalSize int64
	for entries != nil || errs != nil {
		select {
		case e, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			files = append(files, e)
			totalSize += e.Size
			cfg.Stats.AddFilesScanned(1)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Debug("skipping unreadable entry", "error", err)
			cfg.Stats.AddFilesSkipped(1)
			skipped := event.Event{Type: event.FileSkipped, Error: err}
			if se, ok := err.(*SkipError); ok {
				skipped.Path = se.Path
			}
			event.Emit(cfg.Events, skipped)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	SortEntries(files, cfg.SortBySize)
	cfg.Stats.SetTotals(int64(len(files)), totalSize)
	event.Emit(cfg.Events, event.Event{
		Type:      event.ScanComplete,
		Path:      cfg.Root,
		Total:     int64(len(files)),
		TotalSize: totalSize,
	})
	return files, nil
}

// SortEntries orders entries by relative path and then, if bySize, by
// descending size keeping path order among equal sizes.
func SortEntries(files []FileEntry, bySize bool) {
	slices.SortFunc(files, func(a, b FileEntry) int {
		return cmp.Compare(a.RelPath, b.RelPath)
	})
	if bySize {
		slices.SortStableFunc(files, func(a, b FileEntry) int {
			return cmp.Compare(b.Size, a.Size)
		})
	}
}
