package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bamsammich/bale/internal/container"
	"github.com/bamsammich/bale/internal/digest"
	"github.com/bamsammich/bale/internal/envelope"
	"github.com/bamsammich/bale/internal/event"
	"github.com/bamsammich/bale/internal/filter"
	"github.com/bamsammich/bale/internal/state"
	"github.com/bamsammich/bale/internal/stats"
)

// DefaultKind is used when a job names no container kind.
const DefaultKind = container.TarZst

// EncryptionZipAES is the Encryption value recorded for native zip
// encryption.
const EncryptionZipAES = "zip-aes256"

// Job describes one archive run.
type Job struct {
	Source      string
	Destination string
	// Name is the archive base name before extension and collision suffix.
	// Empty expands DefaultNameFormat at the current time.
	Name string

	Kind         container.Kind // zero means DefaultKind
	Level        int
	LevelSet     bool
	AllowExtreme bool

	Threads    int // enumeration workers; <= 0 means one per CPU
	SortBySize bool
	Filter     *filter.Chain // include/exclude rules; nil keeps every file
	Digests    []string      // algorithm names; SHA-256 is always computed

	// Password enables encryption. Zip encrypts entries natively; tar
	// kinds are wrapped in Envelope after digesting.
	Password      string
	Envelope      envelope.Scheme // SchemeNone means SchemeAEAD
	Cipher        envelope.Cipher
	AgeWorkFactor int
	KeepBackup    bool

	BWLimit   int64  // archive output bytes/sec; 0 is unlimited
	StatePath string // empty means state.DefaultPath()

	Events chan<- event.Event
	Stats  *stats.Collector
}

// Result is the outcome of a successful run.
type Result struct {
	ArchivePath string
	SidecarPath string
	Metadata    state.Metadata
	Stats       stats.Snapshot
	// Warnings are non-fatal problems such as an ignored compression level
	// or an unknown digest name.
	Warnings []error
}

// Run collects, encodes, digests and optionally encrypts one archive, then
// records it in the state store. It blocks until complete.
func Run(ctx context.Context, job Job) (Result, error) {
	var res Result
	warn := func(err error) {
		slog.Warn(err.Error())
		res.Warnings = append(res.Warnings, err)
	}

	srcInfo, err := os.Stat(job.Source)
	if err != nil {
		return res, fmt.Errorf("%w: source %s: %v", ErrPathInvalid, job.Source, err)
	}
	if !srcInfo.IsDir() {
		return res, fmt.Errorf("%w: source %s is not a directory", ErrPathInvalid, job.Source)
	}
	if err := prepareDestination(job.Destination); err != nil {
		return res, err
	}

	kind := job.Kind
	if kind == 0 {
		kind = DefaultKind
	}
	level, err := container.ResolveLevel(kind, job.Level, job.LevelSet, job.AllowExtreme)
	if errors.Is(err, container.ErrInvalidLevel) {
		warn(err)
	} else if err != nil {
		return res, err
	}

	algs, err := digest.ParseAlgorithms(job.Digests)
	if err != nil {
		warn(fmt.Errorf("ignoring digests: %w", err))
	}

	var env envelope.Envelope
	if job.Password != "" && kind.IsTar() {
		scheme := job.Envelope
		if scheme == envelope.SchemeNone {
			scheme = envelope.SchemeAEAD
		}
		if env, err = envelope.New(scheme, job.Cipher, job.AgeWorkFactor); err != nil {
			return res, err
		}
		slog.Warn("tar containers have no built-in encryption; wrapping in envelope", "kind", kind, "envelope", env.Name())
	}

	name := job.Name
	if name == "" {
		name = NameFromTemplate(DefaultNameFormat, time.Now())
	}
	archivePath, err := ResolveName(job.Destination, name, kind)
	if err != nil {
		return res, err
	}

	collector := job.Stats
	if collector == nil {
		collector = stats.NewCollector()
	}

	files, err := Collect(ctx, CollectConfig{
		Root:       job.Source,
		SortBySize: job.SortBySize,
		Pool:       NewPool(job.Threads),
		Filter:     job.Filter,
		Stats:      collector,
		Events:     job.Events,
	})
	if err != nil {
		return res, err
	}

	sources := make([]container.Source, len(files))
	for i, f := range files {
		sources[i] = container.Source{Path: f.Path, Name: f.RelPath, Size: f.Size}
	}
	spec := container.Spec{
		Kind:   kind,
		Level:  level,
		Path:   archivePath,
		Events: job.Events,
		Stats:  collector,
	}
	if kind == container.Zip {
		spec.Password = job.Password
	}
	if job.BWLimit > 0 {
		spec.Limiter = container.NewBWLimiter(job.BWLimit)
	}
	archivePath, names, err := container.Encode(ctx, spec, sources)
	if err != nil {
		return res, fmt.Errorf("encode %s: %w", kind, err)
	}
	res.ArchivePath = archivePath

	set, err := digest.File(archivePath, algs...)
	if err != nil {
		return res, fmt.Errorf("digest: %w", err)
	}
	for _, alg := range algs {
		sum, _ := set.Get(alg)
		event.Emit(job.Events, event.Event{Type: event.DigestComplete, Path: archivePath, Detail: alg.String() + " " + sum})
	}
	if res.SidecarPath, err = digest.WriteSidecar(archivePath, set.SHA256()); err != nil {
		return res, err
	}

	var encryption string
	switch {
	case env != nil:
		if _, err := envelope.EncryptFile(archivePath, job.Password, env, envelope.FileOptions{KeepBackup: job.KeepBackup}); err != nil {
			return res, err
		}
		encryption = env.Name()
	case kind == container.Zip && job.Password != "":
		encryption = EncryptionZipAES
	}
	if encryption != "" {
		event.Emit(job.Events, event.Event{Type: event.EncryptComplete, Path: archivePath, Detail: encryption})
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return res, fmt.Errorf("stat archive: %w", err)
	}
	collector.SetArchiveBytes(info.Size())

	res.Metadata = state.Metadata{
		Name:       filepath.Base(archivePath),
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		Digests:    set,
		Kind:       kind.String(),
		SizeBytes:  info.Size(),
		FileCount:  len(names),
		Encrypted:  encryption != "",
		Encryption: encryption,
		Contents:   names,
	}

	statePath := job.StatePath
	if statePath == "" {
		statePath = state.DefaultPath()
	}
	if err := record(statePath, res.Metadata); err != nil {
		return res, err
	}
	event.Emit(job.Events, event.Event{Type: event.StateSaved, Path: statePath, Detail: res.Metadata.Name})

	res.Stats = collector.Snapshot()
	slog.Info("archive complete",
		"path", archivePath,
		"files", len(names),
		"size", info.Size(),
		"sha256", set.SHA256(),
		"encryption", encryption,
	)
	return res, nil
}

func prepareDestination(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: empty destination", ErrPathInvalid)
	}
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%w: destination %s is not a directory", ErrPathInvalid, dir)
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: create destination %s: %v", ErrPathInvalid, dir, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: destination %s: %v", ErrPathInvalid, dir, err)
	}
}

func record(statePath string, m state.Metadata) error {
	store, err := state.Load(statePath)
	if err != nil {
		return err
	}
	if err := store.Put(m); err != nil {
		return err
	}
	if err := store.Save(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
