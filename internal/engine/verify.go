package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bamsammich/bale/internal/container"
	"github.com/bamsammich/bale/internal/digest"
	"github.com/bamsammich/bale/internal/envelope"
	"github.com/bamsammich/bale/internal/event"
	"github.com/bamsammich/bale/internal/state"
	"github.com/bamsammich/bale/internal/tmpfile"
)

// Reference names used in Check.Reference.
const (
	RefState    = "state"
	RefSidecar  = "sidecar"
	RefContents = "contents"
)

// VerifyConfig describes one verification.
type VerifyConfig struct {
	Archive   string
	Password  string // needed to check envelope-encrypted archives
	StatePath string // empty means state.DefaultPath()
	// CheckContents also lists the archive and compares it with the
	// recorded contents.
	CheckContents bool
	Events        chan<- event.Event
}

// Check is the outcome of comparing the archive against one reference.
type Check struct {
	Reference string // RefState, RefSidecar or RefContents
	Algorithm string // digest name for digest checks
	Status    digest.Status
	Expected  string
	Actual    string
	Reason    string // why there was nothing to compare, or what differed
}

// VerifyResult collects every check run against an archive.
type VerifyResult struct {
	Archive  string
	Scheme   envelope.Scheme
	Digests  digest.Set // of the plaintext container
	Record   *state.Metadata
	Checks   []Check
	Warnings []error
}

// OK reports whether no check found a mismatch.
func (r VerifyResult) OK() bool {
	for _, c := range r.Checks {
		if !c.Status.OK() {
			return false
		}
	}
	return true
}

// Matched reports whether at least one check positively matched.
func (r VerifyResult) Matched() bool {
	for _, c := range r.Checks {
		if c.Status == digest.StatusMatch {
			return true
		}
	}
	return false
}

// Verify recomputes the digests of an archive and compares them with its
// state record and sidecar. Envelope-encrypted archives are decrypted to a
// temporary file first when a password is given; without one, every check
// reports StatusNoReference with reason "encrypted".
func Verify(ctx context.Context, cfg VerifyConfig) (VerifyResult, error) {
	res := VerifyResult{Archive: cfg.Archive}

	info, err := os.Stat(cfg.Archive)
	if err != nil {
		return res, fmt.Errorf("%w: archive %s: %v", ErrPathInvalid, cfg.Archive, err)
	}
	if !info.Mode().IsRegular() {
		return res, fmt.Errorf("%w: archive %s is not a regular file", ErrPathInvalid, cfg.Archive)
	}
	event.Emit(cfg.Events, event.Event{Type: event.VerifyStarted, Path: cfg.Archive, Size: info.Size()})

	statePath := cfg.StatePath
	if statePath == "" {
		statePath = state.DefaultPath()
	}
	store, err := state.Load(statePath)
	if err != nil {
		return res, err
	}
	if m, ok := store.Get(filepath.Base(cfg.Archive)); ok {
		res.Record = &m
	}

	res.Scheme, err = envelope.DetectFile(cfg.Archive)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", cfg.Archive, err)
	}

	plaintext := cfg.Archive
	if res.Scheme != envelope.SchemeNone {
		if cfg.Password == "" {
			res.Checks = append(res.Checks,
				Check{Reference: RefState, Status: digest.StatusNoReference, Reason: "encrypted"},
				Check{Reference: RefSidecar, Status: digest.StatusNoReference, Reason: "encrypted"},
			)
			emitChecks(cfg.Events, cfg.Archive, res.Checks)
			return res, nil
		}
		decrypted, cleanup, err := decryptToTemp(cfg.Archive, cfg.Password)
		if err != nil {
			return res, err
		}
		defer cleanup()
		plaintext = decrypted
	}

	algs := []digest.Algorithm{digest.SHA256}
	if res.Record != nil {
		names := make([]string, 0, len(res.Record.Digests))
		for name := range res.Record.Digests {
			names = append(names, name)
		}
		slices.Sort(names)
		var perr error
		algs, perr = digest.ParseAlgorithms(names)
		if perr != nil {
			res.Warnings = append(res.Warnings, fmt.Errorf("record digests: %w", perr))
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.Digests, err = digest.File(plaintext, algs...)
	if err != nil {
		return res, err
	}

	res.Checks = append(res.Checks, stateChecks(res.Record, res.Digests, algs)...)
	res.Checks = append(res.Checks, sidecarCheck(cfg.Archive, res.Digests.SHA256()))

	if cfg.CheckContents && res.Record != nil {
		c, err := contentsCheck(ctx, cfg.Archive, plaintext, cfg.Password, res.Record)
		if err != nil {
			return res, err
		}
		res.Checks = append(res.Checks, c)
	}

	emitChecks(cfg.Events, cfg.Archive, res.Checks)
	return res, nil
}

func stateChecks(rec *state.Metadata, actual digest.Set, algs []digest.Algorithm) []Check {
	if rec == nil {
		return []Check{{Reference: RefState, Status: digest.StatusNoReference, Reason: "no record"}}
	}
	checks := make([]Check, 0, len(algs))
	for _, alg := range algs {
		want, ok := rec.Digests.Get(alg)
		if !ok {
			continue
		}
		got, _ := actual.Get(alg)
		c := Check{Reference: RefState, Algorithm: alg.String(), Expected: want, Actual: got, Status: digest.StatusMatch}
		if !equalHex(want, got) {
			c.Status = digest.StatusMismatch
		}
		checks = append(checks, c)
	}
	return checks
}

func sidecarCheck(archive, actual string) Check {
	c := Check{Reference: RefSidecar, Algorithm: digest.SHA256.String(), Actual: actual}
	want, _, err := digest.ReadSidecar(archive)
	switch {
	case errors.Is(err, os.ErrNotExist):
		c.Status = digest.StatusNoReference
		c.Reason = "no sidecar"
	case err != nil:
		c.Status = digest.StatusNoReference
		c.Reason = err.Error()
	case equalHex(want, actual):
		c.Status = digest.StatusMatch
		c.Expected = want
	default:
		c.Status = digest.StatusMismatch
		c.Expected = want
	}
	return c
}

func contentsCheck(ctx context.Context, archive, plaintext, password string, rec *state.Metadata) (Check, error) {
	c := Check{Reference: RefContents}
	kind, err := kindOf(archive, rec)
	if err != nil {
		c.Status = digest.StatusNoReference
		c.Reason = err.Error()
		return c, nil
	}
	names, err := listPlain(ctx, plaintext, kind, password)
	if err != nil {
		return c, err
	}
	missing, extra := CompareContents(rec.Contents, names)
	c.Expected = fmt.Sprintf("%d entries", len(rec.Contents))
	c.Actual = fmt.Sprintf("%d entries", len(names))
	if len(missing) == 0 && len(extra) == 0 {
		c.Status = digest.StatusMatch
		return c, nil
	}
	c.Status = digest.StatusMismatch
	c.Reason = fmt.Sprintf("%d missing, %d unexpected", len(missing), len(extra))
	return c, nil
}

func kindOf(archive string, rec *state.Metadata) (container.Kind, error) {
	if rec != nil && rec.Kind != "" {
		return container.ParseKind(rec.Kind)
	}
	return container.KindFromPath(archive)
}

func equalHex(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

func emitChecks(ch chan<- event.Event, archive string, checks []Check) {
	for _, c := range checks {
		typ := event.VerifyOK
		var err error
		if !c.Status.OK() {
			typ = event.VerifyFailed
			err = digest.ErrChecksumMismatch
		}
		event.Emit(ch, event.Event{Type: typ, Path: archive, Detail: c.Reference, Error: err})
	}
}

func decryptToTemp(archive, password string) (string, func(), error) {
	tmp, err := tmpfile.Create(filepath.Join(os.TempDir(), "bale-verify-"+filepath.Base(archive)), 0600)
	if err != nil {
		return "", nil, err
	}
	bw := bufio.NewWriterSize(tmp, 256*1024)
	if _, err := envelope.DecryptTo(bw, archive, password); err != nil {
		tmp.Discard()
		return "", nil, err
	}
	if err := bw.Flush(); err != nil {
		tmp.Discard()
		return "", nil, fmt.Errorf("flush %s: %w", tmp.Name(), err)
	}
	return tmp.Name(), tmp.Discard, nil
}

// ListContents returns the entry names of the archive at path, decrypting
// an envelope with password first when present.
func ListContents(ctx context.Context, path, password string) ([]string, error) {
	kind, err := container.KindFromPath(path)
	if err != nil {
		return nil, err
	}
	scheme, err := envelope.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if scheme == envelope.SchemeNone {
		return listPlain(ctx, path, kind, password)
	}
	if password == "" {
		return nil, fmt.Errorf("%s is encrypted (%s): password required", path, scheme)
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := envelope.DecryptTo(pw, path, password)
		pw.CloseWithError(err)
	}()
	names, err := container.ListTar(pr, kind)
	pr.CloseWithError(io.ErrClosedPipe)
	return names, err
}

func listPlain(ctx context.Context, path string, kind container.Kind, password string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return container.List(path, kind, password)
}

// CompareContents returns the names in want but not in got, and the names
// in got but not in want. Order is ignored.
func CompareContents(want, got []string) (missing, extra []string) {
	have := make(map[string]int, len(got))
	for _, n := range got {
		have[n]++
	}
	for _, n := range want {
		if have[n] > 0 {
			have[n]--
			continue
		}
		missing = append(missing, n)
	}
	for _, n := range got {
		if have[n] > 0 {
			have[n]--
			extra = append(extra, n)
		}
	}
	return missing, extra
}
