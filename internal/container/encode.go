package container

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"golang.org/x/time/rate"

	"github.com/bamsammich/bale/internal/event"
	"github.com/bamsammich/bale/internal/stats"
	"github.com/bamsammich/bale/internal/tmpfile"
)

const (
	copyBufSize  = 256 * 1024
	outputBufLen = 1 << 20
)

// Source is one file to place in the archive.
type Source struct {
	Path string // absolute or working-directory-relative path on disk
	Name string // entry name inside the archive, slash-separated
	Size int64
}

// Spec describes one archive to write.
type Spec struct {
	Kind     Kind
	Level    int    // already resolved through ResolveLevel
	Path     string // final archive path; must not exist
	Password string // zip only; ignored for tar kinds

	Events  chan<- event.Event
	Stats   *stats.Collector
	Limiter *rate.Limiter
}

// entryWriter is the contract shared by every container kind. Entries are
// added one at a time, then close flushes the trailer. add returns the
// number of payload bytes consumed from r.
type entryWriter interface {
	add(name string, info fs.FileInfo, r io.Reader) (int64, error)
	close() error
}

func newEntryWriter(w io.Writer, spec Spec) (entryWriter, error) {
	switch {
	case spec.Kind.IsTar():
		return newTarWriter(w, spec.Kind, spec.Level)
	case spec.Kind == Zip && spec.Password != "":
		return newAESZipWriter(w, spec.Password, spec.Level), nil
	case spec.Kind == Zip:
		return newZipWriter(w, spec.Level), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, spec.Kind)
	}
}

// Encode writes files, in the order given, into a new archive at spec.Path
// and returns the path and the entry names written. The archive is built in
// a temporary sibling and renamed into place only when complete.
func Encode(ctx context.Context, spec Spec, files []Source) (string, []string, error) {
	if !spec.Kind.valid() {
		return "", nil, fmt.Errorf("%w: %d", ErrUnsupportedKind, int(spec.Kind))
	}
	if _, err := os.Lstat(spec.Path); err == nil {
		return "", nil, fmt.Errorf("archive %s: %w", spec.Path, fs.ErrExist)
	}
	if spec.Kind.IsTar() && spec.Password != "" {
		slog.Debug("tar container ignores password; the envelope encrypts it", "kind", spec.Kind)
	}

	out, err := tmpfile.Create(spec.Path, 0644)
	if err != nil {
		return "", nil, err
	}
	defer out.Discard()

	bw := bufio.NewWriterSize(newRateLimitedWriter(ctx, out, spec.Limiter), outputBufLen)
	ew, err := newEntryWriter(bw, spec)
	if err != nil {
		return "", nil, err
	}

	names := make([]string, 0, len(files))
	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		n, err := addFile(ew, src)
		if err != nil {
			return "", nil, err
		}
		names = append(names, src.Name)
		spec.Stats.AddFilesArchived(1)
		spec.Stats.AddBytesArchived(n)
		event.Emit(spec.Events, event.Event{Type: event.FileArchived, Path: src.Name, Size: n})
	}

	if err := ew.close(); err != nil {
		return "", nil, err
	}
	if err := bw.Flush(); err != nil {
		return "", nil, fmt.Errorf("flush %s: %w", spec.Path, err)
	}
	if err := out.Commit(); err != nil {
		return "", nil, err
	}

	if info, err := os.Stat(spec.Path); err == nil {
		spec.Stats.SetArchiveBytes(info.Size())
		event.Emit(spec.Events, event.Event{
			Type:   event.EncodeComplete,
			Path:   spec.Path,
			Size:   info.Size(),
			Total:  int64(len(names)),
			Detail: spec.Kind.String(),
		})
	}
	slog.Debug("archive written", "path", spec.Path, "kind", spec.Kind, "level", spec.Level, "entries", len(names))
	return spec.Path, names, nil
}

func addFile(ew entryWriter, src Source) (int64, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", src.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", src.Path, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", src.Path)
	}
	return ew.add(src.Name, info, f)
}

// List returns the entry names of the archive at path in archive order. For
// zip archives a password also authenticates every encrypted entry. Tar
// archives must be plaintext; use ListTar on a decrypted stream otherwise.
func List(path string, k Kind, password string) ([]string, error) {
	switch {
	case k == Zip:
		return ListZip(path, password)
	case k.IsTar():
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		return ListTar(bufio.NewReaderSize(f, copyBufSize), k)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKind, int(k))
	}
}
