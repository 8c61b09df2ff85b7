package container

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// zstdEncoderLevel maps a zstd CLI level onto klauspost's four encoder
// speeds. Every level from 10 up, the extreme range included, lands on
// SpeedBestCompression.
func zstdEncoderLevel(level int) zstd.EncoderLevel {
	el := zstd.EncoderLevelFromZstd(level)
	slog.Debug("zstd encoder level", "requested", level, "effective", el.String())
	return el
}

// tarWriter streams entries into a tar archive wrapped by a compressor.
type tarWriter struct {
	tw   *tar.Writer
	comp io.WriteCloser
	buf  []byte
}

func newCompressor(w io.Writer, k Kind, level int) (io.WriteCloser, error) {
	switch k {
	case TarGz:
		return gzip.NewWriterLevel(w, level)
	case TarZst:
		return zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstdEncoderLevel(level)),
			zstd.WithEncoderConcurrency(1),
		)
	case TarLz4:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(
			lz4.CompressionLevelOption(lz4Levels[level]),
			lz4.ConcurrencyOption(1),
		); err != nil {
			return nil, err
		}
		return zw, nil
	default:
		return nil, fmt.Errorf("%w: %s is not a tar kind", ErrUnsupportedKind, k)
	}
}

func newTarWriter(w io.Writer, k Kind, level int) (*tarWriter, error) {
	comp, err := newCompressor(w, k, level)
	if err != nil {
		return nil, fmt.Errorf("create %s compressor: %w", k, err)
	}
	return &tarWriter{
		tw:   tar.NewWriter(comp),
		comp: comp,
		buf:  make([]byte, copyBufSize),
	}, nil
}

func (t *tarWriter) add(name string, info fs.FileInfo, r io.Reader) (int64, error) {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return 0, fmt.Errorf("tar header for %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Format = tar.FormatPAX
	if err := t.tw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("write tar header %s: %w", name, err)
	}
	// The header fixes the entry size; copy exactly that many bytes.
	n, err := io.CopyBuffer(t.tw, io.LimitReader(r, hdr.Size), t.buf)
	if err != nil {
		return n, fmt.Errorf("write tar entry %s: %w", name, err)
	}
	if n != hdr.Size {
		return n, fmt.Errorf("write tar entry %s: file shrank from %d to %d bytes", name, hdr.Size, n)
	}
	return n, nil
}

func (t *tarWriter) close() error {
	if err := t.tw.Close(); err != nil {
		t.comp.Close()
		return fmt.Errorf("close tar stream: %w", err)
	}
	if err := t.comp.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}
	return nil
}

// newDecompressor returns a reader over the tar stream inside r.
func newDecompressor(r io.Reader, k Kind) (io.ReadCloser, error) {
	switch k {
	case TarGz:
		return gzip.NewReader(r)
	case TarZst:
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case TarLz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("%w: %s is not a tar kind", ErrUnsupportedKind, k)
	}
}

// ListTar reads entry names from a compressed tar stream in archive order.
func ListTar(r io.Reader, k Kind) ([]string, error) {
	dr, err := newDecompressor(r, k)
	if err != nil {
		return nil, fmt.Errorf("open %s stream: %w", k, err)
	}
	defer dr.Close()

	var names []string
	tr := tar.NewReader(dr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return names, fmt.Errorf("read tar entry: %w", err)
		}
		// Drain the body so a corrupt payload surfaces here.
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return names, fmt.Errorf("read tar entry %s: %w", hdr.Name, err)
		}
		names = append(names, hdr.Name)
	}
}
