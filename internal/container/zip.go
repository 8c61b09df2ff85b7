package container

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	yzip "github.com/yeka/zip"
)

// ErrEntryAuth is returned when an encrypted zip entry fails to open or
// authenticate.
var ErrEntryAuth = errors.New("zip entry authentication failed (wrong password or corrupted data)")

// zipWriter writes plain Deflate entries at a chosen level.
type zipWriter struct {
	zw  *zip.Writer
	buf []byte
}

func newZipWriter(w io.Writer, level int) *zipWriter {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	return &zipWriter{zw: zw, buf: make([]byte, copyBufSize)}
}

func (z *zipWriter) add(name string, info fs.FileInfo, r io.Reader) (int64, error) {
	fh, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, fmt.Errorf("zip header for %s: %w", name, err)
	}
	fh.Name = name
	fh.Method = zip.Deflate
	w, err := z.zw.CreateHeader(fh)
	if err != nil {
		return 0, fmt.Errorf("create zip entry %s: %w", name, err)
	}
	n, err := io.CopyBuffer(w, r, z.buf)
	if err != nil {
		return n, fmt.Errorf("write zip entry %s: %w", name, err)
	}
	return n, nil
}

func (z *zipWriter) close() error {
	if err := z.zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

// aesZipWriter writes WinZip AES-256 encrypted entries. The underlying
// writer always uses its own default Deflate level.
type aesZipWriter struct {
	zw       *yzip.Writer
	password string
	buf      []byte
}

func newAESZipWriter(w io.Writer, password string, level int) *aesZipWriter {
	slog.Debug("zip level not applied to encrypted entries", "level", level)
	return &aesZipWriter{
		zw:       yzip.NewWriter(w),
		password: password,
		buf:      make([]byte, copyBufSize),
	}
}

func (z *aesZipWriter) add(name string, _ fs.FileInfo, r io.Reader) (int64, error) {
	w, err := z.zw.Encrypt(name, z.password, yzip.AES256Encryption)
	if err != nil {
		return 0, fmt.Errorf("create encrypted zip entry %s: %w", name, err)
	}
	n, err := io.CopyBuffer(w, r, z.buf)
	if err != nil {
		return n, fmt.Errorf("write encrypted zip entry %s: %w", name, err)
	}
	return n, nil
}

func (z *aesZipWriter) close() error {
	if err := z.zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

// ListZip reads entry names from the zip at path in central-directory
// order. With a password, every encrypted entry is opened and read to the
// end so a wrong password or damaged payload is reported as ErrEntryAuth.
func ListZip(path, password string) ([]string, error) {
	if password == "" {
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, fmt.Errorf("open zip %s: %w", path, err)
		}
		defer zr.Close()
		names := make([]string, 0, len(zr.File))
		for _, f := range zr.File {
			names = append(names, f.Name)
		}
		return names, nil
	}

	zr, err := yzip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", path, err)
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		if f.IsEncrypted() {
			f.SetPassword(password)
			if err := drainEntry(f); err != nil {
				return names, fmt.Errorf("%w: %s: %v", ErrEntryAuth, f.Name, err)
			}
		}
		names = append(names, f.Name)
	}
	return names, nil
}

func drainEntry(f *yzip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}
