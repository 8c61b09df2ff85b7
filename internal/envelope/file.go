package envelope

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bamsammich/bale/internal/tmpfile"
)

// BackupExt is appended to the plaintext original while it is replaced.
const BackupExt = ".bak"

// FileOptions control in-place encryption.
type FileOptions struct {
	// KeepBackup leaves the plaintext original at <path>.bak.
	KeepBackup bool
}

// EncryptFile replaces the file at path with its encrypted form. The
// ciphertext is written to a temporary sibling first; the original is moved
// to <path>.bak, the ciphertext renamed into place, and the backup removed
// unless opts.KeepBackup is set. The returned path is the encrypted file.
func EncryptFile(path, password string, env Envelope, opts FileOptions) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	tmp, err := tmpfile.Create(path, info.Mode().Perm())
	if err != nil {
		return "", err
	}
	defer tmp.Discard()

	bw := bufio.NewWriterSize(tmp, 256*1024)
	if err := env.Seal(bw, bufio.NewReaderSize(src, 256*1024), password); err != nil {
		return "", fmt.Errorf("encrypt %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("flush %s: %w", tmp.Name(), err)
	}
	src.Close()

	backup := path + BackupExt
	if err := os.Rename(path, backup); err != nil {
		return "", fmt.Errorf("backup %s: %w", path, err)
	}
	if err := tmp.Commit(); err != nil {
		if rerr := os.Rename(backup, path); rerr != nil {
			slog.Error("restoring original after failed encryption", "path", path, "error", rerr)
		}
		return "", err
	}

	if !opts.KeepBackup {
		if err := os.Remove(backup); err != nil {
			slog.Warn("removing plaintext backup", "path", backup, "error", err)
		}
	}
	slog.Debug("encrypted archive", "path", path, "envelope", env.Name(), "kept_backup", opts.KeepBackup)
	return path, nil
}

// Opener returns the envelope able to open a file of the given scheme with
// default parameters.
func Opener(s Scheme) (Envelope, error) {
	switch s {
	case SchemeAEAD:
		return AEADEnvelope{}, nil
	case SchemeAge:
		return AgeEnvelope{}, nil
	default:
		return nil, ErrNotEncrypted
	}
}

// DecryptTo detects the envelope of the file at path and writes its
// plaintext to w.
func DecryptTo(w io.Writer, path, password string) (Scheme, error) {
	f, err := os.Open(path)
	if err != nil {
		return SchemeNone, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scheme, err := Detect(f)
	if err != nil {
		return SchemeNone, fmt.Errorf("read %s: %w", path, err)
	}
	env, err := Opener(scheme)
	if err != nil {
		return scheme, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return scheme, fmt.Errorf("seek %s: %w", path, err)
	}
	if err := env.Open(w, bufio.NewReaderSize(f, 256*1024), password); err != nil {
		return scheme, err
	}
	return scheme, nil
}

// DecryptFile replaces the encrypted file at path with its plaintext and
// returns the path. On failure the encrypted file is left untouched.
func DecryptFile(path, password string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	tmp, err := tmpfile.Create(path, info.Mode().Perm())
	if err != nil {
		return "", err
	}
	defer tmp.Discard()

	bw := bufio.NewWriterSize(tmp, 256*1024)
	scheme, err := DecryptTo(bw, path, password)
	if err != nil {
		return "", err
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("flush %s: %w", tmp.Name(), err)
	}
	if err := tmp.Commit(); err != nil {
		return "", err
	}
	slog.Debug("decrypted archive", "path", path, "envelope", scheme)
	return path, nil
}
