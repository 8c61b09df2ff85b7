package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/bale/internal/envelope"
	"github.com/bamsammich/bale/internal/state"
)

// testEnv isolates config, state and password lookup from the host.
func testEnv(t *testing.T) (src, dst string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv(passwordEnv, "")

	src = filepath.Join(t.TempDir(), "src")
	for rel, data := range map[string]string{
		"notes.txt":      "hello",
		"photos/a.jpg":   strings.Repeat("a", 4096),
		"photos/b/c.png": strings.Repeat("c", 512),
	} {
		path := filepath.Join(src, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	}
	return src, filepath.Join(t.TempDir(), "out")
}

func execute(t *testing.T, args ...string) (string, int) {
	t.Helper()
	cmd := newRootCmd(&globalFlags{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"-q"}, args...))

	err := cmd.Execute()
	if err == nil {
		return out.String(), 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return out.String(), exitErr.code
	}
	return out.String() + err.Error(), 2
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func TestBackupListShowVerify(t *testing.T) {
	src, dst := testEnv(t)

	out, code := execute(t, "backup", src, dst, "--name", "music", "--kind", "tar.gz", "--hash", "blake3")
	require.Equal(t, 0, code, out)
	archive := lastLine(out)
	assert.Equal(t, filepath.Join(dst, "music.tar.gz"), archive)
	assert.FileExists(t, archive+".sha256")

	out, code = execute(t, "list")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "music.tar.gz")
	assert.Contains(t, out, "tar.gz")

	out, code = execute(t, "show", "music.tar.gz", "--limit", "1", "--check", archive)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "files:      3")
	assert.Contains(t, out, "photos/a.jpg")
	assert.Contains(t, out, "... and 2 more")
	assert.Contains(t, out, "check SHA-256   match")
	assert.Contains(t, out, "check BLAKE3    match")

	out, code = execute(t, "verify", archive, "--contents")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, archive+": OK")

	// Tamper with the archive.
	f, err := os.OpenFile(archive, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.WriteString("x")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, code = execute(t, "verify", archive)
	assert.Equal(t, 1, code, out)
	assert.Contains(t, out, "FAILED")

	_, code = execute(t, "show", "music.tar.gz", "--check", archive)
	assert.Equal(t, 1, code)
}

func TestBackupEncryptedAndDecrypt(t *testing.T) {
	src, dst := testEnv(t)
	pwFile := filepath.Join(t.TempDir(), "pw")
	require.NoError(t, os.WriteFile(pwFile, []byte("s3cret\n"), 0o600))

	out, code := execute(t, "backup", src, dst, "--name", "vault",
		"--password-file", pwFile, "--envelope", "age", "--age-work-factor", "10")
	require.Equal(t, 0, code, out)
	archive := lastLine(out)

	scheme, err := envelope.DetectFile(archive)
	require.NoError(t, err)
	assert.Equal(t, envelope.SchemeAge, scheme)

	// No password available: checks are skipped, not failed.
	out, code = execute(t, "verify", archive)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "(encrypted)")
	assert.Contains(t, out, "nothing to compare against")

	out, code = execute(t, "verify", archive, "--password-file", pwFile)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, archive+": OK")

	plain := filepath.Join(t.TempDir(), "vault.tar.zst")
	out, code = execute(t, "decrypt", archive, "--password-file", pwFile, "-o", plain)
	require.Equal(t, 0, code, out)
	scheme, err = envelope.DetectFile(plain)
	require.NoError(t, err)
	assert.Equal(t, envelope.SchemeNone, scheme)
	assert.FileExists(t, archive, "--output keeps the encrypted file")

	t.Setenv(passwordEnv, "wrong")
	_, code = execute(t, "decrypt", archive)
	assert.Equal(t, 2, code)

	t.Setenv(passwordEnv, "s3cret")
	out, code = execute(t, "decrypt", archive)
	require.Equal(t, 0, code, out)
	scheme, err = envelope.DetectFile(archive)
	require.NoError(t, err)
	assert.Equal(t, envelope.SchemeNone, scheme)

	_, code = execute(t, "decrypt", archive)
	assert.Equal(t, 2, code, "already plaintext")
}

func TestBackupEncryptWithoutPassword(t *testing.T) {
	src, dst := testEnv(t)
	out, code := execute(t, "backup", src, dst, "--encrypt")
	assert.Equal(t, 2, code)
	assert.Contains(t, out, "password required")
}

func TestBackupConfigDefaults(t *testing.T) {
	src, dst := testEnv(t)
	cfgDir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "bale")
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	statePath := filepath.Join(t.TempDir(), "custom.json")
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte(`
[defaults]
kind = "zip"
destination = "`+filepath.ToSlash(dst)+`"
date_format = "nightly-%Y"
state_file = "`+filepath.ToSlash(statePath)+`"
`), 0o644))

	out, code := execute(t, "backup", src)
	require.Equal(t, 0, code, out)
	archive := lastLine(out)
	assert.Equal(t, dst, filepath.Dir(archive))
	assert.Regexp(t, `^nightly-\d{4}\.zip$`, filepath.Base(archive))

	store, err := state.Load(statePath)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	// Flags win over the file.
	out, code = execute(t, "backup", src, "--kind", "tar.lz4", "--name", "override")
	require.Equal(t, 0, code, out)
	assert.Equal(t, filepath.Join(dst, "override.tar.lz4"), lastLine(out))

	out, code = execute(t, "config")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, `kind = "zip"`)
	assert.Contains(t, out, statePath)
}

func TestBackupConfigPathsExpandHome(t *testing.T) {
	src, _ := testEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	work := t.TempDir()
	t.Chdir(work)

	cfgDir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "bale")
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte(`
[defaults]
destination = "~/Backups"
state_file = "~/state.json"
`), 0o644))

	out, code := execute(t, "backup", src, "--name", "x")
	require.Equal(t, 0, code, out)
	assert.Equal(t, filepath.Join(home, "Backups", "x.tar.zst"), lastLine(out))
	assert.FileExists(t, filepath.Join(home, "state.json"))
	assert.NoDirExists(t, filepath.Join(work, "~"))
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/ana")
	tests := []struct {
		in, want string
	}{
		{"~", "/home/ana"},
		{"~/Backups", "/home/ana/Backups"},
		{"~other/x", "~other/x"},
		{"/srv/~/x", "/srv/~/x"},
		{"rel/path", "rel/path"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandHome(tt.in), tt.in)
	}
}

func TestVerifyEncryptedTamperedFails(t *testing.T) {
	src, dst := testEnv(t)
	pwFile := filepath.Join(t.TempDir(), "pw")
	require.NoError(t, os.WriteFile(pwFile, []byte("s3cret\n"), 0o600))

	out, code := execute(t, "backup", src, dst, "--name", "sealed", "--password-file", pwFile)
	require.Equal(t, 0, code, out)
	archive := lastLine(out)

	wrongPw := filepath.Join(t.TempDir(), "wrong")
	require.NoError(t, os.WriteFile(wrongPw, []byte("guess\n"), 0o600))
	out, code = execute(t, "verify", archive, "--password-file", wrongPw)
	assert.Equal(t, 1, code, out)
	assert.Contains(t, out, archive+": FAILED (decryption failed")

	// Flip one byte of the authentication tag.
	data, err := os.ReadFile(archive)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(archive, data, 0o644))

	out, code = execute(t, "verify", archive, "--password-file", pwFile)
	assert.Equal(t, 1, code, out)
	assert.Contains(t, out, archive+": FAILED (decryption failed")

	_, code = execute(t, "verify", filepath.Join(dst, "missing.tar.zst"), "--password-file", pwFile)
	assert.Equal(t, 2, code, "a missing archive cannot be verified")
}

func TestBackupNoDestination(t *testing.T) {
	src, _ := testEnv(t)
	out, code := execute(t, "backup", src)
	assert.Equal(t, 2, code)
	assert.Contains(t, out, "no destination")
}

func TestBackupInvalidKind(t *testing.T) {
	src, dst := testEnv(t)
	out, code := execute(t, "backup", src, dst, "--kind", "rar")
	assert.Equal(t, 2, code)
	assert.Contains(t, out, "unsupported")
}

func TestShowUnknown(t *testing.T) {
	testEnv(t)
	out, code := execute(t, "show", "nope.zip")
	assert.Equal(t, 2, code)
	assert.Contains(t, out, `no archive named "nope.zip"`)
}

func TestListEmptyAndJSON(t *testing.T) {
	src, dst := testEnv(t)
	out, code := execute(t, "list")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "no archives recorded")

	_, code = execute(t, "backup", src, dst, "--name", "j", "--kind", "zip")
	require.Equal(t, 0, code)
	out, code = execute(t, "list", "--json")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `"name": "j.zip"`)
	assert.Contains(t, out, `"algorithm": "zip"`)
}

func TestReadPasswordFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"newline", "pw\n", "pw", false},
		{"crlf", "pw\r\n", "pw", false},
		{"no newline", "pw", "pw", false},
		{"first line only", "pw\nignored\n", "pw", false},
		{"spaces kept", " pw \n", " pw ", false},
		{"empty", "\n", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_"))
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			got, err := readPasswordFile(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPasswordSourceOrder(t *testing.T) {
	env := map[string]string{passwordEnv: "from-env"}
	src := passwordSource{getenv: func(k string) string { return env[k] }}

	pw, err := src.read(true)
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)

	file := filepath.Join(t.TempDir(), "pw")
	require.NoError(t, os.WriteFile(file, []byte("from-file"), 0o600))
	src.file = file
	pw, err = src.read(true)
	require.NoError(t, err)
	assert.Equal(t, "from-file", pw)

	delete(env, passwordEnv)
	src.file = ""
	_, err = src.read(false)
	assert.ErrorIs(t, err, errNoPassword)
}

func TestBackupFilters(t *testing.T) {
	src, dst := testEnv(t)
	rules := filepath.Join(t.TempDir(), "rules")
	require.NoError(t, os.WriteFile(rules, []byte("# photos only\n+ photos/\n+ photos/**\n- *\n"), 0o644))

	out, code := execute(t, "backup", src, dst, "--name", "pics", "--kind", "zip",
		"--exclude", "*.png", "--filter", rules)
	require.Equal(t, 0, code, out)

	store, err := state.Load(state.DefaultPath())
	require.NoError(t, err)
	rec, ok := store.Get("pics.zip")
	require.True(t, ok)
	assert.Equal(t, []string{"photos/a.jpg"}, rec.Contents)

	out, code = execute(t, "backup", src, dst, "--min-size", "1K")
	require.Equal(t, 0, code, out)

	_, code = execute(t, "backup", src, dst, "--max-size", "lots")
	assert.Equal(t, 2, code)

	_, code = execute(t, "backup", src, dst, "--exclude", "")
	assert.Equal(t, 2, code)
}

func TestGenDocs(t *testing.T) {
	testEnv(t)
	t.Setenv(sourceDateEnv, "1700000000")

	for _, format := range []string{"man", "markdown"} {
		t.Run(format, func(t *testing.T) {
			dir := t.TempDir()
			out, code := execute(t, "gen-docs", "--dir", dir, "--format", format)
			require.Equal(t, 0, code, out)

			want := []string{"bale.1", "bale-backup.1"}
			if format == "markdown" {
				want = []string{"bale.md", "bale_backup.md"}
			}
			for _, name := range want {
				assert.FileExists(t, filepath.Join(dir, name))
			}
		})
	}

	_, code := execute(t, "gen-docs", "--dir", t.TempDir(), "--format", "pdf")
	assert.Equal(t, 2, code)
}
