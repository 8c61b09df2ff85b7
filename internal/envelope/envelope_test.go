package envelope

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastAge keeps scrypt cheap in tests.
var fastAge = AgeEnvelope{WorkFactor: 10}

func TestSealOpen_RoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"empty": {},
		"short": []byte("hello archive"),
		"large": bytes.Repeat([]byte{0xAB, 0x00, 0x17}, 100_000),
	}
	for _, c := range []Cipher{AES256GCM, ChaCha20Poly1305} {
		for name, plaintext := range payloads {
			t.Run(c.String()+"/"+name, func(t *testing.T) {
				sealed, err := Seal(plaintext, "correct horse", c)
				require.NoError(t, err)
				assert.Equal(t, Version, sealed[0])
				assert.Equal(t, byte(c), sealed[1])
				assert.Len(t, sealed, HeaderLen+len(plaintext)+tagLen)

				got, gotCipher, err := Open(sealed, "correct horse")
				require.NoError(t, err)
				assert.Equal(t, c, gotCipher)
				assert.Equal(t, len(plaintext), len(got))
				assert.True(t, bytes.Equal(plaintext, got))
			})
		}
	}
}

func TestSeal_RandomizedHeader(t *testing.T) {
	a, err := Seal([]byte("same"), "pw", AES256GCM)
	require.NoError(t, err)
	b, err := Seal([]byte("same"), "pw", AES256GCM)
	require.NoError(t, err)
	assert.NotEqual(t, a[2:HeaderLen], b[2:HeaderLen], "salt and nonce must differ between seals")
	assert.NotEqual(t, a, b)
}

func TestOpen_WrongPassword(t *testing.T) {
	sealed, err := Seal([]byte("secret"), "right", ChaCha20Poly1305)
	require.NoError(t, err)

	_, _, err = Open(sealed, "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestOpen_Tampered(t *testing.T) {
	sealed, err := Seal([]byte("secret payload"), "pw", AES256GCM)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"ciphertext bit", func(b []byte) []byte { b[len(b)-1] ^= 0x01; return b }, ErrDecrypt},
		{"nonce bit", func(b []byte) []byte { b[2+saltLen] ^= 0x01; return b }, ErrDecrypt},
		{"cipher swapped", func(b []byte) []byte { b[1] = byte(ChaCha20Poly1305); return b }, ErrDecrypt},
		{"version", func(b []byte) []byte { b[0] = 2; return b }, ErrUnsupportedVersion},
		{"unknown cipher", func(b []byte) []byte { b[1] = 9; return b }, ErrUnknownCipher},
		{"truncated", func(b []byte) []byte { return b[:HeaderLen+tagLen-1] }, ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(bytes.Clone(sealed))
			_, _, err := Open(data, "pw")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSeal_EmptyPassword(t *testing.T) {
	_, err := Seal([]byte("x"), "", AES256GCM)
	assert.ErrorIs(t, err, ErrKeyDerivation)
}

func TestDeriveKey_InvalidParams(t *testing.T) {
	_, err := deriveKey("pw", make([]byte, 16), KDFParams{Time: 1, Memory: 64, Threads: 0})
	assert.ErrorIs(t, err, ErrKeyDerivation)

	key, err := deriveKey("pw", make([]byte, 16), KDFParams{Time: 1, Memory: 64, Threads: 1})
	require.NoError(t, err)
	assert.Len(t, key, keyLen)
}

func TestParseCipher(t *testing.T) {
	for _, name := range []string{"", "aes", "AES256", "aes-256", "aes-256-gcm"} {
		c, err := ParseCipher(name)
		require.NoError(t, err, name)
		assert.Equal(t, AES256GCM, c, name)
	}
	for _, name := range []string{"chacha", "ChaCha20", "chacha20-poly1305"} {
		c, err := ParseCipher(name)
		require.NoError(t, err, name)
		assert.Equal(t, ChaCha20Poly1305, c, name)
	}
	_, err := ParseCipher("des")
	assert.ErrorIs(t, err, ErrUnknownCipher)
}

func TestAEADEnvelope_CustomKDF(t *testing.T) {
	env := AEADEnvelope{Cipher: ChaCha20Poly1305, KDF: KDFParams{Time: 1, Memory: 64, Threads: 1}}
	var sealed bytes.Buffer
	require.NoError(t, env.Seal(&sealed, strings.NewReader("stream data"), "pw"))

	var out bytes.Buffer
	require.NoError(t, env.Open(&out, bytes.NewReader(sealed.Bytes()), "pw"))
	assert.Equal(t, "stream data", out.String())

	// Default parameters derive a different key.
	_, _, err := Open(sealed.Bytes(), "pw")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestAgeEnvelope_RoundTrip(t *testing.T) {
	var sealed bytes.Buffer
	require.NoError(t, fastAge.Seal(&sealed, strings.NewReader("age payload"), "pw"))
	assert.True(t, strings.HasPrefix(sealed.String(), "-----BEGIN AGE ENCRYPTED FILE-----"))

	var out bytes.Buffer
	require.NoError(t, AgeEnvelope{}.Open(&out, bytes.NewReader(sealed.Bytes()), "pw"))
	assert.Equal(t, "age payload", out.String())

	out.Reset()
	err := AgeEnvelope{}.Open(&out, bytes.NewReader(sealed.Bytes()), "nope")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDetect(t *testing.T) {
	aead, err := Seal([]byte("x"), "pw", AES256GCM)
	require.NoError(t, err)

	var ageOut bytes.Buffer
	require.NoError(t, fastAge.Seal(&ageOut, strings.NewReader("x"), "pw"))

	tests := []struct {
		name string
		data []byte
		want Scheme
	}{
		{"aead", aead, SchemeAEAD},
		{"age armored", ageOut.Bytes(), SchemeAge},
		{"age binary", []byte("age-encryption.org/v1\n-> scrypt"), SchemeAge},
		{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}, SchemeNone},
		{"gzip", []byte{0x1f, 0x8b, 0x08}, SchemeNone},
		{"zip", []byte("PK\x03\x04"), SchemeNone},
		{"empty", nil, SchemeNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(bytes.NewReader(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseScheme(t *testing.T) {
	s, err := ParseScheme("")
	require.NoError(t, err)
	assert.Equal(t, SchemeAEAD, s)

	s, err = ParseScheme("AGE")
	require.NoError(t, err)
	assert.Equal(t, SchemeAge, s)

	_, err = ParseScheme("gpg")
	assert.Error(t, err)

	assert.Equal(t, "age", SchemeAge.String())
	assert.Equal(t, "none", SchemeNone.String())
}

func TestEncryptDecryptFile(t *testing.T) {
	envs := []Envelope{
		AEADEnvelope{Cipher: AES256GCM},
		AEADEnvelope{Cipher: ChaCha20Poly1305},
		fastAge,
	}
	for _, env := range envs {
		t.Run(env.Name(), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "backup.tar.zst")
			original := bytes.Repeat([]byte("archive bytes "), 5000)
			require.NoError(t, os.WriteFile(path, original, 0640))

			got, err := EncryptFile(path, "pw", env, FileOptions{})
			require.NoError(t, err)
			assert.Equal(t, path, got)

			_, err = os.Stat(path + BackupExt)
			assert.True(t, os.IsNotExist(err), "backup should be removed")

			scheme, err := DetectFile(path)
			require.NoError(t, err)
			assert.Equal(t, env.Scheme(), scheme)

			var buf bytes.Buffer
			_, err = DecryptTo(&buf, path, "pw")
			require.NoError(t, err)
			assert.Equal(t, original, buf.Bytes())

			_, err = DecryptFile(path, "wrong")
			require.ErrorIs(t, err, ErrDecrypt)
			scheme, err = DetectFile(path)
			require.NoError(t, err)
			assert.Equal(t, env.Scheme(), scheme, "failed decrypt must leave the file encrypted")

			_, err = DecryptFile(path, "pw")
			require.NoError(t, err)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, original, data)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "no temporary files left behind")
		})
	}
}

func TestEncryptFile_KeepBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("plain"), 0644))

	_, err := EncryptFile(path, "pw", AEADEnvelope{}, FileOptions{KeepBackup: true})
	require.NoError(t, err)

	backup, err := os.ReadFile(path + BackupExt)
	require.NoError(t, err)
	assert.Equal(t, "plain", string(backup))
}

func TestDecryptFile_NotEncrypted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.zip")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04 plain"), 0644))

	_, err := DecryptFile(path, "pw")
	assert.ErrorIs(t, err, ErrNotEncrypted)
}
