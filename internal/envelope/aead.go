// Package envelope encrypts finished archives with a password.
//
// Two formats exist. The AEAD envelope is a small binary header followed by
// a single AES-256-GCM or ChaCha20-Poly1305 ciphertext:
//
//	[version: 1][cipher id: 1][salt: 22, unpadded base64][nonce: 12][ciphertext+tag]
//
// The key is derived from the password with Argon2id over the decoded salt.
// The cipher id makes the envelope self-describing, so decryption never needs
// to be told which cipher was used.
//
// The age envelope is the armored age v1 format with a scrypt passphrase
// stanza, readable by the age CLI.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Version is the only AEAD envelope version this package reads or writes.
const Version byte = 1

const (
	saltRawLen = 16
	saltLen    = 22 // base64.RawStdEncoding of saltRawLen bytes
	nonceLen   = 12
	keyLen     = 32
	tagLen     = 16

	// HeaderLen is the fixed size of the AEAD envelope header.
	HeaderLen = 2 + saltLen + nonceLen
)

var (
	// ErrDecrypt is returned when the authentication tag does not verify.
	ErrDecrypt            = errors.New("decryption failed (wrong password or corrupted data)")
	ErrKeyDerivation      = errors.New("key derivation failed")
	ErrUnsupportedVersion = errors.New("unsupported envelope version")
	ErrUnknownCipher      = errors.New("unknown cipher")
	ErrTruncated          = errors.New("envelope too short")
)

// Cipher selects the AEAD algorithm. Values are the on-disk cipher ids.
type Cipher uint8

const (
	AES256GCM        Cipher = 0
	ChaCha20Poly1305 Cipher = 1
)

func (c Cipher) String() string {
	switch c {
	case AES256GCM:
		return "AES-256-GCM"
	case ChaCha20Poly1305:
		return "ChaCha20-Poly1305"
	default:
		return fmt.Sprintf("cipher(%d)", uint8(c))
	}
}

// ParseCipher maps a configured cipher name to a Cipher. The empty string
// selects AES-256-GCM.
func ParseCipher(name string) (Cipher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "aes", "aes256", "aes-256", "aes-256-gcm", "aes256gcm":
		return AES256GCM, nil
	case "chacha", "chacha20", "chacha20-poly1305", "chacha20poly1305":
		return ChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCipher, name)
	}
}

func (c Cipher) newAEAD(key []byte) (cipher.AEAD, error) {
	switch c {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case ChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: id %d", ErrUnknownCipher, uint8(c))
	}
}

// KDFParams are the Argon2id cost parameters. Memory is in KiB.
type KDFParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultKDF matches the Argon2id defaults used by existing envelopes; it
// must not change without bumping Version.
var DefaultKDF = KDFParams{Time: 2, Memory: 19 * 1024, Threads: 1}

func deriveKey(password string, salt []byte, p KDFParams) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: empty password", ErrKeyDerivation)
	}
	if p.Time == 0 || p.Threads == 0 || p.Memory < 8*uint32(p.Threads) {
		return nil, fmt.Errorf("%w: invalid argon2 parameters %+v", ErrKeyDerivation, p)
	}
	if len(salt) < 8 {
		return nil, fmt.Errorf("%w: salt too short", ErrKeyDerivation)
	}
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, keyLen), nil
}

// Seal encrypts plaintext into a complete AEAD envelope using DefaultKDF.
func Seal(plaintext []byte, password string, c Cipher) ([]byte, error) {
	return sealWith(plaintext, password, c, DefaultKDF)
}

func sealWith(plaintext []byte, password string, c Cipher, p KDFParams) ([]byte, error) {
	var rawSalt [saltRawLen]byte
	if _, err := io.ReadFull(rand.Reader, rawSalt[:]); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	salt := base64.RawStdEncoding.EncodeToString(rawSalt[:])

	key, err := deriveKey(password, rawSalt[:], p)
	if err != nil {
		return nil, err
	}
	aead, err := c.newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("creating %s cipher: %w", c, err)
	}

	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, HeaderLen+len(plaintext)+aead.Overhead())
	out = append(out, Version, byte(c))
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return aead.Seal(out, nonce[:], plaintext, nil), nil
}

// Open decrypts an AEAD envelope using DefaultKDF. The cipher is read from
// the header and returned alongside the plaintext.
func Open(data []byte, password string) ([]byte, Cipher, error) {
	return openWith(data, password, DefaultKDF)
}

func openWith(data []byte, password string, p KDFParams) ([]byte, Cipher, error) {
	if len(data) < HeaderLen+tagLen {
		return nil, 0, fmt.Errorf("%w: %d bytes, minimum is %d", ErrTruncated, len(data), HeaderLen+tagLen)
	}
	if data[0] != Version {
		return nil, 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}
	c := Cipher(data[1])
	if c != AES256GCM && c != ChaCha20Poly1305 {
		return nil, 0, fmt.Errorf("%w: id %d", ErrUnknownCipher, data[1])
	}

	salt, err := base64.RawStdEncoding.DecodeString(string(data[2 : 2+saltLen]))
	if err != nil {
		return nil, c, fmt.Errorf("%w: malformed salt: %v", ErrKeyDerivation, err)
	}
	nonce := data[2+saltLen : HeaderLen]
	ciphertext := data[HeaderLen:]

	key, err := deriveKey(password, salt, p)
	if err != nil {
		return nil, c, err
	}
	aead, err := c.newAEAD(key)
	if err != nil {
		return nil, c, fmt.Errorf("creating %s cipher: %w", c, err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, c, fmt.Errorf("%w: %s", ErrDecrypt, c)
	}
	return plaintext, c, nil
}

// AEADEnvelope wraps a whole stream in a single AEAD envelope. The stream is
// buffered in memory because the tag covers the entire content.
type AEADEnvelope struct {
	Cipher Cipher
	KDF    KDFParams // zero value means DefaultKDF
}

func (e AEADEnvelope) params() KDFParams {
	if e.KDF == (KDFParams{}) {
		return DefaultKDF
	}
	return e.KDF
}

func (e AEADEnvelope) Scheme() Scheme { return SchemeAEAD }

// Name reports the scheme and cipher, e.g. "aead:AES-256-GCM".
func (e AEADEnvelope) Name() string { return "aead:" + e.Cipher.String() }

func (e AEADEnvelope) Seal(dst io.Writer, src io.Reader, password string) error {
	plaintext, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("read plaintext: %w", err)
	}
	sealed, err := sealWith(plaintext, password, e.Cipher, e.params())
	if err != nil {
		return err
	}
	if _, err := dst.Write(sealed); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

func (e AEADEnvelope) Open(dst io.Writer, src io.Reader, password string) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("read envelope: %w", err)
	}
	plaintext, _, err := openWith(data, password, e.params())
	if err != nil {
		return err
	}
	if _, err := dst.Write(plaintext); err != nil {
		return fmt.Errorf("write plaintext: %w", err)
	}
	return nil
}
