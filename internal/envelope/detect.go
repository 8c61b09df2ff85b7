package envelope

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age/armor"
)

// ErrNotEncrypted is returned when a file carries no recognizable envelope.
var ErrNotEncrypted = errors.New("file is not encrypted")

// Scheme identifies an envelope format.
type Scheme int

const (
	SchemeNone Scheme = iota
	SchemeAEAD
	SchemeAge
)

var schemeNames = [...]string{
	SchemeNone: "none",
	SchemeAEAD: "aead",
	SchemeAge:  "age",
}

func (s Scheme) String() string {
	if int(s) < len(schemeNames) {
		return schemeNames[s]
	}
	return fmt.Sprintf("Scheme(%d)", int(s))
}

// ParseScheme maps a configured envelope name to a Scheme. The empty string
// selects the AEAD envelope.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "aead", "native":
		return SchemeAEAD, nil
	case "age":
		return SchemeAge, nil
	default:
		return SchemeNone, fmt.Errorf("unknown envelope %q (want aead or age)", name)
	}
}

// Envelope seals and opens a stream with a password.
type Envelope interface {
	Seal(dst io.Writer, src io.Reader, password string) error
	Open(dst io.Writer, src io.Reader, password string) error
	Scheme() Scheme
	Name() string
}

// New returns the envelope for scheme. c applies to the AEAD scheme and
// ageWorkFactor to the age scheme; zero keeps the age default.
func New(scheme Scheme, c Cipher, ageWorkFactor int) (Envelope, error) {
	switch scheme {
	case SchemeAEAD:
		return AEADEnvelope{Cipher: c}, nil
	case SchemeAge:
		return AgeEnvelope{WorkFactor: ageWorkFactor}, nil
	default:
		return nil, fmt.Errorf("no envelope for scheme %s", scheme)
	}
}

const ageBinaryHeader = "age-encryption.org/v1"

// Detect inspects the first bytes of r and reports which envelope, if any,
// produced it.
func Detect(r io.Reader) (Scheme, error) {
	buf := make([]byte, len(armor.Header))
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return SchemeNone, err
	}
	return detectBytes(buf[:n]), nil
}

func detectBytes(b []byte) Scheme {
	trimmed := bytes.TrimLeft(b, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte(armor.Header)) || bytes.HasPrefix(b, []byte(ageBinaryHeader)) {
		return SchemeAge
	}
	if len(b) < 2+saltLen || b[0] != Version {
		return SchemeNone
	}
	if c := Cipher(b[1]); c != AES256GCM && c != ChaCha20Poly1305 {
		return SchemeNone
	}
	for _, ch := range b[2 : 2+saltLen] {
		if !isBase64(ch) {
			return SchemeNone
		}
	}
	return SchemeAEAD
}

func isBase64(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '+' || c == '/'
}

// DetectFile opens path and runs Detect on its head.
func DetectFile(path string) (Scheme, error) {
	f, err := os.Open(path)
	if err != nil {
		return SchemeNone, err
	}
	defer f.Close()
	return Detect(f)
}
