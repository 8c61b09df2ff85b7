package envelope

import (
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// AgeEnvelope encrypts with an age scrypt passphrase stanza and ASCII
// armor. WorkFactor is the scrypt log2(N); zero keeps the age default.
type AgeEnvelope struct {
	WorkFactor int
}

func (e AgeEnvelope) Scheme() Scheme { return SchemeAge }

func (e AgeEnvelope) Name() string { return "age" }

func (e AgeEnvelope) Seal(dst io.Writer, src io.Reader, password string) error {
	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}
	if e.WorkFactor > 0 {
		recipient.SetWorkFactor(e.WorkFactor)
	}

	armored := armor.NewWriter(dst)
	w, err := age.Encrypt(armored, recipient)
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}
	buf := make([]byte, 64*1024)
	if _, err := io.CopyBuffer(w, src, buf); err != nil {
		return fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return fmt.Errorf("finalizing armor: %w", err)
	}
	return nil
}

func (e AgeEnvelope) Open(dst io.Writer, src io.Reader, password string) error {
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}

	r, err := age.Decrypt(armor.NewReader(src), identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) || errors.Is(err, age.ErrIncorrectIdentity) {
			return fmt.Errorf("%w: age", ErrDecrypt)
		}
		return fmt.Errorf("reading age header: %w", err)
	}

	// Payload chunks are authenticated as they are read, so read errors are
	// tag failures while write errors belong to the destination.
	buf := make([]byte, 64*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write plaintext: %w", werr)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("%w: age payload: %v", ErrDecrypt, rerr)
		}
	}
}
