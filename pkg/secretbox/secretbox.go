// Package secretbox implements the EncryptionAdapter required by §9:
// credential fields must never reach a persistent store in plaintext.
//
// The host OS secret service is not addressed from this process; the
// fallback reversible encoding named in §6 is what this package
// implements — AES-256-GCM keyed from an operator-configured secret.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
)

// Box encrypts and decrypts credential fields at rest. The zero value is
// not usable; construct with New.
type Box struct {
	key []byte // 32 bytes, derived from the configured secret
}

// New derives an AES-256 key from secret. Secrets of 32 bytes or more
// use their first 32 bytes directly; shorter secrets are stretched via
// SHA-256 so operators aren't forced into picking an exact-length value.
func New(secret string) *Box {
	raw := []byte(secret)
	if len(raw) >= 32 {
		return &Box{key: raw[:32]}
	}
	sum := sha256.Sum256(raw)
	return &Box{key: sum[:]}
}

// IsAvailable reports whether this adapter can encrypt/decrypt. It is
// always true once constructed; it exists so callers written against
// the EncryptionAdapter interface can handle an OS secret-service backed
// implementation that might not be — this one always is.
func (b *Box) IsAvailable() bool {
	return b != nil && len(b.key) == 32
}

// Encrypt seals plaintext and returns a base64-encoded nonce‖ciphertext
// blob suitable for a text column.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", errors.Wrap(err, "secretbox: create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.Wrap(err, "secretbox: create gcm")
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "secretbox: generate nonce")
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. An empty input decrypts to an empty string
// so optional credential fields round-trip without special-casing.
func (b *Box) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Wrap(err, "secretbox: decode base64")
	}

	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", errors.Wrap(err, "secretbox: create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errors.Wrap(err, "secretbox: create gcm")
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", errors.New("secretbox: ciphertext too short")
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.Wrap(err, "secretbox: authentication failed")
	}
	return string(plain), nil
}
