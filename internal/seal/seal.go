// Package seal encrypts small secrets (credentials) before they are written
// to disk.
//
// The key is derived from a configured passphrase with HKDF-SHA256 and the
// payload is sealed with NaCl secretbox (XSalsa20-Poly1305). The sealed form
// is "v1:" followed by base64(nonce || box), so it fits in a TEXT column.
package seal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	prefix    = "v1:"
	nonceSize = 24
	keySize   = 32
	info      = "tryon-credential-seal"
)

// ErrOpen is returned when a sealed value cannot be decrypted: wrong key,
// truncated data or tampering.
var ErrOpen = errors.New("seal: cannot open sealed value")

// Sealer turns plaintext into a storable string and back.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// Box is a Sealer keyed from a passphrase.
type Box struct {
	key [keySize]byte
}

// New derives the box key from secret. An empty secret is rejected; use
// Plain when no secret is configured.
func New(secret string) (*Box, error) {
	if secret == "" {
		return nil, errors.New("seal: secret must not be empty")
	}

	h := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	b := &Box{}
	if _, err := io.ReadFull(h, b.key[:]); err != nil {
		return nil, fmt.Errorf("seal: deriving key: %w", err)
	}
	return b, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (b *Box) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("seal: generating nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return prefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (b *Box) Open(sealed string) (string, error) {
	rest, ok := strings.CutPrefix(sealed, prefix)
	if !ok {
		return "", ErrOpen
	}
	raw, err := base64.StdEncoding.DecodeString(rest)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrOpen
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	out, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrOpen
	}
	return string(out), nil
}

// Plain stores values as-is.
type Plain struct{}

func (Plain) Seal(plaintext string) (string, error) { return plaintext, nil }
func (Plain) Open(sealed string) (string, error) { return sealed, nil }

// FromSecret returns a Box for a non-empty secret and Plain otherwise.
func FromSecret(secret string) (Sealer, error) {
	if secret == "" {
		return Plain{}, nil
	}
	return New(secret)
}
