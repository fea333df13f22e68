// ABOUTME: Encrypts credential tokens at rest with NaCl secretbox.
// ABOUTME: The box key is derived from an operator secret with HKDF-SHA256.

package store

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrSealed is returned when a sealed value cannot be opened.
var ErrSealed = errors.New("credential is sealed with a different key")

const (
	formatPlain  byte = 0
	formatSealed byte = 1

	nonceSize = 24
)

// Sealer seals and opens stored tokens. A nil *Sealer or one built from an
// empty secret stores values unsealed.
type Sealer struct {
	key *[32]byte
}

// NewSealer derives a box key from secret.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return &Sealer{}, nil
	}
	var key [32]byte
	r := hkdf.New(sha256.New, []byte(secret), []byte("wordchain-gateway/credentials"), []byte("secretbox-v1"))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return &Sealer{key: &key}, nil
}

// Enabled reports whether values are encrypted.
func (s *Sealer) Enabled() bool {
	return s != nil && s.key != nil
}

// Seal returns the stored form of plaintext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	if !s.Enabled() {
		return append([]byte{formatPlain}, plaintext...), nil
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	out := append([]byte{formatSealed}, nonce[:]...)
	return secretbox.Seal(out, plaintext, &nonce, s.key), nil
}

// Open reverses Seal.
func (s *Sealer) Open(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, errors.New("empty stored value")
	}
	switch stored[0] {
	case formatPlain:
		return stored[1:], nil
	case formatSealed:
		if !s.Enabled() || len(stored) < 1+nonceSize {
			return nil, ErrSealed
		}
		var nonce [nonceSize]byte
		copy(nonce[:], stored[1:1+nonceSize])
		out, ok := secretbox.Open(nil, stored[1+nonceSize:], &nonce, s.key)
		if !ok {
			return nil, ErrSealed
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown stored format %d", stored[0])
	}
}
