package authsession

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLen is the shortest secret NewSealer accepts.
const MinSecretLen = 16

// ErrShortSecret is returned for secrets under MinSecretLen bytes.
var ErrShortSecret = fmt.Errorf("session key must be at least %d bytes", MinSecretLen)

// ErrUnseal is returned when a sealed value was tampered with, was sealed
// under another key, or belongs to another row.
var ErrUnseal = errors.New("cannot unseal stored token")

// Sealer encrypts API tokens at rest with XChaCha20-Poly1305.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the encryption key from secret with HKDF-SHA256.
// PRE: len(secret) >= MinSecretLen
func NewSealer(secret []byte) (*Sealer, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrShortSecret
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte("coachhub auth_session tokens")), key); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext bound to ad. An empty plaintext seals to nil.
// POST: Result is nonce || ciphertext
func (s *Sealer) Seal(plaintext, ad []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, ad), nil
}

// Open decrypts a value produced by Seal with the same ad.
func (s *Sealer) Open(sealed, ad []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	if len(sealed) < s.aead.NonceSize()+s.aead.Overhead() {
		return nil, ErrUnseal
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, ErrUnseal
	}
	return plaintext, nil
}
