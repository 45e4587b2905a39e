// Package vault seals and opens tenant delegated credentials with AES-256-GCM.
//
// Envelopes are base64(nonce || tag || ciphertext). The layout is shared with
// every other service that reads tenant credentials and must not change.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize   = 32
	nonceSize = 12
	tagSize   = 16
)

var (
	// ErrMissingKey is returned when no master key is configured.
	ErrMissingKey = errors.New("credential key not configured")

	// ErrInvalidKey is returned when the configured key is not 32 bytes.
	ErrInvalidKey = errors.New("credential key must decode to 32 bytes")
)

// DecryptionError reports an envelope that could not be opened. It never
// carries plaintext or ciphertext.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err == nil {
		return "decrypt credential: " + e.Reason
	}
	return "decrypt credential: " + e.Reason + ": " + e.Err.Error()
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// Vault holds the AEAD built from the master key.
type Vault struct {
	aead  cipher.AEAD
	nonce io.Reader
}

// New builds a Vault from a raw 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) == 0 {
		return nil, ErrMissingKey
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Vault{aead: aead, nonce: rand.Reader}, nil
}

// NewFromEncoded builds a Vault from a base64 (standard or URL) or hex encoded key.
func NewFromEncoded(encoded string) (*Vault, error) {
	key, err := DecodeKey(encoded)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// DecodeKey decodes a configured master key.
func DecodeKey(encoded string) ([]byte, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return nil, ErrMissingKey
	}
	if len(trimmed) == hex.EncodedLen(KeySize) {
		if key, err := hex.DecodeString(trimmed); err == nil {
			return key, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(trimmed); err == nil {
			if len(key) != KeySize {
				return nil, ErrInvalidKey
			}
			return key, nil
		}
	}
	return nil, ErrInvalidKey
}

// GenerateKey returns a fresh base64-encoded master key.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("rand key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (v *Vault) Seal(plaintext []byte) (string, error) {
	if v == nil || v.aead == nil {
		return "", ErrMissingKey
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(v.nonce, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// GCM emits ciphertext || tag; the envelope stores the tag first.
	sealed := v.aead.Seal(nil, nonce, plaintext, nil)
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+tagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts an envelope produced by Seal.
func (v *Vault) Open(envelope string) ([]byte, error) {
	if v == nil || v.aead == nil {
		return nil, &DecryptionError{Reason: "no key", Err: ErrMissingKey}
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envelope))
	if err != nil {
		return nil, &DecryptionError{Reason: "malformed envelope", Err: err}
	}
	if len(raw) < nonceSize+tagSize {
		return nil, &DecryptionError{Reason: "envelope too short"}
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ct := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, &DecryptionError{Reason: "authentication failed"}
	}
	return plaintext, nil
}
