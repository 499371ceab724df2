// Package cryptox implements the key vault: master key generation, PIN based
// key-encryption-key derivation, master key wrapping and authenticated payload
// encryption.
//
// The primitives live behind CryptoProvider so that KeyVault, and everything
// built on it, does not depend on a concrete cipher or KDF implementation.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// MasterKeySize is the size of the AES-256 master key and of every KEK.
	MasterKeySize = 32
	// SaltSize is the size of the per-account PBKDF2 salt.
	SaltSize = 16
	// NonceSize is the AES-GCM nonce (IV) size.
	NonceSize = 12

	// MinPBKDF2Iterations is the lowest iteration count accepted for PIN derivation.
	MinPBKDF2Iterations = 100_000
	// MaxPBKDF2Iterations bounds counts read from stored keyrings and backups.
	MaxPBKDF2Iterations = 10_000_000
	// DefaultPBKDF2Iterations is used when no explicit count is configured.
	DefaultPBKDF2Iterations = 100_000
)

var (
	ErrInvalidKDFParams = errors.New("cryptox: invalid KDF parameters")
	ErrAuthentication   = errors.New("cryptox: message authentication failed")
	ErrMalformedBlob    = errors.New("cryptox: malformed ciphertext")
)

// CryptoProvider is the minimal set of primitives the vault needs.
type CryptoProvider interface {
	// GenerateKey returns size bytes from a cryptographically secure source.
	GenerateKey(size int) ([]byte, error)
	// DeriveKey stretches secret with salt into a key of keyLen bytes using
	// the given iteration count. It must be deterministic for the same inputs.
	DeriveKey(secret, salt []byte, iterations, keyLen int) ([]byte, error)
	// Seal encrypts plaintext under key with a fresh random IV.
	Seal(key, plaintext []byte) (iv, ciphertext []byte, err error)
	// Open authenticates and decrypts ciphertext. It fails with
	// ErrAuthentication on a wrong key or modified input.
	Open(key, iv, ciphertext []byte) ([]byte, error)
}

// ValidateIterations reports ErrInvalidKDFParams for a PBKDF2 iteration count
// outside [MinPBKDF2Iterations, MaxPBKDF2Iterations].
func ValidateIterations(n int) error {
	if n < MinPBKDF2Iterations {
		return fmt.Errorf("%w: PBKDF2 iterations %d < minimum %d", ErrInvalidKDFParams, n, MinPBKDF2Iterations)
	}
	if n > MaxPBKDF2Iterations {
		return fmt.Errorf("%w: PBKDF2 iterations %d > maximum %d", ErrInvalidKDFParams, n, MaxPBKDF2Iterations)
	}
	return nil
}

// StandardProvider implements CryptoProvider with crypto/rand,
// PBKDF2-HMAC-SHA256 and AES-GCM.
type StandardProvider struct {
	iterations int
}

// NewStandardProvider returns a provider whose PBKDF2 iteration count is used
// for newly created keyrings. Existing keyrings keep the count they were
// created with.
func NewStandardProvider(iterations int) (*StandardProvider, error) {
	if err := ValidateIterations(iterations); err != nil {
		return nil, err
	}
	return &StandardProvider{iterations: iterations}, nil
}

// Iterations reports the PBKDF2 iteration count for new keyrings.
func (p *StandardProvider) Iterations() int {
	return p.iterations
}

func (p *StandardProvider) GenerateKey(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

func (p *StandardProvider) DeriveKey(secret, salt []byte, iterations, keyLen int) ([]byte, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", ErrInvalidKDFParams)
	}
	if err := ValidateIterations(iterations); err != nil {
		return nil, err
	}
	return pbkdf2.Key(secret, salt, iterations, keyLen, sha256.New), nil
}

func (p *StandardProvider) Seal(key, plaintext []byte) (iv, ciphertext []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	iv = make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	return iv, aead.Seal(nil, iv, plaintext, nil), nil
}

func (p *StandardProvider) Open(key, iv, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() || len(ciphertext) < aead.Overhead() {
		return nil, ErrMalformedBlob
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	return cipher.NewGCM(block)
}
