package cryptox

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/medkeeper/internal/common"
)

// Payload is an authenticated ciphertext of a JSON-serialised value.
// Byte slices are base64 encoded when the payload itself is marshalled.
type Payload struct {
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ciphertext"`
}

// KeyVault bundles the key lifecycle operations on top of a CryptoProvider.
type KeyVault struct {
	provider CryptoProvider
}

// NewKeyVault returns a vault using p for all primitives.
func NewKeyVault(p CryptoProvider) *KeyVault {
	return &KeyVault{provider: p}
}

// GenerateMasterKey produces a fresh random 256-bit master key.
func (v *KeyVault) GenerateMasterKey() ([]byte, error) {
	return v.provider.GenerateKey(MasterKeySize)
}

// GenerateSalt produces a fresh random 128-bit account salt.
func (v *KeyVault) GenerateSalt() ([]byte, error) {
	return v.provider.GenerateKey(SaltSize)
}

// Iterations is the PBKDF2 cost for keyrings created by this vault.
func (v *KeyVault) Iterations() int {
	if p, ok := v.provider.(interface{ Iterations() int }); ok {
		return p.Iterations()
	}
	return DefaultPBKDF2Iterations
}

// DeriveKeyFromPin derives the key-encryption-key for pin and salt with the
// iteration count stored next to the salt. The same inputs always give the
// same KEK; the caller owns the returned slice and should wipe it after the
// wrap or unwrap call.
func (v *KeyVault) DeriveKeyFromPin(pin, salt []byte, iterations int) ([]byte, error) {
	return v.provider.DeriveKey(pin, salt, iterations, MasterKeySize)
}

// WrapMasterKey encrypts masterKey under kek and returns base64(iv || ciphertext).
// Every call uses a new IV, so repeated wraps of one key differ.
func (v *KeyVault) WrapMasterKey(masterKey, kek []byte) (string, error) {
	if len(masterKey) != MasterKeySize {
		return "", fmt.Errorf("%w: master key must be %d bytes", ErrMalformedBlob, MasterKeySize)
	}

	iv, ct, err := v.provider.Seal(kek, masterKey)
	if err != nil {
		return "", fmt.Errorf("wrap error: %w", err)
	}

	blob := make([]byte, 0, len(iv)+len(ct))
	blob = append(blob, iv...)
	blob = append(blob, ct...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// UnwrapMasterKey reverses WrapMasterKey. A wrong KEK or a modified blob
// yields ErrAuthentication; a blob that cannot even be split yields
// ErrMalformedBlob.
func (v *KeyVault) UnwrapMasterKey(blob string, kek []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if len(raw) <= NonceSize {
		return nil, ErrMalformedBlob
	}

	key, err := v.provider.Open(kek, raw[:NonceSize], raw[NonceSize:])
	if err != nil {
		return nil, err
	}
	if len(key) != MasterKeySize {
		common.WipeByteArray(key)
		return nil, ErrMalformedBlob
	}
	return key, nil
}

// EncryptPayload serialises data to JSON and encrypts it under key.
func (v *KeyVault) EncryptPayload(data any, key []byte) (*Payload, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal error: %w", err)
	}
	defer common.WipeByteArray(plaintext)

	iv, ct, err := v.provider.Seal(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encryption error: %w", err)
	}
	return &Payload{IV: iv, Ciphertext: ct}, nil
}

// DecryptPayload authenticates and decrypts p under key and unmarshals the
// JSON plaintext into out. Nothing is written to out unless authentication
// succeeds.
func (v *KeyVault) DecryptPayload(p *Payload, key []byte, out any) error {
	if p == nil {
		return ErrMalformedBlob
	}

	plaintext, err := v.provider.Open(key, p.IV, p.Ciphertext)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)

	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("unmarshal error: %w", err)
	}
	return nil
}
