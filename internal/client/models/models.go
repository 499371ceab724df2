// Package models defines client-side data models used by the medkeeper client.
package models

import "time"

// Record is one encrypted row of the local store. Plaintext never reaches
// this type.
type Record struct {
	ID         string
	Kind       string
	IV         []byte
	Ciphertext []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Keyring is the locally cached key material: the wrapped master key and the
// KDF salt, both base64 as issued at setup, and the PBKDF2 iteration count
// the KEK is derived with.
type Keyring struct {
	WrappedMasterKeyBlob string
	Salt                 string
	KDFIterations        int
	UpdatedAt            time.Time
}

// Profile is the non-secret part of the operator account.
type Profile struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	DisplayName    string `json:"displayName"`
	AmbulatoryName string `json:"ambulatoryName"`
	Role           string `json:"role"`
}

// KindNote is the record kind used for free-text notes.
const KindNote = "note"

// Note is the plaintext of a KindNote record.
type Note struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}
