// Package models holds the server-side persistence models.
package models

import "time"

// Account is the single operator account. Salt and WrappedMasterKey are the
// base64 strings produced by the client; the server never sees the master key.
// KDFIterations is the PBKDF2 cost the client derived the KEK with.
type Account struct {
	ID               string
	Username         string
	PasswordHash     string
	DisplayName      string
	AmbulatoryName   string
	Role             string
	WrappedMasterKey string
	Salt             string
	KDFIterations    int
	CreatedAt        time.Time
}
