// Package common defines shared constants, sentinel errors and small helpers
// used across the medkeeper client and server. Callers should use errors.Is to
// match the sentinel values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal = errors.New("internal error")

	// Credential store errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadySetup       = errors.New("account already set up")
	ErrMissingFields      = errors.New("missing required fields")

	// Session errors.
	ErrSetupFailed = errors.New("setup failed")
	ErrLocked      = errors.New("vault is locked")
	ErrNotUnlocked = errors.New("session is not unlocked")

	// Backup errors.
	ErrImportCorrupted = errors.New("backup is corrupted")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
