package client

import (
	"context"

	"github.com/dmitrijs2005/medkeeper/internal/shared"
)

// Client is the credential store as seen from the client.
type Client interface {
	// Ping reports whether the server is reachable.
	Ping(ctx context.Context) error
	// SetupStatus reports whether the operator account exists.
	SetupStatus(ctx context.Context) (bool, error)
	// Setup creates the operator account. common.ErrAlreadySetup when one
	// exists, common.ErrMissingFields when the request is incomplete.
	Setup(ctx context.Context, req shared.SetupRequest) (*shared.AuthResponse, error)
	// Login verifies credentials and returns the wrapped key, salt and profile.
	// common.ErrInvalidCredentials on any mismatch.
	Login(ctx context.Context, username, password string) (*shared.AuthResponse, error)
	// Refresh exchanges a still valid token for a new one.
	// common.ErrInvalidToken once the token is expired or revoked.
	Refresh(ctx context.Context, token string) (string, error)
	// ExportAccount returns the account section of a backup.
	ExportAccount(ctx context.Context, token string) (*shared.AccountExport, error)
	// RestoreAccount replaces the server account. token may be empty on a
	// server that has not been set up.
	RestoreAccount(ctx context.Context, token string, exp shared.AccountExport) error
}
