// Package keyring caches the wrapped master key, its salt and the PBKDF2
// iteration count in the local database. At most one keyring exists.
package keyring

import (
	"context"

	"github.com/dmitrijs2005/medkeeper/internal/client/models"
)

type Repository interface {
	// Load returns common.ErrNotFound when nothing is cached.
	Load(ctx context.Context) (*models.Keyring, error)
	// Save replaces the cached keyring.
	Save(ctx context.Context, k *models.Keyring) error
	Clear(ctx context.Context) error
}
