// Package accounts persists the operator account for PostgreSQL and SQLite.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/medkeeper/internal/server/models"
)

type Repository interface {
	// Count returns the number of stored accounts (0 or 1).
	Count(ctx context.Context) (int, error)
	// Create inserts a new account. The schema rejects a second row.
	Create(ctx context.Context, account *models.Account) error
	// GetByUsername returns common.ErrNotFound for an unknown username.
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	// GetByID returns common.ErrNotFound for an unknown id.
	GetByID(ctx context.Context, id string) (*models.Account, error)
	DeleteAll(ctx context.Context) error
}
