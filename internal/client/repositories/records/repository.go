// Package records stores encrypted records in the local SQLite database.
package records

import (
	"context"

	"github.com/dmitrijs2005/medkeeper/internal/client/models"
)

type Repository interface {
	// Put inserts or replaces a record by id.
	Put(ctx context.Context, r *models.Record) error
	// Get returns common.ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (*models.Record, error)
	// List returns records ordered by creation time; an empty kind lists all.
	List(ctx context.Context, kind string) ([]*models.Record, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}
