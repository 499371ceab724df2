package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/medkeeper/internal/common"
	"github.com/dmitrijs2005/medkeeper/internal/dbx"
	"github.com/dmitrijs2005/medkeeper/internal/server/models"
)

type queries struct {
	count         string
	insert        string
	getByUsername string
	getByID       string
	deleteAll     string
}

const selectColumns = `id, username, password_hash, display_name, ambulatory_name, role, wrapped_master_key, salt, kdf_iterations, created_at`

// sqlRepository is shared by the dialects; only the placeholder syntax differs.
type sqlRepository struct {
	db dbx.DBTX
	q  queries
}

func (r *sqlRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, r.q.count).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *sqlRepository) Create(ctx context.Context, a *models.Account) error {
	_, err := r.db.ExecContext(ctx, r.q.insert,
		a.ID, a.Username, a.PasswordHash, a.DisplayName, a.AmbulatoryName, a.Role,
		a.WrappedMasterKey, a.Salt, a.KDFIterations, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *sqlRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return scanOne(r.db.QueryRowContext(ctx, r.q.getByUsername, username))
}

func (r *sqlRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return scanOne(r.db.QueryRowContext(ctx, r.q.getByID, id))
}

func (r *sqlRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.q.deleteAll); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func scanOne(row *sql.Row) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.DisplayName, &a.AmbulatoryName,
		&a.Role, &a.WrappedMasterKey, &a.Salt, &a.KDFIterations, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}
