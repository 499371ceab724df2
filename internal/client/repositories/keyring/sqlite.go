package keyring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/medkeeper/internal/client/models"
	"github.com/dmitrijs2005/medkeeper/internal/common"
	"github.com/dmitrijs2005/medkeeper/internal/dbx"
)

var ErrIncomplete = errors.New("keyring: incomplete key material")

type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Load(ctx context.Context) (*models.Keyring, error) {
	k := &models.Keyring{}
	err := r.db.QueryRowContext(ctx,
		`SELECT wrapped_master_key, salt, kdf_iterations, updated_at FROM keyring WHERE id = 1`,
	).Scan(&k.WrappedMasterKeyBlob, &k.Salt, &k.KDFIterations, &k.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load keyring: %w", err)
	}
	return k, nil
}

// Save rejects a keyring without a blob, a salt or an iteration count; a
// partial keyring could never unwrap the master key.
func (r *SQLiteRepository) Save(ctx context.Context, k *models.Keyring) error {
	if k == nil || k.WrappedMasterKeyBlob == "" || k.Salt == "" || k.KDFIterations <= 0 {
		return ErrIncomplete
	}

	updated := r.now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO keyring (id, wrapped_master_key, salt, kdf_iterations, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			wrapped_master_key = excluded.wrapped_master_key,
			salt = excluded.salt,
			kdf_iterations = excluded.kdf_iterations,
			updated_at = excluded.updated_at
	`, k.WrappedMasterKeyBlob, k.Salt, k.KDFIterations, updated)
	if err != nil {
		return fmt.Errorf("failed to save keyring: %w", err)
	}
	k.UpdatedAt = updated
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM keyring`); err != nil {
		return fmt.Errorf("failed to clear keyring: %w", err)
	}
	return nil
}
