package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/medkeeper/internal/client/models"
	"github.com/dmitrijs2005/medkeeper/internal/common"
	"github.com/dmitrijs2005/medkeeper/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, rec *models.Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO records (id, kind, iv, ciphertext, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			iv = excluded.iv,
			ciphertext = excluded.ciphertext,
			updated_at = excluded.updated_at
	`, rec.ID, rec.Kind, rec.IV, rec.Ciphertext, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to put record[%s]: %w", rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Record, error) {
	rec := &models.Record{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, kind, iv, ciphertext, created_at, updated_at FROM records WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Kind, &rec.IV, &rec.Ciphertext, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record[%s]: %w", id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) List(ctx context.Context, kind string) ([]*models.Record, error) {
	query := `SELECT id, kind, iv, ciphertext, created_at, updated_at FROM records`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		rec := &models.Record{}
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.IV, &rec.Ciphertext, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record rows: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete record[%s]: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return nil
}
