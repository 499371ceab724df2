package accounts

import "github.com/dmitrijs2005/medkeeper/internal/dbx"

var postgresQueries = queries{
	count: `SELECT COUNT(*) FROM accounts`,
	insert: `INSERT INTO accounts (id, username, password_hash, display_name, ambulatory_name, role, wrapped_master_key, salt, kdf_iterations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	getByUsername: `SELECT ` + selectColumns + ` FROM accounts WHERE username = $1`,
	getByID:       `SELECT ` + selectColumns + ` FROM accounts WHERE id = $1`,
	deleteAll:     `DELETE FROM accounts`,
}

// NewPostgresRepository returns a Repository using PostgreSQL placeholders.
func NewPostgresRepository(db dbx.DBTX) Repository {
	return &sqlRepository{db: db, q: postgresQueries}
}
