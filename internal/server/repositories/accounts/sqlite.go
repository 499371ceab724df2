package accounts

import "github.com/dmitrijs2005/medkeeper/internal/dbx"

var sqliteQueries = queries{
	count: `SELECT COUNT(*) FROM accounts`,
	insert: `INSERT INTO accounts (id, username, password_hash, display_name, ambulatory_name, role, wrapped_master_key, salt, kdf_iterations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	getByUsername: `SELECT ` + selectColumns + ` FROM accounts WHERE username = ?`,
	getByID:       `SELECT ` + selectColumns + ` FROM accounts WHERE id = ?`,
	deleteAll:     `DELETE FROM accounts`,
}

func NewSQLiteRepository(db dbx.DBTX) Repository {
	return &sqlRepository{db: db, q: sqliteQueries}
}
