// Package migrations embeds the credential store schema for goose.
// The SQL is kept portable between PostgreSQL and SQLite.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
