// Package repomanager vends dialect-specific repositories for the credential
// store and runs its schema migrations via goose.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/medkeeper/internal/dbx"
	"github.com/dmitrijs2005/medkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/medkeeper/internal/server/repositories/accounts"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DialectForDSN picks PostgreSQL for postgres:// URLs and SQLite otherwise.
func DialectForDSN(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

func driverName(d Dialect) string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

func gooseDialect(d Dialect) string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// Open opens the database for dsn with the matching driver and verifies the
// connection.
func Open(ctx context.Context, dsn string) (*sql.DB, Dialect, error) {
	d := DialectForDSN(dsn)
	db, err := sql.Open(driverName(d), dsn)
	if err != nil {
		return nil, d, fmt.Errorf("open %s: %w", d, err)
	}
	if d == DialectSQLite {
		// single writer keeps the count+insert transaction serialized
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, d, fmt.Errorf("ping %s: %w", d, err)
	}
	return db, d, nil
}

type SQLRepositoryManager struct {
	dialect Dialect
}

func (m *SQLRepositoryManager) Dialect() Dialect { return m.dialect }

// Accounts returns an accounts.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Accounts(db dbx.DBTX) accounts.Repository {
	if m.dialect == DialectPostgres {
		return accounts.NewPostgresRepository(db)
	}
	return accounts.NewSQLiteRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations to db.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(gooseDialect(m.dialect)); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

func NewRepositoryManager(d Dialect) (RepositoryManager, error) {
	switch d {
	case DialectPostgres, DialectSQLite:
		return &SQLRepositoryManager{dialect: d}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", d)
	}
}
