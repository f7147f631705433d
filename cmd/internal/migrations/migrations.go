// Package migrations embeds the schema for every supported SQL backend and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Dialect names a supported backend.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// FS returns the migration files for d.
func FS(d Dialect) (fs.FS, error) {
	switch d {
	case Postgres, SQLite:
		return fs.Sub(files, string(d))
	default:
		return nil, fmt.Errorf("migrations: unknown dialect %q", d)
	}
}

// Up applies all pending migrations and returns how many ran.
func Up(ctx context.Context, db *sql.DB, d Dialect) (int, error) {
	fsys, err := FS(d)
	if err != nil {
		return 0, err
	}

	gd := goose.DialectPostgres
	if d == SQLite {
		gd = goose.DialectSQLite3
	}

	p, err := goose.NewProvider(gd, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("migrations: provider: %w", err)
	}

	results, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrations: up: %w", err)
	}
	return len(results), nil
}
