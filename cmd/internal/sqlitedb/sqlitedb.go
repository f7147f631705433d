// Package sqlitedb opens the single-file SQLite database used when no Postgres URL is configured.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"community/cmd/internal/migrations"

	_ "modernc.org/sqlite"
)

// Open opens (creating if needed) the database at path and applies bundled migrations.
//
// Write transactions take the lock up front (_txlock=immediate) so concurrent logins
// for the same user serialize instead of failing with SQLITE_BUSY mid-transaction.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	if _, err := migrations.Up(ctx, db, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// ToMillis normalizes timestamps into millisecond precision for storage.
func ToMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

// FromMillis restores a stored timestamp as UTC.
func FromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// NullMillis converts an optional timestamp for storage.
func NullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: ToMillis(*t), Valid: true}
}

// FromNullMillis converts an optional stored timestamp.
func FromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := FromMillis(v.Int64)
	return &t
}
