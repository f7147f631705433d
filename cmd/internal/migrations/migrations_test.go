package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestFS_BothDialectsShipSameVersions(t *testing.T) {
	pg, err := FS(Postgres)
	require.NoError(t, err)
	lite, err := FS(SQLite)
	require.NoError(t, err)

	pgFiles, err := fs.Glob(pg, "*.sql")
	require.NoError(t, err)
	liteFiles, err := fs.Glob(lite, "*.sql")
	require.NoError(t, err)

	require.NotEmpty(t, pgFiles)
	require.Equal(t, pgFiles, liteFiles)
}

func TestFS_UnknownDialect(t *testing.T) {
	_, err := FS("oracle")
	require.Error(t, err)
}

func TestUp_SQLiteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	n, err := Up(ctx, db, SQLite)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = Up(ctx, db, SQLite)
	require.NoError(t, err)
	require.Zero(t, n)

	for _, table := range []string{"users", "refresh_tokens", "auth_audit"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}
