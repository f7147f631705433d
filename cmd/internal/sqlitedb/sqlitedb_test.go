package sqlitedb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpen_AppliesMigrationsAndReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "community.db")

	db, err := Open(ctx, path)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO users (id, email, nickname, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"u1", "a@example.com", "a", "x", "USER", ToMillis(time.Now()))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n))
	require.Equal(t, 1, n)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestMillisRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	require.Equal(t, now, FromMillis(ToMillis(now)))

	require.False(t, NullMillis(nil).Valid)
	require.Nil(t, FromNullMillis(NullMillis(nil)))

	got := FromNullMillis(NullMillis(&now))
	require.NotNil(t, got)
	require.Equal(t, now, *got)
}
