package session

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"community/cmd/identity/ids"
	"community/cmd/internal/sqlitedb"
	sectoken "community/cmd/security/token"
)

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store over a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	hasher sectoken.Hasher
	owned  bool
}

// NewSQLiteStore wraps an already migrated database. The caller owns db.
func NewSQLiteStore(db *sql.DB, hasher sectoken.Hasher) *SQLiteStore {
	return &SQLiteStore{db: db, hasher: hasher}
}

// OpenSQLiteStore opens path, applies migrations and owns the handle.
func OpenSQLiteStore(ctx context.Context, path string, hasher sectoken.Hasher) (*SQLiteStore, error) {
	db, err := sqlitedb.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, hasher: hasher, owned: true}, nil
}

const sqliteSelectRow = `
	SELECT
		id, user_id, token_hash, expires_at, revoked, revoked_at,
		COALESCE(revocation_reason, ''), COALESCE(user_agent, ''), COALESCE(ip, ''), created_at
	FROM refresh_tokens`

func (s *SQLiteStore) Persist(ctx context.Context, now time.Time, userID, token string, expiresAt time.Time, dev Device) (Row, error) {
	if err := validate(userID, token); err != nil {
		return Row{}, err
	}
	return sqliteInsert(ctx, s.db, now, userID, s.hasher.Hash(token), expiresAt, dev)
}

func (s *SQLiteStore) FindActive(ctx context.Context, token string) (Row, error) {
	return sqliteScanRow(s.db.QueryRowContext(ctx, sqliteSelectRow+`
		WHERE token_hash = ? AND revoked = 0
	`, s.hasher.Hash(token)))
}

func (s *SQLiteStore) Lookup(ctx context.Context, token string) (Row, error) {
	return sqliteScanRow(s.db.QueryRowContext(ctx, sqliteSelectRow+`
		WHERE token_hash = ?
	`, s.hasher.Hash(token)))
}

func (s *SQLiteStore) RevokeAllForUser(ctx context.Context, now time.Time, userID, reason string) (int64, error) {
	return sqliteRevokeAll(ctx, s.db, now, userID, reason)
}

func (s *SQLiteStore) Revoke(ctx context.Context, now time.Time, token, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1,
		    revoked_at = COALESCE(revoked_at, ?),
		    revocation_reason = COALESCE(revocation_reason, ?)
		WHERE token_hash = ? AND revoked = 0
	`, sqlitedb.ToMillis(now), reason, s.hasher.Hash(token))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) ReplaceForUser(ctx context.Context, now time.Time, userID, token string, expiresAt time.Time, dev Device) (Row, int64, error) {
	if err := validate(userID, token); err != nil {
		return Row{}, 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Row{}, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	revoked, err := sqliteRevokeAll(ctx, tx, now, userID, ReasonSuperseded)
	if err != nil {
		return Row{}, 0, err
	}

	row, err := sqliteInsert(ctx, tx, now, userID, s.hasher.Hash(token), expiresAt, dev)
	if err != nil {
		return Row{}, 0, err
	}

	if err := tx.Commit(); err != nil {
		return Row{}, 0, err
	}
	return row, revoked, nil
}

// Close closes the database only when the store opened it.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}

func sqliteInsert(ctx context.Context, q sqlExecer, now time.Time, userID, hash string, expiresAt time.Time, dev Device) (Row, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return Row{}, err
	}

	row := Row{
		ID:        id,
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: sqlitedb.FromMillis(sqlitedb.ToMillis(expiresAt)),
		UserAgent: trimTo(dev.UserAgent, 512),
		IP:        dev.IP,
		CreatedAt: sqlitedb.FromMillis(sqlitedb.ToMillis(now)),
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO refresh_tokens (
			id, user_id, token_hash, expires_at, revoked, created_at, user_agent, ip
		) VALUES (?, ?, ?, ?, 0, ?, ?, ?)
	`, row.ID, row.UserID, row.TokenHash, sqlitedb.ToMillis(row.ExpiresAt), sqlitedb.ToMillis(row.CreatedAt),
		nullString(row.UserAgent), nullString(row.IP))
	if err != nil {
		if isSQLiteUnique(err) {
			return Row{}, ErrDuplicate
		}
		return Row{}, err
	}
	return row, nil
}

func sqliteRevokeAll(ctx context.Context, q sqlExecer, now time.Time, userID, reason string) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1,
		    revoked_at = COALESCE(revoked_at, ?),
		    revocation_reason = COALESCE(revocation_reason, ?)
		WHERE user_id = ? AND revoked = 0
	`, sqlitedb.ToMillis(now), reason, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func sqliteScanRow(r *sql.Row) (Row, error) {
	var (
		row       Row
		expiresAt int64
		createdAt int64
		revokedAt sql.NullInt64
	)
	err := r.Scan(
		&row.ID,
		&row.UserID,
		&row.TokenHash,
		&expiresAt,
		&row.Revoked,
		&revokedAt,
		&row.RevocationReason,
		&row.UserAgent,
		&row.IP,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	if err != nil {
		return Row{}, err
	}
	row.ExpiresAt = sqlitedb.FromMillis(expiresAt)
	row.CreatedAt = sqlitedb.FromMillis(createdAt)
	row.RevokedAt = sqlitedb.FromNullMillis(revokedAt)
	return row, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isSQLiteUnique matches the driver's constraint message; modernc does not export a stable code type here.
func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
