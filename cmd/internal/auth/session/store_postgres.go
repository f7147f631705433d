package session

import (
	"context"
	"errors"
	"time"

	"community/cmd/identity/ids"
	sectoken "community/cmd/security/token"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// pgQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL (refresh_tokens).
// The pool is owned by the caller; Close does not close it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	hasher sectoken.Hasher
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, hasher sectoken.Hasher) *PostgresStore {
	return &PostgresStore{pool: pool, hasher: hasher}
}

const pgSelectRow = `
	SELECT
		id, user_id, token_hash, expires_at, revoked, revoked_at,
		COALESCE(revocation_reason, ''), COALESCE(user_agent, ''), COALESCE(ip, ''), created_at
	FROM refresh_tokens`

func (s *PostgresStore) Persist(ctx context.Context, now time.Time, userID, token string, expiresAt time.Time, dev Device) (Row, error) {
	if err := validate(userID, token); err != nil {
		return Row{}, err
	}
	return pgInsert(ctx, s.pool, now, userID, s.hasher.Hash(token), expiresAt, dev)
}

func (s *PostgresStore) FindActive(ctx context.Context, token string) (Row, error) {
	return pgScanRow(s.pool.QueryRow(ctx, pgSelectRow+`
		WHERE token_hash = $1 AND revoked = FALSE
	`, s.hasher.Hash(token)))
}

func (s *PostgresStore) Lookup(ctx context.Context, token string) (Row, error) {
	return pgScanRow(s.pool.QueryRow(ctx, pgSelectRow+`
		WHERE token_hash = $1
	`, s.hasher.Hash(token)))
}

func (s *PostgresStore) RevokeAllForUser(ctx context.Context, now time.Time, userID, reason string) (int64, error) {
	return pgRevokeAll(ctx, s.pool, now, userID, reason)
}

// Revoke revokes a single row (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, token, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE,
		    revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE token_hash = $1 AND revoked = FALSE
	`, s.hasher.Hash(token), now.UTC(), reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReplaceForUser serializes concurrent logins for the same user with a
// transaction-scoped advisory lock, then revokes and inserts.
func (s *PostgresStore) ReplaceForUser(ctx context.Context, now time.Time, userID, token string, expiresAt time.Time, dev Device) (Row, int64, error) {
	if err := validate(userID, token); err != nil {
		return Row{}, 0, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Row{}, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
		return Row{}, 0, err
	}

	revoked, err := pgRevokeAll(ctx, tx, now, userID, ReasonSuperseded)
	if err != nil {
		return Row{}, 0, err
	}

	row, err := pgInsert(ctx, tx, now, userID, s.hasher.Hash(token), expiresAt, dev)
	if err != nil {
		return Row{}, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Row{}, 0, err
	}
	return row, revoked, nil
}

func (s *PostgresStore) Close() error { return nil }

func pgInsert(ctx context.Context, q pgQuerier, now time.Time, userID, hash string, expiresAt time.Time, dev Device) (Row, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return Row{}, err
	}

	row := Row{
		ID:        id,
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: expiresAt.UTC(),
		UserAgent: trimTo(dev.UserAgent, 512),
		IP:        dev.IP,
		CreatedAt: now.UTC(),
	}

	_, err = q.Exec(ctx, `
		INSERT INTO refresh_tokens (
			id, user_id, token_hash, expires_at, revoked, created_at, user_agent, ip
		) VALUES ($1, $2, $3, $4, FALSE, $5, $6, $7)
	`, row.ID, row.UserID, row.TokenHash, row.ExpiresAt, row.CreatedAt, nullIfEmpty(row.UserAgent), nullIfEmpty(row.IP))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Row{}, ErrDuplicate
		}
		return Row{}, err
	}
	return row, nil
}

func pgRevokeAll(ctx context.Context, q pgQuerier, now time.Time, userID, reason string) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE,
		    revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE user_id = $1 AND revoked = FALSE
	`, userID, now.UTC(), reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func pgScanRow(r pgx.Row) (Row, error) {
	var row Row
	err := r.Scan(
		&row.ID,
		&row.UserID,
		&row.TokenHash,
		&row.ExpiresAt,
		&row.Revoked,
		&row.RevokedAt,
		&row.RevocationReason,
		&row.UserAgent,
		&row.IP,
		&row.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	if err != nil {
		return Row{}, err
	}
	row.ExpiresAt = row.ExpiresAt.UTC()
	row.CreatedAt = row.CreatedAt.UTC()
	if row.RevokedAt != nil {
		t := row.RevokedAt.UTC()
		row.RevokedAt = &t
	}
	return row, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
