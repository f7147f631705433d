package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLog writes to auth_audit. The pool is owned by the caller.
type PostgresLog struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool, now: time.Now}
}

func (l *PostgresLog) Record(ctx context.Context, ev Event) error {
	ev, err := prepare(ev, l.now)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO auth_audit (id, action, user_id, identifier, ip, user_agent, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
	`, ev.ID, ev.Action, nullable(ev.UserID), nullable(ev.Identifier), nullable(ev.IP),
		nullable(ev.UserAgent), metaJSON(ev.Meta), ev.CreatedAt)
	return err
}

func (l *PostgresLog) CountFailures(ctx context.Context, by By, value string, since time.Time) (int, error) {
	if value == "" {
		return 0, nil
	}
	q := `SELECT count(*) FROM auth_audit WHERE action = $1 AND identifier = $2 AND created_at >= $3`
	if by == ByIP {
		q = `SELECT count(*) FROM auth_audit WHERE action = $1 AND ip = $2 AND created_at >= $3`
	}
	var n int
	err := l.pool.QueryRow(ctx, q, ActionLoginFailed, value, since.UTC()).Scan(&n)
	return n, err
}
