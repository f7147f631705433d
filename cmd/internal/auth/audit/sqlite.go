package audit

import (
	"context"
	"database/sql"
	"time"

	"community/cmd/internal/sqlitedb"
)

// SQLiteLog writes to auth_audit on a handle opened by sqlitedb.Open.
type SQLiteLog struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteLog(db *sql.DB) *SQLiteLog {
	return &SQLiteLog{db: db, now: time.Now}
}

func (l *SQLiteLog) Record(ctx context.Context, ev Event) error {
	ev, err := prepare(ev, l.now)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO auth_audit (id, action, user_id, identifier, ip, user_agent, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Action, nullable(ev.UserID), nullable(ev.Identifier), nullable(ev.IP),
		nullable(ev.UserAgent), metaJSON(ev.Meta), sqlitedb.ToMillis(ev.CreatedAt))
	return err
}

func (l *SQLiteLog) CountFailures(ctx context.Context, by By, value string, since time.Time) (int, error) {
	if value == "" {
		return 0, nil
	}
	q := `SELECT count(*) FROM auth_audit WHERE action = ? AND identifier = ? AND created_at >= ?`
	if by == ByIP {
		q = `SELECT count(*) FROM auth_audit WHERE action = ? AND ip = ? AND created_at >= ?`
	}
	var n int
	err := l.db.QueryRowContext(ctx, q, ActionLoginFailed, value, sqlitedb.ToMillis(since)).Scan(&n)
	return n, err
}
