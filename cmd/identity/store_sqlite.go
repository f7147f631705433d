package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"community/cmd/identity/ids"
	"community/cmd/internal/sqlitedb"
)

// SQLiteStore implements Store on a database/sql handle opened by sqlitedb.Open.
// The handle is owned by the caller.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const sqliteUserColumns = `id, email, nickname, password_hash, role, created_at, deleted_at`

func (s *SQLiteStore) FindByEmailIncludingDeleted(ctx context.Context, email string) (User, error) {
	const op = "identity.FindByEmailIncludingDeleted"
	return sqliteScanUser(op, s.db.QueryRowContext(ctx,
		`SELECT `+sqliteUserColumns+` FROM users WHERE email = ?`, NormalizeEmail(email)))
}

func (s *SQLiteStore) FindByID(ctx context.Context, id string) (User, error) {
	const op = "identity.FindByID"
	return sqliteScanUser(op, s.db.QueryRowContext(ctx,
		`SELECT `+sqliteUserColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`, id))
}

func (s *SQLiteStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"
	in, err := prepareCreate(op, in)
	if err != nil {
		return User{}, err
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, nickname, password_hash, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, in.Email, in.Nickname, in.PasswordHash, string(in.Role), sqlitedb.ToMillis(in.Now))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		return User{}, err
	}

	return User{
		ID:           id,
		Email:        in.Email,
		Nickname:     in.Nickname,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		CreatedAt:    sqlitedb.FromMillis(sqlitedb.ToMillis(in.Now)),
	}, nil
}

func (s *SQLiteStore) SoftDelete(ctx context.Context, id string, now time.Time) error {
	const op = "identity.SoftDelete"
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		sqlitedb.ToMillis(now), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(op)
	}
	return nil
}

func sqliteScanUser(op string, row *sql.Row) (User, error) {
	var (
		u         User
		role      string
		createdAt int64
		deletedAt sql.NullInt64
	)
	err := row.Scan(&u.ID, &u.Email, &u.Nickname, &u.PasswordHash, &role, &createdAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, notFound(op)
	}
	if err != nil {
		return User{}, err
	}
	u.Role = ParseRole(role)
	u.CreatedAt = sqlitedb.FromMillis(createdAt)
	u.DeletedAt = sqlitedb.FromNullMillis(deletedAt)
	return u, nil
}
