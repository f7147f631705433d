package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"community/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over the users table.
// The pgx pool is owned by the caller; this store never closes it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the users table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "public"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) users() string {
	return pgx.Identifier{s.schema, "users"}.Sanitize()
}

const pgUserColumns = `id, email, nickname, password_hash, role, created_at, deleted_at`

func (s *PostgresStore) FindByEmailIncludingDeleted(ctx context.Context, email string) (User, error) {
	const op = "identity.FindByEmailIncludingDeleted"
	return pgScanUser(op, s.pool.QueryRow(ctx,
		`SELECT `+pgUserColumns+` FROM `+s.users()+` WHERE email = $1`,
		NormalizeEmail(email)))
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (User, error) {
	const op = "identity.FindByID"
	return pgScanUser(op, s.pool.QueryRow(ctx,
		`SELECT `+pgUserColumns+` FROM `+s.users()+` WHERE id = $1 AND deleted_at IS NULL`,
		id))
}

func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"
	in, err := prepareCreate(op, in)
	if err != nil {
		return User{}, err
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.users()+` (id, email, nickname, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, in.Email, in.Nickname, in.PasswordHash, string(in.Role), in.Now)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return User{
		ID:           id,
		Email:        in.Email,
		Nickname:     in.Nickname,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		CreatedAt:    in.Now,
	}, nil
}

func (s *PostgresStore) SoftDelete(ctx context.Context, id string, now time.Time) error {
	const op = "identity.SoftDelete"
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.users()+` SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, now.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(op)
	}
	return nil
}

func pgScanUser(op string, row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Nickname, &u.PasswordHash, &role, &u.CreatedAt, &u.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, notFound(op)
	}
	if err != nil {
		return User{}, err
	}
	u.Role = ParseRole(role)
	u.CreatedAt = u.CreatedAt.UTC()
	if u.DeletedAt != nil {
		at := u.DeletedAt.UTC()
		u.DeletedAt = &at
	}
	return u, nil
}

// pgClassifyUniqueViolation maps a 23505 error to the logical field it guards.
func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}

	c := strings.ToLower(pgErr.ConstraintName)
	switch {
	case strings.Contains(c, "email"):
		return "email", true
	case strings.Contains(c, "pkey"):
		return "id", true
	default:
		return "unique", true
	}
}
