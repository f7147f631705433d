package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"community/cmd/identity"
	"community/cmd/internal/auth/audit"
	"community/cmd/internal/auth/session"
	"community/cmd/internal/sqlitedb"
	sectoken "community/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Storage backends.
const (
	backendPostgres = "postgres"
	backendSQLite   = "sqlite"
	backendMemory   = "memory"
)

// stores bundles the persistence the auth stack runs on. One backend serves all three.
type stores struct {
	backend  string
	sessions session.Store
	users    identity.Store
	audit    audit.Log

	pool *pgxpool.Pool
	db   *sql.DB
}

// ping reports whether the configured database answers. Memory always does.
func (s *stores) ping(ctx context.Context) error {
	switch {
	case s.pool != nil:
		return PingDB(ctx, s.pool, 2*time.Second)
	case s.db != nil:
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return s.db.PingContext(ctx)
	}
	return nil
}

func (s *stores) persistent() bool { return s.backend != backendMemory }

func (s *stores) Close() error {
	if s.sessions != nil {
		_ = s.sessions.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// openStores picks Postgres when a URL is set, then SQLite when a path is set, then memory.
func openStores(ctx context.Context, cfg Config, log Logger) (*stores, error) {
	hasher, err := sectoken.NewHasher([]byte(cfg.TokenHashKey))
	if err != nil {
		return nil, fmt.Errorf("%w: token hash key: %v", ErrConfig, err)
	}

	switch {
	case cfg.DatabaseURL != "":
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		n, err := MigratePostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		users, err := identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("db.enabled.postgres_store", "migrations_applied", n, "hmac", hasher.Keyed())
		return &stores{
			backend:  backendPostgres,
			sessions: session.NewPostgresStore(pool, hasher),
			users:    users,
			audit:    audit.NewPostgresLog(pool),
			pool:     pool,
		}, nil

	case cfg.SQLitePath != "":
		db, err := sqlitedb.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("db.enabled.sqlite_store", "path", cfg.SQLitePath, "hmac", hasher.Keyed())
		return &stores{
			backend:  backendSQLite,
			sessions: session.NewSQLiteStore(db, hasher),
			users:    identity.NewSQLiteStore(db),
			audit:    audit.NewSQLiteLog(db),
			db:       db,
		}, nil
	}

	log.Info("db.disabled.inmemory_store", "hmac", hasher.Keyed())
	return &stores{
		backend:  backendMemory,
		sessions: session.NewMemoryStore(hasher),
		users:    identity.NewMemoryStore(),
		audit:    audit.NewMemoryLog(0),
	}, nil
}
