// Package postgres is the production store driver: pgx pool, squirrel-built
// queries and pgvector embedding columns.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/starford/synapse/internal/store"
)

const defaultPingTimeout = 3 * time.Second

// Config configures the pool.
type Config struct {
	DSN      string
	MaxConns int32
	Migrate  bool
}

// DB is the minimal database interface the store depends on (pgxpool or pgxmock).
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store implements store.Store on PostgreSQL.
type Store struct {
	db    DB
	close func()
}

var _ store.Store = (*Store)(nil)

// New wraps an existing DB handle. Close is a no-op for handles created elsewhere.
func New(db DB) *Store {
	return &Store{db: db, close: func() {}}
}

// Open creates a pool, optionally applies migrations and checks connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Migrate {
		if err := ApplyMigrations(ctx, cfg.DSN); err != nil {
			return nil, err
		}
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{db: pool, close: pool.Close}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.close()
	return nil
}
