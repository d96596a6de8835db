// Package postgres provides Postgres-backed snapshot persistence.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tkearney/tenderfeed/internal/tender"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for snapshot blobs.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// SnapshotStore keeps one row per key in a small blob table. The upsert
// replaces the row's value in a single statement, so readers see either
// the old snapshot or the new one, never a partial write.
type SnapshotStore struct {
	pool  pgxPool
	table string
}

// New creates a Postgres-backed SnapshotStore using the provided config.
func New(ctx context.Context, cfg Config) (*SnapshotStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres_dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "snapshots"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &SnapshotStore{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, table string) (*SnapshotStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "snapshots"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SnapshotStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the blob table if it does not exist.
func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, data BYTEA NOT NULL, updated_at TIMESTAMPTZ NOT NULL DEFAULT now())`,
		s.table,
	)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Get returns the blob stored under key, or tender.ErrNotFound.
func (s *SnapshotStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE key = $1`, s.table)
	var data []byte
	if err := s.pool.QueryRow(ctx, query, key).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tender.ErrNotFound
		}
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return data, nil
}

// Put upserts the blob for key.
func (s *SnapshotStore) Put(ctx context.Context, key string, data []byte) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (key, data, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		s.table,
	)
	if _, err := s.pool.Exec(ctx, query, key, data); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *SnapshotStore) Close() {
	s.pool.Close()
}
