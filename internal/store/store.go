// Package store provides the Postgres-backed canonical entity store. All
// writes are insert-or-update keyed by primary identifier, so re-applying a
// record is always safe.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crawlify/crawlify/internal/metrics"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists and reads canonical entities.
type Store struct {
	pool querier
}

// New connects a Store to Postgres.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	metrics.Init()
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	metrics.Init()
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS vorgang (
	vorgang_id TEXT PRIMARY KEY,
	vorgangstyp TEXT NOT NULL DEFAULT '',
	titel TEXT,
	datum TEXT,
	beratungsstand TEXT,
	wahlperiode TEXT,
	initiatoren_json JSONB,
	ressort TEXT,
	schlagworte_json JSONB,
	abstrakt TEXT,
	quelle TEXT NOT NULL,
	embedding_json JSONB,
	embedding_version TEXT,
	raw_json JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vorgang_beratungsstand ON vorgang (beratungsstand);
CREATE INDEX IF NOT EXISTS idx_vorgang_datum ON vorgang (datum);

CREATE TABLE IF NOT EXISTS drucksache (
	drucksache_id TEXT PRIMARY KEY,
	vorgang_id TEXT NOT NULL REFERENCES vorgang(vorgang_id),
	titel TEXT,
	drucksachetyp TEXT,
	drucksache_nummer TEXT,
	datum TEXT,
	dok_url TEXT,
	dokument_typ TEXT,
	raw_json JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_drucksache_vorgang ON drucksache (vorgang_id);

CREATE TABLE IF NOT EXISTS drucksache_text (
	drucksache_id TEXT PRIMARY KEY REFERENCES drucksache(drucksache_id),
	volltext TEXT,
	text_format TEXT,
	laenge INTEGER NOT NULL DEFAULT 0,
	raw_json JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// InitSchema creates the tables and indexes if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return data, nil
}

// jsonOrNil keeps empty collections as SQL NULL rather than empty arrays.
func jsonOrNil(list []string) ([]byte, error) {
	if len(list) == 0 {
		return nil, nil
	}
	return marshalJSON(list)
}
