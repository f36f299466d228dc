package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abduss/labportal/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultDBTimeout = 5 * time.Second

// querier is the subset of *pgxpool.Pool used by PostgresStorage.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStorage keeps entries in the token_entries table.
type PostgresStorage struct {
	db querier
}

// NewPostgresStorage constructs a PostgresStorage over a pgx pool.
func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{db: pool}
}

// NewPostgresPool connects to PostgreSQL using pgx.
func NewPostgresPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultDBTimeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the token_entries table when missing.
func (p *PostgresStorage) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultDBTimeout)
	defer cancel()

	query := `
CREATE TABLE IF NOT EXISTS token_entries (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

	if _, err := p.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create token_entries: %w", err)
	}
	return nil
}

func (p *PostgresStorage) Load(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultDBTimeout)
	defer cancel()

	query := `
SELECT value
FROM token_entries
WHERE key = $1;`

	var value string
	if err := p.db.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("load token entry: %w", err)
	}
	return value, true, nil
}

func (p *PostgresStorage) Save(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultDBTimeout)
	defer cancel()

	query := `
INSERT INTO token_entries (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, updated_at = NOW();`

	if _, err := p.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("save token entry: %w", err)
	}
	return nil
}

func (p *PostgresStorage) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultDBTimeout)
	defer cancel()

	query := `
DELETE FROM token_entries
WHERE key = $1;`

	if _, err := p.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("delete token entry: %w", err)
	}
	return nil
}

func (p *PostgresStorage) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultDBTimeout)
	defer cancel()
	return p.db.Ping(ctx)
}
