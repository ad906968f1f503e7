package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCatalog keeps external table definitions in a shared Postgres
// database, for deployments where several hosts run the pipeline.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

func NewPostgresCatalog(ctx context.Context, dsn string) (*PostgresCatalog, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS external_tables (
			id BIGSERIAL PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			format TEXT NOT NULL,
			source_uri_pattern TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create external_tables: %w", err)
	}
	return &PostgresCatalog{pool: pool}, nil
}

func (c *PostgresCatalog) EnsureExternalTable(ctx context.Context, name, format, sourceURIPattern string) error {
	if name == "" || format == "" || sourceURIPattern == "" {
		return &CatalogError{Table: name, Err: errors.New("name, format and source pattern are required")}
	}
	_, err := c.pool.Exec(ctx, `
		INSERT INTO external_tables (name, format, source_uri_pattern)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING`,
		name, format, sourceURIPattern)
	if err != nil {
		return &CatalogError{Table: name, Err: err}
	}
	return nil
}

func (c *PostgresCatalog) Close() {
	c.pool.Close()
}
