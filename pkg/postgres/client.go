// Package postgres opens the lib/pq connection pool used for the index load
// history and applies the schema it needs.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_loads (
    id          BIGSERIAL PRIMARY KEY,
    source      TEXT        NOT NULL,
    reason      TEXT        NOT NULL,
    status      TEXT        NOT NULL,
    records     INTEGER     NOT NULL DEFAULT 0,
    tokens      INTEGER     NOT NULL DEFAULT 0,
    generation  BIGINT      NOT NULL DEFAULT 0,
    error       TEXT,
    started_at  TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT      NOT NULL
);
CREATE INDEX IF NOT EXISTS index_loads_started_at_idx ON index_loads (started_at DESC);
CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB       NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

type Client struct {
	DB *sql.DB
}

// New opens the pool, pings the server and ensures the schema exists.
// lib/pq runs the multi-statement schema as one simple query.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Client{DB: db}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.DB.Close()
}
