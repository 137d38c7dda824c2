// Package db provides the PostgreSQL connection pool and the embedded
// schema migrator for the AURA notification core.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns        = 20
	defaultMinConns        = 5
	defaultHealthCheck     = time.Minute
	defaultMaxConnLifetime = time.Hour
)

// PoolConfig carries the connection settings for NewPool. Zero conn counts
// fall back to the defaults.
type PoolConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

func poolConfig(pc PoolConfig) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(pc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = pc.MaxConns
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}
	cfg.MinConns = pc.MinConns
	if cfg.MinConns <= 0 {
		cfg.MinConns = defaultMinConns
	}
	cfg.HealthCheckPeriod = defaultHealthCheck
	cfg.MaxConnLifetime = defaultMaxConnLifetime
	return cfg, nil
}

// NewPool connects to PostgreSQL and verifies the connection with a ping.
func NewPool(ctx context.Context, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(pc)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
