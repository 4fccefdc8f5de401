// Package database manages the PostgreSQL pool backing station bindings.
package database

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds database connection settings.
type Config struct {
	Host            string `validate:"required"`
	Port            int    `validate:"min=1,max=65535"`
	User            string `validate:"required"`
	Password        string
	Database        string        `validate:"required"`
	SSLMode         string        `validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns        int           `validate:"min=1,max=100"`
	MinConns        int           `validate:"min=0,ltefield=MaxConns"`
	ConnMaxLifetime time.Duration `validate:"min=0"`
}

// ConnectionString returns the PostgreSQL URL for the config.
func (c Config) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns) //nolint:gosec // bounded by validation
	poolConfig.MinConns = int32(cfg.MinConns) //nolint:gosec // bounded by validation
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
