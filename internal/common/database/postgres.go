// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"card-scan-workers/internal/common/config"
)

const (
	catalogConnLifetime = 5 * time.Minute
	pingTimeout         = 3 * time.Second
)

// PostgresClient holds the pool used for read-only catalog lookups.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens the pool. No connection is made until the first query
// or Ping.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("postgres host is empty")
	}
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	idle := cfg.MaxIdle
	if cfg.MaxConnections > 0 && idle > cfg.MaxConnections {
		idle = cfg.MaxConnections
	}
	db.SetMaxIdleConns(idle)
	db.SetConnMaxLifetime(catalogConnLifetime)
	db.SetConnMaxIdleTime(catalogConnLifetime)

	return &PostgresClient{DB: db}, nil
}

// Ping checks the catalog database within pingTimeout.
func (c *PostgresClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

// InUse reports how many pooled connections are serving queries.
func (c *PostgresClient) InUse() int {
	return c.DB.Stats().InUse
}

func (c *PostgresClient) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
