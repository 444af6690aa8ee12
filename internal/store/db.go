// Package store opens the shared database and Redis connections.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PoolConfig sizes the Postgres connection pool.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// DefaultPool is used when a field of PoolConfig is zero.
var DefaultPool = PoolConfig{MaxOpen: 10, MaxIdle: 5, MaxLifetime: time.Hour}

// OpenPostgres opens a pgx-backed sql.DB and verifies it answers.
func OpenPostgres(ctx context.Context, dsn string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if pool.MaxOpen == 0 {
		pool.MaxOpen = DefaultPool.MaxOpen
	}
	if pool.MaxIdle == 0 {
		pool.MaxIdle = DefaultPool.MaxIdle
	}
	if pool.MaxLifetime == 0 {
		pool.MaxLifetime = DefaultPool.MaxLifetime
	}
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
