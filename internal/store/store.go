package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// PGPoolConfig overrides pgxpool defaults when the fields are non-zero.
type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewPGPool parses pgURL, applies cfg and verifies the connection.
func NewPGPool(ctx context.Context, pgURL string, pgPoolConfig PGPoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if pgPoolConfig.MaxConns > 0 {
		cfg.MaxConns = pgPoolConfig.MaxConns
	}
	if pgPoolConfig.MinConns > 0 {
		cfg.MinConns = pgPoolConfig.MinConns
	}
	if pgPoolConfig.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
	}
	if pgPoolConfig.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
	}
	if pgPoolConfig.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// NewRedis connects to redis and pings it.
func NewRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}
