// Package postgres connects the terminal to the shared PostgreSQL sale store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"possync/pkg/logger"
)

// PoolConfig holds connection pool configuration.
type PoolConfig struct {
	DSN               string
	ApplicationName   string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

// DefaultPoolConfig returns defaults sized for a single terminal.
func DefaultPoolConfig(dsn string) PoolConfig {
	return PoolConfig{
		DSN:               dsn,
		ApplicationName:   "possync-terminal",
		MaxConns:          4,
		MinConns:          0,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   10 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    5 * time.Second,
	}
}

// Pool wraps pgxpool.Pool.
type Pool struct {
	*pgxpool.Pool
}

// Close closes all connections in the pool.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}

// NewPool creates the pool without requiring the database to be reachable:
// a terminal must start while offline. Connections are established lazily.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	appName := cfg.ApplicationName
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if appName == "" {
			return nil
		}
		_, err := conn.Exec(ctx, "SELECT set_config('application_name', $1, false)", appName)
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		logger.Warn(ctx, "database not reachable at startup, continuing offline", "error", err)
	}

	return &Pool{Pool: pool}, nil
}

// LogPoolStats logs pool statistics.
func LogPoolStats(ctx context.Context, pool *pgxpool.Pool) {
	stat := pool.Stat()
	logger.Info(ctx, "database pool stats",
		"total", stat.TotalConns(),
		"acquired", stat.AcquiredConns(),
		"idle", stat.IdleConns(),
		"max", stat.MaxConns(),
		"acquire_count", stat.AcquireCount(),
		"acquire_duration", stat.AcquireDuration(),
	)
}
