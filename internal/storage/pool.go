// Package storage provides the PostgreSQL storage layer for Conductor.
//
// It manages the pgx connection pool, embedded schema migrations, and query
// methods for tasks, sub-task results, call records, chat messages and
// callback preferences.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/conductor/internal/telemetry"
)

// Defaults for transient-conflict retries on multi-statement writes.
const (
	writeRetries   = 3
	writeBaseDelay = 20 * time.Millisecond
)

// DB wraps a pgxpool.Pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a new DB with a connection pool and verifies connectivity.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool for use by other packages.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// RegisterPoolMetrics registers observable gauges for connection pool usage.
// Call after telemetry.Init so the global meter provider is in place.
func (db *DB) RegisterPoolMetrics() {
	meter := telemetry.Meter("conductor/storage")

	gauge := func(name, desc string, read func(*pgxpool.Stat) int64) {
		_, err := meter.Int64ObservableGauge(name,
			metric.WithDescription(desc),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(read(db.pool.Stat()))
				return nil
			}),
		)
		if err != nil {
			db.logger.Warn("storage: register pool metric", "metric", name, "error", err)
		}
	}
	gauge("conductor.db.pool.acquired", "Connections currently checked out",
		func(s *pgxpool.Stat) int64 { return int64(s.AcquiredConns()) })
	gauge("conductor.db.pool.idle", "Idle connections in the pool",
		func(s *pgxpool.Stat) int64 { return int64(s.IdleConns()) })
	gauge("conductor.db.pool.total", "Total connections in the pool",
		func(s *pgxpool.Stat) int64 { return int64(s.TotalConns()) })
}
