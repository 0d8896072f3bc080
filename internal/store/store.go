// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package store opens the PostgreSQL pool and manages the schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Default startup probe schedule: exponential from 250ms, capped at 5s per
// wait, at most 8 retries.
const (
	DefaultProbeBase     = 250 * time.Millisecond
	DefaultProbeCap      = 5 * time.Second
	DefaultProbeAttempts = 8
)

// Pinger is satisfied by *pgxpool.Pool and pgxmock pools.
type Pinger interface {
	Ping(ctx context.Context) error
}

type connectConfig struct {
	maxConns int32
	backoff  retry.Backoff
	logger   *slog.Logger
}

// ConnectOption configures Connect.
type ConnectOption func(*connectConfig)

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) ConnectOption {
	return func(c *connectConfig) { c.maxConns = n }
}

// WithBackoff replaces the startup probe schedule.
func WithBackoff(b retry.Backoff) ConnectOption {
	return func(c *connectConfig) { c.backoff = b }
}

// WithLogger sets the logger used for probe retries.
func WithLogger(l *slog.Logger) ConnectOption {
	return func(c *connectConfig) { c.logger = l }
}

// DefaultBackoff returns the startup probe schedule.
func DefaultBackoff() retry.Backoff {
	b := retry.NewExponential(DefaultProbeBase)
	b = retry.WithCappedDuration(DefaultProbeCap, b)
	return retry.WithMaxRetries(DefaultProbeAttempts, b)
}

// Connect creates a pool for databaseURL and waits until the database
// answers a ping.
func Connect(ctx context.Context, databaseURL string, opts ...ConnectOption) (*pgxpool.Pool, error) {
	cfg := connectConfig{backoff: DefaultBackoff(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.maxConns > 0 {
		poolCfg.MaxConns = cfg.maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := Probe(ctx, pool, cfg.backoff, cfg.logger); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Probe pings db until it answers or backoff is exhausted.
func Probe(ctx context.Context, db Pinger, backoff retry.Backoff, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_UNAVAILABLE").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
