// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/accountd/accountd/internal/auth/postgres"
	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/health"
	"github.com/accountd/accountd/internal/notify"
	"github.com/accountd/accountd/internal/observability"
	"github.com/accountd/accountd/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// DatabaseFactory opens the connection pool.
	// Default: store.Connect
	DatabaseFactory func(ctx context.Context, url string, logger *slog.Logger) (Database, error)

	// MigratorFactory creates the migrator used when auto_migrate is set.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (AutoMigrator, error)

	// QueueFactory creates the task client for reset notices.
	// Default: asynq.NewClient
	QueueFactory func(cfg *config.Config) (Queue, error)

	// RedisFactory creates the client used by the queue health check.
	// Default: redis.NewClient
	RedisFactory func(cfg *config.Config) RedisClient

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the HTTP API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// MailOutput receives reset notices when the queue is disabled.
	// Default: os.Stdout
	MailOutput io.Writer
}

// WorkerDeps contains injectable dependencies for the worker command.
type WorkerDeps struct {
	// WorkerFactory creates the task processor.
	// Default: notify.NewWorker
	WorkerFactory func(cfg notify.WorkerConfig) (Runner, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// MailOutput receives delivered notices.
	// Default: os.Stdout
	MailOutput io.Writer
}

// Database wraps the pool methods used by serve.
type Database interface {
	postgres.DB
	health.Pinger
	Close()
}

// AutoMigrator wraps the methods used from store.Migrator on startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// Queue wraps the methods used from asynq.Client.
type Queue interface {
	notify.TaskEnqueuer
	Close() error
}

// RedisClient wraps the methods used from redis.Client.
type RedisClient interface {
	health.RedisPinger
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Runner wraps notify.Worker.
type Runner interface {
	Run(ctx context.Context) error
}

func (d *ServeDeps) setDefaults() {
	if d.DatabaseFactory == nil {
		d.DatabaseFactory = func(ctx context.Context, url string, logger *slog.Logger) (Database, error) {
			return store.Connect(ctx, url, store.WithLogger(logger))
		}
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if d.QueueFactory == nil {
		d.QueueFactory = func(cfg *config.Config) (Queue, error) {
			return asynq.NewClient(redisClientOpt(cfg)), nil
		}
	}
	if d.RedisFactory == nil {
		d.RedisFactory = func(cfg *config.Config) RedisClient {
			return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = newObservabilityServer
	}
	if d.ListenerFactory == nil {
		d.ListenerFactory = net.Listen
	}
	if d.MailOutput == nil {
		d.MailOutput = os.Stdout
	}
}

func (d *WorkerDeps) setDefaults() {
	if d.WorkerFactory == nil {
		d.WorkerFactory = func(cfg notify.WorkerConfig) (Runner, error) {
			return notify.NewWorker(cfg)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = newObservabilityServer
	}
	if d.MailOutput == nil {
		d.MailOutput = os.Stdout
	}
}

func newObservabilityServer(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
	return observability.NewServer(addr, readinessChecker)
}

func redisClientOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
}
