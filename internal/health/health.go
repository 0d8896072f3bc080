// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package health checks the service's backends on demand.
package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Overall and per-component states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	ComponentUp       = "up"
	ComponentDown     = "down"
	ComponentDisabled = "disabled"
)

// DefaultTimeout bounds each backend check.
const DefaultTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger is satisfied by *redis.Client.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Component is the state of one backend.
type Component struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Report is the result of one check.
type Report struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
	Database  Component `json:"database"`
	Queue     Component `json:"queue"`
}

// Healthy reports whether the service can serve requests. Only the
// database is required; a queue outage degrades reset delivery.
func (r Report) Healthy() bool {
	return r.Database.Status == ComponentUp
}

// Checker pings the database and, when configured, the queue's Redis.
type Checker struct {
	db      Pinger
	redis   RedisPinger
	service string
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
	group   singleflight.Group
}

// Option configures a Checker.
type Option func(*Checker)

// WithRedis adds the queue check. Without it the queue reports disabled.
func WithRedis(r RedisPinger) Option {
	return func(c *Checker) { c.redis = r }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) { c.timeout = d }
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// WithLogger sets the logger used for failed checks.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// NewChecker creates a Checker for service.
func NewChecker(service string, db Pinger, opts ...Option) *Checker {
	c := &Checker{
		db:      db,
		service: service,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check runs the backend checks concurrently. Concurrent callers share one
// in-flight check.
func (c *Checker) Check(ctx context.Context) Report {
	v, _, _ := c.group.Do("check", func() (any, error) {
		return c.run(context.WithoutCancel(ctx)), nil
	})
	report, _ := v.(Report) //nolint:errcheck // run always returns a Report
	return report
}

// Ready reports whether the last-resort readiness probe should pass.
func (c *Checker) Ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.Check(ctx).Healthy()
}

func (c *Checker) run(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	report := Report{
		Service:   c.service,
		Timestamp: c.now().UTC(),
		Database:  Component{Status: ComponentDisabled},
		Queue:     Component{Status: ComponentDisabled},
	}

	var g errgroup.Group
	g.Go(func() error {
		report.Database = c.probe(ctx, "database", func(ctx context.Context) error {
			if c.db == nil {
				return errNotConfigured
			}
			return c.db.Ping(ctx)
		})
		return nil
	})
	if c.redis != nil {
		g.Go(func() error {
			report.Queue = c.probe(ctx, "queue", func(ctx context.Context) error {
				return c.redis.Ping(ctx).Err()
			})
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // probes record their own failures

	switch {
	case !report.Healthy():
		report.Status = StatusUnhealthy
	case report.Queue.Status == ComponentDown:
		report.Status = StatusDegraded
	default:
		report.Status = StatusHealthy
	}
	return report
}

func (c *Checker) probe(ctx context.Context, name string, ping func(context.Context) error) Component {
	if err := ping(ctx); err != nil {
		c.logger.WarnContext(ctx, "health check failed", "component", name, "error", err)
		return Component{Status: ComponentDown, Error: err.Error()}
	}
	return Component{Status: ComponentUp}
}

var errNotConfigured = oops.Code("HEALTH_NOT_CONFIGURED").Errorf("not configured")
