// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/auth/postgres"
	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/health"
	"github.com/accountd/accountd/internal/httpapi"
	"github.com/accountd/accountd/internal/notify"
	"github.com/accountd/accountd/internal/observability"
)

// readHeaderTimeout bounds slow clients before the handler timeout applies.
const readHeaderTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the account HTTP API",
		Long: `Start the HTTP API. The database schema is migrated on startup
unless auto_migrate is disabled. Password reset notices are queued in Redis
when redis_addr is set and written to stdout otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, config.KeyDatabaseURL, config.KeyJWTSecret)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

// runServeWithDeps starts the API with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.setDefaults()

	if err := cfg.Validate(config.KeyDatabaseURL, config.KeyJWTSecret); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	logger, err := setupLogging(cfg)
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}

	logger.Info("starting accountd",
		"http_addr", cfg.HTTPAddr,
		"queue_enabled", cfg.QueueEnabled(),
		"log_format", cfg.LogFormat,
	)

	if cfg.AutoMigrate {
		if err := runAutoMigration(cfg.DatabaseURL, deps.MigratorFactory); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	db, err := deps.DatabaseFactory(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	logger.Info("connected to database")

	notifier, redisClient, closeQueue, err := buildNotifier(cfg, deps, logger)
	if err != nil {
		return err
	}
	defer closeQueue()

	accounts, err := buildAccounts(cfg, postgres.NewUserRepository(db), notifier, logger)
	if err != nil {
		return err
	}

	checkerOpts := []health.Option{health.WithLogger(logger)}
	if redisClient != nil {
		checkerOpts = append(checkerOpts, health.WithRedis(redisClient))
	}
	checker := health.NewChecker(cfg.ServiceName, db, checkerOpts...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, checker.Ready)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("METRICS_START_FAILED").With("addr", cfg.MetricsAddr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	router, err := httpapi.NewRouter(httpapi.Config{
		Accounts:       accounts,
		Health:         checker,
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		stopObservability(obsServer, cfg.ShutdownTimeout)
		return err
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTPAddr)
	if err != nil {
		stopObservability(obsServer, cfg.ShutdownTimeout)
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTPAddr).Wrap(err)
	}

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	cmd.Println("accountd API started")
	logger.Info("accountd ready", "addr", listener.Addr().String())

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errChan:
		runErr = oops.Code("HTTP_SERVE_FAILED").Wrap(err)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping HTTP server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return runErr
}

// buildNotifier selects the queued notifier when Redis is configured and
// direct delivery to deps.MailOutput otherwise. The returned close function
// is always safe to call.
func buildNotifier(cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (auth.ResetNotifier, RedisClient, func(), error) {
	if !cfg.QueueEnabled() {
		direct, err := notify.NewDirectNotifier(notify.NewWriterMailer(deps.MailOutput), logger)
		if err != nil {
			return nil, nil, func() {}, err
		}
		logger.Warn("redis_addr is empty, reset notices are delivered inline")
		return direct, nil, func() {}, nil
	}

	queue, err := deps.QueueFactory(cfg)
	if err != nil {
		return nil, nil, func() {}, oops.Code("QUEUE_CONNECT_FAILED").With("addr", cfg.RedisAddr).Wrap(err)
	}
	enqueuer, err := notify.NewEnqueuer(queue, logger)
	if err != nil {
		_ = queue.Close() //nolint:errcheck // constructor error takes precedence
		return nil, nil, func() {}, err
	}
	redisClient := deps.RedisFactory(cfg)

	closeAll := func() {
		if err := queue.Close(); err != nil {
			logger.Warn("error closing task client", "error", err)
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("error closing redis client", "error", err)
		}
	}
	return enqueuer, redisClient, closeAll, nil
}

// buildAccounts wires the hasher, token codec and reset protocol into the
// account service.
func buildAccounts(cfg *config.Config, users auth.UserRepository, notifier auth.ResetNotifier, logger *slog.Logger) (*auth.Service, error) {
	hasher := auth.NewArgon2idHasher()

	codec, err := auth.NewTokenCodec([]byte(cfg.JWTSecret), auth.WithSessionTTL(cfg.SessionTTL))
	if err != nil {
		return nil, err
	}

	resets, err := auth.NewPasswordResetServiceWithLogger(users, codec, hasher, notifier, cfg.ResetExpiration(), logger)
	if err != nil {
		return nil, err
	}

	return auth.NewAuthServiceWithLogger(users, hasher, codec, resets, logger)
}

// runAutoMigration applies all pending migrations.
func runAutoMigration(databaseURL string, factory func(string) (AutoMigrator, error)) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	return nil
}

func stopObservability(server ObservabilityServer, timeout time.Duration) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
