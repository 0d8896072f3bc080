// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/notify"
)

// NewWorkerCmd creates the worker subcommand.
func NewWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued password reset notices",
		Long: `Start the queue worker. It consumes password reset notices from
Redis and hands each one to the mailer. Expired notices are dropped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, config.KeyRedisAddr)
			if err != nil {
				return err
			}
			return runWorkerWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

// runWorkerWithDeps runs the worker with injectable dependencies until ctx
// is cancelled or a shutdown signal arrives.
func runWorkerWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *WorkerDeps) error {
	if deps == nil {
		deps = &WorkerDeps{}
	}
	deps.setDefaults()

	if err := cfg.Validate(config.KeyRedisAddr); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	logger, err := setupLogging(cfg)
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var handlerOpts []notify.HandlerOption
	var obsServer ObservabilityServer
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, func() bool { return true })
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("METRICS_START_FAILED").With("addr", cfg.MetricsAddr).Wrap(err)
		}
		defer stopObservability(obsServer, cfg.ShutdownTimeout)
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		handlerOpts = append(handlerOpts, notify.WithDeliveryCounter(obsServer.Metrics().ResetDeliveries))
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	handler, err := notify.NewResetHandler(notify.NewWriterMailer(deps.MailOutput), logger, handlerOpts...)
	if err != nil {
		return err
	}

	worker, err := deps.WorkerFactory(notify.WorkerConfig{
		Redis:       redisClientOpt(cfg),
		Concurrency: cfg.WorkerConcurrency,
		Handler:     handler,
		Logger:      logger,
	})
	if err != nil {
		return oops.Code("WORKER_INIT_FAILED").Wrap(err)
	}

	cmd.Println("accountd worker started")
	logger.Info("starting worker",
		"redis_addr", cfg.RedisAddr,
		"concurrency", cfg.WorkerConcurrency,
	)

	if err := worker.Run(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
