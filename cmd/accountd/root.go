// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/logging"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the accountd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accountd",
		Short: "accountd - user accounts and authentication",
		Long: `accountd runs an HTTP API for signup, signin, profile management
and password reset, backed by PostgreSQL with reset notices delivered
through a Redis work queue.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewWorkerCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("accountd " + formatVersion(version, commit, date))
		},
	}
}

// loadConfig resolves the configuration for cmd and checks that the keys in
// required are set.
func loadConfig(cmd *cobra.Command, required ...string) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags(), configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(required...); err != nil {
		return nil, oops.With("operation", "validate configuration").Wrap(err)
	}
	return cfg, nil
}

// setupLogging installs the default logger described by cfg.
func setupLogging(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.SetDefault(cfg.ServiceName, version, cfg.LogFormat, level), nil
}
