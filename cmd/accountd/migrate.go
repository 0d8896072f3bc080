// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/accountd/accountd/internal/config"
	"github.com/accountd/accountd/internal/store"
)

// Migrator wraps the methods used from store.Migrator by the migrate commands.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// migratorFactory is replaced in tests.
var migratorFactory = func(url string) (Migrator, error) {
	return store.NewMigrator(url)
}

// NewMigrateCmd creates the migrate subcommand and its children.
// Bare `migrate` behaves like `migrate up`.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply, roll back or inspect the users/profiles schema migrations.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, migrateUp)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, migrateUp)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (all of them unless --steps is set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(cmd *cobra.Command, m Migrator) error {
				return migrateDown(cmd, m, steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 0, "number of migrations to roll back (0 = all)")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, migrateStatus)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, migrateVersion)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied and clear the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(*cobra.Command, Migrator) error) error {
	cfg, err := loadConfig(cmd, config.KeyDatabaseURL)
	if err != nil {
		return err
	}

	m, err := migratorFactory(cfg.DatabaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
		}
	}()

	return fn(cmd, m)
}

func migrateUp(cmd *cobra.Command, m Migrator) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func migrateDown(cmd *cobra.Command, m Migrator, steps int) error {
	if steps < 0 {
		return oops.Code("INVALID_STEPS").Errorf("--steps must be non-negative, got %d", steps)
	}
	var err error
	if steps == 0 {
		cmd.Println("Rolling back all migrations...")
		err = m.Down()
	} else {
		cmd.Printf("Rolling back %d migration(s)...\n", steps)
		err = m.Steps(-steps)
	}
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
	}
	cmd.Println("Rollback completed successfully")
	return nil
}

func migrateStatus(cmd *cobra.Command, m Migrator) error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	cmd.Print(formatMigrationStatus(st))
	return nil
}

func migrateVersion(cmd *cobra.Command, m Migrator) error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	line := strconv.FormatUint(uint64(st.Version), 10)
	if st.Dirty {
		line += " (dirty)"
	}
	cmd.Println(line)
	return nil
}

func formatMigrationStatus(st *store.Status) string {
	var b strings.Builder
	name := st.Name
	if name == "" {
		name = "none"
	}
	fmt.Fprintf(&b, "Current version: %d (%s)\n", st.Version, name)
	if st.Dirty {
		b.WriteString("State: dirty, run `accountd migrate force VERSION` after fixing the schema\n")
	} else {
		b.WriteString("State: clean\n")
	}
	fmt.Fprintf(&b, "Applied: %s\n", joinVersions(st.Applied))
	fmt.Fprintf(&b, "Pending: %s\n", joinVersions(st.Pending))
	return b.String()
}

func joinVersions(versions []uint) string {
	if len(versions) == 0 {
		return "none"
	}
	parts := make([]string, len(versions))
	for i, v := range versions {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ", ")
}

// parseForceVersion parses the force argument as a non-negative integer.
func parseForceVersion(arg string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("arg", arg).Errorf("version must be an integer")
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("arg", arg).Errorf("version must be non-negative, got %d", version)
	}
	return version, nil
}
