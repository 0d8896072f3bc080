// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package storetest starts a disposable PostgreSQL for integration tests.
package storetest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/accountd/accountd/internal/store"
)

// Database is a migrated PostgreSQL container and a pool connected to it.
type Database struct {
	URL       string
	Pool      *pgxpool.Pool
	container *postgres.PostgresContainer
}

// Start runs a postgres:16-alpine container. When migrated is true the
// embedded schema is applied before the pool is opened.
func Start(ctx context.Context, migrated bool) (*Database, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("accountd_test"),
		postgres.WithUsername("accountd"),
		postgres.WithPassword("accountd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, oops.With("operation", "start postgres container").Wrap(err)
	}
	db := &Database{container: container}

	db.URL, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		db.Close(ctx)
		return nil, oops.With("operation", "container connection string").Wrap(err)
	}

	if migrated {
		if err := migrateUp(db.URL); err != nil {
			db.Close(ctx)
			return nil, err
		}
	}

	db.Pool, err = store.Connect(ctx, db.URL)
	if err != nil {
		db.Close(ctx)
		return nil, err
	}
	return db, nil
}

func migrateUp(url string) error {
	m, err := store.NewMigrator(url)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck // best-effort in tests
	return m.Up()
}

// Reset removes every row and restarts the id sequences, so the next user is id 1.
func (d *Database) Reset(ctx context.Context) error {
	_, err := d.Pool.Exec(ctx, `TRUNCATE users, profiles RESTART IDENTITY CASCADE`)
	if err != nil {
		return oops.With("operation", "truncate tables").Wrap(err)
	}
	return nil
}

// Close closes the pool and terminates the container.
func (d *Database) Close(ctx context.Context) {
	if d.Pool != nil {
		d.Pool.Close()
	}
	if d.container != nil {
		_ = d.container.Terminate(ctx) //nolint:errcheck // best-effort in tests
	}
}
