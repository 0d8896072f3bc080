// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package store

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/pkg/errutil"
)

// fakeMigrate implements migrateIface for testing.
type fakeMigrate struct {
	upErr      error
	downErr    error
	stepsErr   error
	steps      []int
	version    uint
	dirty      bool
	versionErr error
	forceErr   error
	srcErr     error
	dbErr      error
}

func (f *fakeMigrate) Up() error   { return f.upErr }
func (f *fakeMigrate) Down() error { return f.downErr }
func (f *fakeMigrate) Steps(n int) error {
	f.steps = append(f.steps, n)
	return f.stepsErr
}
func (f *fakeMigrate) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeMigrate) Force(int) error              { return f.forceErr }
func (f *fakeMigrate) Close() (error, error)        { return f.srcErr, f.dbErr }

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@db:5432/accounts?sslmode=disable", "pgx5://u:p@db:5432/accounts?sslmode=disable"},
		{"postgresql://db/accounts", "pgx5://db/accounts"},
		{"pgx5://db/accounts", "pgx5://db/accounts"},
		{"host=db dbname=accounts", "host=db dbname=accounts"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MigrateURL(tt.in), tt.in)
	}
}

func TestNewMigrator_InvalidURL(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/accounts")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestNewMigrator_PostgresqlSchemeIsRecognised(t *testing.T) {
	// Connection fails, but not because the driver is unknown.
	_, err := NewMigrator("postgresql://127.0.0.1:1/accounts?connect_timeout=1")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
	assert.NotContains(t, err.Error(), "unknown driver")
}

func TestMigrator_Operations(t *testing.T) {
	boom := errors.New("database locked")

	tests := []struct {
		name     string
		fake     *fakeMigrate
		run      func(*Migrator) error
		wantCode string
	}{
		{name: "up", fake: &fakeMigrate{}, run: (*Migrator).Up},
		{name: "up at latest", fake: &fakeMigrate{upErr: migrate.ErrNoChange}, run: (*Migrator).Up},
		{name: "up fails", fake: &fakeMigrate{upErr: boom}, run: (*Migrator).Up, wantCode: "MIGRATION_UP_FAILED"},
		{name: "down", fake: &fakeMigrate{}, run: (*Migrator).Down},
		{name: "down when empty", fake: &fakeMigrate{downErr: migrate.ErrNoChange}, run: (*Migrator).Down},
		{name: "down fails", fake: &fakeMigrate{downErr: boom}, run: (*Migrator).Down, wantCode: "MIGRATION_DOWN_FAILED"},
		{name: "steps", fake: &fakeMigrate{}, run: func(m *Migrator) error { return m.Steps(-1) }},
		{name: "steps no change", fake: &fakeMigrate{stepsErr: migrate.ErrNoChange}, run: func(m *Migrator) error { return m.Steps(1) }},
		{name: "steps fail", fake: &fakeMigrate{stepsErr: boom}, run: func(m *Migrator) error { return m.Steps(2) }, wantCode: "MIGRATION_STEPS_FAILED"},
		{name: "force", fake: &fakeMigrate{}, run: func(m *Migrator) error { return m.Force(1) }},
		{name: "force fails", fake: &fakeMigrate{forceErr: boom}, run: func(m *Migrator) error { return m.Force(1) }, wantCode: "MIGRATION_FORCE_FAILED"},
		{name: "force negative", fake: &fakeMigrate{}, run: func(m *Migrator) error { return m.Force(-1) }, wantCode: "INVALID_VERSION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(&Migrator{m: tt.fake})
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestMigrator_StepsZeroDoesNotCallDriver(t *testing.T) {
	fake := &fakeMigrate{}
	require.NoError(t, (&Migrator{m: fake}).Steps(0))
	assert.Empty(t, fake.steps)
}

func TestMigrator_Version(t *testing.T) {
	v, dirty, err := (&Migrator{m: &fakeMigrate{version: 2, dirty: true}}).Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.True(t, dirty)

	v, dirty, err = (&Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}).Version()
	require.NoError(t, err, "empty database is version 0")
	assert.Zero(t, v)
	assert.False(t, dirty)

	_, _, err = (&Migrator{m: &fakeMigrate{versionErr: errors.New("connection lost")}}).Version()
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
}

func TestMigrator_Status(t *testing.T) {
	tests := []struct {
		name        string
		fake        *fakeMigrate
		wantName    string
		wantApplied []uint
		wantPending []uint
	}{
		{name: "fresh database", fake: &fakeMigrate{versionErr: migrate.ErrNilVersion}, wantPending: []uint{1, 2}},
		{name: "users only", fake: &fakeMigrate{version: 1}, wantName: "000001_create_users", wantApplied: []uint{1}, wantPending: []uint{2}},
		{name: "latest", fake: &fakeMigrate{version: 2}, wantName: "000002_create_profiles", wantApplied: []uint{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := (&Migrator{m: tt.fake}).Status()
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, st.Name)
			assert.Equal(t, tt.wantApplied, st.Applied)
			assert.Equal(t, tt.wantPending, st.Pending)
		})
	}

	_, err := (&Migrator{m: &fakeMigrate{versionErr: errors.New("connection lost")}}).Status()
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "operation", "migration status")
}

func TestMigrator_Close(t *testing.T) {
	srcErr := errors.New("source close failed")
	dbErr := errors.New("db close failed")

	require.NoError(t, (&Migrator{m: &fakeMigrate{}}).Close())

	err := (&Migrator{m: &fakeMigrate{srcErr: srcErr}}).Close()
	errutil.AssertErrorContext(t, err, "component", "source")

	err = (&Migrator{m: &fakeMigrate{dbErr: dbErr}}).Close()
	errutil.AssertErrorContext(t, err, "component", "database")

	err = (&Migrator{m: &fakeMigrate{srcErr: srcErr, dbErr: dbErr}}).Close()
	errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
	errutil.AssertErrorContext(t, err, "component", "both")
	assert.Contains(t, err.Error(), "source close failed")
	assert.Contains(t, err.Error(), "db close failed")
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(2)
	require.NoError(t, err)
	assert.Equal(t, "000002_create_profiles", name)

	name, err = MigrationName(99)
	require.NoError(t, err, "unknown version is not an error")
	assert.Empty(t, name)
}

func TestAllMigrationVersions_ReturnsCopy(t *testing.T) {
	first, err := allMigrationVersions()
	require.NoError(t, err)
	require.NotEmpty(t, first)
	first[0] = 999

	second, err := allMigrationVersions()
	require.NoError(t, err)
	assert.Equal(t, uint(1), second[0])
}
