// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package health_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/internal/health"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newPingMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestChecker_AllUp(t *testing.T) {
	db := newPingMock(t)
	db.ExpectPing()
	_, rdb := newRedis(t)

	c := health.NewChecker("accountd", db,
		health.WithRedis(rdb),
		health.WithClock(func() time.Time { return fixedNow }),
		health.WithLogger(quietLogger()),
	)
	report := c.Check(context.Background())

	assert.Equal(t, health.StatusHealthy, report.Status)
	assert.Equal(t, "accountd", report.Service)
	assert.Equal(t, fixedNow, report.Timestamp)
	assert.Equal(t, health.Component{Status: health.ComponentUp}, report.Database)
	assert.Equal(t, health.Component{Status: health.ComponentUp}, report.Queue)
	assert.True(t, report.Healthy())
}

func TestChecker_DatabaseDown(t *testing.T) {
	db := newPingMock(t)
	db.ExpectPing().WillReturnError(errors.New("connection refused"))

	c := health.NewChecker("accountd", db, health.WithLogger(quietLogger()))
	report := c.Check(context.Background())

	assert.Equal(t, health.StatusUnhealthy, report.Status)
	assert.Equal(t, health.ComponentDown, report.Database.Status)
	assert.Contains(t, report.Database.Error, "connection refused")
	assert.Equal(t, health.ComponentDisabled, report.Queue.Status)
	assert.False(t, report.Healthy())
}

func TestChecker_QueueDownIsDegraded(t *testing.T) {
	db := newPingMock(t)
	db.ExpectPing()
	mr, rdb := newRedis(t)
	mr.Close()

	c := health.NewChecker("accountd", db, health.WithRedis(rdb), health.WithLogger(quietLogger()))
	report := c.Check(context.Background())

	assert.Equal(t, health.StatusDegraded, report.Status)
	assert.Equal(t, health.ComponentUp, report.Database.Status)
	assert.Equal(t, health.ComponentDown, report.Queue.Status)
	assert.NotEmpty(t, report.Queue.Error)
	assert.True(t, report.Healthy(), "queue outage does not fail the service")
}

func TestChecker_NoDatabase(t *testing.T) {
	c := health.NewChecker("accountd", nil, health.WithLogger(quietLogger()))
	report := c.Check(context.Background())

	assert.Equal(t, health.StatusUnhealthy, report.Status)
	assert.Contains(t, report.Database.Error, "not configured")
}

func TestChecker_Ready(t *testing.T) {
	db := newPingMock(t)
	db.ExpectPing()
	db.ExpectPing().WillReturnError(errors.New("down"))

	c := health.NewChecker("accountd", db, health.WithTimeout(time.Second), health.WithLogger(quietLogger()))
	assert.True(t, c.Ready())
	assert.False(t, c.Ready())
}

func TestChecker_CancelledCallerStillGetsReport(t *testing.T) {
	db := newPingMock(t)
	db.ExpectPing()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := health.NewChecker("accountd", db, health.WithLogger(quietLogger()))
	report := c.Check(ctx)
	assert.Equal(t, health.StatusHealthy, report.Status)
}
