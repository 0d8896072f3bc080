// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/pkg/errutil"
)

func fastBackoff(retries uint64) retry.Backoff {
	return retry.WithMaxRetries(retries, retry.NewConstant(time.Millisecond))
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		retries   uint64
		wantErr   bool
	}{
		{
			name: "ready on first ping",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectPing()
			},
			retries: 2,
		},
		{
			name: "ready after transient failures",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectPing().WillReturnError(errors.New("connection refused"))
				mock.ExpectPing().WillReturnError(errors.New("connection refused"))
				mock.ExpectPing()
			},
			retries: 2,
		},
		{
			name: "gives up when retries are exhausted",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectPing().WillReturnError(errors.New("connection refused"))
				mock.ExpectPing().WillReturnError(errors.New("connection refused"))
			},
			retries: 1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			err = Probe(context.Background(), mock, fastBackoff(tt.retries), nil)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "DB_UNAVAILABLE")
				errutil.AssertErrorContext(t, err, "attempts", 2)
				assert.Contains(t, err.Error(), "connection refused")
			} else {
				require.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestProbe_ContextCancelled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = Probe(ctx, mock, retry.NewConstant(time.Hour), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_UNAVAILABLE")
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "::not a url::")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

func TestDefaultBackoff_IsBounded(t *testing.T) {
	b := DefaultBackoff()
	var waits int
	for {
		d, stop := b.Next()
		if stop {
			break
		}
		assert.LessOrEqual(t, d, DefaultProbeCap)
		waits++
		require.LessOrEqual(t, waits, DefaultProbeAttempts)
	}
	assert.Equal(t, DefaultProbeAttempts, waits)
}
