// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode checks the deepest oops code carried by err.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	assert.Equal(t, code, mustOops(t, err).Code())
}

// AssertErrorContext checks that err carries key with value in its oops context.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	kv := mustOops(t, err).Context()
	if assert.Contains(t, kv, key) {
		assert.Equal(t, value, kv[key])
	}
}

// AssertPublicMessage checks the user-facing message of err.
func AssertPublicMessage(t *testing.T, err error, msg string) {
	t.Helper()
	assert.Equal(t, msg, mustOops(t, err).Public())
}
