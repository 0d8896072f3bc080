// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package errutil logs and asserts on oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// Attrs returns the slog attributes describing err. oops errors add their
// code, user-facing message and context; any other error is logged as its
// string.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil && code != "" {
		attrs = append(attrs, "code", code)
	}
	if public := oopsErr.Public(); public != "" {
		attrs = append(attrs, "public", public)
	}
	if kv := oopsErr.Context(); len(kv) > 0 {
		attrs = append(attrs, "context", kv)
	}
	return attrs
}

// LogError logs err at error level with its attributes followed by extra.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error, extra ...any) {
	logger.ErrorContext(ctx, msg, append(Attrs(err), extra...)...)
}
