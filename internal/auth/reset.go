// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"context"
	"time"
)

// DefaultResetTokenExpiry is the reset token lifetime when none is configured.
const DefaultResetTokenExpiry = 5 * time.Minute

// ResetNotice carries a freshly issued reset token to its out-of-band
// delivery channel. It is never returned to the HTTP caller.
type ResetNotice struct {
	UserID    int64
	Email     string
	Token     string
	ExpiresAt time.Time
}

// ResetNotifier delivers reset tokens to the account owner.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, notice ResetNotice) error
}

// ResetNotifierFunc adapts a function to ResetNotifier.
type ResetNotifierFunc func(ctx context.Context, notice ResetNotice) error

// NotifyPasswordReset calls f.
func (f ResetNotifierFunc) NotifyPasswordReset(ctx context.Context, notice ResetNotice) error {
	return f(ctx, notice)
}
