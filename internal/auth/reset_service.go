// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// PasswordResetService issues and consumes single-use reset tokens.
//
// A user has at most one outstanding reset token, stored on the user row.
// Issuing a new token overwrites the previous one; consuming a token clears it
// in the same conditional update that stores the new password hash.
type PasswordResetService struct {
	users    UserRepository
	codec    *TokenCodec
	hasher   PasswordHasher
	notifier ResetNotifier
	expiry   time.Duration
	logger   *slog.Logger
}

// NewPasswordResetService creates a PasswordResetService. A non-positive
// expiry selects DefaultResetTokenExpiry.
func NewPasswordResetService(
	users UserRepository,
	codec *TokenCodec,
	hasher PasswordHasher,
	notifier ResetNotifier,
	expiry time.Duration,
) (*PasswordResetService, error) {
	return NewPasswordResetServiceWithLogger(users, codec, hasher, notifier, expiry, slog.Default())
}

// NewPasswordResetServiceWithLogger creates a PasswordResetService with a custom logger.
func NewPasswordResetServiceWithLogger(
	users UserRepository,
	codec *TokenCodec,
	hasher PasswordHasher,
	notifier ResetNotifier,
	expiry time.Duration,
	logger *slog.Logger,
) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("user repository is required")
	}
	if codec == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("token codec is required")
	}
	if hasher == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if notifier == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("reset notifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if expiry <= 0 {
		expiry = DefaultResetTokenExpiry
	}
	return &PasswordResetService{
		users:    users,
		codec:    codec,
		hasher:   hasher,
		notifier: notifier,
		expiry:   expiry,
		logger:   logger,
	}, nil
}

// Expiry returns the configured reset token lifetime.
func (s *PasswordResetService) Expiry() time.Duration {
	return s.expiry
}

// RequestReset issues a reset token for the user registered with email,
// stores it as the user's only pending token and hands it to the notifier.
// An unknown email yields an error wrapping ErrNotFound.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	if blank(email) {
		return missingField("email")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("RESET_USER_NOT_FOUND").
				Public("User not found").
				Wrap(err)
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	token, expiresAt, err := s.codec.IssueReset(user.ID, s.expiry)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "issue reset token").
			With("user_id", user.ID).
			Wrap(err)
	}

	if err := s.users.SetResetToken(ctx, user.ID, token); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "store reset token").
			With("user_id", user.ID).
			Wrap(err)
	}

	notice := ResetNotice{
		UserID:    user.ID,
		Email:     user.Email,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	if err := s.notifier.NotifyPasswordReset(ctx, notice); err != nil {
		return oops.Code("RESET_DELIVERY_FAILED").
			With("user_id", user.ID).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset requested",
		"user_id", user.ID,
		"expires_at", expiresAt,
	)
	return nil
}

// ConsumeReset sets a new password using a reset token. The token must be
// a valid, unexpired reset token and must equal the one stored for the user;
// the password change and the token clear happen in one conditional update,
// so a token can succeed at most once.
func (s *PasswordResetService) ConsumeReset(ctx context.Context, token, newPassword string) error {
	if blank(token) {
		return missingField("token")
	}
	if blank(newPassword) {
		return missingField("new_password")
	}

	claims, err := s.codec.Parse(token, PurposeReset)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return oops.Public("Reset token has expired").Wrap(err)
		}
		return oops.Public("Invalid reset token").Wrap(err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return oops.Public("Invalid reset token").Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	if err := s.users.ConsumeResetToken(ctx, userID, token, hash); err != nil {
		if errors.Is(err, ErrResetTokenMismatch) {
			s.logger.WarnContext(ctx, "reset token rejected", "user_id", userID, "reason", "not pending")
			return oops.Code("RESET_TOKEN_MISMATCH").
				With("user_id", userID).
				Public("Invalid or already used reset token").
				Wrap(err)
		}
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "consume reset token").
			With("user_id", userID).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset completed", "user_id", userID)
	return nil
}
