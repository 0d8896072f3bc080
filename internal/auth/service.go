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

// dummyPasswordHash is verified against when a user doesn't exist so that
// signin takes comparable time for unknown emails and wrong passwords.
// It will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// SignupInput is the payload of a registration.
type SignupInput struct {
	Firstname      string
	Lastname       string
	Email          string
	Password       string
	Entity         string
	Bio            *string
	ProfilePicture *string
}

// ChangePasswordInput is the payload of an authenticated password change.
type ChangePasswordInput struct {
	OldPassword     string
	NewPassword     string
	ConfirmPassword string
}

// ResetPasswordInput is the payload of a token-based password reset.
type ResetPasswordInput struct {
	Token           string
	NewPassword     string
	ConfirmPassword string
}

// SessionToken is an issued bearer token.
type SessionToken struct {
	Token     string
	ExpiresAt time.Time
	UserID    int64
}

// ProfileView is a user's public account data.
type ProfileView struct {
	Email          string
	Entity         string
	Firstname      string
	Lastname       string
	Bio            *string
	ProfilePicture *string
}

// Service composes the hasher, token codec, reset protocol and user store
// into the account operations.
type Service struct {
	users  UserRepository
	hasher PasswordHasher
	codec  *TokenCodec
	resets *PasswordResetService
	logger *slog.Logger
}

// NewAuthService creates a new Service.
func NewAuthService(users UserRepository, hasher PasswordHasher, codec *TokenCodec, resets *PasswordResetService) (*Service, error) {
	return NewAuthServiceWithLogger(users, hasher, codec, resets, slog.Default())
}

// NewAuthServiceWithLogger creates a new Service with a custom logger.
func NewAuthServiceWithLogger(
	users UserRepository,
	hasher PasswordHasher,
	codec *TokenCodec,
	resets *PasswordResetService,
	logger *slog.Logger,
) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if codec == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token codec is required")
	}
	if resets == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password reset service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:  users,
		hasher: hasher,
		codec:  codec,
		resets: resets,
		logger: logger,
	}, nil
}

// Signup registers a user and its profile. Returns the new user id.
func (s *Service) Signup(ctx context.Context, in SignupInput) (int64, error) {
	// Field order matches the registration form so the first missing field is reported.
	required := []struct{ name, value string }{
		{"firstname", in.Firstname},
		{"lastname", in.Lastname},
		{"email", in.Email},
		{"password", in.Password},
		{"entity", in.Entity},
	}
	for _, f := range required {
		if blank(f.value) {
			return 0, missingField(f.name)
		}
	}

	profile, err := NewProfile(in.Firstname, in.Lastname, in.Bio, in.ProfilePicture)
	if err != nil {
		return 0, err
	}
	if err := ValidateEmail(in.Email); err != nil {
		return 0, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return 0, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(in.Email, hash, in.Entity)
	if err != nil {
		return 0, err
	}

	if err := s.users.Create(ctx, user, profile); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return 0, oops.Code("AUTH_EMAIL_TAKEN").
				Public("Email already registered").
				Wrap(err)
		}
		return 0, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user.ID, nil
}

// Signin verifies credentials and issues a session token. An unknown email
// and a wrong password produce the same error.
func (s *Service) Signin(ctx context.Context, email, password string) (*SessionToken, error) {
	if blank(email) {
		return nil, missingField("email")
	}
	if blank(password) {
		return nil, missingField("password")
	}

	user, lookupErr := s.users.GetByEmail(ctx, email)

	var targetHash string
	userExists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		userExists = true
	case errors.Is(lookupErr, ErrNotFound):
		targetHash = dummyPasswordHash
	default:
		return nil, oops.Code("AUTH_SIGNIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && userExists {
		s.logger.WarnContext(ctx, "stored password hash could not be verified",
			"user_id", user.ID,
			"error", verifyErr,
		)
	}

	if !userExists || !valid {
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, password)
	}

	token, expiresAt, err := s.codec.IssueSession(user.ID)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNIN_FAILED").
			With("operation", "issue session token").
			With("user_id", user.ID).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user signed in", "user_id", user.ID)
	return &SessionToken{Token: token, ExpiresAt: expiresAt, UserID: user.ID}, nil
}

// upgradeHash rehashes a legacy or weak hash after a successful signin.
// Failures are logged; signin succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, userID int64, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort hash upgrade failed",
			"user_id", userID,
			"operation", "hash",
			"error", err.Error(),
		)
		return
	}
	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		s.logger.WarnContext(ctx, "best-effort hash upgrade failed",
			"user_id", userID,
			"operation", "update_password",
			"error", err.Error(),
		)
	}
}

// Authenticate resolves a bearer session token to a user id.
func (s *Service) Authenticate(_ context.Context, token string) (int64, error) {
	if token == "" {
		return 0, oops.Code("AUTH_TOKEN_MISSING").
			Public("Token is missing").
			Wrap(ErrTokenInvalid)
	}
	claims, err := s.codec.Parse(token, PurposeSession)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return 0, oops.Public("Token has expired").Wrap(err)
		}
		return 0, oops.Public("Invalid token").Wrap(err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return 0, oops.Public("Invalid token").Wrap(err)
	}
	return userID, nil
}

// GetProfile returns the account data of userID.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*ProfileView, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_PROFILE_NOT_FOUND").
				With("user_id", userID).
				Public("Profile not found").
				Wrap(err)
		}
		return nil, oops.Code("AUTH_PROFILE_FAILED").
			With("operation", "get profile").
			With("user_id", userID).
			Wrap(err)
	}

	return &ProfileView{
		Email:          user.Email,
		Entity:         user.Entity,
		Firstname:      profile.Firstname,
		Lastname:       profile.Lastname,
		Bio:            profile.Bio,
		ProfilePicture: profile.ProfilePicture,
	}, nil
}

// UpdateProfile merges update into the profile of userID.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, update ProfileUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	if _, err := s.getUser(ctx, userID); err != nil {
		return err
	}
	if update.IsEmpty() {
		return nil
	}

	if _, err := s.users.UpdateProfile(ctx, userID, update); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_PROFILE_NOT_FOUND").
				With("user_id", userID).
				Public("Profile not found").
				Wrap(err)
		}
		return oops.Code("AUTH_PROFILE_FAILED").
			With("operation", "update profile").
			With("user_id", userID).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "profile updated", "user_id", userID)
	return nil
}

// ChangePassword replaces the password of userID after verifying the old one.
// The stored hash is left untouched on every failure path.
func (s *Service) ChangePassword(ctx context.Context, userID int64, in ChangePasswordInput) error {
	required := []struct{ name, value string }{
		{"old_password", in.OldPassword},
		{"new_password", in.NewPassword},
		{"confirm_password", in.ConfirmPassword},
	}
	for _, f := range required {
		if blank(f.value) {
			return missingField(f.name)
		}
	}
	if in.NewPassword != in.ConfirmPassword {
		return passwordsDoNotMatch()
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	valid, verifyErr := s.hasher.Verify(in.OldPassword, user.PasswordHash)
	if verifyErr != nil {
		s.logger.WarnContext(ctx, "stored password hash could not be verified",
			"user_id", userID,
			"error", verifyErr,
		)
	}
	if !valid {
		return oops.Code("AUTH_OLD_PASSWORD_MISMATCH").
			With("user_id", userID).
			Public("Old password is incorrect").
			Wrap(ErrValidation)
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", userID).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", userID)
	return nil
}

// ForgotPassword starts the reset flow for email.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	return s.resets.RequestReset(ctx, email)
}

// ResetPassword completes the reset flow.
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	required := []struct{ name, value string }{
		{"token", in.Token},
		{"new_password", in.NewPassword},
		{"confirm_password", in.ConfirmPassword},
	}
	for _, f := range required {
		if blank(f.value) {
			return missingField(f.name)
		}
	}
	if in.NewPassword != in.ConfirmPassword {
		return passwordsDoNotMatch()
	}
	return s.resets.ConsumeReset(ctx, in.Token, in.NewPassword)
}

// DeleteAccount removes userID together with its profile.
func (s *Service) DeleteAccount(ctx context.Context, userID int64) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_USER_NOT_FOUND").
				With("user_id", userID).
				Public("User not found").
				Wrap(err)
		}
		return oops.Code("AUTH_DELETE_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	s.logger.InfoContext(ctx, "account deleted", "user_id", userID)
	return nil
}

func (s *Service) getUser(ctx context.Context, userID int64) (*User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_USER_NOT_FOUND").
				With("user_id", userID).
				Public("User not found").
				Wrap(err)
		}
		return nil, oops.Code("AUTH_USER_LOOKUP_FAILED").
			With("user_id", userID).
			Wrap(err)
	}
	return user, nil
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").
		Public("Invalid email or password").
		Wrap(ErrInvalidCredentials)
}

func passwordsDoNotMatch() error {
	return oops.Code("AUTH_PASSWORD_MISMATCH").
		Public("New passwords do not match").
		Wrap(ErrValidation)
}
