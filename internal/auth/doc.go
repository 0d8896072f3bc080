// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package auth provides the account and credential lifecycle for accountd.
//
// # Domain Types
//
// Domain types (User, Profile) should be created using their constructors:
//   - NewUser - creates a User with validated email, hash and entity
//   - NewProfile - creates a Profile with validated names and picture reference
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Tokens
//
// TokenCodec signs HS256 tokens carrying a purpose claim. Session tokens and
// reset tokens share the signing key but are never interchangeable: Parse
// rejects a token issued for the other purpose.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - signup, signin, profile, change password, account deletion
//   - PasswordResetService - single-use reset tokens delivered through a ResetNotifier
//
// Services are created with New*Service constructors that validate dependencies.
//
// # Errors
//
// Every returned error wraps one of the sentinels in errors.go. Match them
// with errors.Is; the oops public message, when set, is safe to show to users.
package auth
