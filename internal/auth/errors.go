// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import "errors"

// Sentinel errors classify failures for the transport layer. Concrete errors
// are oops errors wrapping one of these, so callers match with errors.Is.
var (
	// ErrValidation marks missing or malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized marks any authentication failure.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials is returned by signin for an unknown email and
	// for a wrong password alike.
	ErrInvalidCredentials = wrapSentinel("invalid credentials", ErrUnauthorized)

	// ErrTokenExpired is returned when a token's signature is valid but its
	// expiry has passed.
	ErrTokenExpired = wrapSentinel("token expired", ErrUnauthorized)

	// ErrTokenInvalid is returned for malformed, tampered or wrong-purpose tokens.
	ErrTokenInvalid = wrapSentinel("token invalid", ErrUnauthorized)

	// ErrResetTokenMismatch is returned when the presented reset token is not
	// the one stored for the user (already used, replaced, or never issued).
	ErrResetTokenMismatch = wrapSentinel("reset token does not match", ErrUnauthorized)

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrProfileNotFound is returned when a user exists but has no profile.
	ErrProfileNotFound = wrapSentinel("profile not found", ErrNotFound)

	// ErrConflict marks a uniqueness violation.
	ErrConflict = errors.New("conflict")

	// ErrEmailTaken is returned when signing up with a registered email.
	ErrEmailTaken = wrapSentinel("email already registered", ErrConflict)

	// ErrBackendUnavailable marks store failures that are not caused by the
	// request itself.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// sentinel is an error that also matches its parent class with errors.Is.
type sentinel struct {
	msg    string
	parent error
}

func wrapSentinel(msg string, parent error) error {
	return &sentinel{msg: msg, parent: parent}
}

func (e *sentinel) Error() string { return e.msg }

func (e *sentinel) Unwrap() error { return e.parent }

// Unavailable marks err as a store or queue failure. The result matches both
// ErrBackendUnavailable and err with errors.Is.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return &unavailableError{err: err}
}

type unavailableError struct {
	err error
}

func (e *unavailableError) Error() string { return "backend unavailable: " + e.err.Error() }

func (e *unavailableError) Unwrap() []error { return []error{ErrBackendUnavailable, e.err} }
