// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionTokenExpiry is the default lifetime of a session token.
const SessionTokenExpiry = 24 * time.Hour

// DefaultIssuer is the iss claim written into every token.
const DefaultIssuer = "accountd"

// MinSecretLength is the minimum accepted signing secret length in bytes.
const MinSecretLength = 32

// Purpose discriminates what a token may be used for.
type Purpose string

// Token purposes.
const (
	PurposeSession Purpose = "session"
	PurposeReset   Purpose = "reset"
)

// Claims is the signed payload of every token.
type Claims struct {
	jwt.RegisteredClaims
	Purpose Purpose `json:"purpose"`
}

// UserID returns the user id carried in the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, oops.Code("TOKEN_INVALID").
			With("reason", "subject").
			Wrap(ErrTokenInvalid)
	}
	return id, nil
}

// TokenCodec signs and verifies HS256 tokens for sessions and password resets.
// The zero value is not usable; create one with NewTokenCodec.
type TokenCodec struct {
	secret     []byte
	issuer     string
	sessionTTL time.Duration
	now        func() time.Time
}

// TokenOption configures a TokenCodec.
type TokenOption func(*TokenCodec)

// WithSessionTTL overrides the session token lifetime.
func WithSessionTTL(ttl time.Duration) TokenOption {
	return func(c *TokenCodec) {
		if ttl > 0 {
			c.sessionTTL = ttl
		}
	}
}

// WithClock overrides the time source used to issue and validate tokens.
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) TokenOption {
	return func(c *TokenCodec) {
		if issuer != "" {
			c.issuer = issuer
		}
	}
}

// NewTokenCodec creates a TokenCodec signing with secret.
func NewTokenCodec(secret []byte, opts ...TokenOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, oops.Code("TOKEN_SECRET_MISSING").Errorf("signing secret is required")
	}
	c := &TokenCodec{
		secret:     append([]byte(nil), secret...),
		issuer:     DefaultIssuer,
		sessionTTL: SessionTokenExpiry,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SessionTTL returns the configured session token lifetime.
func (c *TokenCodec) SessionTTL() time.Duration {
	return c.sessionTTL
}

// IssueSession issues a session token for userID.
func (c *TokenCodec) IssueSession(userID int64) (string, time.Time, error) {
	return c.issue(userID, PurposeSession, c.sessionTTL)
}

// IssueReset issues a password-reset token for userID valid for ttl.
func (c *TokenCodec) IssueReset(userID int64, ttl time.Duration) (string, time.Time, error) {
	return c.issue(userID, PurposeReset, ttl)
}

func (c *TokenCodec) issue(userID int64, purpose Purpose, ttl time.Duration) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, oops.Code("TOKEN_ISSUE_FAILED").
			With("user_id", userID).
			Errorf("user id must be positive")
	}
	if ttl <= 0 {
		return "", time.Time{}, oops.Code("TOKEN_ISSUE_FAILED").
			With("ttl", ttl.String()).
			Errorf("token lifetime must be positive")
	}

	now := c.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Issuer:    c.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Purpose: purpose,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_ISSUE_FAILED").
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return signed, expiresAt, nil
}

// Parse verifies token and returns its claims if it was issued for purpose.
// A correctly signed token past its expiry yields ErrTokenExpired; every
// other failure yields ErrTokenInvalid.
func (c *TokenCodec) Parse(token string, purpose Purpose) (*Claims, error) {
	if token == "" {
		return nil, oops.Code("TOKEN_INVALID").With("reason", "empty").Wrap(ErrTokenInvalid)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired) && claims.Purpose == purpose:
		return nil, oops.Code("TOKEN_EXPIRED").
			With("purpose", string(purpose)).
			Wrap(ErrTokenExpired)
	default:
		return nil, oops.Code("TOKEN_INVALID").
			With("purpose", string(purpose)).
			With("reason", err.Error()).
			Wrap(ErrTokenInvalid)
	}

	if claims.Purpose != purpose {
		return nil, oops.Code("TOKEN_INVALID").
			With("purpose", string(purpose)).
			With("reason", "purpose mismatch").
			Wrap(ErrTokenInvalid)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *TokenCodec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, oops.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return c.secret, nil
}
