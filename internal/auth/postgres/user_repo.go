// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package postgres implements auth.UserRepository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// DB is the subset of *pgxpool.Pool used by the repository.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, email, password_hash, reset_token, entity, created_at, updated_at`

const profileColumns = `id, user_id, firstname, lastname, bio, profile_picture, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts user and profile in one transaction. IDs are assigned only
// after the commit succeeds.
func (r *UserRepository) Create(ctx context.Context, user *auth.User, profile *auth.Profile) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "begin transaction").
			Wrap(auth.Unavailable(err))
	}

	userID, profileID, err := insertUserAndProfile(ctx, tx, user, profile)
	if err != nil {
		_ = tx.Rollback(ctx) //nolint:errcheck // the insert error takes precedence
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "commit").
			With("email", user.Email).
			Wrap(auth.Unavailable(err))
	}

	user.ID = userID
	profile.ID = profileID
	profile.UserID = userID
	return nil
}

func insertUserAndProfile(ctx context.Context, tx pgx.Tx, user *auth.User, profile *auth.Profile) (int64, int64, error) {
	var userID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, entity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, user.Email, user.PasswordHash, user.Entity, user.CreatedAt, user.UpdatedAt).Scan(&userID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, 0, oops.Code("USER_EMAIL_TAKEN").
				With("email", user.Email).
				Wrap(auth.ErrEmailTaken)
		}
		return 0, 0, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(auth.Unavailable(err))
	}

	var profileID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO profiles (user_id, firstname, lastname, bio, profile_picture, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, userID, profile.Firstname, profile.Lastname, profile.Bio, profile.ProfilePicture,
		profile.CreatedAt, profile.UpdatedAt).Scan(&profileID)
	if err != nil {
		return 0, 0, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert profile").
			With("user_id", userID).
			Wrap(auth.Unavailable(err))
	}
	return userID, profileID, nil
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by id").
			With("id", id).
			Wrap(auth.Unavailable(err))
	}
	return user, nil
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(auth.Unavailable(err))
	}
	return user, nil
}

// GetProfile retrieves the profile owned by userID.
func (r *UserRepository) GetProfile(ctx context.Context, userID int64) (*auth.Profile, error) {
	row := r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
	profile, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PROFILE_NOT_FOUND").With("user_id", userID).Wrap(auth.ErrProfileNotFound)
	}
	if err != nil {
		return nil, oops.Code("PROFILE_GET_FAILED").
			With("operation", "get profile").
			With("user_id", userID).
			Wrap(auth.Unavailable(err))
	}
	return profile, nil
}

// UpdateProfile overwrites only the supplied fields; NULL parameters keep the
// stored value. The owning user's updated_at is refreshed in the same statement.
func (r *UserRepository) UpdateProfile(ctx context.Context, userID int64, update auth.ProfileUpdate) (*auth.Profile, error) {
	row := r.db.QueryRow(ctx, `
		WITH touched AS (
			UPDATE users SET updated_at = now() WHERE id = $1
		)
		UPDATE profiles SET
			firstname = COALESCE($2, firstname),
			lastname = COALESCE($3, lastname),
			bio = COALESCE($4, bio),
			profile_picture = COALESCE($5, profile_picture),
			updated_at = now()
		WHERE user_id = $1
		RETURNING `+profileColumns,
		userID, update.Firstname, update.Lastname, update.Bio, update.ProfilePicture)

	profile, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PROFILE_NOT_FOUND").With("user_id", userID).Wrap(auth.ErrProfileNotFound)
	}
	if err != nil {
		return nil, oops.Code("PROFILE_UPDATE_FAILED").
			With("operation", "update profile").
			With("user_id", userID).
			Wrap(auth.Unavailable(err))
	}
	return profile, nil
}

// UpdatePassword replaces the password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, userID, passwordHash, time.Now())
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", userID).
			Wrap(auth.Unavailable(err))
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", userID).Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetResetToken stores token as the single pending reset token, replacing any earlier one.
func (r *UserRepository) SetResetToken(ctx context.Context, userID int64, token string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET reset_token = $2, updated_at = $3
		WHERE id = $1
	`, userID, token, time.Now())
	if err != nil {
		return oops.Code("RESET_TOKEN_STORE_FAILED").
			With("operation", "store reset token").
			With("id", userID).
			Wrap(auth.Unavailable(err))
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", userID).Wrap(auth.ErrNotFound)
	}
	return nil
}

// ConsumeResetToken sets the new hash and clears the token only when the
// stored token equals token. Concurrent consumers of one token race on the
// row lock; exactly one sees an affected row.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, userID int64, token, passwordHash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET password_hash = $3, reset_token = NULL, updated_at = $4
		WHERE id = $1 AND reset_token = $2
	`, userID, token, passwordHash, time.Now())
	if err != nil {
		return oops.Code("RESET_TOKEN_CONSUME_FAILED").
			With("operation", "consume reset token").
			With("id", userID).
			Wrap(auth.Unavailable(err))
	}
	if result.RowsAffected() != 1 {
		return oops.Code("RESET_TOKEN_MISMATCH").With("id", userID).Wrap(auth.ErrResetTokenMismatch)
	}
	return nil
}

// Delete removes the user; the profile follows by ON DELETE CASCADE.
func (r *UserRepository) Delete(ctx context.Context, userID int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user").
			With("id", userID).
			Wrap(auth.Unavailable(err))
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", userID).Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.ResetToken, &u.Entity, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with lookup context
	}
	return &u, nil
}

// scanProfile scans a single row into a Profile.
// Callers are responsible for handling pgx.ErrNoRows.
func scanProfile(row pgx.Row) (*auth.Profile, error) {
	var p auth.Profile
	if err := row.Scan(&p.ID, &p.UserID, &p.Firstname, &p.Lastname, &p.Bio, &p.ProfilePicture, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with lookup context
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
