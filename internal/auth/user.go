// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

var emailRule = validator.New()

// Column limits shared by validation and the schema.
const (
	MaxEmailLength          = 120
	MaxEntityLength         = 100
	MaxNameLength           = 100
	MaxProfilePictureLength = 200
)

// User is an identity record.
type User struct {
	ID           int64
	Email        string
	PasswordHash string  `json:"-"`
	ResetToken   *string `json:"-"`
	Entity       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPendingReset reports whether a reset token is outstanding.
func (u *User) HasPendingReset() bool {
	return u.ResetToken != nil && *u.ResetToken != ""
}

// Profile is the 1:1 dependent of a User. It is created with its user and
// removed by cascade when the user is deleted.
type Profile struct {
	ID             int64
	UserID         int64
	Firstname      string
	Lastname       string
	Bio            *string
	ProfilePicture *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProfileUpdate is a partial profile change. Nil fields keep their current value.
type ProfileUpdate struct {
	Firstname      *string
	Lastname       *string
	Bio            *string
	ProfilePicture *string
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.Firstname == nil && u.Lastname == nil && u.Bio == nil && u.ProfilePicture == nil
}

// Apply merges the update into p.
func (u ProfileUpdate) Apply(p *Profile) {
	if u.Firstname != nil {
		p.Firstname = *u.Firstname
	}
	if u.Lastname != nil {
		p.Lastname = *u.Lastname
	}
	if u.Bio != nil {
		p.Bio = u.Bio
	}
	if u.ProfilePicture != nil {
		p.ProfilePicture = u.ProfilePicture
	}
}

// Validate checks the supplied fields. Required columns may not be blanked.
func (u ProfileUpdate) Validate() error {
	if u.Firstname != nil {
		if err := requireField("firstname", *u.Firstname, MaxNameLength); err != nil {
			return err
		}
	}
	if u.Lastname != nil {
		if err := requireField("lastname", *u.Lastname, MaxNameLength); err != nil {
			return err
		}
	}
	if u.ProfilePicture != nil && utf8.RuneCountInString(*u.ProfilePicture) > MaxProfilePictureLength {
		return tooLong("profile_picture", MaxProfilePictureLength)
	}
	return nil
}

// NewUser creates a User with validated fields. Timestamps are set to now.
func NewUser(email, passwordHash, entity string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID").Errorf("password hash cannot be empty")
	}
	if err := requireField("entity", entity, MaxEntityLength); err != nil {
		return nil, err
	}
	now := time.Now()
	return &User{
		Email:        email,
		PasswordHash: passwordHash,
		Entity:       entity,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NewProfile creates a Profile with validated fields. UserID is assigned when
// the owning user is stored.
func NewProfile(firstname, lastname string, bio, picture *string) (*Profile, error) {
	if err := requireField("firstname", firstname, MaxNameLength); err != nil {
		return nil, err
	}
	if err := requireField("lastname", lastname, MaxNameLength); err != nil {
		return nil, err
	}
	if picture != nil && utf8.RuneCountInString(*picture) > MaxProfilePictureLength {
		return nil, tooLong("profile_picture", MaxProfilePictureLength)
	}
	now := time.Now()
	return &Profile{
		Firstname:      firstname,
		Lastname:       lastname,
		Bio:            bio,
		ProfilePicture: picture,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// UserRepository persists users and their profiles.
type UserRepository interface {
	// Create stores user and profile atomically and assigns both IDs.
	// Returns ErrEmailTaken if the email is registered.
	Create(ctx context.Context, user *User, profile *Profile) error

	// GetByID returns ErrNotFound if no user has the id.
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByEmail matches the stored email exactly and returns ErrNotFound on a miss.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetProfile returns ErrProfileNotFound if the user has no profile.
	GetProfile(ctx context.Context, userID int64) (*Profile, error)

	// UpdateProfile merges update into the stored profile and returns the result.
	UpdateProfile(ctx context.Context, userID int64, update ProfileUpdate) (*Profile, error)

	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error

	// SetResetToken stores token as the single outstanding reset token.
	SetResetToken(ctx context.Context, userID int64, token string) error

	// ConsumeResetToken replaces the password hash and clears the reset token
	// only if the stored token equals token. Returns ErrResetTokenMismatch
	// when nothing was updated.
	ConsumeResetToken(ctx context.Context, userID int64, token, passwordHash string) error

	// Delete removes the user and, by cascade, the profile.
	Delete(ctx context.Context, userID int64) error
}

// blank reports whether a required value is absent. Whitespace counts as absent.
func blank(value string) bool {
	return strings.TrimSpace(value) == ""
}

// ValidateEmail checks presence, length and address format, in that order.
func ValidateEmail(email string) error {
	if err := requireField("email", email, MaxEmailLength); err != nil {
		return err
	}
	if emailRule.Var(email, "email") != nil {
		return oops.Code("VALIDATION_INVALID_EMAIL").
			With("field", "email").
			Public("Invalid email address").
			Wrap(ErrValidation)
	}
	return nil
}

// requireField rejects blank values and values longer than maxLen
// characters. Limits count runes to match VARCHAR(n).
func requireField(field, value string, maxLen int) error {
	if blank(value) {
		return missingField(field)
	}
	if utf8.RuneCountInString(value) > maxLen {
		return tooLong(field, maxLen)
	}
	return nil
}

func missingField(field string) error {
	return oops.Code("VALIDATION_MISSING_FIELD").
		With("field", field).
		Public("Missing required field: " + field).
		Wrap(ErrValidation)
}

func tooLong(field string, maxLen int) error {
	return oops.Code("VALIDATION_TOO_LONG").
		With("field", field).
		With("max", maxLen).
		Public(fmt.Sprintf("Field %s must be at most %d characters", field, maxLen)).
		Wrap(ErrValidation)
}
