// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package httpapi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// Request bodies. Presence and email format are checked by auth.Service so
// the first missing field is reported in form order before any format
// error; the tags here only bound lengths.

type signupRequest struct {
	Firstname      string  `json:"firstname" validate:"max=100"`
	Lastname       string  `json:"lastname" validate:"max=100"`
	Email          string  `json:"email" validate:"max=120"`
	Password       string  `json:"password"`
	Entity         string  `json:"entity" validate:"max=100"`
	Bio            *string `json:"bio"`
	ProfilePicture *string `json:"profile_picture" validate:"omitempty,max=200"`
}

func (r signupRequest) input() auth.SignupInput {
	return auth.SignupInput{
		Firstname:      r.Firstname,
		Lastname:       r.Lastname,
		Email:          r.Email,
		Password:       r.Password,
		Entity:         r.Entity,
		Bio:            r.Bio,
		ProfilePicture: r.ProfilePicture,
	}
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	Firstname      *string `json:"firstname" validate:"omitempty,max=100"`
	Lastname       *string `json:"lastname" validate:"omitempty,max=100"`
	Bio            *string `json:"bio"`
	ProfilePicture *string `json:"profile_picture" validate:"omitempty,max=200"`
}

func (r updateProfileRequest) update() auth.ProfileUpdate {
	return auth.ProfileUpdate{
		Firstname:      r.Firstname,
		Lastname:       r.Lastname,
		Bio:            r.Bio,
		ProfilePicture: r.ProfilePicture,
	}
}

type changePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token           string `json:"token" validate:"max=500"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Response bodies.

type signupResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
}

type signinResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type profileResponse struct {
	Email          string  `json:"email"`
	Firstname      string  `json:"firstname"`
	Lastname       string  `json:"lastname"`
	Bio            *string `json:"bio"`
	ProfilePicture *string `json:"profile_picture"`
	Entity         string  `json:"entity"`
}

// newValidator reports field names by their JSON tag.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest turns the first failed rule into a validation error
// carrying a user-facing message.
func validateRequest(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return oops.Code("HTTP_VALIDATION_FAILED").Wrap(errors.Join(auth.ErrValidation, err))
	}

	fe := fieldErrs[0]
	var msg string
	switch fe.Tag() {
	case "max":
		msg = fmt.Sprintf("Field %s must be at most %s characters", fe.Field(), fe.Param())
	default:
		msg = "Invalid value for field: " + fe.Field()
	}
	return oops.Code("HTTP_VALIDATION_FAILED").
		With("field", fe.Field()).
		With("rule", fe.Tag()).
		Public(msg).
		Wrap(auth.ErrValidation)
}
