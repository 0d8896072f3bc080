// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/health"
	"github.com/accountd/accountd/internal/observability"
)

// Acknowledgement messages.
const (
	msgRegistered      = "User registered successfully"
	msgProfileUpdated  = "Profile updated successfully"
	msgPasswordChanged = "Password changed successfully"
	msgResetRequested  = "If the email is registered, password reset instructions have been sent"
	msgPasswordReset   = "Password has been reset successfully"
	msgAccountDeleted  = "Account deleted successfully"
)

// AccountService is the account API served over HTTP. *auth.Service
// implements it.
type AccountService interface {
	Signup(ctx context.Context, in auth.SignupInput) (int64, error)
	Signin(ctx context.Context, email, password string) (*auth.SessionToken, error)
	Authenticate(ctx context.Context, token string) (int64, error)
	GetProfile(ctx context.Context, userID int64) (*auth.ProfileView, error)
	UpdateProfile(ctx context.Context, userID int64, update auth.ProfileUpdate) error
	ChangePassword(ctx context.Context, userID int64, in auth.ChangePasswordInput) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, in auth.ResetPasswordInput) error
	DeleteAccount(ctx context.Context, userID int64) error
}

// HealthChecker reports backend health. *health.Checker implements it.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// Handler serves the account endpoints.
type Handler struct {
	accounts AccountService
	health   HealthChecker
	logger   *slog.Logger
	metrics  *observability.Metrics
	validate *validator.Validate
	maxBody  int64
}

// fail writes err and records the auth event outcome.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	status := writeError(w, r, h.logger, err)
	outcome := observability.OutcomeFailure
	if status >= http.StatusInternalServerError {
		outcome = observability.OutcomeError
	}
	h.metrics.RecordAuthEvent(event, outcome)
}

func (h *Handler) succeed(event string) {
	h.metrics.RecordAuthEvent(event, observability.OutcomeSuccess)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, event string, dst any) bool {
	if err := decodeJSON(w, r, h.maxBody, dst); err != nil {
		h.fail(w, r, event, err)
		return false
	}
	if err := validateRequest(h.validate, dst); err != nil {
		h.fail(w, r, event, err)
		return false
	}
	return true
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !h.decode(w, r, "signup", &req) {
		return
	}
	userID, err := h.accounts.Signup(r.Context(), req.input())
	if err != nil {
		h.fail(w, r, "signup", err)
		return
	}
	h.succeed("signup")
	writeJSON(w, http.StatusCreated, signupResponse{Message: msgRegistered, UserID: userID})
}

func (h *Handler) signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if !h.decode(w, r, "signin", &req) {
		return
	}
	session, err := h.accounts.Signin(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "signin", err)
		return
	}
	h.succeed("signin")
	writeJSON(w, http.StatusOK, signinResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	view, err := h.accounts.GetProfile(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "get_profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		Email:          view.Email,
		Firstname:      view.Firstname,
		Lastname:       view.Lastname,
		Bio:            view.Bio,
		ProfilePicture: view.ProfilePicture,
		Entity:         view.Entity,
	})
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !h.decode(w, r, "update_profile", &req) {
		return
	}
	userID, _ := UserIDFromContext(r.Context())
	if err := h.accounts.UpdateProfile(r.Context(), userID, req.update()); err != nil {
		h.fail(w, r, "update_profile", err)
		return
	}
	h.succeed("update_profile")
	writeMessage(w, http.StatusOK, msgProfileUpdated)
}

func (h *Handler) deleteProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	if err := h.accounts.DeleteAccount(r.Context(), userID); err != nil {
		h.fail(w, r, "delete_account", err)
		return
	}
	h.succeed("delete_account")
	writeMessage(w, http.StatusOK, msgAccountDeleted)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !h.decode(w, r, "change_password", &req) {
		return
	}
	userID, _ := UserIDFromContext(r.Context())
	err := h.accounts.ChangePassword(r.Context(), userID, auth.ChangePasswordInput{
		OldPassword:     req.OldPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.fail(w, r, "change_password", err)
		return
	}
	h.succeed("change_password")
	writeMessage(w, http.StatusOK, msgPasswordChanged)
}

// forgotPassword answers the same way whether or not the email is
// registered. Only malformed input and backend failures surface.
func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.decode(w, r, "forgot_password", &req) {
		return
	}
	err := h.accounts.ForgotPassword(r.Context(), req.Email)
	if err != nil && !errors.Is(err, auth.ErrNotFound) {
		h.fail(w, r, "forgot_password", err)
		return
	}
	h.succeed("forgot_password")
	writeMessage(w, http.StatusOK, msgResetRequested)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, "reset_password", &req) {
		return
	}
	err := h.accounts.ResetPassword(r.Context(), auth.ResetPasswordInput{
		Token:           req.Token,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.fail(w, r, "reset_password", err)
		return
	}
	h.succeed("reset_password")
	writeMessage(w, http.StatusOK, msgPasswordReset)
}

// healthz reports 503 when the database is unreachable.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeErrorMessage(w, http.StatusNotFound, "Not found")
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
}
