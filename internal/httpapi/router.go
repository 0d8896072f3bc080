// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package httpapi serves the account API as JSON over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/observability"
)

// DefaultRequestTimeout bounds a request when Config.RequestTimeout is unset.
const DefaultRequestTimeout = 30 * time.Second

// Config collects the router's dependencies.
type Config struct {
	Accounts       AccountService
	Health         HealthChecker
	Logger         *slog.Logger
	Metrics        *observability.Metrics // optional
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	SSLRedirect    bool
}

// NewRouter builds the chi router for the account API.
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Accounts == nil {
		return nil, oops.Code("HTTP_CONFIG_INVALID").Errorf("account service is required")
	}
	if cfg.Health == nil {
		return nil, oops.Code("HTTP_CONFIG_INVALID").Errorf("health checker is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	h := &Handler{
		accounts: cfg.Accounts,
		health:   cfg.Health,
		logger:   logger,
		metrics:  cfg.Metrics,
		validate: newValidator(),
		maxBody:  maxBody,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(securityHeaders(cfg.SSLRedirect))

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/health", h.healthz)
	r.Post("/signup", h.signup)
	r.Post("/signin", h.signin)
	r.Post("/forgot-password", h.forgotPassword)
	r.Post("/reset-password", h.resetPassword)

	r.Group(func(r chi.Router) {
		r.Use(requireBearer(cfg.Accounts, logger))
		r.Get("/profile", h.getProfile)
		r.Put("/profile", h.updateProfile)
		r.Delete("/profile", h.deleteProfile)
		r.Put("/change-password", h.changePassword)
	})

	return r, nil
}
