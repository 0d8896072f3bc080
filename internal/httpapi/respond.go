// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/pkg/errutil"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

const msgInvalidJSON = "Invalid JSON body"

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// messageBody is the JSON shape of responses that only acknowledge.
type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // the client may have gone away
	json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageBody{Message: msg})
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps the auth error classes to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, auth.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the user-facing text for err. Server errors never
// expose their cause.
func messageFor(err error, status int) string {
	if status < http.StatusInternalServerError {
		if oopsErr, ok := oops.AsOops(err); ok {
			if public := oopsErr.Public(); public != "" {
				return public
			}
		}
	}
	switch status {
	case http.StatusBadRequest:
		return "Invalid request"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusNotFound:
		return "Not found"
	case http.StatusConflict:
		return "Conflict"
	case http.StatusServiceUnavailable:
		return "Service temporarily unavailable"
	default:
		return "Internal server error"
	}
}

// writeError maps err to a status and a JSON error body. Server errors are
// logged with their oops context.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) int {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		errutil.LogError(r.Context(), logger, "request failed", err, "method", r.Method, "path", r.URL.Path)
	} else {
		logger.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeErrorMessage(w, status, messageFor(err, status))
	return status
}

// decodeJSON reads exactly one JSON object from the body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return invalidJSON(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return invalidJSON(oops.Errorf("body must contain a single JSON object"))
	}
	return nil
}

func invalidJSON(cause error) error {
	return oops.Code("HTTP_INVALID_JSON").Public(msgInvalidJSON).Wrap(errors.Join(auth.ErrValidation, cause))
}
