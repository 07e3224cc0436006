package handler

// Every API error has the same shape:
//   {"error": "not_found", "message": "list abc123 does not exist"}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/akruel/list-flix/internal/apperror"
	"github.com/akruel/list-flix/internal/backend"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code. Headers must
// be set before WriteHeader; anything set after is dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already out; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
// errors.Is walks the whole chain, so a service error like
// fmt.Errorf("creating list: %w", apperror.ValidationFailed(...)) still maps
// to 400.
func writeError(w http.ResponseWriter, err error) {
	// Backend sentinels are plain errors, not AppErrors.
	if status, resp, ok := backendStatus(err); ok {
		writeJSON(w, status, resp)
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest // 400
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized // 401
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound // 404
			errorType = "not_found"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden // 403
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict // 409
			errorType = "conflict"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	// Never echo raw errors; they can carry SQL or file paths.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// backendStatus maps the auth backend's sentinel errors.
func backendStatus(err error) (int, ErrorResponse, bool) {
	switch {
	case errors.Is(err, backend.ErrRateLimited):
		return http.StatusTooManyRequests, ErrorResponse{"rate_limited", "Too many requests, try again later"}, true
	case errors.Is(err, backend.ErrNoSession):
		return http.StatusUnauthorized, ErrorResponse{"unauthorized", "No active session"}, true
	case errors.Is(err, backend.ErrProviderDisabled):
		return http.StatusNotImplemented, ErrorResponse{"provider_disabled", "This sign-in method is not enabled"}, true
	case errors.Is(err, backend.ErrInvalidState), errors.Is(err, backend.ErrInvalidOTP):
		return http.StatusBadRequest, ErrorResponse{"invalid_login", "The sign-in link is invalid or has expired"}, true
	}
	return 0, ErrorResponse{}, false
}

// decodeJSON reads a JSON request body into dst, rejecting unknown fields
// and bodies over 1 MiB.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}
