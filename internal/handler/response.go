package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError, so the API has one
// success shape per endpoint and exactly one error shape:
//
//	{"error": "validation_error", "message": "The selected file is empty.", "field": "file"}
//
// The page only ever has to look at "error" to decide what to do, and can
// show "message" as it is.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/tryon"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g. "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Request field at fault, if any
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be written before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps an error category to its HTTP status and type.
//
// errors.Is walks the whole chain, so a wrapped error like
//
//	fmt.Errorf("tryon: generate: %w", apperror.GenerationFailed("VTON process failed"))
//
// still maps to 502 / generation_failed.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrLoginRequired):
		return http.StatusUnauthorized, "login_required"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrNetwork):
		return http.StatusBadGateway, "network_error"
	case errors.Is(err, apperror.ErrGeneration):
		return http.StatusBadGateway, "generation_failed"
	case errors.Is(err, tryon.ErrStopped):
		return http.StatusGone, "session_closed"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to the appropriate HTTP status code and
// sends it. Messages of unknown errors are never exposed.
func writeError(w http.ResponseWriter, err error) {
	status, errorType := errorStatus(err)

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	message := "An internal error occurred"
	if status == http.StatusGone {
		message = "This session has ended."
	}
	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: message,
	})
}
