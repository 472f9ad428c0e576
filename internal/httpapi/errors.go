package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"inferd/internal/engine"
	"inferd/internal/manager"
	"inferd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Warn().Err(err).Msg("encode response")
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests
	case manager.IsModelNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, manager.ErrCellularConsentRequired):
		return http.StatusConflict
	case manager.IsNotReady(err), errors.Is(err, manager.ErrClosed), errors.Is(err, manager.ErrRemoteNotConfigured):
		return http.StatusServiceUnavailable
	case engine.IsConstruction(err), errors.Is(err, engine.ErrNotReady):
		return http.StatusServiceUnavailable
	case engine.IsRemoteAPIError(err), errors.Is(err, engine.ErrEmptyResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &he):
		return he.StatusCode()
	default:
		return http.StatusInternalServerError
	}
}
