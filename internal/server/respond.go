package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/eugener/boatload"
	relay "github.com/eugener/boatload/internal"
)

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func errorResponse(status int, msg string) apiError {
	var e apiError
	e.Error.Message = msg
	e.Error.Type = errorType(status)
	return e
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "server_error"
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, relay.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, relay.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, relay.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, relay.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, boatload.ErrQueueOverflow), errors.Is(err, boatload.ErrClosed), errors.Is(err, relay.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and writes it as a JSON error body.
func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	writeJSON(w, status, errorResponse(status, err.Error()))
}

// jsonCT is assigned directly to the header map to skip Header.Set's
// canonicalization and slice allocation.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
