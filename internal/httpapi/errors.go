package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"iotml/internal/modelcache"
	"iotml/internal/training"
	"iotml/pkg/types"
)

// retryAfterSeconds is advertised on 503 responses for transient failures.
const retryAfterSeconds = 5

const genericServerError = "internal server error"

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// badRequest is an HTTPError for malformed input detected by handlers.
type badRequest struct{ msg string }

func (e badRequest) Error() string   { return e.msg }
func (e badRequest) StatusCode() int { return http.StatusBadRequest }

// statusFor maps component errors to HTTP statuses:
// not found 404, validation and path errors 400, timeouts and capacity 503,
// everything else 500.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case modelcache.IsNotFound(err), training.IsJobNotFound(err):
		return http.StatusNotFound
	case training.IsValidation(err), modelcache.IsInvalidPath(err):
		return http.StatusBadRequest
	case modelcache.IsLoadTimeout(err), training.IsCapacity(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and writes it. Server errors expose only a
// generic message in production; the cause is logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && production {
		msg = genericServerError
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	logHandlerError(r, status, err)
	writeJSONError(w, status, msg)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
