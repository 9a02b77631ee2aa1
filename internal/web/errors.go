package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via engine.MapError to get a user-friendly message
//  4. Technical error + context is logged with request ID for correlation
//  5. User message is written as JSON with a status derived from the error type

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fieldroute/fieldroute/internal/engine"
	"github.com/fieldroute/fieldroute/internal/logging"
	"github.com/fieldroute/fieldroute/internal/registry"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string                   `json:"error"`
	Message string                   `json:"message"`
	Action  string                   `json:"action,omitempty"`
	Code    string                   `json:"code"`
	Details []engine.ValidationError `json:"details,omitempty"`
}

// respondError logs the technical error server-side and writes a sanitized
// JSON response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := engine.MapError(err)

	// Malformed client input is safe to echo back verbatim.
	var badReq *badRequestError
	if errors.As(err, &badReq) {
		userMsg = engine.UserMessage{
			Code:    "REQ001",
			Message: badReq.Error(),
			Action:  "Fix the request and retry",
		}
	}

	logger := logging.FromContext(r.Context())
	logger.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	var cfgErr *engine.ConfigError
	if errors.As(err, &cfgErr) {
		resp.Details = cfgErr.Errors
	}

	writeJSON(w, status, resp)
}

// badRequestError marks malformed client input (bad JSON, bad URL params)
// that has no place in the ingestion error taxonomy.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

// statusFor maps the error taxonomy onto HTTP status codes. Unknown errors
// are treated as internal.
func statusFor(err error) int {
	var (
		fatalErr *engine.FatalParseError
		cfgErr   *engine.ConfigError
		badReq   *badRequestError
		tooBig   *http.MaxBytesError
	)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &badReq):
		return http.StatusBadRequest
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &fatalErr):
		return http.StatusBadRequest
	case errors.As(err, &cfgErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as JSON and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; nothing left to do but record it.
		slog.Error("json encode error", "error", err)
	}
}
