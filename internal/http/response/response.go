// Package response writes the JSON envelope shared by every HTTP response,
// for handlers that run outside the huma operation pipeline (routing
// fallbacks and middleware).
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	domainerrors "github.com/parishrecords/ocrmapper/internal/errors"
)

// Version is the envelope format version, sent as "v".
const Version = 1

// Envelope wraps a successful response body.
type Envelope struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorEnvelope wraps a coded error.
type ErrorEnvelope struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && logger != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

// Success writes data in a 200 envelope.
func Success(w http.ResponseWriter, data any, logger *slog.Logger) {
	JSON(w, http.StatusOK, Envelope{Version: Version, Success: true, Data: data}, logger)
}

// Error writes a coded error envelope.
func Error(w http.ResponseWriter, status int, code domainerrors.Code, message string, logger *slog.Logger) {
	JSON(w, status, ErrorEnvelope{Version: Version, Code: string(code), Error: message}, logger)
}

// NotFound writes a 404 response.
func NotFound(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusNotFound, domainerrors.CodeNotFound, message, logger)
}

// MethodNotAllowed writes a 405 response.
func MethodNotAllowed(w http.ResponseWriter, logger *slog.Logger) {
	Error(w, http.StatusMethodNotAllowed, domainerrors.CodeValidation, "method not allowed", logger)
}

// TooManyRequests writes a 429 response.
func TooManyRequests(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusTooManyRequests, domainerrors.CodeRateLimited, message, logger)
}

// HandleError writes err as a coded envelope. Domain errors keep their code
// and status; anything else is logged and reported as an internal error.
func HandleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var de *domainerrors.Error
	if errors.As(err, &de) {
		JSON(w, de.HTTPStatus(), ErrorEnvelope{
			Version: Version,
			Code:    string(de.Code),
			Error:   de.Message,
			Details: de.Details,
		}, logger)
		return
	}
	if logger != nil {
		logger.Error("unhandled error", "error", err)
	}
	Error(w, http.StatusInternalServerError, domainerrors.CodeInternal, "internal server error", logger)
}
