// Package handlers writes the JSON bodies every API endpoint shares.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// RetryAfterSeconds is advertised on 503 responses so clients resubmit once a
// restarted pipeline is accepting batches again.
const RetryAfterSeconds = "5"

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// RespondJSON encodes data before writing the header, so a value that cannot
// be encoded becomes a 500 instead of a truncated success.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorResponse{Error: "encode response: " + err.Error(), Status: status})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// RespondError logs err and writes it as an ErrorResponse. Server errors log
// at error level and rejected requests at warn.
func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "status", status, "error", err)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", RetryAfterSeconds)
	}
	RespondJSON(w, status, ErrorResponse{Error: err.Error(), Status: status})
}
