// Package handlers implements the HTTP endpoints: member registration and
// login, account self-service, the admin console API, health and metrics.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjmerc/velvetrope/internal/models"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 * 1024

// sendError sends a JSON error response
func sendError(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := models.ErrorResponse{
		Error: message,
		Code:  code,
	}

	json.NewEncoder(w).Encode(errResp)
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// decodeRequest parses and validates a JSON body into dst. On failure it has
// already written the error response and returns false.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			sendError(w, "Request body too large", models.CodeInvalidRequest, http.StatusRequestEntityTooLarge)
			return false
		}
		sendError(w, "Invalid request format", models.CodeInvalidRequest, http.StatusBadRequest)
		return false
	}

	if err := models.Validate(dst); err != nil {
		sendError(w, models.ValidationMessage(err), models.CodeValidationFailed, http.StatusBadRequest)
		return false
	}
	return true
}
