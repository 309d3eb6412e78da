package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorEnvelope is the body of every non-2xx JSON response.
type errorEnvelope struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// RespondJSON writes v as a JSON body with the given status code.
func RespondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("handlers: encode response failed", "error", err)
	}
}

// RespondError writes a consistent { "error", "details" } envelope.
func RespondError(w http.ResponseWriter, status int, message, details string) {
	RespondJSON(w, status, errorEnvelope{Error: message, Details: details})
}

func respondBadRequest(w http.ResponseWriter, details string) {
	RespondError(w, http.StatusBadRequest, "validation_error", details)
}

func respondNotFound(w http.ResponseWriter, details string) {
	RespondError(w, http.StatusNotFound, "not_found", details)
}

func respondInternal(w http.ResponseWriter, err error) {
	slog.Error("handlers: internal error", "error", err)
	RespondError(w, http.StatusInternalServerError, "internal_error", "an internal error occurred")
}
