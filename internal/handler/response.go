package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/justanagent/auth-service/internal/apperror"
)

// envelope is the standard JSON shape of every API response. Success
// responses embed additional payload fields via the Data map; error
// responses carry the message and, for OAuth conflicts, the provider the
// client should offer instead.
type envelope struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	RequiresOAuth bool   `json:"requiresOAuth,omitempty"`
	OAuthProvider string `json:"oauthProvider,omitempty"`
	Field         string `json:"field,omitempty"`
	Data          map[string]any
}

// MarshalJSON flattens Data into the top level so payload fields sit next
// to success/message instead of nested under a "data" key.
func (e envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Data)+5)
	out["success"] = e.Success
	if e.Message != "" {
		out["message"] = e.Message
	}
	if e.RequiresOAuth {
		out["requiresOAuth"] = true
		out["oauthProvider"] = e.OAuthProvider
	}
	if e.Field != "" {
		out["field"] = e.Field
	}
	for k, v := range e.Data {
		out[k] = v
	}
	return json.Marshal(out)
}

// writeJSON sends a JSON response with the given status. Headers must be
// set before the first body write.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeSuccess sends {"success": true, "message": ..., <extra fields>}.
func writeSuccess(w http.ResponseWriter, status int, message string, data map[string]any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// writeError translates a service error into an HTTP status and the
// standard error envelope. Unknown errors collapse to a generic 500 so
// internal details never reach the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
		case errors.Is(err, apperror.ErrUpstream):
			status = http.StatusInternalServerError
		}

		writeJSON(w, status, envelope{
			Message:       appErr.Message,
			RequiresOAuth: appErr.Provider != "",
			OAuthProvider: appErr.Provider,
			Field:         appErr.Field,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, envelope{
		Message: "An internal error occurred",
	})
}
