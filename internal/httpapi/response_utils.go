package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
)

// ErrorPayload is the body of every non-2xx response.
type ErrorPayload struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details *map[string]any `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	resp := ErrorPayload{Code: code, Message: message}
	if len(details) > 0 {
		resp.Details = &details
	}
	respondJSON(w, status, resp)
}

func decodeJSON(body io.ReadCloser, dest any) error {
	defer func() {
		_ = body.Close()
	}()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}
