// ABOUTME: JSON response helpers and the error taxonomy for the auth surface
// ABOUTME: Every failure leaves the boundary as a {message, type} body

package webauth

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// maxBodySize caps request bodies; auth payloads are tiny.
const maxBodySize = 64 * 1024

// Error types carried in the "type" field of error responses. Clients
// branch on these, not on the message text.
const (
	ErrTypeInvalidRequest = "invalid_request"
	ErrTypeUnauthorized   = "unauthorized"
	ErrTypeSessionExpired = "session_expired"
	ErrTypeRateLimited    = "rate_limited"
	ErrTypeCSRF           = "csrf_error"
	ErrTypeUnavailable    = "unavailable"
)

type errorResponse struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// WriteError writes a structured error response with the given status.
func WriteError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, errorResponse{Message: message, Type: errType})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes a request body, rejecting unknown fields and
// trailing garbage.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON body")
	}
	return nil
}
