package json

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tenup/docgate/internal/log"
)

// ErrorResponse represents a standard JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteResponse writes a JSON response with the given status code
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		return err
	}
	return nil
}

// Write writes a JSON response with 200 OK status
func Write(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, data)
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, statusCode int, error string, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}

	if err := WriteResponse(w, statusCode, response); err != nil {
		// Fallback to plain text error if JSON encoding fails
		http.Error(w, error+": "+message, statusCode)
	}
}

// Common error responses
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

// WriteUnauthorizedWithLogin writes a 401 for script clients that cannot
// follow a login redirect. The WWW-Authenticate challenge carries the URL
// that starts a login: Docgate login="<url>"
func WriteUnauthorizedWithLogin(w http.ResponseWriter, message string, loginURL string) {
	if loginURL != "" {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Docgate login="%s"`, escapeQuotedString(loginURL)))
	}
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

// escapeQuotedString escapes a string for use in an RFC 9110 quoted-string
func escapeQuotedString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}

func WriteInternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_server_error", message)
}
