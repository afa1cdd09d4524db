package response

import (
	"encoding/json"
	"net/http"
)

// APIResponse is the standard error response wrapper. Success payloads are
// written flat; errors always carry a message and, when machine-readable
// handling matters, a code.
type APIResponse struct {
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Log error but don't try to write again
			return
		}
	}
}

// Error writes an error response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, APIResponse{
		Error: message,
	})
}

// ErrorWithCode writes an error response carrying a machine-readable code
func ErrorWithCode(w http.ResponseWriter, status int, message, code string) {
	JSON(w, status, APIResponse{
		Error: message,
		Code:  code,
	})
}

// BadRequest writes a 400 bad request response
func BadRequest(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Bad request"
	}
	Error(w, http.StatusBadRequest, message)
}

// InternalError writes a 500 internal server error response
func InternalError(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Internal server error"
	}
	Error(w, http.StatusInternalServerError, message)
}

// Redirect writes a redirect to the given location
func Redirect(w http.ResponseWriter, status int, location string) {
	w.Header().Set("Location", location)
	w.WriteHeader(status)
}
