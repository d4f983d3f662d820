// Package respond writes the JSON envelopes shared by handlers and middleware.
package respond

import (
	"encoding/json"
	"net/http"
)

const (
	StatusSuccess = "success"
	// StatusFail marks client mistakes in the payload.
	StatusFail = "fail"
	// StatusError marks auth-flow and server failures.
	StatusError = "error"
)

// Envelope is the body of every JSON response
type Envelope struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	AuthToken string `json:"auth_token,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// JSON writes payload with the given status code
func JSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// Message writes an envelope carrying only a status and a message
func Message(w http.ResponseWriter, code int, status, message string) {
	JSON(w, code, Envelope{Status: status, Message: message})
}
