// Package helpers holds response-writing helpers shared by the stdlib,
// Gin, and Chi gate adapters so every surface emits identical wire shapes.
package helpers

import (
	"encoding/json"
	"net/http"

	x402gate "github.com/tollgate-labs/x402gate"
)

// WriteChallenge sends a 402 Payment Required response carrying the
// challenge body. An optional reason lands in the challenge's error field.
func WriteChallenge(w http.ResponseWriter, challenge x402gate.Challenge, reason string) {
	if reason != "" {
		challenge.Error = reason
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(challenge)
}

// WriteError sends a classed payment failure as JSON.
func WriteError(w http.ResponseWriter, status int, class x402gate.Class, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(x402gate.ErrorResponse{Error: class, Message: message})
}
