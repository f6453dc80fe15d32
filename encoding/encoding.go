// Package encoding implements the wire codec for x402 headers: base64-wrapped
// JSON for X-PAYMENT and X-PAYMENT-RESPONSE, with raw JSON accepted as an
// alternative on ingress.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	x402gate "github.com/tollgate-labs/x402gate"
)

// MaxHeaderSize is the largest X-PAYMENT header value accepted, in bytes.
const MaxHeaderSize = 8 * 1024

// EncodePayment converts a SignedPayment to the canonical X-PAYMENT header
// value: base64(JSON).
func EncodePayment(payment x402gate.SignedPayment) (string, error) {
	data, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePayment parses an X-PAYMENT header value. Base64-wrapped JSON is
// tried first; a value that begins with '{' is accepted as raw JSON.
// Returns ErrMalformedHeader when neither decoding succeeds or the value
// exceeds MaxHeaderSize.
func DecodePayment(header string) (x402gate.SignedPayment, error) {
	var payment x402gate.SignedPayment

	if len(header) > MaxHeaderSize {
		return payment, fmt.Errorf("%w: header exceeds %d bytes", x402gate.ErrMalformedHeader, MaxHeaderSize)
	}

	raw := []byte(header)
	if decoded, err := base64.StdEncoding.DecodeString(header); err == nil {
		raw = decoded
	} else if !strings.HasPrefix(strings.TrimSpace(header), "{") {
		return payment, fmt.Errorf("%w: neither base64 nor JSON", x402gate.ErrMalformedHeader)
	}

	if err := json.Unmarshal(raw, &payment); err != nil {
		return payment, fmt.Errorf("%w: %v", x402gate.ErrMalformedHeader, err)
	}

	return payment, nil
}

// EncodeReceipt converts a PaymentReceipt to the X-PAYMENT-RESPONSE header
// value: base64(JSON).
func EncodeReceipt(receipt x402gate.PaymentReceipt) (string, error) {
	data, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal receipt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeReceipt parses an X-PAYMENT-RESPONSE header value.
func DecodeReceipt(header string) (x402gate.PaymentReceipt, error) {
	var receipt x402gate.PaymentReceipt

	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return receipt, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &receipt); err != nil {
		return receipt, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}

	return receipt, nil
}

// DecodeChallenge parses a 402 response body into a Challenge, accepting the
// field aliases handled by the type's UnmarshalJSON. A challenge with no
// methods is rejected.
func DecodeChallenge(body []byte) (x402gate.Challenge, error) {
	var challenge x402gate.Challenge
	if err := json.Unmarshal(body, &challenge); err != nil {
		return challenge, fmt.Errorf("%w: %v", x402gate.ErrBadChallenge, err)
	}
	if len(challenge.Methods) == 0 {
		return challenge, fmt.Errorf("%w: no payment methods offered", x402gate.ErrBadChallenge)
	}
	return challenge, nil
}
