package x402gate

import (
	"errors"
	"net/http"
)

// Class identifies a payment failure category. Every error surfaced to an
// HTTP client carries exactly one class, rendered in the response body's
// "error" field and mapped to a status code by HTTPStatus.
type Class string

const (
	// ClassPaymentRequired means no X-PAYMENT header was supplied.
	ClassPaymentRequired Class = "payment-required"

	// ClassInvalidFormat means the payment header could not be decoded.
	ClassInvalidFormat Class = "invalid-format"

	// ClassInvalidAuthorization means the fields were present but
	// semantically wrong (recipient, network, scheme, or amount bounds).
	ClassInvalidAuthorization Class = "invalid-authorization"

	// ClassExpired means the authorization's validity window has passed.
	ClassExpired Class = "expired"

	// ClassReplay means the payment nonce was already consumed.
	ClassReplay Class = "replay"

	// ClassRejected means the facilitator explicitly refused the payment.
	ClassRejected Class = "rejected"

	// ClassFacilitatorUnavailable means a transient facilitator failure.
	ClassFacilitatorUnavailable Class = "facilitator-unavailable"

	// ClassChainUnavailable means a transient RPC failure.
	ClassChainUnavailable Class = "chain-unavailable"

	// ClassAmountMismatch means the on-chain value was below the minimum.
	ClassAmountMismatch Class = "amount-mismatch"

	// ClassUnknownTransaction means the hash was not found on chain.
	ClassUnknownTransaction Class = "unknown-transaction"

	// ClassInternal means an unhandled server-side failure.
	ClassInternal Class = "internal"
)

// HTTPStatus maps an error class to its HTTP status code. This is the single
// place where classes become status codes; handlers never pick codes ad hoc.
func HTTPStatus(class Class) int {
	switch class {
	case ClassPaymentRequired, ClassRejected:
		return http.StatusPaymentRequired
	case ClassInvalidFormat, ClassInvalidAuthorization, ClassExpired,
		ClassReplay, ClassAmountMismatch, ClassUnknownTransaction:
		return http.StatusBadRequest
	case ClassFacilitatorUnavailable, ClassChainUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a client may retry after seeing this class,
// possibly with a fresh signature (expired) or after waiting
// (unknown-transaction, unavailable classes).
func Retryable(class Class) bool {
	switch class {
	case ClassPaymentRequired, ClassExpired, ClassFacilitatorUnavailable,
		ClassChainUnavailable, ClassUnknownTransaction:
		return true
	default:
		return false
	}
}

// PaymentError is a classed payment failure. It wraps an underlying cause
// for errors.Is/As while carrying the protocol-visible class and a short
// human message safe to send to clients.
type PaymentError struct {
	Class   Class
	Message string
	Err     error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Err != nil {
		return string(e.Class) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Class) + ": " + e.Message
}

// Unwrap returns the underlying cause.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError builds a classed payment error around an optional cause.
func NewPaymentError(class Class, message string, err error) *PaymentError {
	return &PaymentError{Class: class, Message: message, Err: err}
}

// ClassOf extracts the class from an error chain, defaulting to
// ClassInternal for errors that carry no class.
func ClassOf(err error) Class {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassInternal
}

// ErrorResponse is the JSON body sent with every payment failure.
// Successful responses never carry an "error" key.
type ErrorResponse struct {
	Error   Class  `json:"error"`
	Message string `json:"message"`
}

// Sentinel errors shared across packages.
var (
	// ErrInvalidAmount indicates a malformed atomic amount string.
	ErrInvalidAmount = errors.New("x402gate: invalid amount")

	// ErrUnsupportedNetwork indicates a network outside the chain table.
	ErrUnsupportedNetwork = errors.New("x402gate: unsupported network")

	// ErrUnsupportedVersion indicates an x402 protocol version other than 1.
	ErrUnsupportedVersion = errors.New("x402gate: unsupported protocol version")

	// ErrMalformedHeader indicates an undecodable X-PAYMENT header.
	ErrMalformedHeader = errors.New("x402gate: malformed payment header")

	// ErrInvalidKey indicates an invalid wallet private key.
	ErrInvalidKey = errors.New("x402gate: invalid private key")

	// ErrInvalidKeystore indicates an invalid or corrupted keystore file.
	ErrInvalidKeystore = errors.New("x402gate: invalid keystore file")

	// ErrInvalidMnemonic indicates an invalid BIP-39 mnemonic phrase.
	ErrInvalidMnemonic = errors.New("x402gate: invalid mnemonic phrase")

	// ErrSigningFailed indicates the authorization could not be signed.
	ErrSigningFailed = errors.New("x402gate: signing failed")

	// ErrBadChallenge indicates a 402 body that could not be parsed as a
	// challenge.
	ErrBadChallenge = errors.New("x402gate: unparseable payment challenge")

	// ErrNoAcceptableMethod indicates no advertised payment method matches
	// the client's wallet.
	ErrNoAcceptableMethod = errors.New("x402gate: no acceptable payment method")

	// ErrPaymentNotAccepted indicates the server answered a paid retry with
	// another 402.
	ErrPaymentNotAccepted = errors.New("x402gate: payment not accepted")
)
