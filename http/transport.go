package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	x402gate "github.com/tollgate-labs/x402gate"
	"github.com/tollgate-labs/x402gate/encoding"
)

// Signer produces signed payments for challenge methods. Satisfied by the
// evm package's Signer.
type Signer interface {
	CanSign(method x402gate.PaymentMethod) bool
	Sign(method x402gate.PaymentMethod) (*x402gate.SignedPayment, error)
}

// PaymentEvent reports transport progress through a payment exchange.
type PaymentEvent struct {
	// Type is "challenge", "signed", "settled", or "failed".
	Type string

	// Method is the challenge method being paid, when known.
	Method *x402gate.PaymentMethod

	// Receipt is the settlement receipt on "settled" events.
	Receipt *x402gate.PaymentReceipt

	// Err is set on "failed" events.
	Err error
}

// Transport is an http.RoundTripper that pays 402 challenges transparently.
// The first response is returned as-is unless it is a 402; then the
// transport selects a signable method from the challenge, signs an
// authorization, and retries the request once with the X-PAYMENT header.
//
// The caller never sees the intermediate 402 on the happy path; a 402 on
// the paid retry surfaces as ErrPaymentNotAccepted.
type Transport struct {
	// Base is the underlying transport, http.DefaultTransport when nil.
	Base http.RoundTripper

	// Signer signs payment authorizations.
	Signer Signer

	// OnPayment, when set, observes payment progress. Called synchronously
	// on the request's goroutine.
	OnPayment func(PaymentEvent)

	mu             sync.Mutex
	lastSettlement *x402gate.PaymentReceipt
}

// NewTransport wraps base with payment handling.
func NewTransport(signer Signer, base http.RoundTripper) *Transport {
	return &Transport{Base: base, Signer: signer}
}

// LastSettlement returns the receipt of the most recent settled payment.
// Advisory only: concurrent requests race on it, use OnPayment to
// attribute receipts to requests.
func (t *Transport) LastSettlement() *x402gate.PaymentReceipt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSettlement
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// The request may be replayed, so the body must be rewindable.
	if req.Body != nil && req.GetBody == nil {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(data))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	challenge, err := readChallenge(resp)
	if err != nil {
		t.emit(PaymentEvent{Type: "failed", Err: err})
		return nil, err
	}
	t.emit(PaymentEvent{Type: "challenge"})

	method, err := t.selectMethod(challenge)
	if err != nil {
		t.emit(PaymentEvent{Type: "failed", Err: err})
		return nil, err
	}

	payment, err := t.Signer.Sign(*method)
	if err != nil {
		t.emit(PaymentEvent{Type: "failed", Method: method, Err: err})
		return nil, err
	}
	header, err := encoding.EncodePayment(*payment)
	if err != nil {
		t.emit(PaymentEvent{Type: "failed", Method: method, Err: err})
		return nil, err
	}
	t.emit(PaymentEvent{Type: "signed", Method: method})

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		retry.Body = body
	}
	retry.Header.Set("X-PAYMENT", header)

	resp, err = base.RoundTrip(retry)
	if err != nil {
		t.emit(PaymentEvent{Type: "failed", Method: method, Err: err})
		return nil, err
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		drainAndClose(resp)
		err := fmt.Errorf("%w: server answered the paid request with another 402", x402gate.ErrPaymentNotAccepted)
		t.emit(PaymentEvent{Type: "failed", Method: method, Err: err})
		return nil, err
	}

	if receipt := settlementFromResponse(resp); receipt != nil {
		t.mu.Lock()
		t.lastSettlement = receipt
		t.mu.Unlock()
		t.emit(PaymentEvent{Type: "settled", Method: method, Receipt: receipt})
	}

	return resp, nil
}

// settlementFromResponse extracts the settlement receipt from a paid
// response: the JSON body first (servers augment it with a "payment" object,
// a top-level "transactionHash", or the legacy "_transaction" key), then the
// X-PAYMENT-RESPONSE header as fallback for non-JSON resources.
func settlementFromResponse(resp *http.Response) *x402gate.PaymentReceipt {
	if receipt := receiptFromBody(resp); receipt != nil {
		return receipt
	}
	if headerValue := resp.Header.Get("X-PAYMENT-RESPONSE"); headerValue != "" {
		if receipt, err := encoding.DecodeReceipt(headerValue); err == nil {
			return &receipt
		}
	}
	return nil
}

// receiptFromBody reads a successful JSON body, pulls the receipt out of it,
// and rewinds the body so the caller still gets the full response.
func receiptFromBody(resp *http.Response) *x402gate.PaymentReceipt {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var payload struct {
		Payment         *x402gate.PaymentReceipt `json:"payment"`
		TransactionHash string                   `json:"transactionHash"`
		Transaction     string                   `json:"_transaction"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}

	switch {
	case payload.Payment != nil && payload.Payment.TransactionHash != "":
		return payload.Payment
	case payload.TransactionHash != "":
		return &x402gate.PaymentReceipt{TransactionHash: payload.TransactionHash}
	case payload.Transaction != "":
		return &x402gate.PaymentReceipt{TransactionHash: payload.Transaction}
	}
	return nil
}

// selectMethod picks the first challenge method the signer can satisfy.
func (t *Transport) selectMethod(challenge x402gate.Challenge) (*x402gate.PaymentMethod, error) {
	if t.Signer == nil {
		return nil, x402gate.ErrNoAcceptableMethod
	}
	for i := range challenge.Methods {
		if t.Signer.CanSign(challenge.Methods[i]) {
			return &challenge.Methods[i], nil
		}
	}
	return nil, x402gate.ErrNoAcceptableMethod
}

func (t *Transport) emit(event PaymentEvent) {
	if t.OnPayment != nil {
		t.OnPayment(event)
	}
}

// readChallenge consumes and closes a 402 response body.
func readChallenge(resp *http.Response) (x402gate.Challenge, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return x402gate.Challenge{}, fmt.Errorf("%w: %v", x402gate.ErrBadChallenge, err)
	}
	return encoding.DecodeChallenge(body)
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}

var _ http.RoundTripper = (*Transport)(nil)
