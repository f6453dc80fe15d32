package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	x402gate "github.com/tollgate-labs/x402gate"
)

const (
	// DefaultFacilitatorTimeout bounds a whole facilitator exchange.
	DefaultFacilitatorTimeout = 10 * time.Second

	// DefaultConnectTimeout bounds establishing the TCP connection.
	DefaultConnectTimeout = 3 * time.Second
)

// AuthProvider produces the Authorization header value for facilitator
// requests, e.g. a freshly minted bearer token.
type AuthProvider interface {
	AuthorizationHeader(ctx context.Context) (string, error)
}

// FacilitatorBackend settles payments through an external facilitator
// service over JSON-RPC-style POSTs.
//
// Two wire shapes are supported. In combined mode (the default) the signed
// payment is POSTed to the base URL and the response carries the settlement
// transaction hash. In split mode the backend first POSTs to /verify and,
// if the facilitator reports the authorization valid, POSTs to /settle.
type FacilitatorBackend struct {
	baseURL    string
	client     *http.Client
	auth       AuthProvider
	split      bool
	verifyOnly bool
}

// FacilitatorOption configures a FacilitatorBackend.
type FacilitatorOption func(*FacilitatorBackend)

// WithHTTPClient replaces the backend's HTTP client.
func WithHTTPClient(client *http.Client) FacilitatorOption {
	return func(b *FacilitatorBackend) { b.client = client }
}

// WithAuthProvider attaches an authentication provider whose output is sent
// as the Authorization header on every facilitator request.
func WithAuthProvider(auth AuthProvider) FacilitatorOption {
	return func(b *FacilitatorBackend) { b.auth = auth }
}

// WithSplitEndpoints switches to the /verify + /settle two-call protocol.
func WithSplitEndpoints() FacilitatorOption {
	return func(b *FacilitatorBackend) { b.split = true }
}

// WithVerifyOnly verifies authorizations without settling them. Implies
// split endpoints. The resulting receipts carry status "verified" and no
// transaction hash.
func WithVerifyOnly() FacilitatorOption {
	return func(b *FacilitatorBackend) {
		b.split = true
		b.verifyOnly = true
	}
}

// NewFacilitatorBackend creates a backend for the facilitator at baseURL.
func NewFacilitatorBackend(baseURL string, opts ...FacilitatorOption) *FacilitatorBackend {
	b := &FacilitatorBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: DefaultFacilitatorTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: DefaultConnectTimeout}).DialContext,
			},
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements Backend.
func (b *FacilitatorBackend) Name() string { return "facilitator" }

// facilitatorRequest is the JSON body POSTed to the facilitator: the signed
// payment plus the requirements it must satisfy.
type facilitatorRequest struct {
	X402Version int                      `json:"x402Version"`
	Payment     x402gate.SignedPayment   `json:"payment"`
	Method      x402gate.PaymentMethod   `json:"method"`
}

// facilitatorResponse covers every response shape facilitators emit.
// Transaction hashes arrive under "transactionHash", "txHash", or "tx";
// rejection reasons under "error", "reason", or "message".
type facilitatorResponse struct {
	Valid           *bool  `json:"valid,omitempty"`
	IsValid         *bool  `json:"isValid,omitempty"`
	TransactionHash string `json:"transactionHash,omitempty"`
	TxHash          string `json:"txHash,omitempty"`
	Tx              string `json:"tx,omitempty"`
	Payer           string `json:"payer,omitempty"`
	Error           string `json:"error,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Message         string `json:"message,omitempty"`
}

// hash returns the transaction hash under whichever alias it arrived.
func (r *facilitatorResponse) hash() string {
	switch {
	case r.TransactionHash != "":
		return r.TransactionHash
	case r.TxHash != "":
		return r.TxHash
	default:
		return r.Tx
	}
}

// rejectionReason returns the facilitator's stated reason, if any.
func (r *facilitatorResponse) rejectionReason() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Reason != "":
		return r.Reason
	default:
		return r.Message
	}
}

// accepted reports whether a verify response declared the payment valid.
// A response with no validity field at all counts as accepted; the hash
// check catches combined-mode responses.
func (r *facilitatorResponse) accepted() bool {
	if r.Valid != nil {
		return *r.Valid
	}
	if r.IsValid != nil {
		return *r.IsValid
	}
	return true
}

// Validate implements Backend. Only signed payments can be settled through
// a facilitator; bare transaction hashes are not applicable.
func (b *FacilitatorBackend) Validate(ctx context.Context, req Request) (*x402gate.PaymentReceipt, error) {
	if req.Payment == nil {
		return nil, ErrNotApplicable
	}

	if b.split {
		return b.validateSplit(ctx, req)
	}
	return b.validateCombined(ctx, req)
}

func (b *FacilitatorBackend) validateCombined(ctx context.Context, req Request) (*x402gate.PaymentReceipt, error) {
	resp, err := b.post(ctx, b.baseURL, req)
	if err != nil {
		return nil, err
	}

	hash := resp.hash()
	if hash == "" {
		return nil, x402gate.NewPaymentError(x402gate.ClassInternal,
			"facilitator accepted the payment but returned no transaction hash", nil)
	}
	return b.receipt(req, resp, hash), nil
}

func (b *FacilitatorBackend) validateSplit(ctx context.Context, req Request) (*x402gate.PaymentReceipt, error) {
	verifyResp, err := b.post(ctx, b.baseURL+"/verify", req)
	if err != nil {
		return nil, err
	}
	if !verifyResp.accepted() {
		reason := verifyResp.rejectionReason()
		if reason == "" {
			reason = "facilitator rejected the authorization"
		}
		return nil, x402gate.NewPaymentError(x402gate.ClassRejected, reason, nil)
	}

	if b.verifyOnly {
		receipt := b.receipt(req, verifyResp, "")
		receipt.Status = "verified"
		return receipt, nil
	}

	settleResp, err := b.post(ctx, b.baseURL+"/settle", req)
	if err != nil {
		return nil, err
	}
	hash := settleResp.hash()
	if hash == "" {
		return nil, x402gate.NewPaymentError(x402gate.ClassInternal,
			"facilitator settled the payment but returned no transaction hash", nil)
	}
	return b.receipt(req, settleResp, hash), nil
}

// post sends one facilitator request and maps the transport and status
// outcomes onto the error taxonomy: network failures and 5xx are
// facilitator-unavailable (the pipeline may try the next backend), 4xx is a
// terminal rejection carrying the facilitator's reason.
func (b *FacilitatorBackend) post(ctx context.Context, url string, req Request) (*facilitatorResponse, error) {
	body := facilitatorRequest{
		X402Version: x402gate.X402Version,
		Payment:     *req.Payment,
		Method:      req.Method,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, x402gate.NewPaymentError(x402gate.ClassInternal, "failed to marshal facilitator request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, x402gate.NewPaymentError(x402gate.ClassInternal, "failed to build facilitator request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.auth != nil {
		header, err := b.auth.AuthorizationHeader(ctx)
		if err != nil {
			return nil, x402gate.NewPaymentError(x402gate.ClassInternal, "failed to build facilitator credentials", err)
		}
		httpReq.Header.Set("Authorization", header)
	}

	httpResp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, x402gate.NewPaymentError(x402gate.ClassFacilitatorUnavailable,
			"facilitator request failed", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, x402gate.NewPaymentError(x402gate.ClassFacilitatorUnavailable,
			"failed to read facilitator response", err)
	}

	var resp facilitatorResponse
	switch {
	case httpResp.StatusCode >= 500:
		return nil, x402gate.NewPaymentError(x402gate.ClassFacilitatorUnavailable,
			fmt.Sprintf("facilitator returned status %d", httpResp.StatusCode), nil)
	case httpResp.StatusCode >= 400:
		// Best effort: surface the facilitator's own reason when it sent one.
		_ = json.Unmarshal(raw, &resp)
		reason := resp.rejectionReason()
		if reason == "" {
			reason = fmt.Sprintf("facilitator rejected the payment with status %d", httpResp.StatusCode)
		}
		return nil, x402gate.NewPaymentError(x402gate.ClassRejected, reason, nil)
	}

	// A garbled success body is treated like an outage: the facilitator is
	// misbehaving, and another backend (or a later retry) may still settle.
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, x402gate.NewPaymentError(x402gate.ClassFacilitatorUnavailable,
			"facilitator returned unparseable response", err)
	}
	return &resp, nil
}

func (b *FacilitatorBackend) receipt(req Request, resp *facilitatorResponse, hash string) *x402gate.PaymentReceipt {
	payer := resp.Payer
	if payer == "" {
		payer = req.Payment.Payload.Authorization.From
	}
	return &x402gate.PaymentReceipt{
		TransactionHash: hash,
		Network:         req.Payment.Network,
		Payer:           payer,
		Timestamp:       time.Now().Unix(),
		Status:          "confirmed",
	}
}

var _ Backend = (*FacilitatorBackend)(nil)
