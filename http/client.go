package http

import (
	"net/http"
	"time"

	x402gate "github.com/tollgate-labs/x402gate"
)

// Client is an http.Client that pays 402 challenges with the configured
// signer. Use it exactly like a standard client; payment happens inside
// the transport.
type Client struct {
	*http.Client
	transport *Transport
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the overall request timeout, covering both the
// challenge round trip and the paid retry.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.Client.Timeout = timeout }
}

// WithBaseTransport sets the transport the paying wrapper delegates to.
func WithBaseTransport(base http.RoundTripper) ClientOption {
	return func(c *Client) { c.transport.Base = base }
}

// WithPaymentEvents registers a payment progress observer.
func WithPaymentEvents(fn func(PaymentEvent)) ClientOption {
	return func(c *Client) { c.transport.OnPayment = fn }
}

// NewClient builds a paying client around the signer.
func NewClient(signer Signer, opts ...ClientOption) *Client {
	transport := NewTransport(signer, nil)
	client := &Client{
		Client:    &http.Client{Transport: transport, Timeout: 30 * time.Second},
		transport: transport,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// LastSettlement returns the receipt of the most recent settled payment,
// or nil when no payment has settled yet.
func (c *Client) LastSettlement() *x402gate.PaymentReceipt {
	return c.transport.LastSettlement()
}
