// Package validator turns a signed payment (or bare transaction hash) into a
// settlement receipt. Backends are tried in declared order; only transient
// unavailability moves the pipeline to the next backend, every other failure
// is terminal.
package validator

import (
	"context"
	"errors"
	"log/slog"

	x402gate "github.com/tollgate-labs/x402gate"
)

// Request is the unit of work handed to a backend: either a signed payment
// (normal mode) or a bare transaction hash (legacy mode), never both empty,
// plus the method the payment must satisfy.
type Request struct {
	// Payment is the decoded signed authorization, nil in hash mode.
	Payment *x402gate.SignedPayment

	// TxHash is the bare transaction hash in legacy mode, or a hash
	// produced upstream that a later backend should verify independently.
	TxHash string

	// Method is the payment method configured for the protected route.
	Method x402gate.PaymentMethod
}

// ErrNotApplicable signals that a backend cannot serve this request shape
// (e.g., the chain backend with no transaction hash to look up). The
// pipeline skips to the next backend without treating it as a failure.
var ErrNotApplicable = errors.New("validator: backend not applicable to request")

// Backend validates one payment and produces a receipt or a classed error.
type Backend interface {
	// Name identifies the backend in configuration and logs.
	Name() string

	// Validate checks the request and, on success, returns the settlement
	// receipt. Errors must be PaymentError values carrying the class the
	// gate should surface.
	Validate(ctx context.Context, req Request) (*x402gate.PaymentReceipt, error)
}

// Pipeline runs backends in order. The facilitator-then-chain default comes
// from the gate configuration; the format backend must only ever appear in
// development configurations.
type Pipeline struct {
	backends []Backend
	logger   *slog.Logger
}

// NewPipeline builds a pipeline over the given backends in order.
func NewPipeline(backends ...Backend) *Pipeline {
	return &Pipeline{backends: backends, logger: slog.Default()}
}

// WithLogger replaces the pipeline's logger.
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	p.logger = logger
	return p
}

// Backends returns the configured backends in order.
func (p *Pipeline) Backends() []Backend {
	return p.backends
}

// Validate tries each backend in turn. A backend that returns
// ErrNotApplicable is skipped. A backend failing with a transient class
// (facilitator-unavailable, chain-unavailable) lets the next backend run;
// any other failure is returned immediately. When every backend was skipped
// or unavailable, the last transient error is returned.
func (p *Pipeline) Validate(ctx context.Context, req Request) (*x402gate.PaymentReceipt, error) {
	if len(p.backends) == 0 {
		return nil, x402gate.NewPaymentError(x402gate.ClassInternal, "no validator backends configured", nil)
	}

	var lastTransient error
	for _, backend := range p.backends {
		receipt, err := backend.Validate(ctx, req)
		if err == nil {
			return receipt, nil
		}
		if errors.Is(err, ErrNotApplicable) {
			p.logger.Debug("validator backend not applicable", "backend", backend.Name())
			continue
		}

		class := x402gate.ClassOf(err)
		if class == x402gate.ClassFacilitatorUnavailable || class == x402gate.ClassChainUnavailable {
			p.logger.Warn("validator backend unavailable, trying next",
				"backend", backend.Name(), "error", err)
			lastTransient = err
			continue
		}

		return nil, err
	}

	if lastTransient != nil {
		return nil, lastTransient
	}
	return nil, x402gate.NewPaymentError(x402gate.ClassInternal, "no validator backend could serve the request", nil)
}
