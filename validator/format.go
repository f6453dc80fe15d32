package validator

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	x402gate "github.com/tollgate-labs/x402gate"
)

// formatRegex accepts any 0x-prefixed hex string of at least 10 characters.
// Deliberately loose: this backend only checks shape.
var formatRegex = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

// FormatBackend accepts any plausibly-shaped payment without contacting a
// facilitator or a chain. Development and testing only: it performs no
// settlement and no verification beyond a hex shape check, and it logs a
// warning on every use so a production misconfiguration is loud.
type FormatBackend struct {
	logger *slog.Logger
}

// NewFormatBackend creates a format-only backend.
func NewFormatBackend(logger *slog.Logger) *FormatBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &FormatBackend{logger: logger}
}

// Name implements Backend.
func (b *FormatBackend) Name() string { return "format" }

// Validate implements Backend. The synthesized receipt carries status
// "format-only" so downstream consumers can tell it apart from a real
// settlement.
func (b *FormatBackend) Validate(_ context.Context, req Request) (*x402gate.PaymentReceipt, error) {
	value := req.TxHash
	payer := ""
	if req.Payment != nil {
		value = req.Payment.Payload.Signature
		payer = req.Payment.Payload.Authorization.From
	}

	if len(value) < 10 || !formatRegex.MatchString(value) {
		return nil, x402gate.NewPaymentError(x402gate.ClassInvalidFormat,
			"payment value is not a plausible hex string", nil)
	}

	b.logger.Warn("format-only validation accepted a payment without settlement; never use this backend in production")

	// The receipt echoes whatever was validated: the bare hash in hash mode,
	// the signature in signed mode. There is no real transaction either way.
	return &x402gate.PaymentReceipt{
		TransactionHash: value,
		Network:         req.Method.Network,
		Payer:           payer,
		Timestamp:       time.Now().Unix(),
		Status:          "format-only",
	}, nil
}

var _ Backend = (*FormatBackend)(nil)
