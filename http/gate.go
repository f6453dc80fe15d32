// Package http gates HTTP resources behind x402 payments. The Gate
// middleware challenges unpaid requests with 402, verifies and settles
// X-PAYMENT headers through a validator pipeline, and augments successful
// responses with the settlement receipt.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	x402gate "github.com/tollgate-labs/x402gate"
	"github.com/tollgate-labs/x402gate/encoding"
	"github.com/tollgate-labs/x402gate/http/internal/helpers"
	"github.com/tollgate-labs/x402gate/replay"
	"github.com/tollgate-labs/x402gate/validation"
	"github.com/tollgate-labs/x402gate/validator"
)

// Payment modes. ModePayment expects a signed ERC-3009 authorization in
// X-PAYMENT; ModeHash expects a bare transaction hash of an already
// broadcast transfer, verified on chain.
const (
	ModePayment = "payment"
	ModeHash    = "hash"
)

// Validator is the slice of the pipeline the gate needs. Satisfied by
// *validator.Pipeline; tests inject stubs.
type Validator interface {
	Validate(ctx context.Context, req validator.Request) (*x402gate.PaymentReceipt, error)
}

// Config configures a Gate.
type Config struct {
	// FacilitatorURL enables the facilitator validator backend.
	FacilitatorURL string

	// RPCURL enables the on-chain validator backend.
	RPCURL string

	// Method is the payment method to advertise and enforce. When nil it
	// is assembled from Network, Recipient, and PaymentAmount using the
	// network's USDC deployment.
	Method *x402gate.PaymentMethod

	// Network is the network to charge on (e.g., "base-sepolia").
	Network string

	// Recipient is the address payments must be sent to.
	Recipient string

	// PaymentAmount is the price in human-readable token units, e.g.
	// "0.01" for one cent of USDC.
	PaymentAmount string

	// Description is shown to payers in the 402 challenge. Defaults to a
	// per-path message.
	Description string

	// Mode selects ModePayment (default) or ModeHash.
	Mode string

	// ValidatorOrder names the backends to try in order: "facilitator",
	// "chain", "format". Defaults to the backends whose URLs are
	// configured, facilitator first.
	ValidatorOrder []string

	// Validator overrides the assembled pipeline entirely.
	Validator Validator

	// VerifyOnly verifies authorizations through the facilitator without
	// settling them.
	VerifyOnly bool

	// Confirmations is the block depth the chain backend requires.
	Confirmations uint64

	// FacilitatorAuthorization is a static Authorization header value sent
	// to the facilitator, e.g. "Bearer key".
	FacilitatorAuthorization string

	// FacilitatorAuthProvider mints Authorization header values per
	// request. Takes precedence over FacilitatorAuthorization.
	FacilitatorAuthProvider validator.AuthProvider

	// ReplayStore overrides the in-memory nonce store, e.g. with a shared
	// backend for multi-node deployments.
	ReplayStore replay.Store

	// ReplayRetentionSeconds is how long consumed nonces are remembered.
	// Defaults to 24 hours.
	ReplayRetentionSeconds int64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// receiptContextKey is the context key under which the settlement receipt
// is stored for the protected handler.
type receiptContextKey struct{}

// ReceiptFromContext returns the settlement receipt for the current
// request, if the request passed through a Gate.
func ReceiptFromContext(ctx context.Context) (*x402gate.PaymentReceipt, bool) {
	receipt, ok := ctx.Value(receiptContextKey{}).(*x402gate.PaymentReceipt)
	return receipt, ok
}

// ContextWithReceipt stores a settlement receipt for ReceiptFromContext.
// Framework adapters use it; the stdlib middleware does this itself.
func ContextWithReceipt(ctx context.Context, receipt *x402gate.PaymentReceipt) context.Context {
	return context.WithValue(ctx, receiptContextKey{}, receipt)
}

// txHashRegex matches a 0x-prefixed 32-byte transaction hash.
var txHashRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Gate is the payment-gating middleware. Construct with NewGate and wrap
// handlers with Middleware or Protect.
type Gate struct {
	method    x402gate.PaymentMethod
	mode      string
	pipeline  Validator
	store     replay.Store
	logger    *slog.Logger
	now       func() time.Time
}

// NewGate validates the configuration and assembles the gate. Construction
// fails loudly on a bad method or an empty validator set; a gate that
// cannot settle payments must not start.
func NewGate(config Config) (*Gate, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	method, err := resolveMethod(config)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateMethod(method); err != nil {
		return nil, err
	}

	mode := config.Mode
	if mode == "" {
		mode = ModePayment
	}
	if mode != ModePayment && mode != ModeHash {
		return nil, fmt.Errorf("unknown payment mode %q", mode)
	}

	pipeline := config.Validator
	if pipeline == nil {
		pipeline, err = buildPipeline(config, logger)
		if err != nil {
			return nil, err
		}
	}

	store := config.ReplayStore
	if store == nil {
		store = replay.NewMemoryStore(time.Duration(config.ReplayRetentionSeconds) * time.Second)
	}

	return &Gate{
		method:   method,
		mode:     mode,
		pipeline: pipeline,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// resolveMethod returns the configured method or assembles one from the
// network's USDC deployment.
func resolveMethod(config Config) (x402gate.PaymentMethod, error) {
	if config.Method != nil {
		return *config.Method, nil
	}

	cfg, ok := x402gate.NetworkConfig(config.Network)
	if !ok {
		return x402gate.PaymentMethod{}, fmt.Errorf("%w: %s", x402gate.ErrUnsupportedNetwork, config.Network)
	}
	amount, err := x402gate.AmountToBigInt(config.PaymentAmount, int(cfg.Decimals))
	if err != nil {
		return x402gate.PaymentMethod{}, fmt.Errorf("invalid payment amount %q: %w", config.PaymentAmount, err)
	}

	method := x402gate.USDCPaymentMethod(cfg, config.Recipient, amount.String())
	method.Description = config.Description
	return method, nil
}

// buildPipeline assembles validator backends in the configured order,
// defaulting to facilitator-then-chain for whichever URLs are set.
func buildPipeline(config Config, logger *slog.Logger) (Validator, error) {
	order := config.ValidatorOrder
	if len(order) == 0 {
		if config.FacilitatorURL != "" {
			order = append(order, "facilitator")
		}
		if config.RPCURL != "" {
			order = append(order, "chain")
		}
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("no validator backends configured: set FacilitatorURL or RPCURL")
	}

	var backends []validator.Backend
	for _, name := range order {
		switch name {
		case "facilitator":
			if config.FacilitatorURL == "" {
				return nil, fmt.Errorf("validator order names %q but FacilitatorURL is empty", name)
			}
			var opts []validator.FacilitatorOption
			if config.FacilitatorAuthProvider != nil {
				opts = append(opts, validator.WithAuthProvider(config.FacilitatorAuthProvider))
			} else if config.FacilitatorAuthorization != "" {
				opts = append(opts, validator.WithAuthProvider(validator.StaticAuthProvider(config.FacilitatorAuthorization)))
			}
			if config.VerifyOnly {
				opts = append(opts, validator.WithVerifyOnly())
			}
			backends = append(backends, validator.NewFacilitatorBackend(config.FacilitatorURL, opts...))
		case "chain":
			if config.RPCURL == "" {
				return nil, fmt.Errorf("validator order names %q but RPCURL is empty", name)
			}
			var opts []validator.ChainOption
			if config.Confirmations > 0 {
				opts = append(opts, validator.WithConfirmations(config.Confirmations))
			}
			backend, err := validator.NewChainBackend(config.RPCURL, opts...)
			if err != nil {
				return nil, err
			}
			backends = append(backends, backend)
		case "format":
			logger.Warn("format-only validator backend enabled; payments will not be settled")
			backends = append(backends, validator.NewFormatBackend(logger))
		default:
			return nil, fmt.Errorf("unknown validator backend %q", name)
		}
	}

	return validator.NewPipeline(backends...).WithLogger(logger), nil
}

// Method returns the payment method the gate enforces.
func (g *Gate) Method() x402gate.PaymentMethod {
	return g.method
}

// Protect wraps a single handler.
func (g *Gate) Protect(next http.Handler) http.Handler {
	return g.Middleware()(next)
}

// Middleware returns a net/http middleware enforcing payment on every
// request except CORS preflights.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("X-PAYMENT")
			if header == "" {
				g.logger.Info("payment required", "path", r.URL.Path)
				helpers.WriteChallenge(w, g.Challenge(r), "")
				return
			}

			receipt, err := g.Settle(r.Context(), header)
			if err != nil {
				g.WriteError(w, r, err)
				return
			}

			g.logger.Info("payment settled",
				"path", r.URL.Path,
				"transaction", receipt.TransactionHash,
				"payer", receipt.Payer)

			if headerValue, err := encoding.EncodeReceipt(*receipt); err == nil {
				w.Header().Set("X-PAYMENT-RESPONSE", headerValue)
			}

			ctx := context.WithValue(r.Context(), receiptContextKey{}, receipt)
			augmenter := newReceiptAugmenter(w, receipt)
			next.ServeHTTP(augmenter, r.WithContext(ctx))
			augmenter.finalize()
		})
	}
}

// Settle runs the full payment flow for one X-PAYMENT header: decode,
// validate, lock the nonce, and run the validator pipeline. The replay lock
// is rolled back when settlement fails, because nothing was consumed on
// chain and the client is entitled to retry the same authorization.
//
// Exposed for framework adapters; handlers normally go through Middleware.
func (g *Gate) Settle(ctx context.Context, header string) (*x402gate.PaymentReceipt, error) {
	req := validator.Request{Method: g.method}
	var replayKey string

	if g.mode == ModeHash {
		hash := strings.TrimSpace(header)
		if !txHashRegex.MatchString(hash) {
			return nil, x402gate.NewPaymentError(x402gate.ClassInvalidFormat,
				"payment header is not a transaction hash", nil)
		}
		req.TxHash = hash
		replayKey = strings.ToLower(hash)
	} else {
		payment, err := encoding.DecodePayment(header)
		if err != nil {
			return nil, x402gate.NewPaymentError(x402gate.ClassInvalidFormat,
				"payment header could not be decoded", err)
		}
		if err := validation.ValidateStructure(payment); err != nil {
			return nil, err
		}
		if err := validation.ValidateSemantics(payment, g.method, g.now()); err != nil {
			return nil, err
		}
		req.Payment = &payment
		auth := payment.Payload.Authorization
		replayKey = strings.ToLower(auth.From + ":" + auth.Nonce)
	}

	if !g.store.TryInsert(replayKey) {
		return nil, x402gate.NewPaymentError(x402gate.ClassReplay,
			"payment authorization was already used", nil)
	}

	receipt, err := g.pipeline.Validate(ctx, req)
	if err != nil {
		g.store.Remove(replayKey)
		return nil, err
	}
	return receipt, nil
}

// WriteError renders a payment failure. Terminal 402s carry the challenge
// so the client can pay; everything else gets the classed error body.
func (g *Gate) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	class := x402gate.ClassOf(err)
	status := x402gate.HTTPStatus(class)

	message := err.Error()
	var pe *x402gate.PaymentError
	if errors.As(err, &pe) {
		message = pe.Message
	}

	switch {
	case status >= 500:
		g.logger.Error("payment settlement failed", "path", r.URL.Path, "class", class, "error", err)
	default:
		g.logger.Warn("payment refused", "path", r.URL.Path, "class", class, "error", err)
	}

	if status == http.StatusPaymentRequired {
		helpers.WriteChallenge(w, g.Challenge(r), message)
		return
	}
	helpers.WriteError(w, status, class, message)
}

// Challenge builds the 402 challenge for a request, defaulting the
// description to the path being charged for.
func (g *Gate) Challenge(r *http.Request) x402gate.Challenge {
	method := g.method
	if method.Description == "" {
		method.Description = "Payment required for " + r.URL.Path
	}
	return x402gate.Challenge{
		X402Version: x402gate.X402Version,
		Methods:     []x402gate.PaymentMethod{method},
	}
}
