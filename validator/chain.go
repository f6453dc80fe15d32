package validator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	x402gate "github.com/tollgate-labs/x402gate"
	"github.com/tollgate-labs/x402gate/retry"
)

// transferTopic is keccak256("Transfer(address,address,uint256)"), the
// topic0 of every ERC-20 Transfer event.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// ReceiptFetcher is the slice of the Ethereum RPC surface the chain backend
// needs. *ethclient.Client satisfies it; tests inject fakes.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// ChainBackend verifies settlements by inspecting transaction receipts on
// chain. It never submits transactions; it only confirms that a transfer
// matching the configured method was mined. Applicable when the request
// carries a transaction hash, either from the legacy bare-hash payment mode
// or produced by an upstream backend.
// DefaultChainTimeout bounds one validation's worth of RPC calls, including
// the receipt polling window.
const DefaultChainTimeout = 15 * time.Second

type ChainBackend struct {
	client        ReceiptFetcher
	confirmations uint64
	retryConfig   retry.Config
	timeout       time.Duration
}

// ChainOption configures a ChainBackend.
type ChainOption func(*ChainBackend)

// WithConfirmations sets the number of blocks that must be mined on top of
// the payment transaction before it counts as settled. Zero means one
// confirmation, the mined block itself.
func WithConfirmations(n uint64) ChainOption {
	return func(b *ChainBackend) { b.confirmations = n }
}

// WithReceiptRetry tunes the receipt polling schedule. The default waits
// out roughly one block on the fast L2 chains.
func WithReceiptRetry(cfg retry.Config) ChainOption {
	return func(b *ChainBackend) { b.retryConfig = cfg }
}

// WithChainTimeout replaces the per-validation RPC deadline.
func WithChainTimeout(timeout time.Duration) ChainOption {
	return func(b *ChainBackend) { b.timeout = timeout }
}

// NewChainBackend dials the JSON-RPC endpoint and returns a backend over it.
func NewChainBackend(rpcURL string, opts ...ChainOption) (*ChainBackend, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint: %w", err)
	}
	return NewChainBackendWithClient(client, opts...), nil
}

// NewChainBackendWithClient wraps an existing RPC client.
func NewChainBackendWithClient(client ReceiptFetcher, opts ...ChainOption) *ChainBackend {
	b := &ChainBackend{
		client:        client,
		confirmations: 1,
		timeout:       DefaultChainTimeout,
		retryConfig: retry.Config{
			MaxAttempts:  4,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     4 * time.Second,
			Multiplier:   2.0,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements Backend.
func (b *ChainBackend) Name() string { return "chain" }

// Validate implements Backend. The receipt is polled with backoff because a
// just-broadcast transaction may not be mined yet; a hash still unknown
// after the polling window maps to unknown-transaction so the client can
// retry once the transaction lands.
func (b *ChainBackend) Validate(ctx context.Context, req Request) (*x402gate.PaymentReceipt, error) {
	if req.TxHash == "" {
		return nil, ErrNotApplicable
	}
	if !common.IsHexAddress(req.Method.Asset) || !common.IsHexAddress(req.Method.Recipient) {
		return nil, x402gate.NewPaymentError(x402gate.ClassInternal, "method asset or recipient is not a valid address", nil)
	}

	hash := strings.TrimSpace(req.TxHash)
	if !strings.HasPrefix(hash, "0x") || len(hash) != 66 {
		return nil, x402gate.NewPaymentError(x402gate.ClassInvalidFormat,
			"transaction hash is not a 32-byte hex string", nil)
	}

	// Inbound server contexts carry no deadline; a hung RPC endpoint must
	// not stall the request (and its replay lock) indefinitely.
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	receipt, err := retry.WithRetry(ctx, b.retryConfig, receiptRetryable,
		func() (*types.Receipt, error) {
			return b.client.TransactionReceipt(ctx, common.HexToHash(hash))
		})
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, x402gate.NewPaymentError(x402gate.ClassUnknownTransaction,
				"transaction not found on chain", err)
		}
		return nil, x402gate.NewPaymentError(x402gate.ClassChainUnavailable,
			"failed to fetch transaction receipt", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, x402gate.NewPaymentError(x402gate.ClassRejected, "transaction reverted", nil)
	}

	if b.confirmations > 1 {
		head, err := b.client.BlockNumber(ctx)
		if err != nil {
			return nil, x402gate.NewPaymentError(x402gate.ClassChainUnavailable,
				"failed to fetch chain head", err)
		}
		mined := receipt.BlockNumber.Uint64()
		if head < mined || head-mined+1 < b.confirmations {
			return nil, x402gate.NewPaymentError(x402gate.ClassUnknownTransaction,
				fmt.Sprintf("transaction has %d of %d confirmations", head-mined+1, b.confirmations), nil)
		}
	}

	transfer, err := b.findTransfer(receipt, req.Method)
	if err != nil {
		return nil, err
	}

	return &x402gate.PaymentReceipt{
		TransactionHash: hash,
		Network:         req.Method.Network,
		Payer:           transfer.from.Hex(),
		BlockNumber:     receipt.BlockNumber.Uint64(),
		Timestamp:       time.Now().Unix(),
		Status:          "confirmed",
	}, nil
}

type transferEvent struct {
	from  common.Address
	value *big.Int
}

// findTransfer scans the receipt's logs for a Transfer event emitted by the
// method's asset contract, sent to the method's recipient, with a value of
// at least the method's minimum. Anything else in the receipt is ignored;
// a payment transaction may legitimately carry unrelated logs.
func (b *ChainBackend) findTransfer(receipt *types.Receipt, method x402gate.PaymentMethod) (*transferEvent, error) {
	asset := common.HexToAddress(method.Asset)
	recipient := common.HexToAddress(method.Recipient)

	minimum := method.MinimumAmount
	if minimum == "" {
		minimum = method.MaximumAmount
	}
	minAmt, err := x402gate.ParseAmount(minimum)
	if err != nil {
		return nil, x402gate.NewPaymentError(x402gate.ClassInternal, "configured amount is invalid", err)
	}

	sawTransfer := false
	for _, log := range receipt.Logs {
		if log.Address != asset || len(log.Topics) != 3 || log.Topics[0] != transferTopic {
			continue
		}
		to := common.BytesToAddress(log.Topics[2].Bytes())
		if to != recipient {
			continue
		}
		sawTransfer = true

		value := new(big.Int).SetBytes(log.Data)
		if value.Cmp(minAmt) >= 0 {
			return &transferEvent{
				from:  common.BytesToAddress(log.Topics[1].Bytes()),
				value: value,
			}, nil
		}
	}

	if sawTransfer {
		return nil, x402gate.NewPaymentError(x402gate.ClassAmountMismatch,
			"on-chain transfer value is below the required amount", nil)
	}
	return nil, x402gate.NewPaymentError(x402gate.ClassAmountMismatch,
		"transaction contains no matching transfer to the recipient", nil)
}

// receiptRetryable retries while the transaction is pending (not found) or
// the RPC fails transiently; context errors stop the polling immediately.
func receiptRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

var _ Backend = (*ChainBackend)(nil)
