// Package x402gate implements the x402 micropayment protocol: an HTTP
// payment gate that challenges unpaid requests with 402 Payment Required,
// verifies signed ERC-3009 transfer authorizations, and settles them through
// a facilitator service or by on-chain log inspection.
package x402gate

import (
	"encoding/json"
	"math/big"
	"strings"
)

// X402Version is the protocol version this module speaks.
const X402Version = 1

// PaymentMethod is a single payment option advertised in a 402 challenge.
type PaymentMethod struct {
	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier (e.g., "base-sepolia").
	Network string `json:"network"`

	// Asset is the token contract address.
	Asset string `json:"asset"`

	// Recipient is the address payments must be sent to.
	Recipient string `json:"recipient"`

	// MaximumAmount is the advertised price in atomic token units.
	MaximumAmount string `json:"maximumAmount"`

	// MinimumAmount is the smallest acceptable payment in atomic token units.
	MinimumAmount string `json:"minimumAmount,omitempty"`

	// TimeoutMillis is the authorization validity window in milliseconds.
	TimeoutMillis int64 `json:"timeout,omitempty"`

	// Description is an optional human-readable payment description.
	Description string `json:"description,omitempty"`

	// Extra carries EIP-712 domain hints ("name", "version") for the asset.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// paymentMethodWire mirrors PaymentMethod plus every field alias seen on the
// wire. Aliases are folded into the canonical fields at decode time so that
// the rest of the module only ever deals with canonical names.
type paymentMethodWire struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	Asset             string                 `json:"asset"`
	Recipient         string                 `json:"recipient"`
	PayTo             string                 `json:"payTo"`
	MaximumAmount     string                 `json:"maximumAmount"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	MinimumAmount     string                 `json:"minimumAmount"`
	TimeoutMillis     int64                  `json:"timeout"`
	MaxTimeoutSeconds int64                  `json:"maxTimeoutSeconds"`
	Description       string                 `json:"description"`
	Extra             map[string]interface{} `json:"extra"`
}

// UnmarshalJSON decodes a payment method, accepting the field aliases
// "payTo" (recipient), "maxAmountRequired" (maximumAmount) and
// "maxTimeoutSeconds" (timeout, in seconds). Canonical names win when both
// are present.
func (m *PaymentMethod) UnmarshalJSON(data []byte) error {
	var w paymentMethodWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	m.Scheme = w.Scheme
	m.Network = w.Network
	m.Asset = w.Asset
	m.Description = w.Description
	m.Extra = w.Extra

	m.Recipient = w.Recipient
	if m.Recipient == "" {
		m.Recipient = w.PayTo
	}

	m.MaximumAmount = w.MaximumAmount
	if m.MaximumAmount == "" {
		m.MaximumAmount = w.MaxAmountRequired
	}
	m.MinimumAmount = w.MinimumAmount

	m.TimeoutMillis = w.TimeoutMillis
	if m.TimeoutMillis == 0 && w.MaxTimeoutSeconds > 0 {
		m.TimeoutMillis = w.MaxTimeoutSeconds * 1000
	}

	return nil
}

// TimeoutSeconds returns the authorization validity window in whole seconds,
// or the protocol default of 300 when the method does not set one.
func (m *PaymentMethod) TimeoutSeconds() int64 {
	if m.TimeoutMillis <= 0 {
		return 300
	}
	return m.TimeoutMillis / 1000
}

// DomainName returns the EIP-712 domain name for the method's asset.
// The value comes from Extra["name"], falling back to the network table.
func (m *PaymentMethod) DomainName() string {
	if m.Extra != nil {
		if name, ok := m.Extra["name"].(string); ok && name != "" {
			return name
		}
	}
	if cfg, ok := NetworkConfig(m.Network); ok && cfg.DomainName != "" {
		return cfg.DomainName
	}
	return "USD Coin"
}

// DomainVersion returns the EIP-712 domain version for the method's asset,
// from Extra["version"], defaulting to "2" (the USDC contract version).
func (m *PaymentMethod) DomainVersion() string {
	if m.Extra != nil {
		if version, ok := m.Extra["version"].(string); ok && version != "" {
			return version
		}
	}
	return "2"
}

// Challenge is the body of a 402 Payment Required response.
type Challenge struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Error identifies why payment is being demanded.
	Error string `json:"error,omitempty"`

	// Methods lists the payment options the server will accept.
	Methods []PaymentMethod `json:"methods"`
}

// challengeWire accepts both the canonical "methods" key and the "accepts"
// alias used by other x402 server implementations.
type challengeWire struct {
	X402Version int             `json:"x402Version"`
	Error       string          `json:"error"`
	Methods     []PaymentMethod `json:"methods"`
	Accepts     []PaymentMethod `json:"accepts"`
}

// UnmarshalJSON decodes a challenge, accepting "accepts" as an alias for
// "methods".
func (c *Challenge) UnmarshalJSON(data []byte) error {
	var w challengeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.X402Version = w.X402Version
	c.Error = w.Error
	c.Methods = w.Methods
	if len(c.Methods) == 0 {
		c.Methods = w.Accepts
	}
	return nil
}

// Authorization holds the six ERC-3009 transferWithAuthorization parameters.
// Amounts and timestamps travel as decimal strings on the wire.
type Authorization struct {
	// From is the payer's address.
	From string `json:"from"`

	// To is the recipient's address.
	To string `json:"to"`

	// Value is the payment amount in atomic units.
	Value string `json:"value"`

	// ValidAfter is the unix timestamp after which the authorization is valid.
	ValidAfter string `json:"validAfter"`

	// ValidBefore is the unix timestamp before which the authorization is valid.
	ValidBefore string `json:"validBefore"`

	// Nonce is a unique 0x-prefixed 32-byte hex string.
	Nonce string `json:"nonce"`
}

// Complete reports whether all six authorization fields are present.
func (a *Authorization) Complete() bool {
	return a.From != "" && a.To != "" && a.Value != "" &&
		a.ValidAfter != "" && a.ValidBefore != "" && a.Nonce != ""
}

// EVMPayload couples an ECDSA signature with the authorization it covers.
type EVMPayload struct {
	// Signature is the 65-byte r||s||v signature as 0x-prefixed hex.
	Signature string `json:"signature"`

	// Authorization contains the signed transferWithAuthorization parameters.
	Authorization Authorization `json:"authorization"`
}

// SignedPayment is the decoded X-PAYMENT header: a signed transfer
// authorization bound to a scheme and network.
type SignedPayment struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier.
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier.
	Network string `json:"network"`

	// Payload carries the signature and authorization.
	Payload EVMPayload `json:"payload"`
}

// PaymentReceipt records a settled payment.
type PaymentReceipt struct {
	// TransactionHash is the on-chain transaction hash.
	TransactionHash string `json:"transactionHash"`

	// Network is the network the payment settled on.
	Network string `json:"network"`

	// Payer is the address that funded the transfer, when known.
	Payer string `json:"payer,omitempty"`

	// BlockNumber is the block the transaction was mined in, when known.
	BlockNumber uint64 `json:"blockNumber,omitempty"`

	// Timestamp is the unix time of settlement, when known.
	Timestamp int64 `json:"timestamp,omitempty"`

	// Status is "confirmed" for settled payments, "format-only" for
	// receipts synthesized by the development-only format backend.
	Status string `json:"status,omitempty"`
}

// AddressesEqual compares two hex addresses case-insensitively.
func AddressesEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ParseAmount parses a decimal string of atomic token units.
// Returns ErrInvalidAmount if the string is not an unsigned integer.
func ParseAmount(amount string) (*big.Int, error) {
	if amount == "" {
		return nil, ErrInvalidAmount
	}
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok || v.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return v, nil
}

// AmountToBigInt converts a human-readable decimal amount to *big.Int atomic
// units. For example, "1.5" with 6 decimals becomes 1500000.
func AmountToBigInt(amount string, decimals int) (*big.Int, error) {
	value := new(big.Float)
	if _, ok := value.SetString(amount); !ok {
		return nil, ErrInvalidAmount
	}

	multiplier := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value.Mul(value, multiplier)

	result, accuracy := value.Int(nil)
	if accuracy != big.Exact {
		return nil, ErrInvalidAmount
	}
	return result, nil
}

// BigIntToAmount converts atomic units back to a human-readable decimal
// string. For example, 1500000 with 6 decimals becomes "1.500000".
func BigIntToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}

	f := new(big.Float).SetInt(value)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, divisor)

	return f.Text('f', decimals)
}
