// Package evm signs ERC-3009 transfer authorizations for EVM networks.
// A Signer holds one wallet key and produces the signed payment a client
// attaches to its retry after a 402 challenge.
package evm

import (
	"crypto/ecdsa"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	x402gate "github.com/tollgate-labs/x402gate"
)

// Signer signs payment authorizations with a single EVM private key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	network    string
	chainID    *big.Int
	maxAmount  *big.Int

	// Injected for deterministic tests.
	now      func() time.Time
	newNonce func() (common.Hash, error)
}

// SignerOption configures a Signer.
type SignerOption func(*Signer) error

// NewSigner creates a signer from the given options. A private key (direct,
// keystore, or mnemonic) and a network are required.
func NewSigner(opts ...SignerOption) (*Signer, error) {
	s := &Signer{
		now:      time.Now,
		newNonce: randomNonce,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.privateKey == nil {
		return nil, x402gate.ErrInvalidKey
	}
	if s.network == "" {
		return nil, x402gate.ErrUnsupportedNetwork
	}

	chainID, err := x402gate.ChainID(s.network)
	if err != nil {
		return nil, err
	}
	s.chainID = chainID
	s.address = crypto.PubkeyToAddress(s.privateKey.PublicKey)

	return s, nil
}

// WithPrivateKey sets the signing key from a hex string, with or without
// the 0x prefix.
func WithPrivateKey(hexKey string) SignerOption {
	return func(s *Signer) error {
		privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return x402gate.ErrInvalidKey
		}
		s.privateKey = privateKey
		return nil
	}
}

// WithNetwork sets the network the signer pays on. Must appear in the
// supported network table.
func WithNetwork(network string) SignerOption {
	return func(s *Signer) error {
		s.network = network
		return nil
	}
}

// WithMaxAmountPerPayment caps what a single authorization may spend, in
// atomic units. Sign refuses methods priced above the cap.
func WithMaxAmountPerPayment(amount string) SignerOption {
	return func(s *Signer) error {
		maxAmount, err := x402gate.ParseAmount(amount)
		if err != nil {
			return err
		}
		s.maxAmount = maxAmount
		return nil
	}
}

// Address returns the wallet address payments are funded from.
func (s *Signer) Address() common.Address {
	return s.address
}

// Network returns the network the signer pays on.
func (s *Signer) Network() string {
	return s.network
}

// CanSign reports whether the signer can satisfy a payment method: the
// network must match, the scheme must be the ERC-3009 flow, and the price
// must be within the per-payment cap.
func (s *Signer) CanSign(method x402gate.PaymentMethod) bool {
	if method.Network != s.network {
		return false
	}
	if method.Scheme != "exact" && method.Scheme != "eip3009" {
		return false
	}
	amount, err := x402gate.ParseAmount(method.MaximumAmount)
	if err != nil {
		return false
	}
	if s.maxAmount != nil && amount.Cmp(s.maxAmount) > 0 {
		return false
	}
	return true
}

// Sign produces a signed payment for the method, authorizing a transfer of
// the method's full advertised price. The validity window opens slightly in
// the past to absorb clock drift between client and server and closes after
// the method's timeout.
func (s *Signer) Sign(method x402gate.PaymentMethod) (*x402gate.SignedPayment, error) {
	if !s.CanSign(method) {
		return nil, x402gate.ErrNoAcceptableMethod
	}

	amount, err := x402gate.ParseAmount(method.MaximumAmount)
	if err != nil {
		return nil, err
	}

	nonce, err := s.newNonce()
	if err != nil {
		return nil, err
	}

	now := s.now().Unix()
	auth := &authorization{
		From:        s.address,
		To:          common.HexToAddress(method.Recipient),
		Value:       amount,
		ValidAfter:  big.NewInt(now - clockDriftAllowance),
		ValidBefore: big.NewInt(now + method.TimeoutSeconds()),
		Nonce:       nonce,
	}

	signature, err := signTransferAuthorization(s.privateKey, signingDomain{
		Name:            method.DomainName(),
		Version:         method.DomainVersion(),
		ChainID:         s.chainID,
		ContractAddress: common.HexToAddress(method.Asset),
	}, auth)
	if err != nil {
		return nil, err
	}

	return &x402gate.SignedPayment{
		X402Version: x402gate.X402Version,
		Scheme:      method.Scheme,
		Network:     s.network,
		Payload: x402gate.EVMPayload{
			Signature: signature,
			Authorization: x402gate.Authorization{
				From:        auth.From.Hex(),
				To:          auth.To.Hex(),
				Value:       auth.Value.String(),
				ValidAfter:  auth.ValidAfter.String(),
				ValidBefore: auth.ValidBefore.String(),
				Nonce:       auth.Nonce.Hex(),
			},
		},
	}, nil
}

// clockDriftAllowance backdates validAfter so a server whose clock runs a
// few seconds behind still accepts a freshly minted authorization.
const clockDriftAllowance = 10
