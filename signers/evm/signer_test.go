package evm

import (
	"encoding/hex"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	x402gate "github.com/tollgate-labs/x402gate"
)

// Throwaway key, never funded.
const testKeyHex = "0xac0974bec39a18e36b702f944d9b6e7f9b7d3cf624f4b2f41dbba2cbaec51c45"

const testKeyAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func testMethod() x402gate.PaymentMethod {
	return x402gate.PaymentMethod{
		Scheme:        "exact",
		Network:       "base-sepolia",
		Asset:         "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Recipient:     "0x2222222222222222222222222222222222222222",
		MaximumAmount: "10000",
		TimeoutMillis: 60_000,
	}
}

func newTestSigner(t *testing.T, opts ...SignerOption) *Signer {
	t.Helper()
	opts = append([]SignerOption{WithPrivateKey(testKeyHex), WithNetwork("base-sepolia")}, opts...)
	signer, err := NewSigner(opts...)
	if err != nil {
		t.Fatalf("signer construction failed: %v", err)
	}
	return signer
}

func TestNewSignerDerivesAddress(t *testing.T) {
	signer := newTestSigner(t)
	if !x402gate.AddressesEqual(signer.Address().Hex(), testKeyAddress) {
		t.Errorf("address = %s, want %s", signer.Address().Hex(), testKeyAddress)
	}
}

func TestNewSignerValidation(t *testing.T) {
	if _, err := NewSigner(WithNetwork("base-sepolia")); err != x402gate.ErrInvalidKey {
		t.Errorf("missing key: err = %v", err)
	}
	if _, err := NewSigner(WithPrivateKey(testKeyHex)); err != x402gate.ErrUnsupportedNetwork {
		t.Errorf("missing network: err = %v", err)
	}
	if _, err := NewSigner(WithPrivateKey(testKeyHex), WithNetwork("dogecoin")); err != x402gate.ErrUnsupportedNetwork {
		t.Errorf("unknown network: err = %v", err)
	}
	if _, err := NewSigner(WithPrivateKey("0xzz"), WithNetwork("base")); err != x402gate.ErrInvalidKey {
		t.Errorf("bad key hex: err = %v", err)
	}
}

func TestCanSign(t *testing.T) {
	signer := newTestSigner(t, WithMaxAmountPerPayment("50000"))

	if !signer.CanSign(testMethod()) {
		t.Error("matching method refused")
	}

	method := testMethod()
	method.Network = "base"
	if signer.CanSign(method) {
		t.Error("wrong network accepted")
	}

	method = testMethod()
	method.Scheme = "streaming"
	if signer.CanSign(method) {
		t.Error("unknown scheme accepted")
	}

	method = testMethod()
	method.Scheme = "eip3009"
	if !signer.CanSign(method) {
		t.Error("eip3009 scheme alias refused")
	}

	method = testMethod()
	method.MaximumAmount = "60000"
	if signer.CanSign(method) {
		t.Error("method above spending cap accepted")
	}
}

func TestSignProducesValidPayment(t *testing.T) {
	signer := newTestSigner(t)
	now := time.Unix(1_700_000_000, 0)
	signer.now = func() time.Time { return now }

	payment, err := signer.Sign(testMethod())
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if payment.X402Version != 1 {
		t.Errorf("version = %d", payment.X402Version)
	}
	if payment.Network != "base-sepolia" {
		t.Errorf("network = %q", payment.Network)
	}

	auth := payment.Payload.Authorization
	if !x402gate.AddressesEqual(auth.From, testKeyAddress) {
		t.Errorf("from = %q", auth.From)
	}
	if !x402gate.AddressesEqual(auth.To, testMethod().Recipient) {
		t.Errorf("to = %q", auth.To)
	}
	if auth.Value != "10000" {
		t.Errorf("value = %q, want full advertised price", auth.Value)
	}

	validAfter, _ := strconv.ParseInt(auth.ValidAfter, 10, 64)
	validBefore, _ := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if validAfter != now.Unix()-clockDriftAllowance {
		t.Errorf("validAfter = %d, want %d", validAfter, now.Unix()-clockDriftAllowance)
	}
	if validBefore != now.Unix()+60 {
		t.Errorf("validBefore = %d, want now + method timeout", validBefore)
	}

	sig := strings.TrimPrefix(payment.Payload.Signature, "0x")
	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		t.Fatalf("signature is not hex: %v", err)
	}
	if len(sigBytes) != 65 {
		t.Fatalf("signature is %d bytes, want 65", len(sigBytes))
	}
	if v := sigBytes[64]; v != 27 && v != 28 {
		t.Errorf("v = %d, want 27 or 28", v)
	}

	if !strings.HasPrefix(auth.Nonce, "0x") || len(auth.Nonce) != 66 {
		t.Errorf("nonce = %q, want 32-byte hex", auth.Nonce)
	}
}

func TestSignIsDeterministicForFixedInputs(t *testing.T) {
	nonce := common.HexToHash("0x" + strings.Repeat("11", 32))
	now := time.Unix(1_700_000_000, 0)

	sign := func() string {
		signer := newTestSigner(t)
		signer.now = func() time.Time { return now }
		signer.newNonce = func() (common.Hash, error) { return nonce, nil }
		payment, err := signer.Sign(testMethod())
		if err != nil {
			t.Fatalf("sign failed: %v", err)
		}
		return payment.Payload.Signature
	}

	if sign() != sign() {
		t.Error("same key, nonce, and window produced different signatures")
	}
}

func TestSignRefusesUnsignableMethod(t *testing.T) {
	signer := newTestSigner(t)
	method := testMethod()
	method.Network = "polygon"

	if _, err := signer.Sign(method); err != x402gate.ErrNoAcceptableMethod {
		t.Errorf("err = %v, want ErrNoAcceptableMethod", err)
	}
}
