package encoding

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	x402gate "github.com/tollgate-labs/x402gate"
)

func samplePayment() x402gate.SignedPayment {
	return x402gate.SignedPayment{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Payload: x402gate.EVMPayload{
			Signature: "0x" + strings.Repeat("ab", 65),
			Authorization: x402gate.Authorization{
				From:        "0x1111111111111111111111111111111111111111",
				To:          "0x2222222222222222222222222222222222222222",
				Value:       "10000",
				ValidAfter:  "1700000000",
				ValidBefore: "1700000300",
				Nonce:       "0x" + strings.Repeat("cd", 32),
			},
		},
	}
}

func TestPaymentRoundTrip(t *testing.T) {
	payment := samplePayment()

	header, err := EncodePayment(payment)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(header); err != nil {
		t.Fatalf("header is not base64: %v", err)
	}

	decoded, err := DecodePayment(header)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Payload.Authorization.Nonce != payment.Payload.Authorization.Nonce {
		t.Error("nonce changed through round trip")
	}
	if decoded.Network != payment.Network {
		t.Errorf("network = %q, want %q", decoded.Network, payment.Network)
	}
}

func TestDecodePaymentRawJSON(t *testing.T) {
	raw := `{"x402Version":1,"scheme":"exact","network":"base","payload":{"signature":"0xab","authorization":{"from":"0x1","to":"0x2","value":"1","validAfter":"0","validBefore":"9","nonce":"0x3"}}}`

	decoded, err := DecodePayment(raw)
	if err != nil {
		t.Fatalf("raw JSON rejected: %v", err)
	}
	if decoded.Scheme != "exact" {
		t.Errorf("scheme = %q", decoded.Scheme)
	}
}

func TestDecodePaymentRejectsGarbage(t *testing.T) {
	if _, err := DecodePayment("not base64 and not json"); !errors.Is(err, x402gate.ErrMalformedHeader) {
		t.Errorf("got %v, want ErrMalformedHeader", err)
	}
}

func TestDecodePaymentRejectsOversizeHeader(t *testing.T) {
	huge := strings.Repeat("A", MaxHeaderSize+1)
	if _, err := DecodePayment(huge); !errors.Is(err, x402gate.ErrMalformedHeader) {
		t.Errorf("oversize header: got %v, want ErrMalformedHeader", err)
	}
}

func TestDecodePaymentRejectsBase64Garbage(t *testing.T) {
	header := base64.StdEncoding.EncodeToString([]byte("definitely not json"))
	if _, err := DecodePayment(header); !errors.Is(err, x402gate.ErrMalformedHeader) {
		t.Errorf("base64 of non-JSON: got %v, want ErrMalformedHeader", err)
	}
}

func TestReceiptRoundTrip(t *testing.T) {
	receipt := x402gate.PaymentReceipt{
		TransactionHash: "0x" + strings.Repeat("ef", 32),
		Network:         "base-sepolia",
		Payer:           "0x1111111111111111111111111111111111111111",
		BlockNumber:     123456,
		Status:          "confirmed",
	}

	header, err := EncodeReceipt(receipt)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeReceipt(header)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.TransactionHash != receipt.TransactionHash {
		t.Error("transaction hash changed through round trip")
	}
	if decoded.BlockNumber != receipt.BlockNumber {
		t.Errorf("block number = %d, want %d", decoded.BlockNumber, receipt.BlockNumber)
	}
}

func TestDecodeChallenge(t *testing.T) {
	body := []byte(`{"x402Version":1,"accepts":[{"scheme":"exact","network":"base","asset":"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913","payTo":"0x1111111111111111111111111111111111111111","maxAmountRequired":"100"}]}`)

	challenge, err := DecodeChallenge(body)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(challenge.Methods) != 1 {
		t.Fatalf("got %d methods, want 1", len(challenge.Methods))
	}

	if _, err := DecodeChallenge([]byte(`{"x402Version":1,"methods":[]}`)); !errors.Is(err, x402gate.ErrBadChallenge) {
		t.Errorf("empty methods: got %v, want ErrBadChallenge", err)
	}
	if _, err := DecodeChallenge([]byte(`not json`)); !errors.Is(err, x402gate.ErrBadChallenge) {
		t.Errorf("bad JSON: got %v, want ErrBadChallenge", err)
	}
}
