package x402gate

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestPaymentMethodUnmarshalAliases(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantRecipient string
		wantMaximum   string
		wantTimeoutMs int64
	}{
		{
			name:          "canonical fields",
			input:         `{"scheme":"exact","network":"base-sepolia","asset":"0x036CbD53842c5426634e7929541eC2318f3dCF7e","recipient":"0x1111111111111111111111111111111111111111","maximumAmount":"10000","timeout":60000}`,
			wantRecipient: "0x1111111111111111111111111111111111111111",
			wantMaximum:   "10000",
			wantTimeoutMs: 60000,
		},
		{
			name:          "payTo and maxAmountRequired aliases",
			input:         `{"scheme":"exact","network":"base","asset":"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913","payTo":"0x2222222222222222222222222222222222222222","maxAmountRequired":"5000","maxTimeoutSeconds":120}`,
			wantRecipient: "0x2222222222222222222222222222222222222222",
			wantMaximum:   "5000",
			wantTimeoutMs: 120000,
		},
		{
			name:          "canonical wins over alias",
			input:         `{"scheme":"exact","network":"base","asset":"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913","recipient":"0x1111111111111111111111111111111111111111","payTo":"0x2222222222222222222222222222222222222222","maximumAmount":"100","maxAmountRequired":"200"}`,
			wantRecipient: "0x1111111111111111111111111111111111111111",
			wantMaximum:   "100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var method PaymentMethod
			if err := json.Unmarshal([]byte(tt.input), &method); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if method.Recipient != tt.wantRecipient {
				t.Errorf("Recipient = %q, want %q", method.Recipient, tt.wantRecipient)
			}
			if method.MaximumAmount != tt.wantMaximum {
				t.Errorf("MaximumAmount = %q, want %q", method.MaximumAmount, tt.wantMaximum)
			}
			if tt.wantTimeoutMs != 0 && method.TimeoutMillis != tt.wantTimeoutMs {
				t.Errorf("TimeoutMillis = %d, want %d", method.TimeoutMillis, tt.wantTimeoutMs)
			}
		})
	}
}

func TestPaymentMethodTimeoutSeconds(t *testing.T) {
	method := PaymentMethod{}
	if got := method.TimeoutSeconds(); got != 300 {
		t.Errorf("default TimeoutSeconds = %d, want 300", got)
	}
	method.TimeoutMillis = 45000
	if got := method.TimeoutSeconds(); got != 45 {
		t.Errorf("TimeoutSeconds = %d, want 45", got)
	}
}

func TestPaymentMethodDomain(t *testing.T) {
	method := PaymentMethod{Network: "base-sepolia"}
	if got := method.DomainName(); got != "USDC" {
		t.Errorf("DomainName for base-sepolia = %q, want USDC", got)
	}
	if got := method.DomainVersion(); got != "2" {
		t.Errorf("DomainVersion = %q, want 2", got)
	}

	method.Extra = map[string]interface{}{"name": "Custom Token", "version": "7"}
	if got := method.DomainName(); got != "Custom Token" {
		t.Errorf("DomainName from extra = %q, want Custom Token", got)
	}
	if got := method.DomainVersion(); got != "7" {
		t.Errorf("DomainVersion from extra = %q, want 7", got)
	}
}

func TestChallengeUnmarshalAcceptsAlias(t *testing.T) {
	input := `{"x402Version":1,"accepts":[{"scheme":"exact","network":"base","asset":"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913","payTo":"0x1111111111111111111111111111111111111111","maxAmountRequired":"100"}]}`

	var challenge Challenge
	if err := json.Unmarshal([]byte(input), &challenge); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(challenge.Methods) != 1 {
		t.Fatalf("got %d methods, want 1", len(challenge.Methods))
	}
	if challenge.Methods[0].Recipient != "0x1111111111111111111111111111111111111111" {
		t.Errorf("nested alias not folded: recipient = %q", challenge.Methods[0].Recipient)
	}
}

func TestAuthorizationComplete(t *testing.T) {
	auth := Authorization{
		From:        "0x1111111111111111111111111111111111111111",
		To:          "0x2222222222222222222222222222222222222222",
		Value:       "100",
		ValidAfter:  "0",
		ValidBefore: "9999999999",
		Nonce:       "0xabcd",
	}
	if !auth.Complete() {
		t.Error("complete authorization reported incomplete")
	}
	auth.Nonce = ""
	if auth.Complete() {
		t.Error("authorization without nonce reported complete")
	}
}

func TestParseAmount(t *testing.T) {
	if _, err := ParseAmount(""); err == nil {
		t.Error("empty amount accepted")
	}
	if _, err := ParseAmount("-5"); err == nil {
		t.Error("negative amount accepted")
	}
	if _, err := ParseAmount("1.5"); err == nil {
		t.Error("decimal amount accepted")
	}
	v, err := ParseAmount("10000")
	if err != nil {
		t.Fatalf("valid amount rejected: %v", err)
	}
	if v.Cmp(big.NewInt(10000)) != 0 {
		t.Errorf("ParseAmount = %s, want 10000", v)
	}
}

func TestAmountConversion(t *testing.T) {
	atomic, err := AmountToBigInt("1.5", 6)
	if err != nil {
		t.Fatalf("AmountToBigInt failed: %v", err)
	}
	if atomic.Cmp(big.NewInt(1500000)) != 0 {
		t.Errorf("AmountToBigInt(1.5, 6) = %s, want 1500000", atomic)
	}

	if got := BigIntToAmount(big.NewInt(1500000), 6); got != "1.500000" {
		t.Errorf("BigIntToAmount = %q, want 1.500000", got)
	}
	if got := BigIntToAmount(nil, 6); got != "0" {
		t.Errorf("BigIntToAmount(nil) = %q, want 0", got)
	}
}

func TestAddressesEqual(t *testing.T) {
	if !AddressesEqual("0xABCDEF1234567890abcdef1234567890ABCDEF12", "0xabcdef1234567890ABCDEF1234567890abcdef12") {
		t.Error("case-insensitive comparison failed")
	}
	if AddressesEqual("0x1111111111111111111111111111111111111111", "0x2222222222222222222222222222222222222222") {
		t.Error("distinct addresses compared equal")
	}
}
