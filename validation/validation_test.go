package validation

import (
	"strconv"
	"strings"
	"testing"
	"time"

	x402gate "github.com/tollgate-labs/x402gate"
)

const (
	recipient = "0x2222222222222222222222222222222222222222"
	payer     = "0x1111111111111111111111111111111111111111"
	usdcBase  = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
)

func validMethod() x402gate.PaymentMethod {
	return x402gate.PaymentMethod{
		Scheme:        "exact",
		Network:       "base-sepolia",
		Asset:         "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Recipient:     recipient,
		MaximumAmount: "10000",
		TimeoutMillis: 300_000,
	}
}

func validPayment(now time.Time) x402gate.SignedPayment {
	return x402gate.SignedPayment{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Payload: x402gate.EVMPayload{
			Signature: "0x" + strings.Repeat("ab", 65),
			Authorization: x402gate.Authorization{
				From:        payer,
				To:          recipient,
				Value:       "10000",
				ValidAfter:  formatUnix(now.Add(-time.Minute)),
				ValidBefore: formatUnix(now.Add(5 * time.Minute)),
				Nonce:       "0x" + strings.Repeat("cd", 32),
			},
		},
	}
}

func formatUnix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func TestValidateMethod(t *testing.T) {
	if err := ValidateMethod(validMethod()); err != nil {
		t.Fatalf("valid method rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*x402gate.PaymentMethod)
	}{
		{"empty scheme", func(m *x402gate.PaymentMethod) { m.Scheme = "" }},
		{"unknown network", func(m *x402gate.PaymentMethod) { m.Network = "dogecoin" }},
		{"bad asset", func(m *x402gate.PaymentMethod) { m.Asset = "0x123" }},
		{"bad recipient", func(m *x402gate.PaymentMethod) { m.Recipient = "not-an-address" }},
		{"zero amount", func(m *x402gate.PaymentMethod) { m.MaximumAmount = "0" }},
		{"non-numeric amount", func(m *x402gate.PaymentMethod) { m.MaximumAmount = "ten" }},
		{"max below min", func(m *x402gate.PaymentMethod) { m.MinimumAmount = "20000" }},
		{"timeout too short", func(m *x402gate.PaymentMethod) { m.TimeoutMillis = 500 }},
		{"timeout too long", func(m *x402gate.PaymentMethod) { m.TimeoutMillis = 7_200_000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := validMethod()
			tt.mutate(&method)
			if err := ValidateMethod(method); err == nil {
				t.Error("invalid method accepted")
			}
		})
	}
}

func TestValidateStructure(t *testing.T) {
	now := time.Now()
	if err := ValidateStructure(validPayment(now)); err != nil {
		t.Fatalf("valid payment rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*x402gate.SignedPayment)
	}{
		{"wrong version", func(p *x402gate.SignedPayment) { p.X402Version = 2 }},
		{"empty scheme", func(p *x402gate.SignedPayment) { p.Scheme = "" }},
		{"empty network", func(p *x402gate.SignedPayment) { p.Network = "" }},
		{"non-hex signature", func(p *x402gate.SignedPayment) { p.Payload.Signature = "0xzz" }},
		{"short signature", func(p *x402gate.SignedPayment) { p.Payload.Signature = "0xabcd" }},
		{"missing from", func(p *x402gate.SignedPayment) { p.Payload.Authorization.From = "" }},
		{"missing nonce", func(p *x402gate.SignedPayment) { p.Payload.Authorization.Nonce = "" }},
		{"short nonce", func(p *x402gate.SignedPayment) { p.Payload.Authorization.Nonce = "0xabcd" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payment := validPayment(now)
			tt.mutate(&payment)
			err := ValidateStructure(payment)
			if err == nil {
				t.Fatal("invalid payment accepted")
			}
			if got := x402gate.ClassOf(err); got != x402gate.ClassInvalidFormat {
				t.Errorf("class = %s, want %s", got, x402gate.ClassInvalidFormat)
			}
		})
	}
}

func TestValidateSemantics(t *testing.T) {
	now := time.Now()
	method := validMethod()

	if err := ValidateSemantics(validPayment(now), method, now); err != nil {
		t.Fatalf("valid payment rejected: %v", err)
	}

	tests := []struct {
		name      string
		mutate    func(*x402gate.SignedPayment)
		wantClass x402gate.Class
	}{
		{
			"wrong recipient",
			func(p *x402gate.SignedPayment) { p.Payload.Authorization.To = payer },
			x402gate.ClassInvalidAuthorization,
		},
		{
			"wrong network",
			func(p *x402gate.SignedPayment) { p.Network = "base" },
			x402gate.ClassInvalidAuthorization,
		},
		{
			"wrong scheme",
			func(p *x402gate.SignedPayment) { p.Scheme = "streaming" },
			x402gate.ClassInvalidAuthorization,
		},
		{
			"value above maximum",
			func(p *x402gate.SignedPayment) { p.Payload.Authorization.Value = "20000" },
			x402gate.ClassInvalidAuthorization,
		},
		{
			"value below implicit minimum",
			func(p *x402gate.SignedPayment) { p.Payload.Authorization.Value = "9999" },
			x402gate.ClassInvalidAuthorization,
		},
		{
			"inverted window",
			func(p *x402gate.SignedPayment) {
				p.Payload.Authorization.ValidAfter = "200"
				p.Payload.Authorization.ValidBefore = "100"
			},
			x402gate.ClassInvalidAuthorization,
		},
		{
			"not yet valid",
			func(p *x402gate.SignedPayment) {
				p.Payload.Authorization.ValidAfter = formatUnix(now.Add(time.Hour))
				p.Payload.Authorization.ValidBefore = formatUnix(now.Add(2 * time.Hour))
			},
			x402gate.ClassInvalidAuthorization,
		},
		{
			"expired",
			func(p *x402gate.SignedPayment) {
				p.Payload.Authorization.ValidAfter = formatUnix(now.Add(-2 * time.Hour))
				p.Payload.Authorization.ValidBefore = formatUnix(now.Add(-time.Hour))
			},
			x402gate.ClassExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payment := validPayment(now)
			tt.mutate(&payment)
			err := ValidateSemantics(payment, method, now)
			if err == nil {
				t.Fatal("invalid payment accepted")
			}
			if got := x402gate.ClassOf(err); got != tt.wantClass {
				t.Errorf("class = %s, want %s", got, tt.wantClass)
			}
		})
	}
}

func TestValidateSemanticsSchemeAliases(t *testing.T) {
	now := time.Now()
	method := validMethod()
	method.Scheme = "eip3009"

	payment := validPayment(now)
	payment.Scheme = "exact"
	if err := ValidateSemantics(payment, method, now); err != nil {
		t.Errorf("exact vs eip3009 rejected: %v", err)
	}
}

func TestValidateSemanticsExplicitMinimum(t *testing.T) {
	now := time.Now()
	method := validMethod()
	method.MinimumAmount = "5000"

	payment := validPayment(now)
	payment.Payload.Authorization.Value = "6000"
	if err := ValidateSemantics(payment, method, now); err != nil {
		t.Errorf("value within explicit bounds rejected: %v", err)
	}

	payment.Payload.Authorization.Value = "4000"
	if err := ValidateSemantics(payment, method, now); err == nil {
		t.Error("value below explicit minimum accepted")
	}
}
