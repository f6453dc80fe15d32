// Package validation checks signed payments against the payment method they
// claim to satisfy. Structural checks (field presence, shapes) and semantic
// checks (recipient, network, amount bounds, validity window) are separated
// because the gate maps them to different error classes.
package validation

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	x402gate "github.com/tollgate-labs/x402gate"
)

var (
	// evmAddressRegex matches 0x followed by 40 hex characters.
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// nonceRegex matches a 0x-prefixed 32-byte hex string.
	nonceRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
)

// ValidateAddress checks that an address is a well-formed EVM address.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !evmAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid address format: %s (expected 0x followed by 40 hex characters)", address)
	}
	return nil
}

// ValidateAmount checks that an amount string is a positive decimal integer.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}
	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}
	if amt.Sign() <= 0 {
		return fmt.Errorf("amount must be greater than 0, got: %s", amount)
	}
	return nil
}

// ValidateMethod checks a payment method at configuration time. A gate
// refusing to start is better than one advertising a challenge nobody can
// satisfy.
func ValidateMethod(method x402gate.PaymentMethod) error {
	if method.Scheme == "" {
		return fmt.Errorf("invalid method: scheme cannot be empty")
	}
	if !x402gate.IsSupportedNetwork(method.Network) {
		return fmt.Errorf("invalid method: %w: %s", x402gate.ErrUnsupportedNetwork, method.Network)
	}
	if err := ValidateAddress(method.Asset); err != nil {
		return fmt.Errorf("invalid method: asset %w", err)
	}
	if err := ValidateAddress(method.Recipient); err != nil {
		return fmt.Errorf("invalid method: recipient %w", err)
	}
	if err := ValidateAmount(method.MaximumAmount); err != nil {
		return fmt.Errorf("invalid method: maximumAmount %w", err)
	}
	if method.MinimumAmount != "" {
		if err := ValidateAmount(method.MinimumAmount); err != nil {
			return fmt.Errorf("invalid method: minimumAmount %w", err)
		}
		maxAmt, _ := new(big.Int).SetString(method.MaximumAmount, 10)
		minAmt, _ := new(big.Int).SetString(method.MinimumAmount, 10)
		if maxAmt.Cmp(minAmt) < 0 {
			return fmt.Errorf("invalid method: maximumAmount below minimumAmount")
		}
	}
	if method.TimeoutMillis != 0 && (method.TimeoutMillis < 1000 || method.TimeoutMillis > 3600_000) {
		return fmt.Errorf("invalid method: timeout %dms outside [1s, 1h]", method.TimeoutMillis)
	}
	return nil
}

// ValidateStructure checks that a decoded payment has every required field
// in the required shape. Failures map to the invalid-format class.
func ValidateStructure(payment x402gate.SignedPayment) error {
	if payment.X402Version != x402gate.X402Version {
		return x402gate.NewPaymentError(x402gate.ClassInvalidFormat,
			fmt.Sprintf("unsupported x402 version %d", payment.X402Version),
			x402gate.ErrUnsupportedVersion)
	}
	if payment.Scheme == "" {
		return x402gate.NewPaymentError(x402gate.ClassInvalidFormat, "scheme is empty", nil)
	}
	if payment.Network == "" {
		return x402gate.NewPaymentError(x402gate.ClassInvalidFormat, "network is empty", nil)
	}

	sig := strings.TrimPrefix(payment.Payload.Signature, "0x")
	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return x402gate.NewPaymentError(x402gate.ClassInvalidFormat, "signature is not hex", err)
	}
	if len(sigBytes) != 65 {
		return x402gate.NewPaymentError(x402gate.ClassInvalidFormat,
			fmt.Sprintf("signature is %d bytes, want 65", len(sigBytes)), nil)
	}

	auth := payment.Payload.Authorization
	if !auth.Complete() {
		return x402gate.NewPaymentError(x402gate.ClassInvalidFormat, "authorization is missing fields", nil)
	}
	if !nonceRegex.MatchString(auth.Nonce) {
		return x402gate.NewPaymentError(x402gate.ClassInvalidFormat, "nonce is not a 32-byte hex string", nil)
	}

	return nil
}

// ValidateSemantics checks a structurally valid payment against the
// configured method: recipient, network, scheme, amount bounds, and the
// validity window. An expired window maps to the expired class; everything
// else maps to invalid-authorization.
func ValidateSemantics(payment x402gate.SignedPayment, method x402gate.PaymentMethod, now time.Time) error {
	auth := payment.Payload.Authorization

	if !x402gate.AddressesEqual(auth.To, method.Recipient) {
		return x402gate.NewPaymentError(x402gate.ClassInvalidAuthorization,
			"authorization recipient does not match", nil)
	}
	if payment.Network != method.Network {
		return x402gate.NewPaymentError(x402gate.ClassInvalidAuthorization,
			fmt.Sprintf("network %q does not match %q", payment.Network, method.Network), nil)
	}
	if !schemeCompatible(payment.Scheme, method.Scheme) {
		return x402gate.NewPaymentError(x402gate.ClassInvalidAuthorization,
			fmt.Sprintf("scheme %q does not match %q", payment.Scheme, method.Scheme), nil)
	}

	value, err := x402gate.ParseAmount(auth.Value)
	if err != nil {
		return x402gate.NewPaymentError(x402gate.ClassInvalidAuthorization, "value is not a valid amount", err)
	}
	maxAmt, err := x402gate.ParseAmount(method.MaximumAmount)
	if err != nil {
		return x402gate.NewPaymentError(x402gate.ClassInternal, "configured maximumAmount is invalid", err)
	}
	if value.Cmp(maxAmt) > 0 {
		return x402gate.NewPaymentError(x402gate.ClassInvalidAuthorization,
			"value exceeds maximum amount", nil)
	}
	minimum := method.MinimumAmount
	if minimum == "" {
		minimum = method.MaximumAmount
	}
	minAmt, err := x402gate.ParseAmount(minimum)
	if err != nil {
		return x402gate.NewPaymentError(x402gate.ClassInternal, "configured minimumAmount is invalid", err)
	}
	if value.Cmp(minAmt) < 0 {
		return x402gate.NewPaymentError(x402gate.ClassInvalidAuthorization,
			"value below minimum amount", nil)
	}

	validAfter, err := strconv.ParseUint(auth.ValidAfter, 10, 64)
	if err != nil {
		return x402gate.NewPaymentError(x402gate.ClassInvalidAuthorization, "validAfter is not an unsigned integer", err)
	}
	validBefore, err := strconv.ParseUint(auth.ValidBefore, 10, 64)
	if err != nil {
		return x402gate.NewPaymentError(x402gate.ClassInvalidAuthorization, "validBefore is not an unsigned integer", err)
	}
	if validBefore <= validAfter {
		return x402gate.NewPaymentError(x402gate.ClassInvalidAuthorization,
			"validBefore must exceed validAfter", nil)
	}

	nowUnix := uint64(now.Unix())
	if nowUnix < validAfter {
		return x402gate.NewPaymentError(x402gate.ClassInvalidAuthorization,
			"authorization not yet valid", nil)
	}
	if nowUnix >= validBefore {
		return x402gate.NewPaymentError(x402gate.ClassExpired,
			"authorization has expired", nil)
	}

	return nil
}

// schemeCompatible reports whether a payment's scheme satisfies a method's.
// "exact" and "eip3009" are interchangeable names for the ERC-3009 flow.
func schemeCompatible(got, want string) bool {
	if got == want {
		return true
	}
	erc3009 := map[string]bool{"exact": true, "eip3009": true}
	return erc3009[got] && erc3009[want]
}
