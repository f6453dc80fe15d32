package validator

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// StaticAuthProvider sends a fixed Authorization header value, e.g. an API
// key issued by a hosted facilitator.
type StaticAuthProvider string

// AuthorizationHeader implements AuthProvider.
func (s StaticAuthProvider) AuthorizationHeader(context.Context) (string, error) {
	return string(s), nil
}

// JWTAuthProvider mints short-lived bearer tokens for facilitator requests,
// signed with an ECDSA or Ed25519 key. Facilitators that authenticate
// resource servers (hosted settlement services) expect this shape.
//
// The provider is immutable after construction and safe for concurrent use;
// the parsed key is cached so each token only pays for the signature.
type JWTAuthProvider struct {
	keyID      string
	issuer     string
	audience   string
	privateKey interface{}
	ttl        time.Duration
}

// NewJWTAuthProvider parses the PEM-encoded private key and returns a
// provider that issues tokens with the given key ID as subject, signed
// ES256 for ECDSA keys and EdDSA otherwise. Tokens are valid for two
// minutes; audience names the facilitator the tokens are minted for.
func NewJWTAuthProvider(keyID, issuer, audience, pemKey string) (*JWTAuthProvider, error) {
	if keyID == "" {
		return nil, fmt.Errorf("keyID must not be empty")
	}

	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block: invalid PEM format")
	}

	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		// PKCS8 covers both ECDSA and Ed25519.
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		switch key.(type) {
		case *ecdsa.PrivateKey, crypto.Signer:
		default:
			return nil, fmt.Errorf("unsupported private key type: must be ECDSA or Ed25519")
		}
		return &JWTAuthProvider{keyID: keyID, issuer: issuer, audience: audience, privateKey: key, ttl: 2 * time.Minute}, nil
	}

	return &JWTAuthProvider{keyID: keyID, issuer: issuer, audience: audience, privateKey: privateKey, ttl: 2 * time.Minute}, nil
}

// AuthorizationHeader implements AuthProvider. Each call mints a fresh
// token; facilitators reject reused or expired tokens, so nothing is cached.
func (p *JWTAuthProvider) AuthorizationHeader(context.Context) (string, error) {
	alg := jose.EdDSA
	if _, ok := p.privateKey.(*ecdsa.PrivateKey); ok {
		alg = jose.ES256
	}

	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: alg, Key: p.privateKey},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", p.keyID),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create JWT signer: %w", err)
	}

	now := time.Now()
	claims := jwt.Claims{
		Subject:   p.keyID,
		Issuer:    p.issuer,
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(p.ttl)),
	}
	if p.audience != "" {
		claims.Audience = jwt.Audience{p.audience}
	}

	token, err := jwt.Signed(sig).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize JWT: %w", err)
	}

	return "Bearer " + token, nil
}

var (
	_ AuthProvider = StaticAuthProvider("")
	_ AuthProvider = (*JWTAuthProvider)(nil)
)
