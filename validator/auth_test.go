package validator

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"gopkg.in/square/go-jose.v2/jwt"
)

func testPEMKey(t *testing.T) (string, *ecdsa.PublicKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	return string(pemKey), &key.PublicKey
}

func TestStaticAuthProvider(t *testing.T) {
	header, err := StaticAuthProvider("Bearer abc").AuthorizationHeader(context.Background())
	if err != nil {
		t.Fatalf("static provider failed: %v", err)
	}
	if header != "Bearer abc" {
		t.Errorf("header = %q", header)
	}
}

func TestJWTAuthProviderMintsValidToken(t *testing.T) {
	pemKey, publicKey := testPEMKey(t)

	provider, err := NewJWTAuthProvider("key-1", "x402gate", "https://facilitator.example", pemKey)
	if err != nil {
		t.Fatalf("provider construction failed: %v", err)
	}

	header, err := provider.AuthorizationHeader(context.Background())
	if err != nil {
		t.Fatalf("token minting failed: %v", err)
	}
	if !strings.HasPrefix(header, "Bearer ") {
		t.Fatalf("header = %q, want Bearer prefix", header)
	}

	token, err := jwt.ParseSigned(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		t.Fatalf("token unparseable: %v", err)
	}

	var claims jwt.Claims
	if err := token.Claims(publicKey, &claims); err != nil {
		t.Fatalf("signature verification failed: %v", err)
	}
	if claims.Subject != "key-1" {
		t.Errorf("sub = %q, want key-1", claims.Subject)
	}
	if claims.Issuer != "x402gate" {
		t.Errorf("iss = %q", claims.Issuer)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "https://facilitator.example" {
		t.Errorf("aud = %v", claims.Audience)
	}
	if claims.Expiry.Time().Before(time.Now().Add(time.Minute)) {
		t.Error("token expires too soon")
	}
}

func TestJWTAuthProviderRejectsBadKey(t *testing.T) {
	if _, err := NewJWTAuthProvider("key-1", "iss", "", "not pem at all"); err == nil {
		t.Error("garbage key accepted")
	}
	if _, err := NewJWTAuthProvider("", "iss", "", "whatever"); err == nil {
		t.Error("empty key ID accepted")
	}
}
