package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("secret-secret-secret")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	token, err := issuer.Issue("u1", "a@example.com", "s1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "u1" || claims.SessionID != "s1" || claims.Email != "a@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenRejectsOtherSecretAndAlgorithm(t *testing.T) {
	a, _ := NewTokenIssuer("secret-a-secret-a")
	b, _ := NewTokenIssuer("secret-b-secret-b")
	token, _ := a.Issue("u1", "", "s1", time.Now().Add(time.Hour))
	if _, err := b.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{SessionID: "s1", RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    defaultIssuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := a.Parse(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("alg none must be rejected, got %v", err)
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer("  "); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
