package httpapi

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
)

func TestTokenManagerRoundTrip(t *testing.T) {
	tokens := NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)

	token, expiresAt, err := tokens.Issue(domain.Actor{Username: "loja1", Role: domain.RoleAdmin, TenantID: "loja1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected expiry in the future, got %s", expiresAt)
	}

	actor, err := tokens.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.Username != "loja1" || actor.Role != domain.RoleAdmin || actor.TenantID != "loja1" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestTokenManagerRejectsExpiredToken(t *testing.T) {
	tokens := NewTokenManager("0123456789abcdef0123456789abcdef", time.Minute)
	tokens.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) }

	token, _, err := tokens.Issue(domain.Actor{Username: "loja1", Role: domain.RoleAdmin, TenantID: "loja1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tokens.now = func() time.Time { return time.Now().UTC() }

	if _, err := tokens.Parse(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestTokenManagerRejectsForeignSecret(t *testing.T) {
	issuer := NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)
	verifier := NewTokenManager("fedcba9876543210fedcba9876543210", time.Hour)

	token, _, err := issuer.Issue(domain.Actor{Username: "wandev", Role: domain.RoleSuper})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Parse(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestTokenManagerRejectsTenantTokenWithoutTenant(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	tokens := NewTokenManager(secret, time.Hour)

	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "loja1",
			Issuer:    tokenIssuer,
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleAdmin,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := tokens.Parse(token); err == nil {
		t.Fatalf("expected admin token without tenant to be rejected")
	}
}

func TestTokenManagerRejectsNoneAlgorithm(t *testing.T) {
	tokens := NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)

	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "wandev", Issuer: tokenIssuer},
		Role:             domain.RoleSuper,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := tokens.Parse(token); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}
