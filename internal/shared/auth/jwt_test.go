package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSignVerifyKeepsTenants(t *testing.T) {
	s, err := NewSigner("test-secret", "dev")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	token, err := s.Sign(Claims{Sub: "user-1", Tenants: []string{"acme"}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Sub != "user-1" {
		t.Fatalf("unexpected sub %q", claims.Sub)
	}
	if !claims.HasTenant("ACME") || claims.HasTenant("beta") {
		t.Fatalf("unexpected tenant grants: %v", claims.Tenants)
	}
}

func TestVerifyRejectsTamperedAndExpired(t *testing.T) {
	s, err := NewSigner("test-secret", "dev")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	token, err := s.Sign(Claims{Sub: "user-1"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	other, _ := NewSigner("other-secret", "dev")
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
	if _, err := s.Verify(strings.TrimSuffix(token, token[len(token)-2:])); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for truncated signature, got %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	if _, err := s.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestNewSignerRequiresSecretInProduction(t *testing.T) {
	if _, err := NewSigner("", "production"); err == nil {
		t.Fatalf("expected error without secret in production")
	}
	if _, err := NewSigner("", "dev"); err != nil {
		t.Fatalf("dev should fall back: %v", err)
	}
}

func TestWildcardTenantGrant(t *testing.T) {
	c := Claims{Sub: "ops", Tenants: []string{"*"}}
	if !c.HasTenant("anything") {
		t.Fatalf("expected wildcard grant")
	}
	if c.HasTenant("") {
		t.Fatalf("empty slug must never match")
	}
}
