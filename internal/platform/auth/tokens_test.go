package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestTokens(t *testing.T, now time.Time) *Tokens {
	t.Helper()
	tokens, err := NewTokens(TokenConfig{
		Secret:        "test-secret",
		TTL:           time.Hour,
		AdminEmail:    "admin@example.com",
		AdminPassword: "sup3r-secret",
		Now:           func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewTokens returned error: %v", err)
	}
	return tokens
}

func TestUserTokenRoundTrip(t *testing.T) {
	tokens := newTestTokens(t, time.Now())

	raw, err := tokens.MintUserToken("user-123")
	if err != nil {
		t.Fatalf("MintUserToken returned error: %v", err)
	}

	userID, err := tokens.VerifyUserToken(raw)
	if err != nil {
		t.Fatalf("VerifyUserToken returned error: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("expected user-123, got %q", userID)
	}
}

func TestUserTokenExpired(t *testing.T) {
	minted := time.Now().Add(-2 * time.Hour)
	issuer := newTestTokens(t, minted)

	raw, err := issuer.MintUserToken("user-123")
	if err != nil {
		t.Fatalf("MintUserToken returned error: %v", err)
	}

	verifier := newTestTokens(t, time.Now())
	if _, err := verifier.VerifyUserToken(raw); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestUserTokenWrongSecret(t *testing.T) {
	issuer := newTestTokens(t, time.Now())
	raw, err := issuer.MintUserToken("user-123")
	if err != nil {
		t.Fatalf("MintUserToken returned error: %v", err)
	}

	other, err := NewTokens(TokenConfig{Secret: "different-secret"})
	if err != nil {
		t.Fatalf("NewTokens returned error: %v", err)
	}
	if _, err := other.VerifyUserToken(raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestAdminTokenMatchesConfiguredCredentials(t *testing.T) {
	tokens := newTestTokens(t, time.Now())

	raw, err := tokens.MintAdminToken("admin@example.com", "sup3r-secret")
	if err != nil {
		t.Fatalf("MintAdminToken returned error: %v", err)
	}

	identity, err := tokens.VerifyAdminToken(raw)
	if err != nil {
		t.Fatalf("VerifyAdminToken returned error: %v", err)
	}
	if !identity.IsAdmin() {
		t.Fatalf("expected admin identity, got %+v", identity)
	}
}

func TestAdminTokenRejectsForeignCredentials(t *testing.T) {
	tokens := newTestTokens(t, time.Now())

	raw, err := tokens.MintAdminToken("intruder@example.com", "guess")
	if err != nil {
		t.Fatalf("MintAdminToken returned error: %v", err)
	}

	if _, err := tokens.VerifyAdminToken(raw); !errors.Is(err, ErrAdminMismatch) {
		t.Fatalf("expected ErrAdminMismatch, got %v", err)
	}
}

func TestUserTokenRejectsAdminToken(t *testing.T) {
	tokens := newTestTokens(t, time.Now())

	raw, err := tokens.MintAdminToken("admin@example.com", "sup3r-secret")
	if err != nil {
		t.Fatalf("MintAdminToken returned error: %v", err)
	}

	if _, err := tokens.VerifyUserToken(raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for token without user id, got %v", err)
	}
}

func TestNewTokensRequiresSecret(t *testing.T) {
	if _, err := NewTokens(TokenConfig{Secret: "  "}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
