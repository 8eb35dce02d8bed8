package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Environment != "local" {
		t.Fatalf("expected local environment, got %q", cfg.Environment)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("expected 1h token ttl, got %s", cfg.Auth.TokenTTL)
	}
	if cfg.Stripe.Currency != "usd" {
		t.Fatalf("expected usd currency, got %q", cfg.Stripe.Currency)
	}
	if cfg.Stripe.ShippingFeeCents != 1000 {
		t.Fatalf("expected 1000 cent shipping fee, got %d", cfg.Stripe.ShippingFeeCents)
	}
	if cfg.Storage.UploadDir != "./uploads" {
		t.Fatalf("expected ./uploads, got %q", cfg.Storage.UploadDir)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" {
		t.Fatalf("expected Idempotency-Key header, got %q", cfg.Idempotency.Header)
	}
}

func TestLoadEnvMapPrecedence(t *testing.T) {
	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(""), WithEnvMap(map[string]string{
		"API_SERVER_PORT":               "9000",
		"API_STRIPE_SHIPPING_FEE_CENTS": "500",
		"API_FIRESTORE_PROJECT_ID":      "demo-project",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9000" {
		t.Fatalf("expected port 9000, got %q", cfg.Server.Port)
	}
	if cfg.Stripe.ShippingFeeCents != 500 {
		t.Fatalf("expected 500 cent shipping fee, got %d", cfg.Stripe.ShippingFeeCents)
	}
	if cfg.Events.ProjectID != "demo-project" {
		t.Fatalf("expected events project to default to firestore project, got %q", cfg.Events.ProjectID)
	}
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	_, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(""), WithEnvMap(map[string]string{
		"API_ENVIRONMENT": "production",
	}))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	fields := validationErr.Fields()
	want := map[string]bool{
		"Auth.TokenSecret":    false,
		"Auth.AdminEmail":     false,
		"Auth.AdminPassword":  false,
		"Firestore.ProjectID": false,
	}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Fatalf("expected %s in validation fields %v", field, fields)
		}
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/demo/secrets/token/versions/latest" {
			return "", errors.New("unexpected ref " + ref)
		}
		return "resolved-secret", nil
	})

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(""),
		WithSecretResolver(resolver),
		WithEnvMap(map[string]string{
			"API_AUTH_TOKEN_SECRET": "sm://projects/demo/secrets/token/versions/latest",
		}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.TokenSecret != "resolved-secret" {
		t.Fatalf("expected resolved secret, got %q", cfg.Auth.TokenSecret)
	}
}

func TestLoadSecretResolverFailure(t *testing.T) {
	_, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(""), WithEnvMap(map[string]string{
		"API_STRIPE_SECRET_KEY": "sm://projects/demo/secrets/stripe/versions/latest",
	}))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
}
