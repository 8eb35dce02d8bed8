// Package config assembles the runtime configuration from defaults, .env
// overrides, environment variables, and Secret Manager references.
package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultEnvironment = "local"

	defaultTokenTTL         = time.Hour
	defaultStripeCurrency   = "usd"
	defaultShippingFeeCents = 1000

	defaultUploadDir    = "./uploads"
	defaultImagePrefix  = "/images"
	defaultOrderTopicID = ""

	defaultIdempotencyHeader = "Idempotency-Key"
	defaultIdempotencyTTL    = 24 * time.Hour

	// EnvironmentProduction enables strict secret validation at startup.
	EnvironmentProduction = "production"
)

// Config is the root configuration consumed by the API process.
type Config struct {
	Environment string
	Server      ServerConfig
	Firestore   FirestoreConfig
	Auth        AuthConfig
	Stripe      StripeConfig
	Storage     StorageConfig
	Events      EventsConfig
	Idempotency IdempotencyConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig identifies the backing Firestore database.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// AuthConfig carries the token signing material and the admin credentials.
type AuthConfig struct {
	TokenSecret   string
	TokenTTL      time.Duration
	AdminEmail    string
	AdminPassword string
}

// StripeConfig carries payment gateway settings. An empty SecretKey leaves
// gateway checkout disabled.
type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	Currency         string
	ShippingFeeCents int64
	SuccessURL       string
	CancelURL        string
}

// StorageConfig controls where uploaded product images live. When Bucket is
// set images go to GCS; otherwise they are written under UploadDir and
// served from ImagePathPrefix.
type StorageConfig struct {
	Bucket          string
	UploadDir       string
	ImagePathPrefix string
}

// EventsConfig configures the optional Pub/Sub order event publisher.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

// IdempotencyConfig controls replay protection on order placement.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// IsProduction reports whether strict validation applies.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentProduction)
}

// SecretResolver resolves secret:// or sm:// references into secret values.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function into a SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret implements SecretResolver.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError reports configuration fields that failed validation.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: missing or invalid fields: %s", strings.Join(e.fields, ", "))
}

// Fields lists the offending field names.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError wraps failures while resolving secret references.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("config: resolve secret %s: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups.
// Values in the map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the application configuration by combining defaults, .env
// overrides, environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Auth: AuthConfig{
			TokenSecret:   stringWithDefault(lookup, "API_AUTH_TOKEN_SECRET", ""),
			TokenTTL:      durationWithDefault(lookup, "API_AUTH_TOKEN_TTL", defaultTokenTTL),
			AdminEmail:    stringWithDefault(lookup, "API_AUTH_ADMIN_EMAIL", ""),
			AdminPassword: stringWithDefault(lookup, "API_AUTH_ADMIN_PASSWORD", ""),
		},
		Stripe: StripeConfig{
			SecretKey:        stringWithDefault(lookup, "API_STRIPE_SECRET_KEY", ""),
			WebhookSecret:    stringWithDefault(lookup, "API_STRIPE_WEBHOOK_SECRET", ""),
			Currency:         strings.ToLower(stringWithDefault(lookup, "API_STRIPE_CURRENCY", defaultStripeCurrency)),
			ShippingFeeCents: int64WithDefault(lookup, "API_STRIPE_SHIPPING_FEE_CENTS", defaultShippingFeeCents),
			SuccessURL:       stringWithDefault(lookup, "API_STRIPE_SUCCESS_URL", ""),
			CancelURL:        stringWithDefault(lookup, "API_STRIPE_CANCEL_URL", ""),
		},
		Storage: StorageConfig{
			Bucket:          stringWithDefault(lookup, "API_STORAGE_BUCKET", ""),
			UploadDir:       stringWithDefault(lookup, "API_STORAGE_UPLOAD_DIR", defaultUploadDir),
			ImagePathPrefix: stringWithDefault(lookup, "API_STORAGE_IMAGE_PREFIX", defaultImagePrefix),
		},
		Events: EventsConfig{
			ProjectID: stringWithDefault(lookup, "API_EVENTS_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "API_EVENTS_TOPIC", defaultOrderTopicID),
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
	}

	// Events default to the Firestore project when unspecified.
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"Auth.TokenSecret", &cfg.Auth.TokenSecret},
		{"Auth.AdminPassword", &cfg.Auth.AdminPassword},
		{"Stripe.SecretKey", &cfg.Stripe.SecretKey},
		{"Stripe.WebhookSecret", &cfg.Stripe.WebhookSecret},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" {
		return value, nil
	}
	if !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

// validateConfig enforces baseline invariants everywhere and refuses to
// start in production with missing secrets or credentials.
func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Auth.TokenTTL <= 0 {
		missing = append(missing, "Auth.TokenTTL")
	}

	if cfg.IsProduction() {
		if strings.TrimSpace(cfg.Auth.TokenSecret) == "" {
			missing = append(missing, "Auth.TokenSecret")
		}
		if strings.TrimSpace(cfg.Auth.AdminEmail) == "" {
			missing = append(missing, "Auth.AdminEmail")
		}
		if strings.TrimSpace(cfg.Auth.AdminPassword) == "" {
			missing = append(missing, "Auth.AdminPassword")
		}
		if strings.TrimSpace(cfg.Firestore.ProjectID) == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: scan %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
