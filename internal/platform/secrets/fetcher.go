// Package secrets resolves secret:// references through Google Secret
// Manager with in-process caching.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

const defaultVersion = "latest"

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references with a per-process cache.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool

	logger        *zap.Logger
	defaultProjID string

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

type fetcherConfig struct {
	logger      *zap.Logger
	defaultProj string
	client      secretManagerClient
	clientOpts  []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithDefaultProject configures the project ID used for short references.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.defaultProj = strings.TrimSpace(projectID)
	}
}

// WithSecretManagerClient injects a pre-built client, mainly for tests.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions appends options used when constructing the managed client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// NewFetcher constructs a Fetcher, creating a Secret Manager client unless
// one was injected.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	fetcher := &Fetcher{
		client:        cfg.client,
		logger:        cfg.logger,
		defaultProjID: cfg.defaultProj,
		cache:         make(map[string]cacheEntry),
	}

	if fetcher.client == nil {
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("secrets: create client: %w", err)
		}
		fetcher.client = client
		fetcher.ownsClient = true
	}

	return fetcher, nil
}

// Close releases the managed client when the fetcher owns it.
func (f *Fetcher) Close() error {
	if f == nil || !f.ownsClient || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// Resolve fetches the secret value for a secret:// reference. Values are
// cached for the process lifetime; rotation requires a restart.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	projectID := parsed.project
	if projectID == "" {
		projectID = f.defaultProjID
	}
	if projectID == "" {
		return "", fmt.Errorf("secrets: no project for reference %s", maskReference(ref))
	}

	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, parsed.name, parsed.version)

	f.mu.RLock()
	entry, ok := f.cache[name]
	f.mu.RUnlock()
	if ok {
		return entry.value, nil
	}

	start := time.Now()
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name}, retryOptions()...)
	if err != nil {
		return "", fmt.Errorf("secrets: access %s: %w", maskReference(ref), err)
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", maskReference(ref))
	}
	value := string(resp.GetPayload().GetData())

	f.mu.Lock()
	f.cache[name] = cacheEntry{value: value, fetchedAt: time.Now()}
	f.mu.Unlock()

	f.logger.Debug("secret resolved",
		zap.String("reference", maskReference(ref)),
		zap.Duration("latency", time.Since(start)),
	)
	return value, nil
}

func retryOptions() []gax.CallOption {
	return []gax.CallOption{
		gax.WithRetry(func() gax.Retryer {
			return gax.OnCodes([]codes.Code{codes.Unavailable, codes.DeadlineExceeded}, gax.Backoff{
				Initial:    100 * time.Millisecond,
				Max:        2 * time.Second,
				Multiplier: 2,
			})
		}),
	}
}

type parsedReference struct {
	project string
	name    string
	version string
}

// parseReference accepts "secret://name", "secret://name#version", and the
// fully qualified "secret://projects/<p>/secrets/<n>/versions/<v>" forms.
func parseReference(ref string) (parsedReference, error) {
	trimmed := strings.TrimSpace(ref)
	if !strings.HasPrefix(trimmed, "secret://") {
		return parsedReference{}, errors.New("secrets: reference must start with secret://")
	}
	body := strings.TrimPrefix(trimmed, "secret://")
	if body == "" {
		return parsedReference{}, errors.New("secrets: empty reference")
	}

	version := defaultVersion
	if idx := strings.Index(body, "#"); idx >= 0 {
		if v := strings.TrimSpace(body[idx+1:]); v != "" {
			version = v
		}
		body = body[:idx]
	}

	if strings.HasPrefix(body, "projects/") {
		parts := strings.Split(body, "/")
		if len(parts) == 6 && parts[2] == "secrets" && parts[4] == "versions" {
			return parsedReference{project: parts[1], name: parts[3], version: parts[5]}, nil
		}
		if len(parts) == 4 && parts[2] == "secrets" {
			return parsedReference{project: parts[1], name: parts[3], version: version}, nil
		}
		return parsedReference{}, fmt.Errorf("secrets: malformed reference %s", maskReference(ref))
	}

	if strings.ContainsAny(body, "/ ") {
		return parsedReference{}, fmt.Errorf("secrets: malformed reference %s", maskReference(ref))
	}
	return parsedReference{name: body, version: version}, nil
}

func maskReference(ref string) string {
	trimmed := strings.TrimSpace(ref)
	if len(trimmed) <= 12 {
		return "secret://***"
	}
	return trimmed[:12] + "***"
}
