package secrets

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
)

type stubSecretClient struct {
	responses map[string]string
	calls     int
	err       error
}

func (s *stubSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	value, ok := s.responses[req.GetName()]
	if !ok {
		return nil, errors.New("not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (s *stubSecretClient) Close() error { return nil }

func TestResolveShortReference(t *testing.T) {
	stub := &stubSecretClient{responses: map[string]string{
		"projects/demo/secrets/token/versions/latest": "hunter2",
	}}
	fetcher, err := NewFetcher(context.Background(), WithSecretManagerClient(stub), WithDefaultProject("demo"))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	value, err := fetcher.Resolve(context.Background(), "secret://token")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "hunter2" {
		t.Fatalf("expected hunter2, got %q", value)
	}
}

func TestResolveCachesValues(t *testing.T) {
	stub := &stubSecretClient{responses: map[string]string{
		"projects/demo/secrets/token/versions/latest": "hunter2",
	}}
	fetcher, err := NewFetcher(context.Background(), WithSecretManagerClient(stub), WithDefaultProject("demo"))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := fetcher.Resolve(context.Background(), "secret://token"); err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
	}
	if stub.calls != 1 {
		t.Fatalf("expected a single backend call, got %d", stub.calls)
	}
}

func TestResolveFullyQualifiedReference(t *testing.T) {
	stub := &stubSecretClient{responses: map[string]string{
		"projects/other/secrets/stripe/versions/3": "sk_test",
	}}
	fetcher, err := NewFetcher(context.Background(), WithSecretManagerClient(stub))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	value, err := fetcher.Resolve(context.Background(), "secret://projects/other/secrets/stripe/versions/3")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "sk_test" {
		t.Fatalf("expected sk_test, got %q", value)
	}
}

func TestResolveRejectsMalformedReference(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(), WithSecretManagerClient(&stubSecretClient{}))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	for _, ref := range []string{"", "token", "secret://", "secret://projects/x"} {
		if _, err := fetcher.Resolve(context.Background(), ref); err == nil {
			t.Fatalf("expected error for reference %q", ref)
		}
	}
}
