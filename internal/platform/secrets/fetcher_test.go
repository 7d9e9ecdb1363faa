package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubSecretManagerClient struct {
	accessFn func(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	closed   bool
}

func (s *stubSecretManagerClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	return s.accessFn(ctx, req, opts...)
}

func (s *stubSecretManagerClient) Close() error {
	s.closed = true
	return nil
}

func payload(value string) *secretmanagerpb.AccessSecretVersionResponse {
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}
}

func TestResolveSecretRemote(t *testing.T) {
	var gotName string
	client := &stubSecretManagerClient{
		accessFn: func(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			gotName = req.GetName()
			return payload("jwt-signing-key"), nil
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("demo-project"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	value, err := fetcher.ResolveSecret(context.Background(), "secret://jwt-secret")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if value != "jwt-signing-key" {
		t.Errorf("value = %q", value)
	}
	if gotName != "projects/demo-project/secrets/jwt-secret/versions/latest" {
		t.Errorf("resource name = %q", gotName)
	}
}

func TestResolveSecretCaches(t *testing.T) {
	calls := 0
	client := &stubSecretManagerClient{
		accessFn: func(context.Context, *secretmanagerpb.AccessSecretVersionRequest, ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			calls++
			return payload("cached"), nil
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("demo-project"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := fetcher.ResolveSecret(context.Background(), "secret://jwt-secret"); err != nil {
			t.Fatalf("ResolveSecret attempt %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Errorf("remote calls = %d, want 1", calls)
	}
}

func TestResolveSecretFallback(t *testing.T) {
	dir := t.TempDir()
	fallbackFile := filepath.Join(dir, ".secrets.local")
	content := "secret://jwt-secret=local-value\n# comment\n"
	if err := os.WriteFile(fallbackFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write fallback file: %v", err)
	}

	client := &stubSecretManagerClient{
		accessFn: func(context.Context, *secretmanagerpb.AccessSecretVersionRequest, ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			return nil, status.Error(codes.PermissionDenied, "denied")
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("demo-project"),
		WithFallbackFile(fallbackFile),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	value, err := fetcher.ResolveSecret(context.Background(), "secret://jwt-secret")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if value != "local-value" {
		t.Errorf("value = %q, want fallback value", value)
	}
}

func TestResolveSecretHardError(t *testing.T) {
	client := &stubSecretManagerClient{
		accessFn: func(context.Context, *secretmanagerpb.AccessSecretVersionRequest, ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			return nil, status.Error(codes.NotFound, "no such secret")
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("demo-project"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	if _, err := fetcher.ResolveSecret(context.Background(), "secret://missing"); err == nil {
		t.Fatal("expected error for NotFound secret")
	}
}

func TestParseReference(t *testing.T) {
	parsed, err := parseReference("secret://jwt-secret?project=other&version=3")
	if err != nil {
		t.Fatalf("parseReference: %v", err)
	}
	if parsed.Secret != "jwt-secret" {
		t.Errorf("Secret = %q", parsed.Secret)
	}
	if parsed.ProjectOverride != "other" {
		t.Errorf("ProjectOverride = %q", parsed.ProjectOverride)
	}
	if parsed.Version != "3" {
		t.Errorf("Version = %q", parsed.Version)
	}

	if _, err := parseReference("vault://nope"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
