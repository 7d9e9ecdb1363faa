package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"FIRESTORE_PROJECT_ID": "demo-project",
			"AUTH_JWT_SECRET":      "test-secret",
		}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != defaultPort {
		t.Errorf("Port = %q, want %q", cfg.Server.Port, defaultPort)
	}
	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("ReadTimeout = %v, want %v", cfg.Server.ReadTimeout, defaultReadTimeout)
	}
	if cfg.Auth.Issuer != "hdshop" {
		t.Errorf("Issuer = %q, want hdshop", cfg.Auth.Issuer)
	}
	if cfg.Events.ProjectID != "demo-project" {
		t.Errorf("Events.ProjectID = %q, want fall-through to Firestore project", cfg.Events.ProjectID)
	}
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(""))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := verr.Fields()
	if len(fields) != 2 {
		t.Fatalf("Fields() = %v, want 2 entries", fields)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "PORT=9999\nAUTH_JWT_SECRET=file-secret\nFIRESTORE_PROJECT_ID=file-project\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(envFile),
		WithEnvMap(map[string]string{"PORT": "7777"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7777" {
		t.Errorf("Port = %q, explicit map should win over env file", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "file-secret" {
		t.Errorf("JWTSecret = %q, want value from env file", cfg.Auth.JWTSecret)
	}
}

func TestLoadSecretReference(t *testing.T) {
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/p/secrets/jwt/versions/latest" {
			t.Errorf("unexpected ref %q", ref)
		}
		return "resolved-secret", nil
	})

	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithEnvMap(map[string]string{
			"FIRESTORE_PROJECT_ID": "demo-project",
			"AUTH_JWT_SECRET":      "secret://projects/p/secrets/jwt/versions/latest",
		}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.JWTSecret != "resolved-secret" {
		t.Errorf("JWTSecret = %q, want resolved-secret", cfg.Auth.JWTSecret)
	}
}

func TestLoadSecretReferenceWithoutResolver(t *testing.T) {
	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"FIRESTORE_PROJECT_ID": "demo-project",
			"AUTH_JWT_SECRET":      "secret://projects/p/secrets/jwt/versions/latest",
		}),
	)
	var serr *SecretError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
}

func TestDurationOrDefault(t *testing.T) {
	if got := durationOrDefault("45s", time.Second); got != 45*time.Second {
		t.Errorf("durationOrDefault(45s) = %v", got)
	}
	if got := durationOrDefault("30", time.Second); got != 30*time.Second {
		t.Errorf("durationOrDefault(30) = %v, want bare seconds parsing", got)
	}
	if got := durationOrDefault("bogus", time.Second); got != time.Second {
		t.Errorf("durationOrDefault(bogus) = %v, want fallback", got)
	}
}
