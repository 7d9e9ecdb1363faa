package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	defaultTokenTTL     = 24 * time.Hour

	secretRefPrefix = "secret://"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	Auth      AuthConfig
	Events    EventsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// AuthConfig stores session-token verification settings. The signing secret may be
// given inline or as a secret:// reference resolved through Secret Manager.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// EventsConfig configures the Pub/Sub order-event topic. Empty topic disables publishing.
type EventsConfig struct {
	ProjectID       string
	OrderEventTopic string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
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

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the
// map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables merging of the process environment (used in tests).
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver wires the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles and validates the runtime configuration. Precedence for values is
// dotenv file < process environment < explicit env map.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	values, err := environmentValues(options)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) string {
		return strings.TrimSpace(values[key])
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringOrDefault(lookup("PORT"), defaultPort),
			ReadTimeout:  durationOrDefault(lookup("SERVER_READ_TIMEOUT"), defaultReadTimeout),
			WriteTimeout: durationOrDefault(lookup("SERVER_WRITE_TIMEOUT"), defaultWriteTimeout),
			IdleTimeout:  durationOrDefault(lookup("SERVER_IDLE_TIMEOUT"), defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    lookup("FIRESTORE_PROJECT_ID"),
			EmulatorHost: lookup("FIRESTORE_EMULATOR_HOST"),
		},
		Auth: AuthConfig{
			JWTSecret: lookup("AUTH_JWT_SECRET"),
			Issuer:    stringOrDefault(lookup("AUTH_ISSUER"), "hdshop"),
			TokenTTL:  durationOrDefault(lookup("AUTH_TOKEN_TTL"), defaultTokenTTL),
		},
		Events: EventsConfig{
			ProjectID:       stringOrDefault(lookup("PUBSUB_PROJECT_ID"), lookup("FIRESTORE_PROJECT_ID")),
			OrderEventTopic: lookup("PUBSUB_ORDER_EVENT_TOPIC"),
		},
	}

	if strings.HasPrefix(cfg.Auth.JWTSecret, secretRefPrefix) {
		resolved, err := resolveSecret(ctx, options.secret, cfg.Auth.JWTSecret)
		if err != nil {
			return Config{}, err
		}
		cfg.Auth.JWTSecret = resolved
	}

	var missing []string
	if cfg.Firestore.ProjectID == "" && cfg.Firestore.EmulatorHost == "" {
		missing = append(missing, "FIRESTORE_PROJECT_ID")
	}
	if cfg.Auth.JWTSecret == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}
	if len(missing) > 0 {
		return Config{}, &ValidationError{fields: missing}
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, resolver SecretResolver, ref string) (string, error) {
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	value, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	if strings.TrimSpace(value) == "" {
		return "", &SecretError{Ref: ref, Err: errors.New("resolved secret is empty")}
	}
	return value, nil
}

func environmentValues(options loaderOptions) (map[string]string, error) {
	values := make(map[string]string)

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	for key, value := range dotEnvValues {
		values[key] = value
	}

	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
				continue
			}
			values[strings.TrimSpace(parts[0])] = parts[1]
		}
	}

	for key, value := range options.envMap {
		values[key] = value
	}

	return values, nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open env file %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)
		if key != "" {
			values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return values, nil
}

func stringOrDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func durationOrDefault(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
