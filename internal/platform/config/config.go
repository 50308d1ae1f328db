// Package config loads runtime configuration from defaults, an optional
// .env file, environment variables, and Secret Manager references.
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
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 120 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	defaultLocation     = "us-central1"
	defaultGeminiModel  = "gemini-2.0-flash"
	defaultImagenModel  = "imagen-4.0-fast-generate-001"
	defaultImageWidth   = 1280
	defaultImageHeight  = 720
	defaultStylesDir    = "style_profiles"
	defaultDedupTTL     = 5 * time.Minute
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server  ServerConfig
	GCP     GCPConfig
	Storage StorageConfig
	Image   ImageConfig
	Styles  StylesConfig
	Dedup   DedupConfig
}

// ServerConfig configures HTTP server parameters. WriteTimeout is generous
// because image generation holds the response open for the full model call.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// GCPConfig stores project and model settings for Vertex AI.
type GCPConfig struct {
	ProjectID   string
	Location    string
	GeminiModel string
	ImagenModel string
	APIKey      string
}

// StorageConfig addresses the bucket generated images land in when the
// request names no explicit destination.
type StorageConfig struct {
	DefaultBucket   string
	CredentialsFile string
}

// ImageConfig fixes the output dimensions of generated images.
type ImageConfig struct {
	Width  int
	Height int
}

// StylesConfig locates the style profile store on disk.
type StylesConfig struct {
	Dir string
}

// DedupConfig controls duplicate request suppression.
type DedupConfig struct {
	TTL time.Duration
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

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
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

// WithSecretResolver sets a custom secret resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
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
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		GCP: GCPConfig{
			ProjectID:   stringWithDefault(lookup, "API_GCP_PROJECT_ID", ""),
			Location:    stringWithDefault(lookup, "API_GCP_LOCATION", defaultLocation),
			GeminiModel: stringWithDefault(lookup, "API_GCP_GEMINI_MODEL", defaultGeminiModel),
			ImagenModel: stringWithDefault(lookup, "API_GCP_IMAGEN_MODEL", defaultImagenModel),
			APIKey:      stringWithDefault(lookup, "API_GCP_API_KEY", ""),
		},
		Storage: StorageConfig{
			DefaultBucket:   stringWithDefault(lookup, "API_STORAGE_DEFAULT_BUCKET", ""),
			CredentialsFile: stringWithDefault(lookup, "API_STORAGE_CREDENTIALS_FILE", ""),
		},
		Image: ImageConfig{
			Width:  intWithDefault(lookup, "API_IMAGE_WIDTH", defaultImageWidth),
			Height: intWithDefault(lookup, "API_IMAGE_HEIGHT", defaultImageHeight),
		},
		Styles: StylesConfig{
			Dir: stringWithDefault(lookup, "API_STYLES_DIR", defaultStylesDir),
		},
		Dedup: DedupConfig{
			TTL: durationWithDefault(lookup, "API_DEDUP_TTL", defaultDedupTTL),
		},
	}

	resolvedKey, err := resolveSecret(ctx, cfg.GCP.APIKey, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.GCP.APIKey = resolvedKey

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

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.GCP.ProjectID == "" {
		missing = append(missing, "GCP.ProjectID")
	}
	if strings.TrimSpace(cfg.GCP.GeminiModel) == "" {
		missing = append(missing, "GCP.GeminiModel")
	}
	if strings.TrimSpace(cfg.GCP.ImagenModel) == "" {
		missing = append(missing, "GCP.ImagenModel")
	}
	if cfg.Image.Width <= 0 || cfg.Image.Height <= 0 {
		missing = append(missing, "Image.Width/Height")
	}
	if strings.TrimSpace(cfg.Styles.Dir) == "" {
		missing = append(missing, "Styles.Dir")
	}
	if cfg.Dedup.TTL <= 0 {
		missing = append(missing, "Dedup.TTL")
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
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Bare numbers are treated as seconds for operator convenience.
		if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
