// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/eugener/boatload"
)

// Config is the top-level relay configuration.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Database   DatabaseConfig  `yaml:"database"`
	Batch      BatchConfig     `yaml:"batch"`
	Auth       AuthConfig      `yaml:"auth"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
	Dedupe     DedupeConfig    `yaml:"dedupe"`
	Webhook    WebhookConfig   `yaml:"webhook"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Log        LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	DSN       string        `yaml:"dsn"`       // file path or ":memory:"
	Retention time.Duration `yaml:"retention"` // 0 = keep forever
}

// BatchConfig maps onto boatload.Config.
type BatchConfig struct {
	DeliveryInterval time.Duration `yaml:"delivery_interval"` // 0 = no periodic flush
	MaxBacklogSize   int           `yaml:"max_backlog_size"`  // 0 = no threshold flush
	MaxQueueSize     int           `yaml:"max_queue_size"`
}

// AuthConfig holds ingest authentication settings. With no tokens configured
// the ingest API is open.
type AuthConfig struct {
	Tokens []TokenEntry `yaml:"tokens"`
}

// TokenEntry is a named ingest token.
type TokenEntry struct {
	Name     string `yaml:"name"`
	Token    string `yaml:"token"`     // plaintext, hashed on load
	RPMLimit int64  `yaml:"rpm_limit"` // 0 = rate_limits.default_rpm
}

// RateLimitConfig holds default rate limiting settings.
type RateLimitConfig struct {
	DefaultRPM int64 `yaml:"default_rpm"` // requests per minute per client (0 = unlimited)
}

// DedupeConfig controls duplicate event ID suppression.
type DedupeConfig struct {
	Enabled bool          `yaml:"enabled"`
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"ttl"`
}

// WebhookConfig configures optional forwarding of each batch over HTTP.
type WebhookConfig struct {
	URL     string            `yaml:"url"` // empty = disabled
	Timeout time.Duration     `yaml:"timeout"`
	Auth    *WebhookAuth      `yaml:"auth"`
	Breaker BreakerConfig     `yaml:"breaker"`
	Headers map[string]string `yaml:"headers"`
}

// WebhookAuth configures outbound webhook authentication.
type WebhookAuth struct {
	Type         string   `yaml:"type"` // "api_key", "oauth2", "gcp", "aws_sigv4"
	Header       string   `yaml:"header"`
	Prefix       string   `yaml:"prefix"`
	APIKey       string   `yaml:"api_key"`
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`

	// aws_sigv4
	Region          string `yaml:"region"`
	Service         string `yaml:"service"` // e.g. "lambda", "execute-api"
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// BreakerConfig holds circuit breaker settings for the webhook sink.
type BreakerConfig struct {
	ErrorThreshold float64       `yaml:"error_threshold"`
	MinSamples     int           `yaml:"min_samples"`
	WindowSeconds  int           `yaml:"window_seconds"`
	OpenTimeout    time.Duration `yaml:"open_timeout"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// LogConfig controls the process-wide slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// BatchOptions converts the batch section into a boatload.Config.
// Validation is left to boatload.New.
func (c *Config) BatchOptions(logger *slog.Logger) boatload.Config {
	return boatload.Config{
		DeliveryInterval: c.Batch.DeliveryInterval,
		MaxBacklogSize:   c.Batch.MaxBacklogSize,
		MaxQueueSize:     c.Batch.MaxQueueSize,
		Logger:           logger,
	}
}

// TokenHashes returns hashed ingest tokens mapped to their entries.
func (c *Config) TokenHashes(hash func(string) string) map[string]TokenEntry {
	out := make(map[string]TokenEntry, len(c.Auth.Tokens))
	for _, t := range c.Auth.Tokens {
		out[hash(t.Token)] = t
	}
	return out
}

// SlogLevel parses Log.Level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    4 << 20,
		},
		Database: DatabaseConfig{
			DSN: "boatload.db",
		},
		Batch: BatchConfig{
			DeliveryInterval: 5 * time.Second,
			MaxBacklogSize:   100,
			MaxQueueSize:     boatload.DefaultMaxQueueSize,
		},
		RateLimits: RateLimitConfig{
			DefaultRPM: 600,
		},
		Dedupe: DedupeConfig{
			Enabled: true,
			MaxSize: 100_000,
			TTL:     10 * time.Minute,
		},
		Webhook: WebhookConfig{
			Timeout: 10 * time.Second,
			Breaker: BreakerConfig{
				ErrorThreshold: 0.5,
				MinSamples:     5,
				WindowSeconds:  60,
				OpenTimeout:    30 * time.Second,
			},
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: true},
			Tracing: TracingConfig{Endpoint: "localhost:4317", SampleRate: 1.0},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := c.BatchOptions(nil).Validate(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	seen := make(map[string]bool, len(c.Auth.Tokens))
	for i, t := range c.Auth.Tokens {
		if t.Token == "" {
			return fmt.Errorf("auth.tokens[%d]: token is empty", i)
		}
		if seen[t.Token] {
			return fmt.Errorf("auth.tokens[%d]: duplicate token", i)
		}
		seen[t.Token] = true
	}
	if a := c.Webhook.Auth; c.Webhook.URL != "" && a != nil {
		switch a.Type {
		case "api_key", "oauth2", "gcp":
		case "aws_sigv4":
			if a.Region == "" || a.Service == "" {
				return errors.New("webhook.auth: aws_sigv4 requires region and service")
			}
		default:
			return fmt.Errorf("webhook.auth.type: unknown type %q", a.Type)
		}
	}
	return nil
}
