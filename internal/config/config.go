// Package config loads the gateway's process-wide configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the validation gateway.
type Config struct {
	ListenAddress string

	GuardAPIKey         string
	GuardBaseURL        string
	GuardTimeoutSeconds int
	FailOpen            bool

	LogRequests bool

	CacheEnabled    bool
	CacheTTLSeconds int
	MaxCacheEntries int
	DedupEnabled    bool
	HashSensitive   bool

	MaxRequestSize int64

	ServiceName string
	Version     string

	Telemetry TelemetryConfig
}

// TelemetryConfig controls the OpenTelemetry tracer provider.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
}

// GuardTimeout returns the configured Guard HTTP timeout as a duration.
func (c *Config) GuardTimeout() time.Duration {
	return time.Duration(c.GuardTimeoutSeconds) * time.Second
}

// CacheTTL returns the configured cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ListenAddress: envStr("GATEWAY_LISTEN_ADDRESS", "127.0.0.1:8080"),

		GuardAPIKey:         envStr("JAVELIN_API_KEY", ""),
		GuardBaseURL:        envStr("JAVELIN_API_URL", "https://api.getjavelin.com"),
		GuardTimeoutSeconds: envInt("JAVELIN_TIMEOUT_SECONDS", 30),
		FailOpen:            envBool("JAVELIN_FAIL_OPEN", true),

		LogRequests: envBool("GATEWAY_LOG_REQUESTS", true),

		CacheEnabled:    envBool("GATEWAY_CACHE_ENABLED", false),
		CacheTTLSeconds: envInt("GATEWAY_CACHE_TTL_SECONDS", 300),
		MaxCacheEntries: envInt("GATEWAY_CACHE_MAX_ENTRIES", 1000),
		DedupEnabled:    envBool("GATEWAY_DEDUP_ENABLED", true),
		HashSensitive:   envBool("GATEWAY_HASH_SENSITIVE_DATA", true),

		MaxRequestSize: envInt64("GATEWAY_MAX_REQUEST_SIZE", 1024*1024),

		ServiceName: envStr("GATEWAY_SERVICE_NAME", "mcp-validation-gateway"),
		Version:     envStr("GATEWAY_VERSION", "0.1.0"),

		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		},
	}
}

// Validate checks the configuration per the spec's startup invariants.
// A non-nil error here is a ConfigInvalid condition; the caller should
// log it and exit rather than start serving.
func (c *Config) Validate() error {
	if !strings.Contains(c.ListenAddress, ":") {
		return fmt.Errorf("config: invalid listen address %q: must contain a port", c.ListenAddress)
	}
	apiKey := strings.TrimSpace(c.GuardAPIKey)
	if apiKey == "" {
		return fmt.Errorf("config: guard API key required; set JAVELIN_API_KEY (obtain one at https://www.getjavelin.com)")
	}
	if len(apiKey) < 10 {
		return fmt.Errorf("config: guard API key too short: must be at least 10 characters")
	}
	if strings.ContainsAny(apiKey, " \t\n\r") {
		return fmt.Errorf("config: guard API key must not contain whitespace")
	}
	if c.GuardTimeoutSeconds < 1 {
		return fmt.Errorf("config: guard timeout must be >= 1 second, got %d", c.GuardTimeoutSeconds)
	}
	if c.CacheTTLSeconds < 1 {
		return fmt.Errorf("config: cache TTL must be >= 1 second, got %d", c.CacheTTLSeconds)
	}
	if c.MaxCacheEntries < 1 {
		return fmt.Errorf("config: max cache entries must be >= 1, got %d", c.MaxCacheEntries)
	}
	if c.MaxRequestSize <= 0 {
		return fmt.Errorf("config: max request size must be > 0, got %d", c.MaxRequestSize)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
