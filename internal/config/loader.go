package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Loader handles configuration loading and parsing.
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file. An empty path yields the
// defaults plus environment overrides, so the gateway can run config-less.
func (l *Loader) Load(path string) (*Config, error) {
	if path == "" {
		cfg := DefaultConfig()
		applyEnvOverrides(cfg)
		if err := l.validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return l.Parse(data)
}

// Parse parses configuration from YAML bytes.
func (l *Loader) Parse(data []byte) (*Config, error) {
	expanded := l.expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values.
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return ""
	})
}

// applyEnvOverrides lets well-known environment variables take precedence
// over file values. Deployments typically set only JWT_SECRET and rely on
// defaults for the rest.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("INTEGRITY_SECRET"); v != "" {
		cfg.Integrity.Secret = v
	}
	if d, ok := envMillis("RATE_LIMIT_WINDOW_MS"); ok {
		cfg.RateLimit.Window = d
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.Max = n
		}
	}
	if v := os.Getenv("BODY_SIZE_MAX"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.BodyLimit.MaxBytes = n
		}
	}
	if d, ok := envMillis("PING_INTERVAL_MS"); ok {
		cfg.WebSocket.PingInterval = d
	}
	if d, ok := envMillis("GRACEFUL_SHUTDOWN_TIMEOUT_MS"); ok {
		cfg.Server.ShutdownTimeout = d
		cfg.WebSocket.DrainTimeout = d
	}
	if d, ok := envMillis("SESSION_IDLE_MS"); ok {
		cfg.Session.IdleTimeout = d
	}
	if d, ok := envMillis("CSRF_ROTATION_MS"); ok {
		cfg.Session.CSRFRotation = d
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
}

func envMillis(name string) (time.Duration, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// validate checks the configuration for fatal problems.
func (l *Loader) validate(cfg *Config) error {
	if cfg.Auth.Secret == "" && cfg.Auth.PublicKey == "" {
		return fmt.Errorf("auth: JWT_SECRET (or auth.public_key) is required")
	}
	if cfg.Server.Address == "" {
		return fmt.Errorf("server: address is required")
	}
	if cfg.RateLimit.Max <= 0 {
		return fmt.Errorf("rate_limit: max must be positive")
	}
	if cfg.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit: window must be positive")
	}
	switch cfg.RateLimit.Strategy {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("rate_limit: unknown strategy %q", cfg.RateLimit.Strategy)
	}
	if cfg.RateLimit.Strategy == "redis" && cfg.Redis.Address == "" {
		return fmt.Errorf("rate_limit: redis strategy requires redis.address")
	}
	if cfg.BodyLimit.MaxBytes <= 0 {
		return fmt.Errorf("body_limit: max_bytes must be positive")
	}
	if cfg.WebSocket.SendQueueSize <= 0 {
		return fmt.Errorf("websocket: send_queue_size must be positive")
	}
	if cfg.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket: ping_interval must be positive")
	}
	return nil
}
