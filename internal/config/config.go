package config

import (
	"time"
)

// Config represents the complete gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	BodyLimit BodyLimitConfig `yaml:"body_limit"`
	Scanner   ScannerConfig   `yaml:"scanner_filter"`
	SSRF      SSRFConfig      `yaml:"ssrf_filter"`
	Integrity IntegrityConfig `yaml:"integrity"`
	Headers   HeadersConfig   `yaml:"security_headers"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Redis     RedisConfig     `yaml:"redis"`
}

// ServerConfig defines the HTTP listener settings.
type ServerConfig struct {
	Address           string        `yaml:"address"` // e.g. ":8080"
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig defines logger settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // debug, info, warn, error
	Encoding string `yaml:"encoding"` // json or console
}

// AuthConfig defines token verification settings.
type AuthConfig struct {
	// Secret is the HMAC shared secret for HS256 tokens. Required unless
	// PublicKey is set.
	Secret string `yaml:"secret"`
	// PublicKey is an optional PEM-encoded RSA public key for RS256 tokens.
	PublicKey string `yaml:"public_key"`
	Issuer    string `yaml:"issuer"`
}

// SessionConfig defines session store settings.
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// CSRFRotation forces a fresh CSRF token on reissue after this age.
	CSRFRotation time.Duration `yaml:"csrf_rotation"`
}

// RateLimitConfig defines per-source request budgets.
type RateLimitConfig struct {
	Window time.Duration `yaml:"window"`
	Max    int           `yaml:"max"`
	// Strategy selects the backing store: "memory" (default) or "redis".
	Strategy string `yaml:"strategy"`
}

// BodyLimitConfig caps request body sizes.
type BodyLimitConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// ScannerConfig holds the client-identity deny list.
type ScannerConfig struct {
	// DenyPatterns are regular expressions matched against User-Agent.
	DenyPatterns []string `yaml:"deny_patterns"`
}

// SSRFConfig tunes the outbound-URL request filter.
type SSRFConfig struct {
	// AllowCIDRs exempts address ranges from the private/reserved block list.
	AllowCIDRs []string `yaml:"allow_cidrs"`
}

// IntegrityConfig defines request signature verification.
type IntegrityConfig struct {
	Secret  string        `yaml:"secret"`
	MaxSkew time.Duration `yaml:"max_skew"`
}

// HeadersConfig overrides the default security response headers.
type HeadersConfig struct {
	StrictTransportSecurity string `yaml:"strict_transport_security"`
	ContentSecurityPolicy   string `yaml:"content_security_policy"`
	ReferrerPolicy          string `yaml:"referrer_policy"`
	XFrameOptions           string `yaml:"x_frame_options"`
}

// WebSocketConfig tunes the realtime gateway.
type WebSocketConfig struct {
	PingInterval    time.Duration `yaml:"ping_interval"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	// SendQueueSize bounds the per-connection outbound FIFO.
	SendQueueSize int `yaml:"send_queue_size"`
	// StrictBackpressure terminates slow consumers instead of dropping frames.
	StrictBackpressure bool `yaml:"strict_backpressure"`
	DrainTimeout       time.Duration `yaml:"drain_timeout"`
}

// RedisConfig connects distributed features (rate limiting) to Redis.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DefaultConfig returns a config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:           ":8080",
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   25 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
		Session: SessionConfig{
			IdleTimeout:   30 * time.Minute,
			SweepInterval: 5 * time.Minute,
			CSRFRotation:  15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Window:   15 * time.Minute,
			Max:      1000,
			Strategy: "memory",
		},
		BodyLimit: BodyLimitConfig{
			MaxBytes: 10 << 20, // 10 MiB
		},
		Scanner: ScannerConfig{
			DenyPatterns: []string{
				`(?i)sqlmap`,
				`(?i)nikto`,
				`(?i)\bnmap\b`,
				`(?i)masscan`,
				`(?i)acunetix`,
				`(?i)nessus`,
				`(?i)dirbuster`,
			},
		},
		Integrity: IntegrityConfig{
			MaxSkew: 5 * time.Minute,
		},
		Headers: HeadersConfig{
			StrictTransportSecurity: "max-age=31536000; includeSubDomains",
			ContentSecurityPolicy:   "default-src 'self'; frame-ancestors 'none'; object-src 'none'",
			ReferrerPolicy:          "strict-origin-when-cross-origin",
			XFrameOptions:           "DENY",
		},
		WebSocket: WebSocketConfig{
			PingInterval:    30 * time.Second,
			WriteTimeout:    5 * time.Second,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			SendQueueSize:   1024,
			DrainTimeout:    25 * time.Second,
		},
	}
}
