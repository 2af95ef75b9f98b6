package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default address :8080, got %s", cfg.Server.Address)
	}
	if cfg.Session.IdleTimeout != 30*time.Minute {
		t.Errorf("expected 30m session idle timeout, got %v", cfg.Session.IdleTimeout)
	}
	if cfg.RateLimit.Max != 1000 {
		t.Errorf("expected rate limit max 1000, got %d", cfg.RateLimit.Max)
	}
	if cfg.RateLimit.Window != 15*time.Minute {
		t.Errorf("expected 15m rate limit window, got %v", cfg.RateLimit.Window)
	}
	if cfg.BodyLimit.MaxBytes != 10<<20 {
		t.Errorf("expected 10MiB body limit, got %d", cfg.BodyLimit.MaxBytes)
	}
	if cfg.WebSocket.PingInterval != 30*time.Second {
		t.Errorf("expected 30s ping interval, got %v", cfg.WebSocket.PingInterval)
	}
	if cfg.WebSocket.SendQueueSize != 1024 {
		t.Errorf("expected send queue 1024, got %d", cfg.WebSocket.SendQueueSize)
	}
	if cfg.Integrity.MaxSkew != 5*time.Minute {
		t.Errorf("expected 5m integrity skew, got %v", cfg.Integrity.MaxSkew)
	}
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
server:
  address: ":9090"
auth:
  secret: "test-secret"
rate_limit:
  window: 1m
  max: 50
websocket:
  strict_backpressure: true
`)

	loader := NewLoader()
	cfg, err := loader.Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Server.Address)
	}
	if cfg.Auth.Secret != "test-secret" {
		t.Errorf("expected test-secret, got %s", cfg.Auth.Secret)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Errorf("expected 1m window, got %v", cfg.RateLimit.Window)
	}
	if cfg.RateLimit.Max != 50 {
		t.Errorf("expected max 50, got %d", cfg.RateLimit.Max)
	}
	if !cfg.WebSocket.StrictBackpressure {
		t.Error("expected strict backpressure enabled")
	}
	// Untouched sections keep defaults.
	if cfg.Session.IdleTimeout != 30*time.Minute {
		t.Errorf("expected default session idle timeout, got %v", cfg.Session.IdleTimeout)
	}
}

func TestEnvVarExpansion(t *testing.T) {
	os.Setenv("TEST_GW_SECRET", "expanded-secret")
	defer os.Unsetenv("TEST_GW_SECRET")

	data := []byte(`
auth:
  secret: "${TEST_GW_SECRET}"
`)

	loader := NewLoader()
	cfg, err := loader.Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Auth.Secret != "expanded-secret" {
		t.Errorf("expected expanded-secret, got %s", cfg.Auth.Secret)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "60000")
	t.Setenv("RATE_LIMIT_MAX", "42")
	t.Setenv("BODY_SIZE_MAX", "2048")
	t.Setenv("PING_INTERVAL_MS", "10000")
	t.Setenv("SESSION_IDLE_MS", "120000")

	loader := NewLoader()
	cfg, err := loader.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.Secret != "env-secret" {
		t.Errorf("expected env-secret, got %s", cfg.Auth.Secret)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Errorf("expected 1m window, got %v", cfg.RateLimit.Window)
	}
	if cfg.RateLimit.Max != 42 {
		t.Errorf("expected max 42, got %d", cfg.RateLimit.Max)
	}
	if cfg.BodyLimit.MaxBytes != 2048 {
		t.Errorf("expected 2048 body limit, got %d", cfg.BodyLimit.MaxBytes)
	}
	if cfg.WebSocket.PingInterval != 10*time.Second {
		t.Errorf("expected 10s ping interval, got %v", cfg.WebSocket.PingInterval)
	}
	if cfg.Session.IdleTimeout != 2*time.Minute {
		t.Errorf("expected 2m idle timeout, got %v", cfg.Session.IdleTimeout)
	}
}

func TestEnvOverridesIgnoreInvalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("RATE_LIMIT_MAX", "not-a-number")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "-5")

	loader := NewLoader()
	cfg, err := loader.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RateLimit.Max != 1000 {
		t.Errorf("invalid override should keep default, got %d", cfg.RateLimit.Max)
	}
	if cfg.RateLimit.Window != 15*time.Minute {
		t.Errorf("invalid override should keep default, got %v", cfg.RateLimit.Window)
	}
}

func TestValidationRequiresSecret(t *testing.T) {
	os.Unsetenv("JWT_SECRET")

	loader := NewLoader()
	if _, err := loader.Load(""); err == nil {
		t.Fatal("expected validation error without auth secret")
	}
}

func TestValidationRejectsBadStrategy(t *testing.T) {
	loader := NewLoader()
	_, err := loader.Parse([]byte(`
auth:
  secret: "s"
rate_limit:
  strategy: "dynamo"
`))
	if err == nil {
		t.Fatal("expected error for unknown rate limit strategy")
	}
}

func TestValidationRedisStrategyRequiresAddress(t *testing.T) {
	loader := NewLoader()
	_, err := loader.Parse([]byte(`
auth:
  secret: "s"
rate_limit:
  strategy: "redis"
`))
	if err == nil {
		t.Fatal("expected error for redis strategy without address")
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "file-test")

	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	content := []byte("server:\n  address: \":7070\"\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader()
	cfg, err := loader.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Errorf("expected :7070, got %s", cfg.Server.Address)
	}
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader()
	if _, err := loader.Load("/nonexistent/gateway.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
