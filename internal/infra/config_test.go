package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"market_relay/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
upstream:
  url: ws://localhost:8899/ws
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Upstream.RetryDelaySec != 5 {
		t.Errorf("Expected default retry delay 5, got %d", cfg.Upstream.RetryDelaySec)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Relay.SendBuffer != 256 {
		t.Errorf("Expected default send buffer 256, got %d", cfg.Relay.SendBuffer)
	}
	if cfg.News.Channel != "news:crypto" {
		t.Errorf("Expected default news channel, got %s", cfg.News.Channel)
	}
}

func TestLoadConfig_InvalidUpstreamURL(t *testing.T) {
	path := writeConfig(t, `
upstream:
  url: http://localhost:8899
`)

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for non-websocket upstream URL")
	}
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	path := writeConfig(t, `
upstream:
  url: ws://localhost:8899/ws
server:
  port: 99999
`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("Expected error for out-of-range port")
	}
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %T", err)
	}
	if cfgErr.Field != "server.port" {
		t.Errorf("Expected field server.port, got %q", cfgErr.Field)
	}
	if domain.IsRetriable(err) {
		t.Error("Config errors must never be retriable")
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
upstream:
  url: ws://localhost:8899/ws
`)

	t.Setenv("RELAY_UPSTREAM_URL", "wss://feed.example.com/ws")
	t.Setenv("RELAY_SERVER_PORT", "9100")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Upstream.URL != "wss://feed.example.com/ws" {
		t.Errorf("Env override for upstream URL not applied: %s", cfg.Upstream.URL)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Env override for port not applied: %d", cfg.Server.Port)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound for missing config file, got %v", err)
	}
}
