package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Default config must validate: %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty store path", func(c *Config) { c.Store.Path = "" }},
		{"zero store write timeout", func(c *Config) { c.Store.WriteTimeout = 0 }},
		{"nil store", func(c *Config) { c.Store = nil }},
		{"port too low", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"negative read timeout", func(c *Config) { c.HTTP.ReadTimeout = -time.Second }},
		{"zero ping interval", func(c *Config) { c.WebSocket.PingInterval = 0 }},
		{"read timeout below ping interval", func(c *Config) {
			c.WebSocket.PingInterval = time.Minute
			c.WebSocket.ReadTimeout = 30 * time.Second
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("BEACON_HTTP_PORT", "9090")
	t.Setenv("BEACON_STORE_PATH", "/var/lib/beacon/sessions.db")
	t.Setenv("BEACON_WEBSOCKET_PING_INTERVAL", "15s")

	c := LoadFromEnv()
	if c.HTTP.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", c.HTTP.Port)
	}
	if c.Store.Path != "/var/lib/beacon/sessions.db" {
		t.Errorf("Expected env store path, got %s", c.Store.Path)
	}
	if c.WebSocket.PingInterval != 15*time.Second {
		t.Errorf("Expected 15s ping interval, got %v", c.WebSocket.PingInterval)
	}
	// Untouched values keep defaults.
	if c.HTTP.Host != "0.0.0.0" {
		t.Errorf("Expected default host, got %s", c.HTTP.Host)
	}
}

func TestLoadFromEnv_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("BEACON_HTTP_PORT", "not-a-port")
	t.Setenv("BEACON_HTTP_READ_TIMEOUT", "soon")

	c := LoadFromEnv()
	if c.HTTP.Port != 8080 {
		t.Errorf("Malformed port must keep default, got %d", c.HTTP.Port)
	}
	if c.HTTP.ReadTimeout != 30*time.Second {
		t.Errorf("Malformed duration must keep default, got %v", c.HTTP.ReadTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	content := `
store:
  path: /tmp/test-beacon.db
  write_timeout: 10s
http:
  port: 9999
websocket:
  ping_interval: 5s
  read_timeout: 20s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if c.Store.Path != "/tmp/test-beacon.db" {
		t.Errorf("Unexpected store path: %s", c.Store.Path)
	}
	if c.Store.WriteTimeout != 10*time.Second {
		t.Errorf("Unexpected write timeout: %v", c.Store.WriteTimeout)
	}
	if c.HTTP.Port != 9999 {
		t.Errorf("Unexpected port: %d", c.HTTP.Port)
	}
	if c.WebSocket.PingInterval != 5*time.Second {
		t.Errorf("Unexpected ping interval: %v", c.WebSocket.PingInterval)
	}
	// Values absent from the file keep defaults.
	if c.HTTP.ReadTimeout != 30*time.Second {
		t.Errorf("Unexpected read timeout: %v", c.HTTP.ReadTimeout)
	}
}

func TestLoadFromFile_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	if err := os.WriteFile(path, []byte("store:\n  write_timeout: whenever\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for unparseable duration")
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/beacon.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoad_Precedence(t *testing.T) {
	t.Setenv("BEACON_HTTP_PORT", "9090")

	path := filepath.Join(t.TempDir(), "beacon.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 7070\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if got := Load(path).HTTP.Port; got != 7070 {
		t.Errorf("File must win over environment, got port %d", got)
	}
	if got := Load("").HTTP.Port; got != 9090 {
		t.Errorf("Environment must win over defaults, got port %d", got)
	}
	if got := Load("/nonexistent/beacon.yaml").HTTP.Port; got != 9090 {
		t.Errorf("Broken file must fall back to environment, got port %d", got)
	}
}

func TestAddress(t *testing.T) {
	c := DefaultConfig()
	c.HTTP.Host = "127.0.0.1"
	c.HTTP.Port = 8443
	if got := c.Address(); got != "127.0.0.1:8443" {
		t.Errorf("Unexpected address: %s", got)
	}
}
