package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings for the beacon server.
type Config struct {
	Store     *StoreConfig     `yaml:"store"`
	HTTP      *HTTPConfig      `yaml:"http"`
	WebSocket *WebSocketConfig `yaml:"websocket"`
}

type StoreConfig struct {
	Path         string        `yaml:"path"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type HTTPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns settings suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Store: &StoreConfig{
			Path:         "./beacon.db",
			WriteTimeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("store configuration is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	if c.Store.WriteTimeout <= 0 {
		return fmt.Errorf("store write timeout must be positive")
	}
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("websocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket write timeout must be positive")
	}
	return nil
}

// Address returns the host:port string for the HTTP listener.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// LoadFromEnv overlays BEACON_* environment variables on the defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if path := os.Getenv("BEACON_STORE_PATH"); path != "" {
		config.Store.Path = path
	}
	if host := os.Getenv("BEACON_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if port := os.Getenv("BEACON_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}

	envDurations := map[string]*time.Duration{
		"BEACON_STORE_WRITE_TIMEOUT":     &config.Store.WriteTimeout,
		"BEACON_HTTP_READ_TIMEOUT":       &config.HTTP.ReadTimeout,
		"BEACON_HTTP_WRITE_TIMEOUT":      &config.HTTP.WriteTimeout,
		"BEACON_WEBSOCKET_PING_INTERVAL": &config.WebSocket.PingInterval,
		"BEACON_WEBSOCKET_READ_TIMEOUT":  &config.WebSocket.ReadTimeout,
		"BEACON_WEBSOCKET_WRITE_TIMEOUT": &config.WebSocket.WriteTimeout,
	}
	for key, target := range envDurations {
		if raw := os.Getenv(key); raw != "" {
			if d, err := time.ParseDuration(raw); err == nil {
				*target = d
			}
		}
	}

	return config
}

// fileConfig mirrors Config with string durations so YAML stays
// human-writable ("30s", "5m").
type fileConfig struct {
	Store     *storeFileConfig     `yaml:"store"`
	HTTP      *httpFileConfig      `yaml:"http"`
	WebSocket *websocketFileConfig `yaml:"websocket"`
}

type storeFileConfig struct {
	Path         string `yaml:"path"`
	WriteTimeout string `yaml:"write_timeout"`
}

type httpFileConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

type websocketFileConfig struct {
	PingInterval string `yaml:"ping_interval"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// LoadFromFile parses a YAML config file over the defaults and
// validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config := DefaultConfig()

	if file.Store != nil {
		if file.Store.Path != "" {
			config.Store.Path = file.Store.Path
		}
		if err := overlayDuration(&config.Store.WriteTimeout, file.Store.WriteTimeout); err != nil {
			return nil, fmt.Errorf("invalid store.write_timeout in %s: %w", path, err)
		}
	}
	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		if err := overlayDuration(&config.HTTP.ReadTimeout, file.HTTP.ReadTimeout); err != nil {
			return nil, fmt.Errorf("invalid http.read_timeout in %s: %w", path, err)
		}
		if err := overlayDuration(&config.HTTP.WriteTimeout, file.HTTP.WriteTimeout); err != nil {
			return nil, fmt.Errorf("invalid http.write_timeout in %s: %w", path, err)
		}
	}
	if file.WebSocket != nil {
		if err := overlayDuration(&config.WebSocket.PingInterval, file.WebSocket.PingInterval); err != nil {
			return nil, fmt.Errorf("invalid websocket.ping_interval in %s: %w", path, err)
		}
		if err := overlayDuration(&config.WebSocket.ReadTimeout, file.WebSocket.ReadTimeout); err != nil {
			return nil, fmt.Errorf("invalid websocket.read_timeout in %s: %w", path, err)
		}
		if err := overlayDuration(&config.WebSocket.WriteTimeout, file.WebSocket.WriteTimeout); err != nil {
			return nil, fmt.Errorf("invalid websocket.write_timeout in %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func overlayDuration(target *time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*target = d
	return nil
}

// Load resolves configuration with precedence file > environment >
// defaults. A missing or broken file falls back to the environment.
func Load(path string) *Config {
	config := LoadFromEnv()

	if path != "" {
		if fileConf, err := LoadFromFile(path); err == nil {
			config = fileConf
		}
	}

	return config
}
