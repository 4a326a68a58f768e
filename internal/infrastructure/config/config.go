package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all gate configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Bridge    BridgeConfig    `yaml:"bridge" toml:"bridge"`
	Socket    SocketConfig    `yaml:"socket" toml:"socket"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// ServerConfig holds HTTP/WebSocket listener configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"9222" yaml:"port" toml:"port"`
	Host            string        `envconfig:"HOST" default:"127.0.0.1" yaml:"host" toml:"host"`
	MaxConnections  int           `envconfig:"MAX_CONNECTIONS" default:"64" yaml:"max_connections" toml:"max_connections"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// Addr returns the host:port pair the listener binds.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// AdvertiseAddr returns the host:port pair embedded in discovery documents.
// Wildcard bind addresses are not dialable, so they advertise as localhost.
func (s ServerConfig) AdvertiseAddr() string {
	switch s.Host {
	case "", "0.0.0.0", "::":
		return "localhost:" + s.Port
	}
	return s.Addr()
}

// BridgeConfig holds session batching and UI hand-off configuration.
type BridgeConfig struct {
	// FlushInterval is the coalescing window for outbound batches. All
	// payloads enqueued within one window leave as a single wire frame.
	FlushInterval time.Duration `envconfig:"FLUSH_INTERVAL" default:"33.333333ms" yaml:"flush_interval" toml:"flush_interval"`
	// CommandBuffer bounds the inbound hand-off queue per UI host. Commands
	// arriving while the buffer is full are dropped, never blocked on.
	CommandBuffer int `envconfig:"COMMAND_BUFFER" default:"256" yaml:"command_buffer" toml:"command_buffer"`
}

// SocketConfig holds per-connection WebSocket tuning.
type SocketConfig struct {
	ReadLimit    int64         `envconfig:"READ_LIMIT" default:"1048576" yaml:"read_limit" toml:"read_limit"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s" yaml:"write_timeout" toml:"write_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
}

// RateLimitConfig holds discovery-endpoint rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile loads configuration from a YAML or TOML file, chosen by
// extension. Environment variables are applied first, then file values
// override them.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	switch filepath.Ext(path) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that tunables the gate cannot run without are sane.
func (c *Config) Validate() error {
	if c.Bridge.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive, got %s", c.Bridge.FlushInterval)
	}
	if c.Bridge.CommandBuffer <= 0 {
		return fmt.Errorf("command buffer must be positive, got %d", c.Bridge.CommandBuffer)
	}
	if c.Socket.ReadLimit <= 0 {
		return fmt.Errorf("read limit must be positive, got %d", c.Socket.ReadLimit)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "9222",
			Host:            "127.0.0.1",
			MaxConnections:  64,
			ShutdownTimeout: 5 * time.Second,
		},
		Bridge: BridgeConfig{
			FlushInterval: time.Second / 30,
			CommandBuffer: 256,
		},
		Socket: SocketConfig{
			ReadLimit:    1 << 20,
			WriteTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
