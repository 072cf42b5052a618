// Package config handles collector configuration loading and validation.
//
// # Example Config File
//
//	[server]
//	websocket_addr = ":8443"
//
//	[auth]
//	mode = "token"
//	token_secret = "${FLOWMESH_TOKEN_SECRET}"
//	token_ttl_secs = 3600
//	enrollment_secret = "${FLOWMESH_ENROLLMENT_SECRET}"
//
//	[sink]
//	backend = "postgres"
//	redis_url = "redis://localhost:6379/0"
//	postgres_url = "postgres://flowmesh@localhost/flowmesh"
//	flush_interval_secs = 2
//	flush_batch_size = 5000
//
//	[observability]
//	metrics_addr = ":9092"
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete collector configuration.
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Auth          AuthConfig          `toml:"auth"`
	Sink          SinkConfig          `toml:"sink"`
	Observability ObservabilityConfig `toml:"observability"`
}

// ServerConfig configures the ingest listener.
type ServerConfig struct {
	WebsocketAddr string `toml:"websocket_addr"`
}

// AuthConfig configures the auth guard.
//
// Mode is one of "none", "token", "hybrid". mTLS enforcement, when used, is
// a property of the listener's TLS configuration and is not modeled here.
type AuthConfig struct {
	Mode             string        `toml:"mode"`
	TokenSecret      string        `toml:"token_secret"`
	TokenTTLSecs     int           `toml:"token_ttl_secs"`
	TokenTTL         time.Duration `toml:"-"`
	EnrollmentSecret string        `toml:"enrollment_secret"`
}

// SinkConfig selects and configures the storage backend.
type SinkConfig struct {
	Backend           string        `toml:"backend"` // console, redis, postgres
	RedisURL          string        `toml:"redis_url,omitempty"`
	PostgresURL       string        `toml:"postgres_url,omitempty"`
	FlushIntervalSecs int           `toml:"flush_interval_secs,omitempty"`
	FlushBatchSize    int           `toml:"flush_batch_size,omitempty"`
	FlushInterval     time.Duration `toml:"-"`
}

// ObservabilityConfig configures the collector's own internal-metrics surface.
type ObservabilityConfig struct {
	MetricsAddr string `toml:"metrics_addr,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			WebsocketAddr: ":8443",
		},
		Auth: AuthConfig{
			Mode:         "none",
			TokenTTLSecs: 3600,
			TokenTTL:     time.Hour,
		},
		Sink: SinkConfig{
			Backend:           "console",
			FlushIntervalSecs: 2,
			FlushBatchSize:    5000,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9092",
		},
	}
}

// LoadFromFile loads configuration from a TOML file, then expands ${VAR}
// references in auth.token_secret and auth.enrollment_secret against the
// environment.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.Auth.TokenSecret = expandEnv(cfg.Auth.TokenSecret)
	cfg.Auth.EnrollmentSecret = expandEnv(cfg.Auth.EnrollmentSecret)
	cfg.Auth.TokenTTL = time.Duration(cfg.Auth.TokenTTLSecs) * time.Second
	cfg.Sink.FlushInterval = time.Duration(cfg.Sink.FlushIntervalSecs) * time.Second
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with the named environment
// variable's value. An unset variable expands to an empty string.
func expandEnv(s string) string {
	if s == "" {
		return s
	}
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// Validate checks that required configuration is present and internally
// consistent.
func (c *Config) Validate() error {
	if c.Server.WebsocketAddr == "" {
		return fmt.Errorf("server.websocket_addr is required")
	}
	switch c.Auth.Mode {
	case "none":
	case "token", "hybrid":
		if c.Auth.TokenSecret == "" {
			return fmt.Errorf("auth.token_secret is required when auth.mode is %q", c.Auth.Mode)
		}
	default:
		return fmt.Errorf("auth.mode %q is not recognized", c.Auth.Mode)
	}
	switch c.Sink.Backend {
	case "console":
	case "redis":
		if c.Sink.RedisURL == "" {
			return fmt.Errorf("sink.redis_url is required when sink.backend is \"redis\"")
		}
	case "postgres":
		if c.Sink.PostgresURL == "" {
			return fmt.Errorf("sink.postgres_url is required when sink.backend is \"postgres\"")
		}
	default:
		// Unrecognized backends are accepted here; sink.New falls back to
		// the console backend with a warning.
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
// Environment variables use the FLOWMESH_ prefix:
//   - FLOWMESH_WEBSOCKET_ADDR
//   - FLOWMESH_TOKEN_SECRET
//   - FLOWMESH_ENROLLMENT_SECRET
//   - FLOWMESH_SINK_BACKEND
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("FLOWMESH_WEBSOCKET_ADDR"); v != "" {
		c.Server.WebsocketAddr = v
	}
	if v := os.Getenv("FLOWMESH_TOKEN_SECRET"); v != "" {
		c.Auth.TokenSecret = v
	}
	if v := os.Getenv("FLOWMESH_ENROLLMENT_SECRET"); v != "" {
		c.Auth.EnrollmentSecret = v
	}
	if v := os.Getenv("FLOWMESH_SINK_BACKEND"); v != "" {
		c.Sink.Backend = v
	}
}
