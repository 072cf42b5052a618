// Package config handles agent configuration loading and validation.
//
// # Configuration Sources
//
// Configuration is loaded from (in order of precedence):
// 1. Environment variables (FLOWMESH_*)
// 2. Config file (TOML)
// 3. Defaults
//
// Command-line flags select the config file path only; they do not
// override individual settings.
//
// # Example Config File
//
//	[collector]
//	endpoint = "wss://collector.example.com/ingest"
//	auth_token = "${FLOWMESH_AUTH_TOKEN}"
//
//	[agent]
//	id = "aws-us-east-01"
//	hostname = "aws-us-east-01"
//	[agent.tags]
//	region = "us-east"
//
//	[buffer]
//	max_events = 10000
//	flush_interval_secs = 60
//	max_batch_size = 1000
//	compression = "snappy"
//
//	[collectors.logs]
//	enabled = true
//	paths = ["/var/log/syslog"]
//
//	[collectors.metrics]
//	enabled = true
//	interval_secs = 15
//
//	[collectors.traffic]
//	enabled = false
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete agent configuration.
type Config struct {
	Collector     CollectorConfig     `toml:"collector"`
	Agent         AgentConfig         `toml:"agent"`
	Buffer        BufferConfig        `toml:"buffer"`
	Collectors    CollectorsConfig    `toml:"collectors"`
	Observability ObservabilityConfig `toml:"observability"`
}

// CollectorConfig defines how to reach the central collector.
type CollectorConfig struct {
	Endpoint string `toml:"endpoint"` // e.g., wss://collector.example.com/ingest
	AuthToken string `toml:"auth_token"`

	// TLS settings
	InsecureSkipVerify bool   `toml:"insecure_skip_verify,omitempty"`
	CACertFile         string `toml:"ca_cert_file,omitempty"`

	// Timeouts and retry policy
	ConnectTimeout time.Duration `toml:"connect_timeout,omitempty"`
	RequestTimeout time.Duration `toml:"request_timeout,omitempty"`
	MaxRetries     int           `toml:"max_retries,omitempty"`
	InitialBackoff time.Duration `toml:"initial_backoff,omitempty"`
	MaxBackoff     time.Duration `toml:"max_backoff,omitempty"`
}

// AgentConfig defines this agent's identity and static metadata.
type AgentConfig struct {
	ID       string            `toml:"id"`       // Unique agent identifier
	Hostname string            `toml:"hostname"` // Reported hostname
	Tags     map[string]string `toml:"tags"`     // Custom tags attached to every event
}

// BufferConfig defines ring-buffer and batcher behavior.
type BufferConfig struct {
	MaxEvents         int    `toml:"max_events"`
	FlushIntervalSecs int    `toml:"flush_interval_secs"`
	MaxBatchSize      int    `toml:"max_batch_size"`
	Compression       string `toml:"compression"` // none, snappy, gzip, lz4
}

// CollectorsConfig groups per-producer configuration blocks. ("collectors"
// here names source integrations — log tailing, metric scraping — distinct
// from the central Collector service this agent ships events to.)
type CollectorsConfig struct {
	Logs    LogsProducerConfig    `toml:"logs"`
	Metrics MetricsProducerConfig `toml:"metrics"`
	Traffic TrafficProducerConfig `toml:"traffic"`
}

// LogsProducerConfig configures the file-tailing log producer.
type LogsProducerConfig struct {
	Enabled bool     `toml:"enabled"`
	Paths   []string `toml:"paths"`
}

// MetricsProducerConfig configures the system/process metrics producer.
type MetricsProducerConfig struct {
	Enabled      bool     `toml:"enabled"`
	IntervalSecs int      `toml:"interval_secs"`
	ScrapeURLs   []string `toml:"scrape_urls,omitempty"` // Optional Prometheus exposition endpoints to scrape
}

// TrafficProducerConfig configures the synthetic network-traffic producer.
type TrafficProducerConfig struct {
	Enabled      bool `toml:"enabled"`
	IntervalSecs int  `toml:"interval_secs"`
}

// ObservabilityConfig configures the agent's own internal-metrics surface.
type ObservabilityConfig struct {
	MetricsAddr string `toml:"metrics_addr,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Collector: CollectorConfig{
			ConnectTimeout: 10 * time.Second,
			RequestTimeout: 30 * time.Second,
			MaxRetries:     10,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		},
		Agent: AgentConfig{
			Tags: make(map[string]string),
		},
		Buffer: BufferConfig{
			MaxEvents:         10000,
			FlushIntervalSecs: 60,
			MaxBatchSize:      1000,
			Compression:       "snappy",
		},
		Collectors: CollectorsConfig{
			Metrics: MetricsProducerConfig{Enabled: true, IntervalSecs: 15},
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9091",
		},
	}
}

// LoadFromFile loads configuration from a TOML file, then expands ${VAR}
// references in auth_token and ca_cert_file against the environment.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.Collector.AuthToken = expandEnv(cfg.Collector.AuthToken)
	cfg.Collector.CACertFile = expandEnv(cfg.Collector.CACertFile)
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

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Collector.Endpoint == "" {
		return fmt.Errorf("collector.endpoint is required")
	}
	if c.Agent.ID == "" {
		return fmt.Errorf("agent.id is required")
	}
	if c.Buffer.MaxEvents <= 0 {
		return fmt.Errorf("buffer.max_events must be positive")
	}
	if c.Buffer.MaxBatchSize <= 0 {
		return fmt.Errorf("buffer.max_batch_size must be positive")
	}
	switch c.Buffer.Compression {
	case "none", "snappy", "gzip", "lz4", "":
	default:
		return fmt.Errorf("buffer.compression %q is not a recognized scheme", c.Buffer.Compression)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
// Environment variables use the FLOWMESH_ prefix:
//   - FLOWMESH_COLLECTOR_ENDPOINT
//   - FLOWMESH_AUTH_TOKEN
//   - FLOWMESH_AGENT_ID
//   - FLOWMESH_AGENT_HOSTNAME
//   - FLOWMESH_AGENT_TAGS (JSON object, e.g., '{"region":"us-east"}')
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("FLOWMESH_COLLECTOR_ENDPOINT"); v != "" {
		c.Collector.Endpoint = v
	}
	if v := os.Getenv("FLOWMESH_AUTH_TOKEN"); v != "" {
		c.Collector.AuthToken = v
	}
	if v := os.Getenv("FLOWMESH_AGENT_ID"); v != "" {
		c.Agent.ID = v
	}
	if v := os.Getenv("FLOWMESH_AGENT_HOSTNAME"); v != "" {
		c.Agent.Hostname = v
	}
	if v := os.Getenv("FLOWMESH_AGENT_TAGS"); v != "" {
		var tags map[string]string
		if err := json.Unmarshal([]byte(v), &tags); err == nil {
			if c.Agent.Tags == nil {
				c.Agent.Tags = make(map[string]string)
			}
			for k, val := range tags {
				c.Agent.Tags[k] = val
			}
		}
	}
}
