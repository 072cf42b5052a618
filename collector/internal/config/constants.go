// Package config centralizes collector configuration: the loaded TOML
// config struct and the small set of hardcoded operational constants that
// don't warrant a config field of their own.
package config

import "time"

// Connectivity check timeouts.
const (
	// DatabasePingTimeout is the timeout for Postgres connectivity checks.
	DatabasePingTimeout = 5 * time.Second

	// RedisConnectionTimeout is the timeout for Redis connectivity checks.
	RedisConnectionTimeout = 5 * time.Second
)

// HTTP timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for outbound HTTP requests
	// (e.g. the enrollment endpoint's own upstream calls, if any).
	DefaultHTTPTimeout = 30 * time.Second
)

// Sink flush defaults, used when sink.flush_interval_secs /
// sink.flush_batch_size are left at zero in collector.toml.
const (
	// DefaultFlushBatchSize is the number of events to drain from the
	// Redis-backed sink into the durable sink per flush.
	DefaultFlushBatchSize = 5000

	// DefaultFlushInterval is how often the flusher drains the Redis-backed
	// sink into the durable sink.
	DefaultFlushInterval = 2 * time.Second
)
