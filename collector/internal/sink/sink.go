// Package sink implements the storage sink interface: a single
// store_events operation, invokable concurrently, with pluggable
// backends selected by a config string.
package sink

import (
	"context"
	"io"
	"log/slog"

	"github.com/flowmesh/telemetry/collector/internal/config"
	"github.com/flowmesh/telemetry/pkg/model"
)

// Sink stores a decoded, enriched event sequence. Implementations must be
// safe for concurrent use: one connection's intake task calls StoreEvents
// per inbound batch, and many connections share one Sink.
type Sink interface {
	StoreEvents(ctx context.Context, events model.EventSequence) error
}

// New resolves a Sink from cfg.Backend. Unknown backend values fall back
// to the console backend with a warning. The returned io.Closer releases
// any resources (connections, background flush loops) held by the sink;
// it is always non-nil.
func New(ctx context.Context, cfg config.SinkConfig, logger *slog.Logger) (Sink, io.Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case "console", "":
		return NewConsole(logger), noopCloser{}, nil

	case "redis":
		rs, err := NewRedisSink(cfg.RedisURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return rs, rs, nil

	case "postgres":
		pg, err := NewPostgresSink(ctx, cfg.PostgresURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.RedisURL == "" {
			return pg, pg, nil
		}

		rs, err := NewRedisSink(cfg.RedisURL, logger)
		if err != nil {
			pg.Close()
			return nil, nil, err
		}
		fl := NewFlusher(rs, pg, logger, cfg.FlushInterval, cfg.FlushBatchSize)
		fl.Start()
		return rs, multiCloser{rs, pg, fl}, nil

	default:
		logger.Warn("unrecognized sink backend, falling back to console", "backend", cfg.Backend)
		return NewConsole(logger), noopCloser{}, nil
	}
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var firstErr error
	for _, c := range m {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
