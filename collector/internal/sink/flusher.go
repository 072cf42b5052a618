package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flowmesh/telemetry/collector/internal/config"
)

// Flusher periodically drains a RedisSink into a downstream durable Sink
// (typically postgres). Unlike the single-purpose Redis-to-TimescaleDB
// flusher it is modeled on, it is generic over any [Sink] implementation.
type Flusher struct {
	buffer   *RedisSink
	dest     Sink
	logger   *slog.Logger
	interval time.Duration
	batch    int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewFlusher constructs a Flusher. A zero interval/batch falls back to the
// package defaults.
func NewFlusher(buffer *RedisSink, dest Sink, logger *slog.Logger, interval time.Duration, batch int) *Flusher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = config.DefaultFlushInterval
	}
	if batch <= 0 {
		batch = config.DefaultFlushBatchSize
	}
	return &Flusher{
		buffer:   buffer,
		dest:     dest,
		logger:   logger.With("component", "sink_flusher"),
		interval: interval,
		batch:    batch,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background flush loop.
func (f *Flusher) Start() {
	f.wg.Add(1)
	go f.run()
	f.logger.Info("sink flusher started", "interval", f.interval, "batch_size", f.batch)
}

// Stop halts the flush loop, performing one final flush first, and waits
// for it to finish.
func (f *Flusher) Stop() {
	close(f.stopCh)
	f.wg.Wait()
	f.logger.Info("sink flusher stopped")
}

// Close is an alias for Stop so Flusher satisfies io.Closer.
func (f *Flusher) Close() error {
	f.Stop()
	return nil
}

func (f *Flusher) run() {
	defer f.wg.Done()
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			f.flush()
			return
		case <-ticker.C:
			f.flush()
		}
	}
}

func (f *Flusher) flush() {
	ctx := context.Background()

	size, err := f.buffer.Len(ctx)
	if err != nil {
		f.logger.Error("checking buffer size", "error", err)
		return
	}
	if size == 0 {
		return
	}

	events, err := f.buffer.Pop(ctx, f.batch)
	if err != nil {
		f.logger.Error("popping from buffer", "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	start := time.Now()
	if err := f.dest.StoreEvents(ctx, events); err != nil {
		f.logger.Error("flushing events to durable sink", "error", err, "count", len(events))
		return
	}

	f.logger.Info("flushed events to durable sink",
		"count", len(events),
		"remaining", size-int64(len(events)),
		"duration", time.Since(start))
}
