// Package batcher implements draining the ring buffer into
// fixed-size or time-boxed batches, compressing each one, and handing the
// result to the transport layer over a bounded channel.
//
// # Design
//
// A background goroutine drains the shared ring buffer whenever either
// condition is met:
//  1. The buffer holds at least MaxBatchSize events.
//  2. FlushInterval has elapsed since the last flush, and at least one
//     event is present.
//
// Each drained slice becomes one compressed model.Batch, handed off on a
// capacity-100 channel. The handoff send blocks if the transport isn't
// keeping up and the channel is full; since the batcher only drains on
// interval ticks and isn't doing anything else while blocked, a slow
// transport just coalesces ticks rather than losing batches. The ring
// buffer remains the only place events are dropped.
package batcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowmesh/telemetry/pkg/codec"
	"github.com/flowmesh/telemetry/pkg/model"
	"github.com/flowmesh/telemetry/pkg/ringbuffer"
)

// handoffCapacity bounds the channel between the batcher and the
// transport so a stalled connection applies backpressure rather than
// growing memory without limit.
const handoffCapacity = 100

// Config configures a Batcher.
type Config struct {
	AgentID      string
	Hostname     string
	MaxBatchSize int
	FlushInterval time.Duration
	Compression  model.CompressionType
	Logger       *slog.Logger
}

// Batcher drains a ring buffer into compressed batches on a schedule.
type Batcher struct {
	cfg    Config
	buf    *ringbuffer.Buffer
	logger *slog.Logger
	out    chan model.Batch
}

// New constructs a Batcher reading from buf. Call Run to start draining.
func New(cfg Config, buf *ringbuffer.Buffer) *Batcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 60 * time.Second
	}
	if cfg.Compression == "" {
		cfg.Compression = model.CompressionSnappy
	}
	return &Batcher{
		cfg:    cfg,
		buf:    buf,
		logger: cfg.Logger,
		out:    make(chan model.Batch, handoffCapacity),
	}
}

// Batches returns the channel on which compressed batches are delivered.
func (b *Batcher) Batches() <-chan model.Batch { return b.out }

// Run blocks, draining the buffer on a timer and size threshold until ctx
// is canceled. On cancellation it performs one final flush of whatever
// remains, then closes the output channel.
func (b *Batcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.checkInterval())
	defer ticker.Stop()
	defer close(b.out)

	lastFlush := time.Now()

	for {
		select {
		case <-ctx.Done():
			// Use a background context for the final flush: ctx is already
			// canceled, and a final flush that bailed out immediately on
			// that same cancellation would defeat the point of flushing.
			b.drainAndEmit(context.Background(), b.buf.Len())
			return nil
		case <-ticker.C:
			sinceFlush := time.Since(lastFlush)
			if b.buf.Len() >= b.cfg.MaxBatchSize {
				b.drainAndEmit(ctx, b.cfg.MaxBatchSize)
				lastFlush = time.Now()
			} else if sinceFlush >= b.cfg.FlushInterval && !b.buf.IsEmpty() {
				b.drainAndEmit(ctx, b.buf.Len())
				lastFlush = time.Now()
			}
		}
	}
}

// checkInterval is how often Run polls buffer depth; it is always at most
// FlushInterval so a size-triggered flush is noticed promptly.
func (b *Batcher) checkInterval() time.Duration {
	const minPoll = 100 * time.Millisecond
	if b.cfg.FlushInterval < minPoll {
		return b.cfg.FlushInterval
	}
	// Poll at roughly 1/10th the flush interval so size-based triggers
	// fire quickly without busy-looping on a long flush interval.
	interval := b.cfg.FlushInterval / 10
	if interval < minPoll {
		interval = minPoll
	}
	return interval
}

func (b *Batcher) drainAndEmit(ctx context.Context, max int) {
	if max <= 0 {
		return
	}
	events := b.buf.Drain(max)
	if len(events) == 0 {
		return
	}

	uncompressed := model.UncompressedBatch{
		BatchID:   uuid.NewString(),
		AgentID:   b.cfg.AgentID,
		Hostname:  b.cfg.Hostname,
		Timestamp: time.Now().UnixMilli(),
		Events:    model.EventSequence(events),
	}

	batch, err := codec.Compress(b.logger, uncompressed, b.cfg.Compression)
	if err != nil {
		b.logger.Error("compressing batch", "batch_id", uncompressed.BatchID, "events", len(events), "error", err)
		return
	}

	// The handoff blocks: the ring buffer is the only place events are
	// allowed to drop. Ticks may coalesce while a send is blocked, which is
	// acceptable since the batcher only runs on interval ticks and isn't
	// doing anything else useful while waiting on the transport.
	select {
	case b.out <- batch:
	case <-ctx.Done():
	}
}
