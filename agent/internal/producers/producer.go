// Package producers implements the agent-side event sources: log tailing,
// system-metric sampling, and synthetic network-traffic summaries. Each
// producer pushes model.Event values into a shared ring buffer on its own
// goroutine until its context is canceled.
package producers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowmesh/telemetry/pkg/model"
	"github.com/flowmesh/telemetry/pkg/ringbuffer"
)

// Producer is the interface every event source implements.
type Producer interface {
	// Name identifies the producer in logs and internal metrics (e.g.,
	// "logs", "metrics", "traffic").
	Name() string
	// Run blocks, pushing events into buf until ctx is canceled or an
	// unrecoverable error occurs.
	Run(ctx context.Context, buf *ringbuffer.Buffer) error
}

// Registry manages the lifecycle of all registered producers.
type Registry struct {
	mu        sync.Mutex
	producers []Producer
	started   bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a producer to the registry. Not safe to call after StartAll.
func (r *Registry) Register(p Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers = append(r.producers, p)
}

// PartialStartError reports that some, but not all, producers exited with
// an error before ctx was canceled.
type PartialStartError struct {
	Failed []string
	Total  int
}

func (e *PartialStartError) Error() string {
	return fmt.Sprintf("%d of %d producers failed: %v", len(e.Failed), e.Total, e.Failed)
}

// StartAll runs every registered producer on its own goroutine against the
// shared buffer, and blocks until ctx is canceled and every producer has
// returned. Producer errors are logged and collected; StartAll itself
// returns once all goroutines have exited.
func (r *Registry) StartAll(ctx context.Context, logger *slog.Logger, buf *ringbuffer.Buffer) error {
	r.mu.Lock()
	producers := make([]Producer, len(r.producers))
	copy(producers, r.producers)
	r.started = true
	r.mu.Unlock()

	if len(producers) == 0 {
		<-ctx.Done()
		return nil
	}

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(producers))
	var wg sync.WaitGroup

	for _, p := range producers {
		wg.Add(1)
		go func(p Producer) {
			defer wg.Done()
			err := p.Run(ctx, buf)
			if err != nil && ctx.Err() == nil {
				logger.Error("producer exited with error", "producer", p.Name(), "error", err)
			}
			results <- result{name: p.Name(), err: err}
		}(p)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var failed []string
	for res := range results {
		if res.err != nil && ctx.Err() == nil {
			failed = append(failed, res.name)
		}
	}

	r.mu.Lock()
	r.started = false
	r.mu.Unlock()

	if len(failed) == len(producers) && len(failed) > 0 {
		return fmt.Errorf("all %d producers failed", len(failed))
	}
	if len(failed) > 0 {
		return &PartialStartError{Failed: failed, Total: len(producers)}
	}
	return nil
}

// push is a small helper shared by producers: it pushes an event and logs a
// warning (rate-limited by the caller's own cadence) when the buffer is full.
func push(logger *slog.Logger, buf *ringbuffer.Buffer, name string, e model.Event) {
	if err := buf.Push(e); err != nil {
		logger.Warn("ring buffer full, dropping event", "producer", name)
	}
}

// strPtr returns a pointer to s, used for the optional Unit field on
// model.MetricEvent.
func strPtr(s string) *string { return &s }

// nowUnix returns the current time as milliseconds since epoch.
func nowUnix() int64 { return time.Now().UnixMilli() }
