package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowmesh/telemetry/pkg/model"
)

// PostgresSink batch-inserts events into an `events` table via pgx's
// CopyFrom for high throughput. Events carry no natural dedup key once
// they leave batch context (the Sink interface operates on a bare
// sequence, not a Batch), so — unlike the staging-table-then-ON-CONFLICT
// technique this is adapted from — rows are appended directly: duplicate
// delivery under at-least-once semantics produces duplicate rows, which is
// consistent with the core's explicit non-goal of exactly-once delivery.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresSink connects to postgresURL and verifies reachability.
func NewPostgresSink(ctx context.Context, postgresURL string, logger *slog.Logger) (*PostgresSink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, postgresURL)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &PostgresSink{pool: pool, logger: logger}, nil
}

// StoreEvents COPYs events into the events table.
func (s *PostgresSink) StoreEvents(ctx context.Context, events model.EventSequence) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([][]any, len(events))
	for i, e := range events {
		payload, err := model.MarshalEvent(e)
		if err != nil {
			return fmt.Errorf("marshaling event for postgres: %w", err)
		}
		rows[i] = []any{string(e.EventType()), e.EventTimestamp(), payload}
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"events"},
		[]string{"event_type", "timestamp", "payload"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copying events to postgres: %w", err)
	}
	return nil
}

// Pool exposes the underlying connection pool, e.g. for db/migrate.
func (s *PostgresSink) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
