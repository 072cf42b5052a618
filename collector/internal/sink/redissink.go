package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowmesh/telemetry/pkg/model"
)

const redisEventsKey = "flowmesh:sink:events"

// RedisSink is a Redis-backed write-ahead buffer: StoreEvents pushes
// JSON-encoded events onto a list so intake connections never block on a
// slow durable sink, and a [Flusher] later drains the list into one.
//
// Used standalone (backend = "redis") it is itself the terminal sink; used
// alongside a postgres sink it is paired with a Flusher for "sink.backend =
// postgres" plus "sink.redis_url" configurations.
type RedisSink struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisSink connects to redisURL and verifies reachability.
func NewRedisSink(redisURL string, logger *slog.Logger) (*RedisSink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisSink{client: client, logger: logger}, nil
}

// StoreEvents JSON-marshals each event and pushes it onto the list
// atomically.
func (s *RedisSink) StoreEvents(ctx context.Context, events model.EventSequence) error {
	if len(events) == 0 {
		return nil
	}

	values := make([]interface{}, len(events))
	for i, e := range events {
		data, err := model.MarshalEvent(e)
		if err != nil {
			return fmt.Errorf("marshaling event for redis: %w", err)
		}
		values[i] = data
	}

	if err := s.client.LPush(ctx, redisEventsKey, values...).Err(); err != nil {
		return fmt.Errorf("pushing events to redis: %w", err)
	}
	return nil
}

// Pop removes and returns up to maxEvents from the buffer, oldest first.
func (s *RedisSink) Pop(ctx context.Context, maxEvents int) (model.EventSequence, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, maxEvents)
	for i := 0; i < maxEvents; i++ {
		cmds[i] = pipe.RPop(ctx, redisEventsKey)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("popping events from redis: %w", err)
	}

	out := make(model.EventSequence, 0, maxEvents)
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			continue
		}
		e, err := model.UnmarshalEvent(data)
		if err != nil {
			s.logger.Warn("dropping malformed buffered event", "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Len returns the number of buffered events.
func (s *RedisSink) Len(ctx context.Context) (int64, error) {
	return s.client.LLen(ctx, redisEventsKey).Result()
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
