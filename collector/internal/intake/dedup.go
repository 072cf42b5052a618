package intake

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// duplicateTTL bounds how long a batch_id is remembered for duplicate
// detection — long enough to span the transport's reconnect-and-resend
// window, not a delivery guarantee.
const duplicateTTL = 10 * time.Minute

// dedupStore tracks recently seen batch_ids so a duplicate delivery
// (expected under the at-least-once model, e.g. after a client reconnect
// whose ack was lost) can be logged rather than treated as a surprise. It
// never rejects on a duplicate — the core's at-least-once semantics stand.
type dedupStore interface {
	// seen records id if not already present, returning whether it was
	// already present.
	seen(ctx context.Context, id string) bool
}

// memoryDedup is an in-memory dedupStore, used when no Redis backend is
// configured. It is safe for concurrent use.
type memoryDedup struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// newMemoryDedup constructs an in-memory dedupStore.
func newMemoryDedup() *memoryDedup {
	return &memoryDedup{entries: make(map[string]time.Time)}
}

func (d *memoryDedup) seen(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for k, t := range d.entries {
		if now.Sub(t) > duplicateTTL {
			delete(d.entries, k)
		}
	}

	_, dup := d.entries[id]
	d.entries[id] = now
	return dup
}

const redisDedupKeyPrefix = "flowmesh:intake:seen:"

// redisDedup is a Redis-backed dedupStore, shared across collector
// replicas. — Adapted from the cache package's Get/Set/TTL shape.
type redisDedup struct {
	client *redis.Client
}

func newRedisDedup(client *redis.Client) *redisDedup {
	return &redisDedup{client: client}
}

func (d *redisDedup) seen(ctx context.Context, id string) bool {
	key := redisDedupKeyPrefix + id
	// SetNX only sets the key if absent; a false result means it was
	// already present, i.e. a duplicate.
	ok, err := d.client.SetNX(ctx, key, 1, duplicateTTL).Result()
	if err != nil {
		// Fail open: an unreachable cache must never block ingestion.
		return false
	}
	return !ok
}
