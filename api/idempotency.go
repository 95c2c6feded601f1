package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HeaderIdempotencyKey lets a client retry a drop without repeating its write.
const HeaderIdempotencyKey = "Idempotency-Key"

const defaultIdempotencyTTL = 10 * time.Minute

// Deduper records idempotency keys of drops that were already applied.
type Deduper interface {
	// Add records the key and reports whether it was new.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove forgets a key so a failed drop may be retried.
	Remove(ctx context.Context, userID, key string) error
}

// RedisDeduper stores keys in Redis so every boardd instance sees them.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return fmt.Sprintf("drop:%s:%s", userID, key)
}

func (r *RedisDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(userID, key), 1, r.ttl).Result()
}

func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}

// memoryDeduper is used when no Redis is configured.
type memoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func newMemoryDeduper(ttl time.Duration) *memoryDeduper {
	return &memoryDeduper{ttl: ttl, now: time.Now, seen: map[string]time.Time{}}
}

func (m *memoryDeduper) Add(_ context.Context, userID, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.seen {
		if now.After(exp) {
			delete(m.seen, k)
		}
	}
	k := userID + ":" + key
	if _, ok := m.seen[k]; ok {
		return false, nil
	}
	m.seen[k] = now.Add(m.ttl)
	return true, nil
}

func (m *memoryDeduper) Remove(_ context.Context, userID, key string) error {
	m.mu.Lock()
	delete(m.seen, userID+":"+key)
	m.mu.Unlock()
	return nil
}
