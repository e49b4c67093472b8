package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ttlCache memoizes loads per key with a jittered TTL. Concurrent misses for
// one key share a single load.
type ttlCache[T any] struct {
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	mu      sync.RWMutex
	rnd     *rand.Rand
	entries map[string]cacheEntry[T]
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func newTTLCache[T any](ttl time.Duration) *ttlCache[T] {
	return &ttlCache[T]{
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[string]cacheEntry[T]),
	}
}

func (c *ttlCache[T]) get(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		if c.ttl > 0 {
			c.mu.Lock()
			c.entries[key] = cacheEntry[T]{value: v, expiresAt: c.clock().Add(c.ttlWithJitter())}
			c.mu.Unlock()
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func (c *ttlCache[T]) lookup(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		var zero T
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[T]) invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// ttlWithJitter adds up to 10% so entries loaded together expire apart.
// Callers hold mu.
func (c *ttlCache[T]) ttlWithJitter() time.Duration {
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
