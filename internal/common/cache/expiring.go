package cache

import (
	"context"
	"sync"
	"time"

	"github.com/open-builders/giveaway-engine/internal/common/async"
)

// ExpiringCache evicts entries that have not been accessed for longer than the
// idle TTL. The sweep runs once per TTL, so an idle entry lives at most 2×TTL.
type ExpiringCache[K comparable, V any] struct {
	*Cache[K, V]

	ttl      time.Duration
	onExpiry func(key K, value V)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewExpiring[K comparable, V any](name string, store Store[K, V], pool *async.Pool, ttl time.Duration, opts ...Option) *ExpiringCache[K, V] {
	return &ExpiringCache[K, V]{
		Cache: New(name, store, pool, opts...),
		ttl:   ttl,
	}
}

// OnExpiry registers fn to run for every evicted entry before it is discarded.
// Must be called before Start.
func (c *ExpiringCache[K, V]) OnExpiry(fn func(key K, value V)) {
	c.onExpiry = fn
}

func (c *ExpiringCache[K, V]) TTL() time.Duration {
	return c.ttl
}

// Start launches the background sweep. It stops when ctx is done or Stop is called.
func (c *ExpiringCache[K, V]) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.ttl)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	c.logger.Info().Dur("ttl", c.ttl).Msg("Idle sweep started")
}

func (c *ExpiringCache[K, V]) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Sweep persists and evicts every entry idle for longer than the TTL and
// returns the number evicted. An entry touched while its write-back is in
// flight stays resident. A failed write-back keeps the entry for the next sweep.
func (c *ExpiringCache[K, V]) Sweep(ctx context.Context) int {
	now := c.now()

	c.mu.Lock()
	idle := make(map[K]*entry[V])
	for k, e := range c.entries {
		if now.Sub(e.accessed) > c.ttl {
			idle[k] = e
		}
	}
	c.mu.Unlock()

	evicted := 0
	for key, e := range idle {
		if err := c.store.Save(ctx, key, e.value); err != nil {
			c.logger.Error().Err(err).Interface("key", key).Msg("Failed to write back idle entry")
			continue
		}

		c.mu.Lock()
		cur, ok := c.entries[key]
		stillIdle := ok && cur == e && c.now().Sub(e.accessed) > c.ttl
		if stillIdle {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		if !stillIdle {
			continue
		}

		evicted++
		if c.onExpiry != nil {
			c.onExpiry(key, e.value)
		}
	}

	if evicted > 0 {
		c.logger.Debug().Int("evicted", evicted).Msg("Idle entries evicted")
	}
	return evicted
}
