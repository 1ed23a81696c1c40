package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/open-builders/giveaway-engine/internal/common/async"
	"github.com/open-builders/giveaway-engine/internal/common/logger"
)

// ErrNotFound settles GetAsync futures when the key is neither resident nor stored.
var ErrNotFound = errors.New("cache: not found")

// Store is the durable backing of a cache.
type Store[K comparable, V any] interface {
	Load(ctx context.Context, key K) (V, bool, error)
	LoadAll(ctx context.Context) ([]V, error)
	Save(ctx context.Context, key K, value V) error
	Delete(ctx context.Context, key K) error
}

type entry[V any] struct {
	value    V
	accessed time.Time
}

type settings struct {
	now func() time.Time
}

type Option func(*settings)

// WithClock replaces time.Now for access stamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// Cache is a load-through, write-back cache in front of a Store.
type Cache[K comparable, V any] struct {
	name    string
	store   Store[K, V]
	pool    *async.Pool
	now     func() time.Time
	logger  zerolog.Logger
	loads   singleflight.Group
	mu      sync.Mutex
	entries map[K]*entry[V]
}

// New creates a cache named name. Asynchronous loads and shutdown writes run on pool.
func New[K comparable, V any](name string, store Store[K, V], pool *async.Pool, opts ...Option) *Cache[K, V] {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return &Cache[K, V]{
		name:    name,
		store:   store,
		pool:    pool,
		now:     s.now,
		logger:  logger.Component("cache").With().Str("cache", name).Logger(),
		entries: make(map[K]*entry[V]),
	}
}

// Get returns the resident value or loads it from the store.
// A store failure is logged and reported as absence.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool) {
	v, found, err := c.load(ctx, key)
	if err != nil {
		c.logger.Error().Err(err).Interface("key", key).Msg("Failed to load entry")
		var zero V
		return zero, false
	}
	return v, found
}

// GetAsync runs Get on the storage pool. Absence settles the future with ErrNotFound.
func (c *Cache[K, V]) GetAsync(ctx context.Context, key K) *async.Future[V] {
	if v, ok := c.touch(key); ok {
		return async.Resolved(v)
	}
	return async.Go(c.pool, func() (V, error) {
		v, ok := c.Get(ctx, key)
		if !ok {
			return v, ErrNotFound
		}
		return v, nil
	})
}

// Set inserts or overwrites the value and returns it.
func (c *Cache[K, V]) Set(key K, value V) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry[V]{value: value, accessed: c.now()}
	return value
}

// GetOrSet returns the resident or stored value, or stores the result of create.
// Concurrent callers for the same key observe the same value.
func (c *Cache[K, V]) GetOrSet(ctx context.Context, key K, create func() V) (V, error) {
	v, found, err := c.load(ctx, key)
	if err != nil {
		return v, err
	}
	if found {
		return v, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.accessed = c.now()
		return e.value, nil
	}
	v = create()
	c.entries[key] = &entry[V]{value: v, accessed: c.now()}
	return v, nil
}

// Invalidate removes the entry, writing it back first when persist is set.
func (c *Cache[K, V]) Invalidate(ctx context.Context, key K, persist bool) (V, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		var zero V
		return zero, false
	}

	if persist {
		if err := c.store.Save(ctx, key, e.value); err != nil {
			c.logger.Error().Err(err).Interface("key", key).Msg("Failed to write back entry")
		}
	}

	c.mu.Lock()
	if cur, ok := c.entries[key]; ok && cur == e {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return e.value, true
}

// InvalidateAll drains the cache, persisting every entry. Write failures are
// logged and do not stop the drain.
func (c *Cache[K, V]) InvalidateAll(ctx context.Context) {
	for key, e := range c.drain() {
		if err := c.store.Save(ctx, key, e.value); err != nil {
			c.logger.Error().Err(err).Interface("key", key).Msg("Failed to write back entry")
		}
	}
}

// Shutdown drains the cache and returns one handle per outstanding write.
// Callers wait on the handles before closing the store.
func (c *Cache[K, V]) Shutdown(ctx context.Context) []*async.Future[struct{}] {
	drained := c.drain()
	futures := make([]*async.Future[struct{}], 0, len(drained))
	for key, e := range drained {
		key, value := key, e.value
		futures = append(futures, async.Go(c.pool, func() (struct{}, error) {
			if err := c.store.Save(ctx, key, value); err != nil {
				c.logger.Error().Err(err).Interface("key", key).Msg("Failed to persist entry on shutdown")
				return struct{}{}, fmt.Errorf("persist %v: %w", key, err)
			}
			return struct{}{}, nil
		}))
	}
	c.logger.Info().Int("entries", len(futures)).Msg("Cache drained")
	return futures
}

func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns a snapshot of the resident keys.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Values returns a snapshot of the resident values without touching access stamps.
func (c *Cache[K, V]) Values() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	values := make([]V, 0, len(c.entries))
	for _, e := range c.entries {
		values = append(values, e.value)
	}
	return values
}

func (c *Cache[K, V]) touch(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.accessed = c.now()
		return e.value, true
	}
	var zero V
	return zero, false
}

// load serves key from memory or the store. Concurrent loads of one key share
// a single store call. Misses are not cached.
func (c *Cache[K, V]) load(ctx context.Context, key K) (V, bool, error) {
	if v, ok := c.touch(key); ok {
		return v, true, nil
	}

	res, err, _ := c.loads.Do(fmt.Sprint(key), func() (interface{}, error) {
		if v, ok := c.touch(key); ok {
			return v, nil
		}
		v, found, err := c.store.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrNotFound
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if e, ok := c.entries[key]; ok {
			e.accessed = c.now()
			return e.value, nil
		}
		c.entries[key] = &entry[V]{value: v, accessed: c.now()}
		return v, nil
	})

	var zero V
	if errors.Is(err, ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	v, ok := res.(V)
	if !ok {
		return zero, false, nil
	}
	return v, true, nil
}

func (c *Cache[K, V]) drain() map[K]*entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	drained := c.entries
	c.entries = make(map[K]*entry[V])
	return drained
}
