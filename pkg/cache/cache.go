package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Options configures cache behaviour.
type Options struct {
	TTL                  time.Duration
	StaleWhileRevalidate time.Duration
	MaxEntries           int
}

type entry struct {
	value     interface{}
	expiresAt time.Time
	staleAt   time.Time
	lastUsed  time.Time
}

// Cache is a small read-through cache with stale-while-revalidate semantics.
// Concurrent loads for the same key are collapsed through singleflight.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*entry
	order []string
	opts  Options
	sf    singleflight.Group
}

// New creates a cache with the given options.
func New(opts Options) *Cache {
	return &Cache{
		items: make(map[string]*entry),
		order: make([]string, 0, 128),
		opts:  opts,
	}
}

// Loader fetches the value for a key on miss.
type Loader func(ctx context.Context, key string) (interface{}, error)

// Get returns the cached value for key, loading it on miss. Stale entries are
// served while a single background refresh runs.
func (c *Cache) Get(ctx context.Context, key string, loader Loader) (interface{}, error) {
	now := time.Now()
	c.mu.RLock()
	if e, ok := c.items[key]; ok {
		if now.Before(e.expiresAt) {
			e.lastUsed = now
			val := e.value
			c.mu.RUnlock()
			return val, nil
		}
		if now.Before(e.staleAt) {
			// SWR: return stale and refresh in background once
			val := e.value
			c.mu.RUnlock()
			go func() {
				_, _, _ = c.sf.Do("refresh:"+key, func() (interface{}, error) {
					if v, err := loader(context.Background(), key); err == nil {
						c.Set(key, v, c.opts.TTL)
					}
					return nil, nil
				})
			}()
			return val, nil
		}
		// Hard expired: drop and load synchronously
		c.mu.RUnlock()
		c.mu.Lock()
		delete(c.items, key)
		c.removeFromOrder(key)
		c.mu.Unlock()
	} else {
		c.mu.RUnlock()
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		val, err := loader(ctx, key)
		if err != nil {
			return nil, err
		}
		c.Set(key, val, c.opts.TTL)
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Set stores a value with an explicit TTL.
func (c *Cache) Set(key string, val interface{}, ttl time.Duration) {
	now := time.Now()
	e := &entry{
		value:     val,
		expiresAt: now.Add(ttl),
		staleAt:   now.Add(ttl).Add(c.opts.StaleWhileRevalidate),
		lastUsed:  now,
	}
	c.mu.Lock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = e
	c.evictIfNeeded()
	c.mu.Unlock()
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.removeFromOrder(key)
	c.mu.Unlock()
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *Cache) evictIfNeeded() {
	if c.opts.MaxEntries <= 0 || len(c.items) <= c.opts.MaxEntries {
		return
	}
	// Simple FIFO eviction
	excess := len(c.items) - c.opts.MaxEntries
	for excess > 0 && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
		excess--
	}
}
