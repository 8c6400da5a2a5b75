// Package querycache is the client's time-boxed, bounded mirror of remote
// query results. Values are snapshots: writers replace them, never mutate
// them in place.
package querycache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 512
)

type entry struct {
	value  any
	stored time.Time
}

type Cache struct {
	mu         sync.Mutex
	entries    *lru.Cache
	keys       map[string]struct{}
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reset()
	return c
}

func (c *Cache) reset() {
	c.keys = make(map[string]struct{})
	c.entries = lru.New(c.maxEntries)
	c.entries.OnEvicted = func(key lru.Key, _ interface{}) {
		delete(c.keys, key.(string))
	}
}

// get must be called with c.mu held.
func (c *Cache) get(key string) (entry, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return entry{}, false
	}
	e := v.(entry)
	if c.ttl > 0 && c.now().Sub(e.stored) > c.ttl {
		c.entries.Remove(key)
		return entry{}, false
	}
	return e, true
}

// put must be called with c.mu held.
func (c *Cache) put(key string, e entry) {
	c.keys[key] = struct{}{}
	c.entries.Add(key, e)
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.get(key)
	return e.value, ok
}

func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, entry{value: value, stored: c.now()})
}

// Update replaces the value under key with fn's result, keeping its age.
// Missing or expired keys are left alone.
func (c *Cache) Update(key string, fn func(any) any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.get(key)
	if !ok {
		return false
	}
	c.put(key, entry{value: fn(e.value), stored: e.stored})
	return true
}

// UpdatePrefix applies fn to every live key starting with prefix and
// returns how many were updated.
func (c *Cache) UpdatePrefix(prefix string, fn func(key string, v any) any) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, key := range c.matching(prefix) {
		e, ok := c.get(key)
		if !ok {
			continue
		}
		c.put(key, entry{value: fn(key, e.value), stored: e.stored})
		n++
	}
	return n
}

func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

func (c *Cache) RemovePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.matching(prefix) {
		c.entries.Remove(key)
	}
}

// Keys lists the live keys starting with prefix in lexical order.
func (c *Cache) Keys(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for _, key := range c.matching(prefix) {
		if _, ok := c.get(key); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Cache) matching(prefix string) []string {
	keys := make([]string, 0, len(c.keys))
	for key := range c.keys {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the value under key when it holds a T.
func Lookup[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Modify replaces the T under key with fn's result.
func Modify[T any](c *Cache, key string, fn func(T) T) bool {
	updated := false
	c.Update(key, func(v any) any {
		t, ok := v.(T)
		if !ok {
			return v
		}
		updated = true
		return fn(t)
	})
	return updated
}

// ModifyPrefix replaces every T stored under a key starting with prefix.
func ModifyPrefix[T any](c *Cache, prefix string, fn func(key string, v T) T) int {
	n := 0
	c.UpdatePrefix(prefix, func(key string, v any) any {
		t, ok := v.(T)
		if !ok {
			return v
		}
		n++
		return fn(key, t)
	})
	return n
}
