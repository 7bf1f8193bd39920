// Package cache is a small in-process TTL cache used when Redis is not
// configured.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

type entry struct {
	value     interface{}
	expiresAt int64
}

func (e entry) expired(now int64) bool {
	return e.expiresAt > 0 && now > e.expiresAt
}

// Options configures a Cache.
type Options struct {
	// TTL applies to Set. Zero means entries never expire.
	TTL time.Duration
	// PurgeInterval is how often expired entries are swept. Zero disables sweeping.
	PurgeInterval time.Duration
	// MaxItems bounds the cache; the entry closest to expiry is evicted first.
	MaxItems int
}

// Cache is a thread-safe in-memory cache with expiration.
type Cache struct {
	mu    sync.RWMutex
	items map[string]entry
	opts  Options
	stop  chan struct{}
	once  sync.Once
}

func New(opts Options) *Cache {
	c := &Cache{
		items: make(map[string]entry),
		opts:  opts,
		stop:  make(chan struct{}),
	}
	if opts.PurgeInterval > 0 {
		go c.purgeLoop()
	}
	return c
}

// Close stops the purge goroutine.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.opts.TTL)
}

func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	var exp int64
	if ttl > 0 {
		exp = time.Now().Add(ttl).UnixNano()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.opts.MaxItems > 0 && len(c.items) >= c.opts.MaxItems {
		c.evictLocked()
	}
	c.items[key] = entry{value: value, expiresAt: exp}
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || e.expired(time.Now().UnixNano()) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len counts stored entries, including expired ones not yet purged.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) purgeLoop() {
	ticker := time.NewTicker(c.opts.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purge()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) purge() {
	now := time.Now().UnixNano()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
		}
	}
}

// evictLocked drops the entry that expires soonest. Entries without expiry
// go last.
func (c *Cache) evictLocked() {
	var victim string
	var soonest int64
	found := false
	for k, e := range c.items {
		if e.expiresAt == 0 {
			if !found {
				victim, found = k, true
			}
			continue
		}
		if !found || soonest == 0 || e.expiresAt < soonest {
			victim, soonest, found = k, e.expiresAt, true
		}
	}
	if found {
		delete(c.items, victim)
	}
}

// Store exposes a Cache through the context-aware string interface the
// services share with the Redis client.
type Store struct {
	c *Cache
}

func NewStore(c *Cache) *Store {
	return &Store{c: c}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return "", ErrMiss
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return fmt.Sprint(t), nil
	}
}

func (s *Store) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	s.c.SetWithTTL(key, value, expiration)
	return nil
}
