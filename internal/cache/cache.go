package cache

import (
	"container/list"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Default values used when Config fields are zero.
const (
	DefaultMaxSize = 1000
	DefaultTTL     = 30 * time.Second
)

// Config controls cache capacity and the TTL applied when Set is given none.
type Config struct {
	MaxSize    int           // Max entries (default: 1000)
	DefaultTTL time.Duration // TTL for Set calls with ttl <= 0 (default: 30s)
}

// SerializationError is returned by Set when the value cannot be encoded.
// The cache is left untouched.
type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cache: cannot serialize value for key %q: %v", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// EntryInfo is a metadata snapshot of a cache entry.
type EntryInfo struct {
	Key            string
	CreatedAt      time.Time
	TTL            time.Duration
	AccessCount    int64
	LastAccessedAt time.Time
	Size           int
}

// ExpiresAt returns the instant after which the entry is no longer visible.
func (e EntryInfo) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

type entry[V any] struct {
	key            string
	value          V
	createdAt      time.Time
	ttl            time.Duration
	accessCount    int64
	lastAccessedAt time.Time
	size           int
}

// expired reports whether now - createdAt > ttl.
func (e *entry[V]) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

func (e *entry[V]) info() EntryInfo {
	return EntryInfo{
		Key:            e.key,
		CreatedAt:      e.createdAt,
		TTL:            e.ttl,
		AccessCount:    e.accessCount,
		LastAccessedAt: e.lastAccessedAt,
		Size:           e.size,
	}
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Cache is a concurrency-safe key-value store with per-entry TTL and LRU
// eviction under a size cap.
//
// A map gives O(1) lookup and a doubly-linked list keeps recency order:
// front = most recently accessed, back = least recently accessed.
type Cache[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	items map[string]*list.Element
	lru   *list.List

	memory int64
	stats  counters
}

type counters struct {
	hits        int64
	misses      int64
	sets        int64
	deletes     int64
	evictions   int64
	expirations int64
}

// New creates a cache.
func New[V any](cfg Config, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}

	return &Cache[V]{
		maxSize: cfg.MaxSize,
		ttl:     cfg.DefaultTTL,
		now:     o.now,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Set inserts or overwrites key. ttl <= 0 uses the configured default.
// If the cache is full and key is new, the least recently accessed entry is
// evicted first.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return &SerializationError{Key: key, Err: err}
	}
	size := len(key) + len(encoded)

	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.stats.sets++

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		c.memory += int64(size - e.size)
		e.value = value
		e.createdAt = now
		e.ttl = ttl
		e.lastAccessedAt = now
		e.size = size
		c.lru.MoveToFront(el)
		return nil
	}

	for len(c.items) >= c.maxSize {
		if !c.evictOldestLocked() {
			break
		}
	}

	e := &entry[V]{
		key:            key,
		value:          value,
		createdAt:      now,
		ttl:            ttl,
		lastAccessedAt: now,
		size:           size,
	}
	c.items[key] = c.lru.PushFront(e)
	c.memory += int64(size)
	return nil
}

// Get returns the value for key if present and unexpired. An expired entry is
// removed and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.stats.misses++
		return zero, false
	}

	now := c.now()
	e := el.Value.(*entry[V])
	if e.expired(now) {
		c.removeLocked(el)
		c.stats.expirations++
		c.stats.misses++
		return zero, false
	}

	e.accessCount++
	e.lastAccessedAt = now
	c.lru.MoveToFront(el)
	c.stats.hits++
	return e.value, true
}

// Has reports whether key is present and unexpired. It agrees with Get but
// does not count as an access.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	if el.Value.(*entry[V]).expired(c.now()) {
		c.removeLocked(el)
		c.stats.expirations++
		return false
	}
	return true
}

// Delete removes key. It reports whether an entry was removed.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(el)
	c.stats.deletes++
	return true
}

// Clear removes every entry. Counters are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.memory = 0
}

// Cleanup purges every expired entry and returns how many were removed.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry[V]).expired(now) {
			c.removeLocked(el)
			removed++
		}
		el = prev
	}
	c.stats.expirations += int64(removed)
	return removed
}

// Extend adds additional to the TTL of a live entry. It does not change the
// entry's position in eviction order.
func (c *Cache[V]) Extend(key string, additional time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	e := el.Value.(*entry[V])
	if e.expired(c.now()) {
		c.removeLocked(el)
		c.stats.expirations++
		return false
	}
	e.ttl += additional
	return true
}

// Touch marks a live entry as recently used without counting a hit.
func (c *Cache[V]) Touch(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	now := c.now()
	e := el.Value.(*entry[V])
	if e.expired(now) {
		c.removeLocked(el)
		c.stats.expirations++
		return false
	}
	e.lastAccessedAt = now
	c.lru.MoveToFront(el)
	return true
}

// Entry returns metadata for a live entry without counting an access.
func (c *Cache[V]) Entry(key string) (EntryInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return EntryInfo{}, false
	}
	e := el.Value.(*entry[V])
	if e.expired(c.now()) {
		return EntryInfo{}, false
	}
	return e.info(), true
}

// Len returns the number of stored entries, including expired entries that
// have not been purged yet.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns keys in most- to least-recently accessed order.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry[V]).key)
	}
	return out
}

// evictOldestLocked removes the back of the recency list. Must be called with
// lock held.
func (c *Cache[V]) evictOldestLocked() bool {
	el := c.lru.Back()
	if el == nil {
		return false
	}
	c.removeLocked(el)
	c.stats.evictions++
	return true
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	e := el.Value.(*entry[V])
	delete(c.items, e.key)
	c.lru.Remove(el)
	c.memory -= int64(e.size)
}
