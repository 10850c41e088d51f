package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LRU is an in-process cache with strict least-recently-accessed eviction.
// A doubly-linked list (MRU at head) plus a hash index give O(1) Get, Set
// and Delete. TTL expiry is lazy: entries are only reclaimed when accessed
// past their deadline or pushed out by capacity churn. There is no
// background sweep.
type LRU[V any] struct {
	mu     sync.Mutex
	config Config

	items map[string]*lruNode[V]
	head  *lruNode[V] // most recently used
	tail  *lruNode[V] // least recently used

	bytes    int64
	estimate func(V) int64

	hits   uint64
	misses uint64

	now    func() time.Time
	logger *zap.Logger
}

type lruNode[V any] struct {
	key       string
	value     V
	size      int64
	expiresAt time.Time // zero means no expiry
	prev      *lruNode[V]
	next      *lruNode[V]
}

// NewLRU creates an LRU cache. A nil logger disables logging.
func NewLRU[V any](config Config, logger *zap.Logger) *LRU[V] {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultConfig().MaxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LRU[V]{
		config: config,
		items:  make(map[string]*lruNode[V]),
		now:    time.Now,
		logger: logger.With(zap.String("component", "cache_lru")),
	}
}

// WithEstimator enables memory-budgeted eviction: estimate reports the
// approximate byte size of a value, summed against Config.MaxMemoryBytes.
// Eviction order stays strictly LRU.
func (c *LRU[V]) WithEstimator(estimate func(V) int64) *LRU[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.estimate = estimate
	return c
}

// Get returns the value for key, promoting it to most recently used.
// Expired entries are removed and reported as misses.
func (c *LRU[V]) Get(_ context.Context, key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	node, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if c.expired(node) {
		c.unlink(node)
		c.misses++
		return zero, false
	}

	c.moveToHead(node)
	c.hits++
	return node.value, true
}

// Set stores value under key and promotes it to most recently used,
// evicting from the tail when over capacity.
func (c *LRU[V]) Set(_ context.Context, key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.deadline(ttl)
	size := c.sizeOf(value)

	if node, ok := c.items[key]; ok {
		c.bytes += size - node.size
		node.value = value
		node.size = size
		node.expiresAt = expiresAt
		c.moveToHead(node)
		c.evictOverBudget()
		return
	}

	for len(c.items) >= c.config.MaxSize && c.tail != nil {
		c.unlink(c.tail)
	}

	node := &lruNode[V]{key: key, value: value, size: size, expiresAt: expiresAt}
	c.items[key] = node
	c.bytes += size
	c.addToHead(node)
	c.evictOverBudget()
}

// Delete removes key and reports whether it was present.
func (c *LRU[V]) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if !ok {
		return false
	}
	c.unlink(node)
	return true
}

// Has reports whether key is present and unexpired without promoting the
// entry, evicting it, or touching the hit/miss counters.
func (c *LRU[V]) Has(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	return ok && !c.expired(node)
}

// Clear removes all entries. Lifetime hit/miss counters are retained.
func (c *LRU[V]) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*lruNode[V])
	c.head = nil
	c.tail = nil
	c.bytes = 0
}

// Size returns the number of stored entries, including entries whose TTL
// has passed but that have not been accessed since.
func (c *LRU[V]) Size(_ context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns lifetime hit/miss counters and the current size.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.items)}
}

func (c *LRU[V]) deadline(ttl time.Duration) time.Time {
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *LRU[V]) expired(node *lruNode[V]) bool {
	return !node.expiresAt.IsZero() && !c.now().Before(node.expiresAt)
}

func (c *LRU[V]) sizeOf(value V) int64 {
	if c.estimate == nil {
		return 0
	}
	return c.estimate(value)
}

// evictOverBudget drops LRU entries while the estimated total exceeds the
// memory budget. Only active when an estimator and budget are configured.
func (c *LRU[V]) evictOverBudget() {
	if c.config.MaxMemoryBytes <= 0 || c.estimate == nil {
		return
	}
	for c.bytes > c.config.MaxMemoryBytes && c.tail != nil && len(c.items) > 1 {
		c.unlink(c.tail)
	}
}

// unlink removes node from both the list and the index.
func (c *LRU[V]) unlink(node *lruNode[V]) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	delete(c.items, node.key)
	c.bytes -= node.size
}

func (c *LRU[V]) addToHead(node *lruNode[V]) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *LRU[V]) moveToHead(node *lruNode[V]) {
	if node == c.head {
		return
	}
	// detach without touching the index
	if node.prev != nil {
		node.prev.next = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	c.addToHead(node)
}
