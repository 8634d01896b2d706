package cache

// EvictFunc is called with every entry that leaves the cache, whether it was
// pushed out by capacity, invalidated, or cleared. It is the owner's chance
// to release the backend handle behind the value.
type EvictFunc[K comparable, V any] func(key K, value V)

// LRU is a bounded least-recently-used cache with an eviction callback.
//
// LRU is not safe for concurrent use. It is owned by a single evaluation
// goroutine; other goroutines request invalidation through that owner.
type LRU[K comparable, V any] struct {
	capacity int
	items    map[K]*lruNode[K, V]
	order    lruList[K, V]
	onEvict  EvictFunc[K, V]

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates an LRU holding at most capacity entries.
// A capacity below 1 is treated as 1. onEvict may be nil.
func New[K comparable, V any](capacity int, onEvict EvictFunc[K, V]) *LRU[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*lruNode[K, V], capacity),
		onEvict:  onEvict,
	}
}

// Get returns the value cached under key, marking it most recently used.
// On a miss it calls factory, stores the result and evicts the least recently
// used entry if the cache is over capacity. A factory error is returned
// unchanged and nothing is stored.
func (c *LRU[K, V]) Get(key K, factory func(K) (V, error)) (V, error) {
	if node, ok := c.items[key]; ok {
		c.hits++
		c.order.MoveToFront(node)
		return node.value, nil
	}

	c.misses++
	value, err := factory(key)
	if err != nil {
		var zero V
		return zero, err
	}

	c.items[key] = c.order.PushFront(key, value)
	for c.order.Len() > c.capacity {
		c.evict(c.order.Back())
	}
	return value, nil
}

// Peek returns the value under key without touching its recency.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	node, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return node.value, true
}

// Contains reports whether key is cached.
func (c *LRU[K, V]) Contains(key K) bool {
	_, ok := c.items[key]
	return ok
}

// Invalidate evicts key if present, firing the eviction callback.
// It reports whether an entry was removed.
func (c *LRU[K, V]) Invalidate(key K) bool {
	node, ok := c.items[key]
	if !ok {
		return false
	}
	c.evict(node)
	return true
}

// InvalidateFunc evicts every entry whose key satisfies match,
// firing the eviction callback for each. It returns the number removed.
func (c *LRU[K, V]) InvalidateFunc(match func(K) bool) int {
	var doomed []*lruNode[K, V]
	c.order.Each(func(n *lruNode[K, V]) {
		if match(n.key) {
			doomed = append(doomed, n)
		}
	})
	for _, n := range doomed {
		c.evict(n)
	}
	return len(doomed)
}

// Values returns all live values from most to least recently used.
func (c *LRU[K, V]) Values() []V {
	out := make([]V, 0, c.order.Len())
	c.order.Each(func(n *lruNode[K, V]) {
		out = append(out, n.value)
	})
	return out
}

// Keys returns all live keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	out := make([]K, 0, c.order.Len())
	c.order.Each(func(n *lruNode[K, V]) {
		out = append(out, n.key)
	})
	return out
}

// Clear evicts every entry, firing the eviction callback for each.
func (c *LRU[K, V]) Clear() {
	c.order.Each(func(n *lruNode[K, V]) {
		c.evict(n)
	})
	c.order.Clear()
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	return c.order.Len()
}

// Capacity returns the maximum number of entries.
func (c *LRU[K, V]) Capacity() int {
	return c.capacity
}

// Stats returns cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	s := Stats{
		Len:       c.order.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}


func (c *LRU[K, V]) evict(node *lruNode[K, V]) {
	if node == nil {
		return
	}
	c.order.Remove(node)
	delete(c.items, node.key)
	c.evictions++
	if c.onEvict != nil {
		c.onEvict(node.key, node.value)
	}
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Capacity is the maximum number of entries.
	Capacity int
	// Hits is the number of Get calls served from the cache.
	Hits uint64
	// Misses is the number of Get calls that ran the factory.
	Misses uint64
	// HitRate is Hits / (Hits + Misses), 0 when there were no calls.
	HitRate float64
	// Evictions counts entries removed by capacity, Invalidate or Clear.
	Evictions uint64
}
