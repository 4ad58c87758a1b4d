package cache

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Sets        int64 `json:"sets"`
	Deletes     int64 `json:"deletes"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
	Size        int   `json:"size"`
	MaxSize     int   `json:"maxSize"`
	MemoryUsage int64 `json:"memoryUsage"` // bytes of encoded keys + values
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns current counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:        c.stats.hits,
		Misses:      c.stats.misses,
		Sets:        c.stats.sets,
		Deletes:     c.stats.deletes,
		Evictions:   c.stats.evictions,
		Expirations: c.stats.expirations,
		Size:        len(c.items),
		MaxSize:     c.maxSize,
		MemoryUsage: c.memory,
	}
}

// ResetStats zeroes the counters. Stored entries are kept.
func (c *Cache[V]) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = counters{}
}
