package modbus

import (
	"sync"
	"time"
)

// CacheEntry is the last-known-good value for one (slave, mapping) pair.
type CacheEntry struct {
	Value float64
	At    time.Time
}

// ValueCache holds the latest successful reading per (slave, mappingId).
// The polling goroutine writes, consumers read. Entries are only ever
// overwritten by a newer successful read: a failed read leaves the
// previous good value in place.
type ValueCache struct {
	mu   sync.RWMutex
	data map[Key]CacheEntry
}

func NewValueCache() *ValueCache {
	return &ValueCache{data: make(map[Key]CacheEntry, 256)}
}

// Get returns the cached entry for the pair, if any.
func (c *ValueCache) Get(slave int, mappingID int64) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[Key{Slave: slave, MappingID: mappingID}]
	return e, ok
}

// Put stores a successful read.
func (c *ValueCache) Put(res ReadResult) {
	c.mu.Lock()
	c.data[Key{Slave: res.Slave, MappingID: res.MappingID}] = CacheEntry{Value: res.Value, At: res.At}
	c.mu.Unlock()
}

// Values copies the current cache contents.
func (c *ValueCache) Values() map[Key]CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[Key]CacheEntry, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Len reports the number of cached pairs.
func (c *ValueCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
