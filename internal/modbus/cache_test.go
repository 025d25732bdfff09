package modbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueCachePutGet(t *testing.T) {
	c := NewValueCache()

	_, ok := c.Get(1, 1)
	assert.False(t, ok)

	first := time.Now()
	c.Put(ReadResult{Slave: 1, MappingID: 1, Value: 12.5, At: first})
	e, ok := c.Get(1, 1)
	require.True(t, ok)
	assert.Equal(t, 12.5, e.Value)
	assert.Equal(t, first, e.At)

	// A newer read overwrites; same mapping id on another slave is a
	// distinct pair.
	c.Put(ReadResult{Slave: 1, MappingID: 1, Value: 13.0, At: first.Add(time.Second)})
	c.Put(ReadResult{Slave: 2, MappingID: 1, Value: 99.0, At: first})
	e, _ = c.Get(1, 1)
	assert.Equal(t, 13.0, e.Value)
	e, _ = c.Get(2, 1)
	assert.Equal(t, 99.0, e.Value)
	assert.Equal(t, 2, c.Len())
}

func TestValueCacheValuesIsACopy(t *testing.T) {
	c := NewValueCache()
	c.Put(ReadResult{Slave: 1, MappingID: 5, Value: 1})

	snap := c.Values()
	snap[Key{Slave: 1, MappingID: 5}] = CacheEntry{Value: 42}

	e, ok := c.Get(1, 5)
	require.True(t, ok)
	assert.Equal(t, 1.0, e.Value)
}
