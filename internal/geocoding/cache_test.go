package geocoding

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestCachePutGet(t *testing.T) {
	c := NewCache(10)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	pt := orb.Point{-0.0754, 51.5412}
	c.Put("kingsland road|E8 3RH", pt)

	got, ok := c.Get("kingsland road|E8 3RH")
	assert.True(t, ok)
	assert.Equal(t, pt, got)
	assert.Equal(t, 1, c.Len())
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)

	c.Put("a", orb.Point{1, 1})
	c.Put("b", orb.Point{2, 2})

	// Touch a so b becomes the eviction candidate.
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Put("c", orb.Point{3, 3})
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get("b")
	assert.False(t, ok, "the least recently used entry is evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestCacheUpdateExistingKey(t *testing.T) {
	c := NewCache(2)

	c.Put("a", orb.Point{1, 1})
	c.Put("a", orb.Point{9, 9})

	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, orb.Point{9, 9}, got)
	assert.Equal(t, 1, c.Len())
}

func TestCacheMinimumCapacity(t *testing.T) {
	c := NewCache(0)

	c.Put("a", orb.Point{1, 1})
	c.Put("b", orb.Point{2, 2})
	assert.Equal(t, 1, c.Len())
}
