package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemoryCache_InvalidArguments(t *testing.T) {
	_, err := NewMemoryCache(0, time.Minute)
	assert.Error(t, err)

	_, err = NewMemoryCache(10, 0)
	assert.Error(t, err)
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 0.0001)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewMemoryCache(2, time.Minute)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestMemoryCache_Expires(t *testing.T) {
	c, err := NewMemoryCache(10, 20*time.Millisecond)
	require.NoError(t, err)

	c.Set("a", 1)
	time.Sleep(60 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestMemoryCache_Purge(t *testing.T) {
	c, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Purge()

	assert.Zero(t, c.Len())
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c, err := NewMemoryCache(100, time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%20)
				c.Set(key, n)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 20)
	assert.Equal(t, uint64(800), c.Stats().Hits+c.Stats().Misses)
}
