// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFO_EvictsOldestInserted(t *testing.T) {
	c := NewFIFO[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)

	// Reading "a" does not refresh it.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", 3)
	_, ok = c.Get("a")
	assert.False(t, ok, "oldest inserted key should be evicted")

	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, c.Len())
}

func TestFIFO_OverwriteKeepsPosition(t *testing.T) {
	c := NewFIFO[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("a", 10)
	c.Put("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok)
	v, _ := c.Get("b")
	assert.Equal(t, 2, v)
}

func TestFIFO_Stats(t *testing.T) {
	c := NewFIFO[string, int](0)
	c.Put("x", 1)
	c.Get("x")
	c.Get("y")
	assert.Equal(t, Stats{Hits: 1, Misses: 1, Size: 1, MaxSize: 1}, c.Stats())
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string, int](2, 0)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used key should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRU_Expiry(t *testing.T) {
	c := NewLRU[string, string](10, 50*time.Millisecond)

	c.Put("q", "answer")
	v, ok := c.Get("q")
	require.True(t, ok)
	assert.Equal(t, "answer", v)

	require.Eventually(t, func() bool {
		_, ok := c.Get("q")
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "entry should expire after ttl")
	require.Eventually(t, func() bool { return c.Len() == 0 }, 2*time.Second, 10*time.Millisecond,
		"expired entries are evicted")

	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.GreaterOrEqual(t, st.Misses, int64(1))
}

func TestLRU_PutRestartsExpiry(t *testing.T) {
	c := NewLRU[string, int](10, time.Hour)
	c.Put("q", 1)
	c.Put("q", 2)
	v, ok := c.Get("q")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, Stats{Hits: 1, Size: 1, MaxSize: 10}, c.Stats())
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c := NewLRU[string, int](50, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := fmt.Sprintf("k%d", (g*i)%80)
				if _, ok := c.Get(k); !ok {
					c.Put(k, i)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}

// Get-then-Put is not atomic: concurrent misses on one key all compute.
func TestFIFO_ConcurrentMissesDuplicateWork(t *testing.T) {
	c := NewFIFO[string, int](10)
	var (
		computed int32
		start    = make(chan struct{})
		missed   sync.WaitGroup
		wg       sync.WaitGroup
	)
	const workers = 4
	missed.Add(workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, ok := c.Get("same")
			missed.Done()
			// Hold every worker until all have checked the cache.
			missed.Wait()
			if !ok {
				atomic.AddInt32(&computed, 1)
				c.Put("same", 42)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(workers), atomic.LoadInt32(&computed))
	v, ok := c.Get("same")
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}
