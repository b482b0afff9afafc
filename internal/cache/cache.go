// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache provides bounded in-process caches shared across request
// goroutines. Every operation is safe for concurrent use, but a Get
// followed by Put is not atomic: two goroutines missing on the same key
// both compute the value and the later Put wins.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Stats reports cache counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Size    int   `json:"size"`
	MaxSize int   `json:"max_size"`
}

// FIFO is a fixed-capacity cache that evicts the oldest inserted key.
type FIFO[K comparable, V any] struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[K]*list.Element
	hits    int64
	misses  int64
}

type fifoEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewFIFO returns a FIFO with capacity max (at least 1).
func NewFIFO[K comparable, V any](max int) *FIFO[K, V] {
	if max < 1 {
		max = 1
	}
	return &FIFO[K, V]{max: max, order: list.New(), entries: make(map[K]*list.Element)}
}

// Get returns the value for key.
func (c *FIFO[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.hits++
		return el.Value.(*fifoEntry[K, V]).value, true
	}
	c.misses++
	var zero V
	return zero, false
}

// Put stores value under key. Overwriting an existing key keeps its
// original insertion position.
func (c *FIFO[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*fifoEntry[K, V]).value = value
		return
	}
	if c.order.Len() >= c.max {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*fifoEntry[K, V]).key)
	}
	c.entries[key] = c.order.PushBack(&fifoEntry[K, V]{key: key, value: value})
}

// Len returns the number of entries.
func (c *FIFO[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns the hit and miss counters.
func (c *FIFO[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: c.order.Len(), MaxSize: c.max}
}

// LRU is a fixed-capacity cache with per-entry expiry that evicts the
// least recently used key. It counts hits and misses over an expirable LRU.
type LRU[K comparable, V any] struct {
	lru    *expirable.LRU[K, V]
	max    int
	hits   atomic.Int64
	misses atomic.Int64
}

// NewLRU returns an LRU with capacity max (at least 1). A ttl of zero
// disables expiry.
func NewLRU[K comparable, V any](max int, ttl time.Duration) *LRU[K, V] {
	if max < 1 {
		max = 1
	}
	return &LRU[K, V]{lru: expirable.NewLRU[K, V](max, nil, ttl), max: max}
}

// Get returns the live value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Put stores value under key as the most recently used entry and restarts
// its expiry.
func (c *LRU[K, V]) Put(key K, value V) {
	c.lru.Add(key, value)
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *LRU[K, V]) Len() int {
	return c.lru.Len()
}

// Stats returns the hit and miss counters.
func (c *LRU[K, V]) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.lru.Len(), MaxSize: c.max}
}
