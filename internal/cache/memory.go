// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package cache

import (
	"context"
	"sync"
	"time"
)

// memoryEntry is a node in the eviction list.
type memoryEntry struct {
	key       string
	value     []byte
	prev      *memoryEntry
	next      *memoryEntry
	expiresAt time.Time
}

// Memory is a thread-safe in-process cache with LRU eviction and lazy
// TTL expiration. Lookups and inserts are O(1); the entry count never
// exceeds the configured capacity.
//
// This implementation uses a doubly-linked list for ordering and a
// hashmap for lookups. head.next is the most recently used entry,
// tail.prev the least recently used.
type Memory struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*memoryEntry
	head     *memoryEntry
	tail     *memoryEntry
}

// NewMemory creates a memory cache holding at most maxEntries entries.
// A non-positive maxEntries falls back to 10000.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	c := &Memory{
		capacity: maxEntries,
		items:    make(map[string]*memoryEntry, maxEntries),
		head:     &memoryEntry{},
		tail:     &memoryEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// Get returns the payload stored under key, or ErrMiss. An expired entry
// is removed on access. Found entries move to the front of the eviction
// order.
func (c *Memory) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		return nil, ErrMiss
	}
	if c.expired(entry, time.Now()) {
		c.removeEntry(entry)
		return nil, ErrMiss
	}

	c.moveToFront(entry)
	return entry.value, nil
}

// Set stores value under key. When the cache is at capacity the least
// recently used entry is evicted. A non-positive TTL stores the entry
// without expiration.
func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[key]; exists {
		entry.value = value
		entry.expiresAt = expiresAt
		c.moveToFront(entry)
		return nil
	}

	entry := &memoryEntry{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	}
	c.addToFront(entry)
	c.items[key] = entry

	for len(c.items) > c.capacity {
		c.evictOldest()
	}

	return nil
}

// Clear removes all entries.
func (c *Memory) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*memoryEntry, c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head

	return nil
}

// Close implements Cache. The memory backend holds no resources.
func (c *Memory) Close() error {
	return nil
}

// Len returns the current number of entries, counting entries that have
// expired but not yet been touched.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Internal methods (must be called with the lock held)

func (c *Memory) expired(entry *memoryEntry, now time.Time) bool {
	return !entry.expiresAt.IsZero() && now.After(entry.expiresAt)
}

// addToFront adds an entry to the front of the list (most recently used).
func (c *Memory) addToFront(entry *memoryEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

// moveToFront moves an existing entry to the front of the list.
func (c *Memory) moveToFront(entry *memoryEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev

	c.addToFront(entry)
}

// removeEntry removes an entry from both the list and the map.
func (c *Memory) removeEntry(entry *memoryEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev

	delete(c.items, entry.key)
}

// evictOldest removes the least recently used entry.
func (c *Memory) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.removeEntry(oldest)
}
