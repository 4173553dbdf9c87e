// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

// Package cache provides a bounded LRU set used to track which broadcast
// rooms have already gone through ownership bootstrap. Bounding the set by
// capacity and TTL keeps memory proportional to the device population; an
// evicted entry only costs one extra ownership derivation on the next
// publish for that room.
package cache

import (
	"sync"
	"time"
)

// entry is a node in the doubly-linked recency list.
type entry struct {
	key       int64
	prev      *entry
	next      *entry
	expiresAt time.Time
}

// LRUSet is a thread-safe least-recently-used set with TTL expiry.
// All operations are O(1): a hashmap provides lookup, a doubly-linked
// list with sentinel head/tail nodes provides recency ordering.
type LRUSet struct {
	mu sync.RWMutex

	capacity int
	ttl      time.Duration

	items map[int64]*entry

	// head.next is most recently used, tail.prev least recently used.
	head *entry
	tail *entry

	hits   int64
	misses int64
}

// NewLRUSet creates a set holding at most capacity keys, each expiring
// ttl after its last observation.
func NewLRUSet(capacity int, ttl time.Duration) *LRUSet {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	s := &LRUSet{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[int64]*entry, capacity),
		head:     &entry{},
		tail:     &entry{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	return s
}

// Observe reports whether the key was already present and unexpired, and
// records it either way. This is the check-then-record primitive: the
// first call for a key returns false, subsequent calls within the TTL
// return true.
func (s *LRUSet) Observe(key int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	if e, ok := s.items[key]; ok {
		if !now.After(e.expiresAt) {
			e.expiresAt = now.Add(s.ttl)
			s.moveToFront(e)
			s.hits++
			return true
		}
		s.removeEntry(e)
	}

	e := &entry{key: key, expiresAt: now.Add(s.ttl)}
	s.addToFront(e)
	s.items[key] = e

	for len(s.items) > s.capacity {
		s.evictOldest()
	}

	s.misses++
	return false
}

// Contains reports presence without refreshing recency or recording.
func (s *LRUSet) Contains(key int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.items[key]; ok {
		return !time.Now().After(e.expiresAt)
	}
	return false
}

// Remove deletes a key. Returns true if it was present.
func (s *LRUSet) Remove(key int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.items[key]; ok {
		s.removeEntry(e)
		return true
	}
	return false
}

// Len returns the current number of keys.
func (s *LRUSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear removes all keys.
func (s *LRUSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[int64]*entry, s.capacity)
	s.head.next = s.tail
	s.tail.prev = s.head
}

// Stats returns hit/miss counts and current size.
func (s *LRUSet) Stats() (hits, misses int64, size int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits, s.misses, len(s.items)
}

// Internal methods, called with mu held.

func (s *LRUSet) addToFront(e *entry) {
	e.prev = s.head
	e.next = s.head.next
	s.head.next.prev = e
	s.head.next = e
}

func (s *LRUSet) moveToFront(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	s.addToFront(e)
}

func (s *LRUSet) removeEntry(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(s.items, e.key)
}

func (s *LRUSet) evictOldest() {
	oldest := s.tail.prev
	if oldest == s.head {
		return
	}
	s.removeEntry(oldest)
}
