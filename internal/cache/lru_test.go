// Waypost - Multi-Source Location Ingestion and Live Broadcast Relay
// Copyright 2026 M. Krein (mkrein)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mkrein/waypost

package cache

import (
	"testing"
	"time"
)

func TestObserveFirstAndRepeat(t *testing.T) {
	s := NewLRUSet(10, time.Minute)

	if s.Observe(1) {
		t.Error("first Observe should return false")
	}
	if !s.Observe(1) {
		t.Error("second Observe should return true")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestCapacityEviction(t *testing.T) {
	s := NewLRUSet(3, time.Minute)

	for key := int64(1); key <= 4; key++ {
		s.Observe(key)
	}

	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3 after eviction", s.Len())
	}
	if s.Contains(1) {
		t.Error("key 1 should have been evicted as least recently used")
	}
	if !s.Contains(4) {
		t.Error("key 4 should be present")
	}
}

func TestRecencyOrdering(t *testing.T) {
	s := NewLRUSet(3, time.Minute)

	s.Observe(1)
	s.Observe(2)
	s.Observe(3)
	// Touch 1 so 2 becomes the oldest.
	s.Observe(1)
	s.Observe(4)

	if s.Contains(2) {
		t.Error("key 2 should have been evicted")
	}
	if !s.Contains(1) {
		t.Error("key 1 was recently observed and should remain")
	}
}

func TestTTLExpiry(t *testing.T) {
	s := NewLRUSet(10, 10*time.Millisecond)

	s.Observe(7)
	time.Sleep(20 * time.Millisecond)

	if s.Contains(7) {
		t.Error("expired key should not be contained")
	}
	if s.Observe(7) {
		t.Error("Observe after expiry should report not-seen")
	}
}

func TestRemoveAndClear(t *testing.T) {
	s := NewLRUSet(10, time.Minute)

	s.Observe(1)
	s.Observe(2)

	if !s.Remove(1) {
		t.Error("Remove should report the key was present")
	}
	if s.Remove(1) {
		t.Error("Remove of absent key should report false")
	}

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len = %d after Clear, want 0", s.Len())
	}
	if s.Observe(2) {
		t.Error("cleared key should be unseen")
	}
}

func TestStats(t *testing.T) {
	s := NewLRUSet(10, time.Minute)

	s.Observe(1)
	s.Observe(1)
	s.Observe(2)

	hits, misses, size := s.Stats()
	if hits != 1 || misses != 2 || size != 2 {
		t.Errorf("Stats = (%d, %d, %d), want (1, 2, 2)", hits, misses, size)
	}
}
