// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache holds derived artifacts keyed by element identity.
//
// The cache is keyed by identity only, never by full element, so a content
// change must be invalidated explicitly before the artifact is recomputed.
// Invalidation is driven by the diff engine's edit script:
//
//   - Delete and Update (old side) invalidate the old identity.
//   - Insert has no prior entry.
//   - Move and unchanged elements keep their artifact verbatim.
//
// Clear drops everything and is used whenever bounding constraints change.
package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/listsync/pkg/diff"
)

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Entries       int
	Hits          int64
	Misses        int64
	Puts          int64
	Invalidations int64
	Clears        int64
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache maps identity to artifact.
//
// Description:
//
//	One Cache is owned by one reconciler and mutated only from its control
//	context. Reads from other goroutines are safe; the RWMutex keeps them
//	from observing a torn map during a mutation.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Mutations are expected from a
//	single writer.
type Cache[K comparable, A any] struct {
	mu      sync.RWMutex
	entries map[K]A
	name    string

	hits          atomic.Int64
	misses        atomic.Int64
	puts          atomic.Int64
	invalidations atomic.Int64
	clears        atomic.Int64
}

// New creates an empty cache. name labels its metrics.
func New[K comparable, A any](name string) *Cache[K, A] {
	return &Cache[K, A]{
		entries: make(map[K]A),
		name:    name,
	}
}

// Get returns the artifact for id.
func (c *Cache[K, A]) Get(id K) (A, bool) {
	c.mu.RLock()
	artifact, ok := c.entries[id]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
		recordHit(context.Background(), c.name)
	} else {
		c.misses.Add(1)
		recordMiss(context.Background(), c.name)
	}
	return artifact, ok
}

// Contains reports whether id has an entry without touching hit counters.
func (c *Cache[K, A]) Contains(id K) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[id]
	return ok
}

// Put stores the artifact for id, replacing any previous entry.
func (c *Cache[K, A]) Put(id K, artifact A) {
	c.mu.Lock()
	c.entries[id] = artifact
	c.mu.Unlock()
	c.puts.Add(1)
}

// Invalidate drops the entry for id. Reports whether one existed.
func (c *Cache[K, A]) Invalidate(id K) bool {
	c.mu.Lock()
	_, ok := c.entries[id]
	delete(c.entries, id)
	c.mu.Unlock()

	if ok {
		c.invalidations.Add(1)
		recordInvalidations(context.Background(), c.name, 1)
	}
	return ok
}

// InvalidateFromChanges drops the entries an edit script makes stale.
//
// Description:
//
//	Every Delete and every Update invalidates the identity of its old
//	element. Inserts, moves and unchanged elements are left alone.
//
// Inputs:
//
//	changes - Edit script between the old and new sequences.
//	oldIDs - Identities of the old sequence, indexed like the script's
//	         old indices.
//
// Outputs:
//
//	int - Number of entries actually removed.
//
// Limitations:
//
//	With duplicate identities one entry serves every occurrence, so
//	deleting one occurrence invalidates the survivors too. Callers
//	repopulate survivors after applying the script.
func (c *Cache[K, A]) InvalidateFromChanges(changes diff.Changes, oldIDs []K) int {
	c.mu.Lock()
	removed := 0
	for _, change := range changes {
		switch change.Op {
		case diff.OpDelete, diff.OpUpdate:
			id := oldIDs[change.Old]
			if _, ok := c.entries[id]; ok {
				delete(c.entries, id)
				removed++
			}
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.invalidations.Add(int64(removed))
		recordInvalidations(context.Background(), c.name, removed)
	}
	return removed
}

// Clear drops every entry.
func (c *Cache[K, A]) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
	c.clears.Add(1)
	recordClear(context.Background(), c.name)
}

// Len returns the number of entries.
func (c *Cache[K, A]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of all entries.
func (c *Cache[K, A]) Snapshot() map[K]A {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[K]A, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Stats returns the current counters.
func (c *Cache[K, A]) Stats() Stats {
	return Stats{
		Entries:       c.Len(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Puts:          c.puts.Load(),
		Invalidations: c.invalidations.Load(),
		Clears:        c.clears.Load(),
	}
}
