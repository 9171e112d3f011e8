// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"sync"
	"testing"

	"github.com/AleutianAI/listsync/pkg/diff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type artifact struct{ n int }

func TestCache_GetPut(t *testing.T) {
	c := New[string, *artifact]("test")

	_, ok := c.Get("a")
	assert.False(t, ok)

	a := &artifact{n: 1}
	c.Put("a", a)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.True(t, c.Contains("a"))
	assert.Equal(t, 1, c.Len())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Puts)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

func TestCache_Invalidate(t *testing.T) {
	c := New[string, int]("test")
	c.Put("a", 1)

	assert.True(t, c.Invalidate("a"))
	assert.False(t, c.Invalidate("a"))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(1), c.Stats().Invalidations)
}

func TestCache_InvalidateFromChanges(t *testing.T) {
	old := []string{"a", "b", "c", "d"}
	c := New[string, int]("test")
	for i, id := range old {
		c.Put(id, i)
	}

	// a deleted, b updated in place, c moved, d untouched
	changes := diff.Changes{
		diff.Delete(0),
		diff.UpdateAt(1, 0),
		diff.MoveTo(2, 2),
		diff.Insert(1),
	}

	removed := c.InvalidateFromChanges(changes, old)
	assert.Equal(t, 2, removed)

	assert.False(t, c.Contains("a"))
	assert.False(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
	assert.True(t, c.Contains("d"))
}

func TestCache_InvalidateFromChanges_MissingEntries(t *testing.T) {
	c := New[string, int]("test")
	removed := c.InvalidateFromChanges(diff.Changes{diff.Delete(0)}, []string{"ghost"})
	assert.Zero(t, removed)
	assert.Zero(t, c.Stats().Invalidations)
}

func TestCache_Clear(t *testing.T) {
	c := New[int, string]("test")
	c.Put(1, "x")
	c.Put(2, "y")

	c.Clear()

	assert.Zero(t, c.Len())
	assert.Equal(t, int64(1), c.Stats().Clears)
}

func TestCache_SnapshotIsCopy(t *testing.T) {
	c := New[string, int]("test")
	c.Put("a", 1)

	snap := c.Snapshot()
	snap["b"] = 2

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, map[string]int{"a": 1}, c.Snapshot())
}

func TestCache_ConcurrentReaders(t *testing.T) {
	c := New[int, int]("test")
	for i := 0; i < 100; i++ {
		c.Put(i, i*i)
	}

	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				v, ok := c.Get(i)
				if ok {
					assert.Equal(t, i*i, v)
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		c.Invalidate(i)
	}
	wg.Wait()

	assert.Equal(t, 50, c.Len())
}

func TestStats_HitRateEmpty(t *testing.T) {
	assert.Zero(t, Stats{}.HitRate())
}
