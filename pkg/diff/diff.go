// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

// noRef marks a record without a matched counterpart.
const noRef = -1

// bucket collects the occurrences of one identity across both sequences.
//
// oldIndices is consumed front to back through head, so popping never
// reallocates.
type bucket struct {
	newCount   int
	oldIndices []int
	head       int
}

func (b *bucket) popFirst() (int, bool) {
	if b.head >= len(b.oldIndices) {
		return 0, false
	}
	idx := b.oldIndices[b.head]
	b.head++
	return idx, true
}

// Between computes the edit script between two sequences of comparable
// values.
//
// Description:
//
//	Each value doubles as its own identity and content, so updates are
//	never reported: an equal value is the same element, a different value
//	is a delete plus an insert.
//
// Inputs:
//
//	oldItems - The previous sequence. Not modified.
//	newItems - The next sequence. Not modified.
//
// Outputs:
//
//	Changes - The edit script. Nil when both sequences are equal.
//
// Example:
//
//	diff.Between([]rune("abc"), []rune("acb")) // [move(2,1) move(1,2)]
//
// Thread Safety: Safe for concurrent use.
func Between[T comparable](oldItems, newItems []T) Changes {
	return BetweenFunc(oldItems, newItems,
		func(v T) T { return v },
		func(a, b T) bool { return a == b },
	)
}

// BetweenDiffable computes the edit script between two sequences whose
// elements carry their own identity and content comparison.
//
// The identity type usually needs to be given explicitly:
//
//	diff.BetweenDiffable[string](oldItems, newItems)
func BetweenDiffable[K comparable, T Diffable[K, T]](oldItems, newItems []T) Changes {
	return BetweenFunc(oldItems, newItems,
		func(v T) K { return v.DiffID() },
		func(a, b T) bool { return a.ContentEqual(b) },
	)
}

// BetweenFunc computes the edit script between two sequences using explicit
// identity and content predicates.
//
// Description:
//
//	Runs the two-pass bucketed diff:
//
//	 1. Degenerate inputs short-circuit to all inserts or all deletes.
//	 2. Every element is bucketed by identity. New elements bump the
//	    bucket's new count; old elements append their index to the
//	    bucket's FIFO queue.
//	 3. New elements, in order, claim the lowest unclaimed old index of
//	    their bucket.
//	 4. Unclaimed old elements become deletes. A running delete offset is
//	    recorded for every old index.
//	 5. Unclaimed new elements become inserts, tracked by a running insert
//	    offset. A matched pair whose content differs is an update; an
//	    unchanged pair whose predicted index (old - deleteOffset +
//	    insertOffset) differs from its new index is a move.
//
// Inputs:
//
//	oldItems - The previous sequence. Not modified.
//	newItems - The next sequence. Not modified.
//	id - Returns the identity of an element. Must be deterministic.
//	equal - Reports content equality. Only called on pairs with the
//	        same identity.
//
// Outputs:
//
//	Changes - The edit script. Nil when there is nothing to do.
//
// Performance:
//
//	| Phase     | Complexity   |
//	|-----------|--------------|
//	| Bucketing | O(n + m)     |
//	| Matching  | O(m)         |
//	| Emission  | O(n + m)     |
//
// Limitations:
//
//	Duplicate identities are matched first-in, first-out, which is stable
//	but not move-minimal.
//
// Thread Safety: Safe for concurrent use if id and equal are.
func BetweenFunc[T any, K comparable](oldItems, newItems []T, id func(T) K, equal func(a, b T) bool) Changes {
	if len(oldItems) == 0 && len(newItems) == 0 {
		return nil
	}

	if len(oldItems) == 0 {
		changes := make(Changes, len(newItems))
		for i := range newItems {
			changes[i] = Insert(i)
		}
		return changes
	}

	if len(newItems) == 0 {
		changes := make(Changes, len(oldItems))
		for i := range oldItems {
			changes[i] = Delete(i)
		}
		return changes
	}

	newRefs := Matches(oldItems, newItems, id)
	oldRefs := make([]int, len(oldItems))
	for i := range oldRefs {
		oldRefs[i] = noRef
	}
	for newIndex, oldIndex := range newRefs {
		if oldIndex != noRef {
			oldRefs[oldIndex] = newIndex
		}
	}

	var changes Changes

	offset := 0
	deleteOffsets := make([]int, len(oldItems))
	for oldIndex, ref := range oldRefs {
		deleteOffsets[oldIndex] = offset
		if ref == noRef {
			changes = append(changes, Delete(oldIndex))
			offset++
		}
	}

	offset = 0
	for newIndex, oldIndex := range newRefs {
		if oldIndex == noRef {
			changes = append(changes, Insert(newIndex))
			offset++
			continue
		}

		moved := oldIndex-deleteOffsets[oldIndex]+offset != newIndex
		updated := !equal(oldItems[oldIndex], newItems[newIndex])

		switch {
		case updated:
			changes = append(changes, UpdateAt(oldIndex, newIndex))
		case moved:
			changes = append(changes, MoveTo(oldIndex, newIndex))
		}
	}

	return changes
}

// Matches pairs every new element with the old element it continues.
//
// Description:
//
//	New elements, in order, claim the lowest unclaimed old index of the
//	same identity. This is the pairing BetweenFunc reports changes
//	against: unmatched new elements are its inserts, and every matched
//	pair is either unchanged, moved or updated.
//
// Outputs:
//
//	[]int - For each new index, the matched old index or -1.
func Matches[T any, K comparable](oldItems, newItems []T, id func(T) K) []int {
	refs := make([]int, len(newItems))
	for i := range refs {
		refs[i] = noRef
	}
	if len(oldItems) == 0 || len(newItems) == 0 {
		return refs
	}

	// Buckets live in one arena; the table maps identity to arena slot.
	table := make(map[K]int, len(newItems))
	buckets := make([]bucket, 0, len(newItems))

	slotFor := func(key K) int {
		slot, ok := table[key]
		if !ok {
			slot = len(buckets)
			buckets = append(buckets, bucket{})
			table[key] = slot
		}
		return slot
	}

	newSlots := make([]int, len(newItems))
	for i, item := range newItems {
		slot := slotFor(id(item))
		buckets[slot].newCount++
		newSlots[i] = slot
	}
	for i, item := range oldItems {
		slot, ok := table[id(item)]
		if !ok {
			continue
		}
		buckets[slot].oldIndices = append(buckets[slot].oldIndices, i)
	}

	for newIndex, slot := range newSlots {
		if oldIndex, ok := buckets[slot].popFirst(); ok {
			refs[newIndex] = oldIndex
		}
	}
	return refs
}
