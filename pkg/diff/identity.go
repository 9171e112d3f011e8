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

// Identifiable is implemented by elements that carry a stable identity.
//
// The identity must stay the same across versions of "the same logical
// element" and should be unique within one sequence. Duplicates are
// tolerated and matched first-in, first-out.
type Identifiable[K comparable] interface {
	DiffID() K
}

// Diffable is implemented by elements that carry an identity and a content
// comparison.
//
// ContentEqual is only called with an element of the same identity.
type Diffable[K comparable, T any] interface {
	Identifiable[K]
	ContentEqual(other T) bool
}

// Keyed pairs a value with an explicit identity.
//
// It is the simplest Diffable: two Keyed values with the same ID are the
// same element, and their Values decide content equality.
type Keyed[K comparable, V comparable] struct {
	ID    K `json:"id" yaml:"id"`
	Value V `json:"value" yaml:"value"`
}

// DiffID implements Identifiable.
func (k Keyed[K, V]) DiffID() K { return k.ID }

// ContentEqual implements Diffable.
func (k Keyed[K, V]) ContentEqual(other Keyed[K, V]) bool { return k.Value == other.Value }

// IDs returns the identities of the given elements in order.
func IDs[K comparable, T Identifiable[K]](items []T) []K {
	ids := make([]K, len(items))
	for i, item := range items {
		ids[i] = item.DiffID()
	}
	return ids
}

// Duplicates returns every identity that occurs more than once in items,
// in order of second occurrence.
func Duplicates[T any, K comparable](items []T, id func(T) K) []K {
	seen := make(map[K]int, len(items))
	var dups []K
	for _, item := range items {
		key := id(item)
		seen[key]++
		if seen[key] == 2 {
			dups = append(dups, key)
		}
	}
	return dups
}
