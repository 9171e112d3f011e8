// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff computes edit scripts between two versions of an ordered,
// identity-keyed sequence.
//
// The engine is a two-pass, hash-bucketed algorithm that runs in expected
// O(n + m) time and space. It uses only element identity (to decide which
// old and new elements are "the same") and content equality (to decide
// whether a matched element changed in place).
//
// # Operations
//
// An edit script (Changes) is built from four operations:
//
//   - Delete(old): the element exists only in the old sequence.
//   - Insert(new): the element exists only in the new sequence.
//   - Update(old, new): same identity, different content.
//   - Move(old, new): same identity and content, shifted beyond what the
//     surrounding deletes and inserts explain.
//
// Every old index appears in at most one Delete, Update or Move; every new
// index in at most one Insert, Update or Move. Indices that appear in no
// operation are unchanged.
//
// # Duplicate Identities
//
// Duplicate identities are not an error. Old occurrences of an identity
// are consumed in index order and matched against new occurrences in index
// order (first-in, first-out). This is a stable greedy assignment, not a
// minimum-move matching, so some inputs report a move where a human would
// see a swap.
//
// # Update Precedence
//
// A matched pair whose content differs is reported as Update even when its
// position also changed. No combined "moved and updated" operation exists.
//
// # Usage
//
//	changes := diff.Between([]rune("abc"), []rune("acb"))
//	// [move(2,1) move(1,2)]
//
//	changes = diff.BetweenFunc(oldRows, newRows,
//	    func(r Row) string { return r.ID },
//	    func(a, b Row) bool { return a.Value == b.Value },
//	)
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use. Comparator panics
// propagate to the caller.
package diff
