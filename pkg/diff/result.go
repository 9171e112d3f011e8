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

// Pair is an (old, new) index pair.
type Pair struct {
	Old int `json:"old" yaml:"old"`
	New int `json:"new" yaml:"new"`
}

// Result groups an edit script by operation.
type Result struct {
	OldCount int `json:"old_count" yaml:"old_count"`
	NewCount int `json:"new_count" yaml:"new_count"`

	Deletes []int  `json:"deletes" yaml:"deletes"`
	Inserts []int  `json:"inserts" yaml:"inserts"`
	Updates []Pair `json:"updates" yaml:"updates"`
	Moves   []Pair `json:"moves" yaml:"moves"`
}

// Summarize groups changes by operation, preserving their relative order.
func Summarize(changes Changes, oldCount, newCount int) Result {
	r := Result{OldCount: oldCount, NewCount: newCount}
	for _, c := range changes {
		switch c.Op {
		case OpDelete:
			r.Deletes = append(r.Deletes, c.Old)
		case OpInsert:
			r.Inserts = append(r.Inserts, c.New)
		case OpUpdate:
			r.Updates = append(r.Updates, Pair{Old: c.Old, New: c.New})
		case OpMove:
			r.Moves = append(r.Moves, Pair{Old: c.Old, New: c.New})
		}
	}
	return r
}

// ChangesCount returns the total number of operations.
func (r Result) ChangesCount() int {
	return len(r.Deletes) + len(r.Inserts) + len(r.Updates) + len(r.Moves)
}

// IsEmpty reports whether the result holds no operations.
func (r Result) IsEmpty() bool {
	return r.ChangesCount() == 0
}

// Batch is an edit script lowered to the three operations a list view
// animates: delete old rows, insert new rows, move surviving rows.
type Batch struct {
	Deletes []int  `json:"deletes" yaml:"deletes"`
	Inserts []int  `json:"inserts" yaml:"inserts"`
	Moves   []Pair `json:"moves" yaml:"moves"`
}

// TranslateOptions controls how Translate lowers moves.
type TranslateOptions struct {
	// AllowMoves keeps moves as moves. When false each move becomes a
	// delete of the old row plus an insert of the new row.
	AllowMoves bool
}

// Translate lowers changes into a Batch.
//
// Description:
//
//	Updates are always expanded into delete(old) + insert(new) so the
//	consumer reloads the row with its fresh artifact. Moves are kept or
//	expanded according to opts.AllowMoves.
//
// Inputs:
//
//	changes - Edit script from the diff engine.
//	opts - Lowering options.
//
// Outputs:
//
//	Batch - Row operations, in the order the changes listed them.
func Translate(changes Changes, opts TranslateOptions) Batch {
	var b Batch
	for _, c := range changes {
		switch c.Op {
		case OpDelete:
			b.Deletes = append(b.Deletes, c.Old)
		case OpInsert:
			b.Inserts = append(b.Inserts, c.New)
		case OpUpdate:
			b.Deletes = append(b.Deletes, c.Old)
			b.Inserts = append(b.Inserts, c.New)
		case OpMove:
			if opts.AllowMoves {
				b.Moves = append(b.Moves, Pair{Old: c.Old, New: c.New})
			} else {
				b.Deletes = append(b.Deletes, c.Old)
				b.Inserts = append(b.Inserts, c.New)
			}
		}
	}
	return b
}
