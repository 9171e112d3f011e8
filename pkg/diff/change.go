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

import (
	"errors"
	"fmt"
	"strings"
)

// Op identifies the kind of a Change.
type Op int

const (
	// OpDelete removes the element at Old.
	OpDelete Op = iota

	// OpInsert adds the element at New.
	OpInsert

	// OpUpdate replaces the content of the element at Old, now at New.
	OpUpdate

	// OpMove relocates the unchanged element at Old to New.
	OpMove
)

// String returns the operation name.
func (op Op) String() string {
	switch op {
	case OpDelete:
		return "delete"
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpMove:
		return "move"
	default:
		return "unknown"
	}
}

// MarshalText encodes the operation by name.
func (op Op) MarshalText() ([]byte, error) {
	if op < OpDelete || op > OpMove {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOp, int(op))
	}
	return []byte(op.String()), nil
}

// UnmarshalText decodes an operation name.
func (op *Op) UnmarshalText(text []byte) error {
	switch string(text) {
	case "delete":
		*op = OpDelete
	case "insert":
		*op = OpInsert
	case "update":
		*op = OpUpdate
	case "move":
		*op = OpMove
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, text)
	}
	return nil
}

// Change is a single edit script operation.
//
// Old is -1 for inserts and New is -1 for deletes.
type Change struct {
	Op  Op  `json:"op" yaml:"op"`
	Old int `json:"old" yaml:"old"`
	New int `json:"new" yaml:"new"`
}

// Delete returns a delete of the element at old index i.
func Delete(i int) Change { return Change{Op: OpDelete, Old: i, New: -1} }

// Insert returns an insert of the element at new index i.
func Insert(i int) Change { return Change{Op: OpInsert, Old: -1, New: i} }

// UpdateAt returns an update of the element at old index o, now at new index n.
func UpdateAt(o, n int) Change { return Change{Op: OpUpdate, Old: o, New: n} }

// MoveTo returns a move of the element at old index from to new index to.
func MoveTo(from, to int) Change { return Change{Op: OpMove, Old: from, New: to} }

// String renders the change as "op(old,new)" or "op(index)".
func (c Change) String() string {
	switch c.Op {
	case OpDelete:
		return fmt.Sprintf("delete(%d)", c.Old)
	case OpInsert:
		return fmt.Sprintf("insert(%d)", c.New)
	default:
		return fmt.Sprintf("%s(%d,%d)", c.Op, c.Old, c.New)
	}
}

// Changes is an edit script.
//
// Engine output lists every delete in old order first, followed by the
// inserts, updates and moves in new order. Consumers must not depend on
// this order to apply the script; the operations are independent.
type Changes []Change

// String renders the script as a space separated list.
func (cs Changes) String() string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Count returns how many changes of the given kind the script contains.
func (cs Changes) Count(op Op) int {
	n := 0
	for _, c := range cs {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Validation errors returned by Changes.Validate.
var (
	// ErrIndexOutOfRange indicates an index outside its sequence.
	ErrIndexOutOfRange = errors.New("change index out of range")

	// ErrIndexReused indicates an index claimed by more than one change.
	ErrIndexReused = errors.New("change index used more than once")

	// ErrUnknownOp indicates a change with an undefined Op.
	ErrUnknownOp = errors.New("unknown change op")

	// ErrUnbalanced indicates the unchanged old and new sets differ in size.
	ErrUnbalanced = errors.New("unchanged old and new counts differ")
)

// Validate checks that the script is well formed for sequences of the
// given lengths.
//
// Description:
//
//	Verifies that every index is in range for its side and that no old or
//	new index is claimed by more than one change. Indices that are never
//	claimed are the implicit "unchanged" set.
//
// Inputs:
//
//	oldCount - Length of the old sequence.
//	newCount - Length of the new sequence.
//
// Outputs:
//
//	error - Nil if valid; otherwise wraps ErrIndexOutOfRange,
//	        ErrIndexReused, ErrUnknownOp or ErrUnbalanced.
func (cs Changes) Validate(oldCount, newCount int) error {
	usedOld := make([]bool, oldCount)
	usedNew := make([]bool, newCount)

	claim := func(c Change, used []bool, idx int, side string) error {
		if idx < 0 || idx >= len(used) {
			return fmt.Errorf("%w: %s %s index %d (len %d)", ErrIndexOutOfRange, c, side, idx, len(used))
		}
		if used[idx] {
			return fmt.Errorf("%w: %s %s index %d", ErrIndexReused, c, side, idx)
		}
		used[idx] = true
		return nil
	}

	for _, c := range cs {
		switch c.Op {
		case OpDelete:
			if err := claim(c, usedOld, c.Old, "old"); err != nil {
				return err
			}
		case OpInsert:
			if err := claim(c, usedNew, c.New, "new"); err != nil {
				return err
			}
		case OpUpdate, OpMove:
			if err := claim(c, usedOld, c.Old, "old"); err != nil {
				return err
			}
			if err := claim(c, usedNew, c.New, "new"); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %d", ErrUnknownOp, int(c.Op))
		}
	}

	// Survivors pair up one to one.
	if deletes, inserts := cs.Count(OpDelete), cs.Count(OpInsert); oldCount-deletes != newCount-inserts {
		return fmt.Errorf("%w: old %d-%d, new %d-%d", ErrUnbalanced, oldCount, deletes, newCount, inserts)
	}
	return nil
}
