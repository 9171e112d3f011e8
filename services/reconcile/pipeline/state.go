// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import "fmt"

// State is the pipeline's phase as seen by the latest dispatched job.
type State int32

const (
	// Idle means no job newer than the last settled one is in flight.
	Idle State = iota

	// ComputingBulk means a full recompute for new constraints is in flight.
	ComputingBulk

	// ComputingDiffed means a diff and partial recompute is in flight.
	ComputingDiffed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ComputingBulk:
		return "computing_bulk"
	case ComputingDiffed:
		return "computing_diffed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Mode selects where a job's work runs.
type Mode int

const (
	// Async runs work on a worker goroutine and posts the completion to
	// the control executor.
	Async Mode = iota

	// Sync runs work and completion inline on the caller, which must be on
	// the control context.
	Sync
)

func (m Mode) String() string {
	if m == Sync {
		return "sync"
	}
	return "async"
}

// Model pairs an element with the artifact computed for it.
type Model[E any, A any] struct {
	Element  E
	Artifact A
}

// Elements returns the elements of models in order.
func Elements[E any, A any](models []Model[E, A]) []E {
	out := make([]E, len(models))
	for i, m := range models {
		out[i] = m.Element
	}
	return out
}
