// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reconcile keeps precomputed per-element artifacts, such as row
// layouts, consistent with a changing element sequence and changing
// bounding constraints.
//
// # Overview
//
// A Reconciler owns three pieces of state: the stored element sequence, the
// published sequence of (element, artifact) models, and an identity-keyed
// artifact cache. Two mutations drive it:
//
//   - SetConstraints clears the cache and recomputes every artifact.
//   - SetElements diffs the published sequence against the new one and
//     recomputes only inserted and updated elements.
//
// Each mutation advances a generation counter. Work runs on worker
// goroutines and its result is posted back to the control executor, where
// it is published only if no newer mutation has started since.
//
// # Publication
//
// The Consumer sees one of three update kinds:
//
//	NoChange   - nothing visible changed
//	FullReload - rebuild the view from Order and Artifacts
//	Patch      - apply Changes; old indices refer to the previous publication
//
// Discarded updates are delivered only to the per-call completion.
//
// # Example
//
//	loop := control.NewLoop().Start(ctx)
//	r, err := reconcile.New(loop, layout.TextComputer[Row](layout.DefaultTextSizer()),
//	    func(r Row) string { return r.ID },
//	    func(a, b Row) bool { return a.Body == b.Body },
//	)
//	loop.Post(func() {
//	    r.SetConstraints(layout.Bounded(320, 0), reconcile.Async, nil)
//	    r.SetElements(rows, reconcile.Async, func(u reconcile.Update[string, layout.TextLayout]) {
//	        view.Apply(u)
//	    })
//	})
//
// # Thread Safety
//
// A Reconciler is single-writer. Every method must run on the goroutine
// that drains its executor; overlapping calls panic with
// ErrConcurrentMutation. The Computer runs concurrently on workers and
// must not touch shared UI state.
package reconcile
