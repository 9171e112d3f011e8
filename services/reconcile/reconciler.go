// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reconcile

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/AleutianAI/listsync/pkg/diff"
	"github.com/AleutianAI/listsync/pkg/layout"
	"github.com/AleutianAI/listsync/pkg/logging"
	"github.com/AleutianAI/listsync/services/reconcile/cache"
	"github.com/AleutianAI/listsync/services/reconcile/control"
	"github.com/AleutianAI/listsync/services/reconcile/pipeline"
)

// Reconciler keeps a cache of derived artifacts in step with an element
// sequence and the constraints artifacts are computed under.
//
// Description:
//
//	All methods must be called from the control context, the goroutine
//	draining exec. Async completions are posted back to exec, so published
//	state only ever changes there. A completion whose generation has been
//	overtaken by a newer mutation is discarded.
//
// Thread Safety:
//
//	Not safe for concurrent use. Overlapping calls from two goroutines
//	panic with ErrConcurrentMutation.
type Reconciler[K comparable, E any, A any] struct {
	exec     control.Executor
	pipeline *pipeline.Pipeline[K, E, A]
	cache    *cache.Cache[K, A]
	identify func(E) K
	consumer Consumer[K, A]
	logger   *logging.Logger
	ctx      context.Context

	constraints layout.Constraints
	elements    []E

	// models is the published sequence; modelsUnder the constraints its
	// artifacts were computed with. Both are replaced, never mutated.
	models      []pipeline.Model[E, A]
	modelsUnder layout.Constraints

	busy    atomic.Bool
	pending []func()
}

// New creates a reconciler with no elements and no constraints.
//
// Inputs:
//
//	exec - Control executor that completions are posted to.
//	computer - Produces artifacts on worker goroutines.
//	identify - Stable identity of an element.
//	equal - Content equality for two elements with the same identity.
//
// Outputs:
//
//	*Reconciler - Ready for use on the control context.
//	error - ErrNilExecutor, ErrNilComputer or ErrNilIdentity.
func New[K comparable, E any, A any](
	exec control.Executor,
	computer layout.Computer[E, A],
	identify func(E) K,
	equal func(a, b E) bool,
	opts ...Option,
) (*Reconciler[K, E, A], error) {
	if exec == nil {
		return nil, ErrNilExecutor
	}
	if computer == nil {
		return nil, ErrNilComputer
	}
	if identify == nil || equal == nil {
		return nil, ErrNilIdentity
	}

	o := options{name: "reconciler"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Nop()
	}
	if o.ctx == nil {
		o.ctx = context.Background()
	}

	logger := o.logger.With("reconciler", o.name)
	pipeOpts := []pipeline.Option{pipeline.WithLogger(logger)}
	if o.workers != 0 {
		pipeOpts = append(pipeOpts, pipeline.WithWorkers(o.workers))
	}

	return &Reconciler[K, E, A]{
		exec:     exec,
		pipeline: pipeline.New(computer, identify, equal, pipeOpts...),
		cache:    cache.New[K, A](o.name),
		identify: identify,
		logger:   logger,
		ctx:      context.WithoutCancel(o.ctx),
	}, nil
}

// NewDiffable creates a reconciler for elements that carry their own
// identity and content comparison.
func NewDiffable[K comparable, E diff.Diffable[K, E], A any](
	exec control.Executor,
	computer layout.Computer[E, A],
	opts ...Option,
) (*Reconciler[K, E, A], error) {
	return New(exec, computer,
		func(e E) K { return e.DiffID() },
		func(a, b E) bool { return a.ContentEqual(b) },
		opts...,
	)
}

// SetConsumer installs the consumer that receives every non-discarded
// update. Passing nil removes it.
func (r *Reconciler[K, E, A]) SetConsumer(c Consumer[K, A]) {
	r.enter()
	defer r.exit()
	r.consumer = c
}

// SetConstraints records new bounding constraints and recomputes every
// artifact under them.
//
// Description:
//
//	Empty constraints and constraints equal to the current ones complete
//	with NoChange. Otherwise the generation advances, the cache is cleared
//	and a bulk job is dispatched. Until it publishes, ArtifactFor reports
//	nothing for any identity. On publication the consumer receives a
//	FullReload.
//
// Inputs:
//
//	c - New constraints.
//	mode - Async or Sync.
//	done - Optional completion, called on the control context exactly once.
func (r *Reconciler[K, E, A]) SetConstraints(c layout.Constraints, mode Mode, done func(Update[K, A])) {
	r.enter()
	defer r.exit()

	if c.IsEmpty() {
		r.logger.Warn("ignoring constraints with no usable dimension", "constraints", c.String())
		r.finish(Update[K, A]{Kind: NoChange, Generation: r.pipeline.Generation()}, done, true)
		return
	}
	if c.Equal(r.constraints) {
		r.finish(Update[K, A]{Kind: NoChange, Generation: r.pipeline.Generation()}, done, true)
		return
	}

	r.constraints = c
	g := r.pipeline.Begin(pipeline.ComputingBulk)
	r.cache.Clear()
	elements := r.elements

	r.logger.Debug("dispatching bulk job",
		"generation", g,
		"elements", len(elements),
		"constraints", c.String(),
		"mode", mode.String(),
	)

	var models []pipeline.Model[E, A]
	r.pipeline.Run(mode, guarded[K, E, A]{r},
		func() { models = r.pipeline.Bulk(r.ctx, elements, c) },
		func() { r.applyBulk(g, c, models, done) },
	)
}

// SetElements replaces the element sequence.
//
// Description:
//
//	The sequence is stored immediately. With no constraints yet the call
//	completes with NoChange. Otherwise a diffed job computes the edit
//	script from the published sequence, recomputes only inserted and
//	updated elements, and publishes a Patch. A FullReload is published
//	instead when either side is empty or the published artifacts were
//	computed under older constraints.
//
// Inputs:
//
//	elements - New sequence. The slice is copied.
//	mode - Async or Sync.
//	done - Optional completion, called on the control context exactly once.
func (r *Reconciler[K, E, A]) SetElements(elements []E, mode Mode, done func(Update[K, A])) {
	r.enter()
	defer r.exit()

	next := slices.Clone(elements)
	r.elements = next

	if r.constraints.IsEmpty() {
		r.finish(Update[K, A]{Kind: NoChange, Generation: r.pipeline.Generation()}, done, true)
		return
	}

	c := r.constraints
	g := r.pipeline.Begin(pipeline.ComputingDiffed)
	published := r.models
	reuse := !r.modelsUnder.IsEmpty() && r.modelsUnder.Equal(c)

	r.logger.Debug("dispatching diffed job",
		"generation", g,
		"old_elements", len(published),
		"new_elements", len(next),
		"reuse", reuse,
		"mode", mode.String(),
	)

	var res pipeline.DiffedResult[E, A]
	r.pipeline.Run(mode, guarded[K, E, A]{r},
		func() { res = r.pipeline.Diffed(r.ctx, published, reuse, next, c) },
		func() { r.applyDiffed(g, c, published, res, done) },
	)
}

// MoveElement reorders one element in place, as when a user drags a row.
//
// Description:
//
//	The element and its artifact move together. No job is dispatched, the
//	generation does not advance and nothing is published. The move is
//	refused while a job is in flight or while the stored sequence differs
//	in length from the published one.
//
// Outputs:
//
//	bool - True if the move was applied.
func (r *Reconciler[K, E, A]) MoveElement(from, to int) bool {
	r.enter()
	defer r.exit()

	n := len(r.models)
	if r.pipeline.State() != pipeline.Idle || len(r.elements) != n {
		return false
	}
	if from < 0 || from >= n || to < 0 || to >= n {
		return false
	}
	if from == to {
		return true
	}

	r.elements = moved(r.elements, from, to)
	r.models = moved(r.models, from, to)
	return true
}

// ArtifactFor returns the published artifact for id.
func (r *Reconciler[K, E, A]) ArtifactFor(id K) (A, bool) {
	return r.cache.Get(id)
}

// Count returns the length of the published sequence.
func (r *Reconciler[K, E, A]) Count() int {
	return len(r.models)
}

// Elements returns a copy of the stored element sequence, which may be
// ahead of the published one.
func (r *Reconciler[K, E, A]) Elements() []E {
	return slices.Clone(r.elements)
}

// Published returns the identities of the published sequence in order.
func (r *Reconciler[K, E, A]) Published() []K {
	return r.order()
}

// Constraints returns the current constraints.
func (r *Reconciler[K, E, A]) Constraints() layout.Constraints {
	return r.constraints
}

// Generation returns the number of the latest dispatched job.
func (r *Reconciler[K, E, A]) Generation() uint64 {
	return r.pipeline.Generation()
}

// State returns the phase of the latest dispatched job.
func (r *Reconciler[K, E, A]) State() pipeline.State {
	return r.pipeline.State()
}

// CacheStats returns the artifact cache counters.
func (r *Reconciler[K, E, A]) CacheStats() cache.Stats {
	return r.cache.Stats()
}

// =============================================================================
// Completion
// =============================================================================

func (r *Reconciler[K, E, A]) applyBulk(g uint64, c layout.Constraints, models []pipeline.Model[E, A], done func(Update[K, A])) {
	if !r.pipeline.Settle(g) {
		r.finish(Update[K, A]{Generation: g, Discarded: true}, done, false)
		return
	}

	r.models = models
	r.modelsUnder = c
	r.refill()
	r.logger.Info("published full reload", "generation", g, "elements", len(models))
	r.finish(r.reload(g), done, true)
}

func (r *Reconciler[K, E, A]) applyDiffed(
	g uint64,
	c layout.Constraints,
	published []pipeline.Model[E, A],
	res pipeline.DiffedResult[E, A],
	done func(Update[K, A]),
) {
	if !r.pipeline.Settle(g) {
		r.finish(Update[K, A]{Generation: g, Discarded: true}, done, false)
		return
	}

	if res.Empty || (len(published) == 0 && len(res.Models) == 0) {
		r.modelsUnder = c
		r.finish(Update[K, A]{Kind: NoChange, Generation: g}, done, true)
		return
	}

	r.models = res.Models
	r.modelsUnder = c

	if len(published) == 0 || len(res.Models) == 0 || res.Rebased {
		r.refill()
		r.logger.Info("published full reload",
			"generation", g,
			"elements", len(res.Models),
			"rebased", res.Rebased,
		)
		r.finish(r.reload(g), done, true)
		return
	}

	oldIDs := make([]K, len(published))
	for i, m := range published {
		oldIDs[i] = r.identify(m.Element)
	}
	r.cache.InvalidateFromChanges(res.Changes, oldIDs)
	for i, m := range res.Models {
		id := r.identify(m.Element)
		if res.Fresh[i] || !r.cache.Contains(id) {
			r.cache.Put(id, m.Artifact)
		}
	}

	r.logger.Info("published patch",
		"generation", g,
		"changes", len(res.Changes),
		"computed", res.Computed,
		"reused", res.Reused,
	)
	r.finish(Update[K, A]{Kind: Patch, Generation: g, Changes: res.Changes}, done, true)
}

// refill rebuilds the cache from the published models.
func (r *Reconciler[K, E, A]) refill() {
	r.cache.Clear()
	for _, m := range r.models {
		r.cache.Put(r.identify(m.Element), m.Artifact)
	}
}

func (r *Reconciler[K, E, A]) reload(g uint64) Update[K, A] {
	artifacts := make(map[K]A, len(r.models))
	for _, m := range r.models {
		artifacts[r.identify(m.Element)] = m.Artifact
	}
	return Update[K, A]{
		Kind:       FullReload,
		Generation: g,
		Order:      r.order(),
		Artifacts:  artifacts,
	}
}

func (r *Reconciler[K, E, A]) order() []K {
	ids := make([]K, len(r.models))
	for i, m := range r.models {
		ids[i] = r.identify(m.Element)
	}
	return ids
}

// finish queues u for the consumer and done. Both run once the reconciler
// has been released, so either may call back into it.
func (r *Reconciler[K, E, A]) finish(u Update[K, A], done func(Update[K, A]), publish bool) {
	consumer := r.consumer
	r.pending = append(r.pending, func() {
		if publish && consumer != nil {
			consumer.Publish(u)
		}
		if done != nil {
			done(u)
		}
	})
}

// =============================================================================
// Ownership
// =============================================================================

func (r *Reconciler[K, E, A]) enter() {
	if !r.busy.CompareAndSwap(false, true) {
		panic(ErrConcurrentMutation)
	}
}

// exit releases the reconciler and runs queued callbacks. On panic the
// callbacks are dropped and the panic continues.
func (r *Reconciler[K, E, A]) exit() {
	if p := recover(); p != nil {
		r.pending = nil
		r.busy.Store(false)
		panic(p)
	}

	pending := r.pending
	r.pending = nil
	r.busy.Store(false)
	for _, fn := range pending {
		fn()
	}
}

// guarded posts completions to the reconciler's executor wrapped in the
// ownership guard.
type guarded[K comparable, E any, A any] struct {
	r *Reconciler[K, E, A]
}

func (g guarded[K, E, A]) Post(task func()) {
	g.r.exec.Post(func() {
		g.r.enter()
		defer g.r.exit()
		task()
	})
}

func moved[T any](s []T, from, to int) []T {
	out := slices.Clone(s)
	v := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, v)
}
