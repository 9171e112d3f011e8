// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs artifact computation off the control context and
// decides whether a finished job may still be published.
//
// Every dispatched job captures a generation number. Begin increments the
// counter, so any job started earlier is stale by the time it completes and
// Settle refuses it. In-flight work is never aborted; its result is only
// dropped.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/listsync/pkg/diff"
	"github.com/AleutianAI/listsync/pkg/layout"
	"github.com/AleutianAI/listsync/pkg/logging"
	"github.com/AleutianAI/listsync/services/reconcile/control"
)

const (
	// parallelThreshold is the minimum number of pending computations that
	// triggers fan-out. Smaller batches run on the job goroutine.
	parallelThreshold = 32

	// maxWorkers caps fan-out regardless of CPU count.
	maxWorkers = 16
)

var tracer = otel.Tracer("listsync.pipeline")

// PanicError carries a panic raised by Compute from the goroutine that
// caught it to the one that re-raises it.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("compute panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func asPanicError(r any) *PanicError {
	if pe, ok := r.(*PanicError); ok {
		return pe
	}
	return &PanicError{Value: r, Stack: debug.Stack()}
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	workers int
	logger  *logging.Logger
}

// WithWorkers bounds compute fan-out. Values below 1 mean sequential.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger sets the pipeline's logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Pipeline computes artifacts for element sequences.
//
// Description:
//
//	Begin, Settle and Run are called from the control context. Bulk and
//	Diffed are pure with respect to the pipeline and may run anywhere;
//	they read only their arguments.
//
// Thread Safety:
//
//	Generation and State may be read from any goroutine.
type Pipeline[K comparable, E any, A any] struct {
	computer layout.Computer[E, A]
	identify func(E) K
	equal    func(a, b E) bool
	workers  int
	logger   *logging.Logger

	generation atomic.Uint64
	state      atomic.Int32
}

// New creates a pipeline.
//
// Inputs:
//
//	computer - Produces one artifact per element. Must not be nil.
//	identify - Identity of an element. Must not be nil.
//	equal - Content equality for elements sharing an identity. Must not be nil.
func New[K comparable, E any, A any](
	computer layout.Computer[E, A],
	identify func(E) K,
	equal func(a, b E) bool,
	opts ...Option,
) *Pipeline[K, E, A] {
	o := options{workers: min(runtime.NumCPU(), maxWorkers)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Nop()
	}
	return &Pipeline[K, E, A]{
		computer: computer,
		identify: identify,
		equal:    equal,
		workers:  o.workers,
		logger:   o.logger.With("component", "pipeline"),
	}
}

// Begin starts a new generation for a job of the given kind and returns
// its number. Every job started before it becomes stale.
func (p *Pipeline[K, E, A]) Begin(kind State) uint64 {
	g := p.generation.Add(1)
	p.state.Store(int32(kind))
	jobsTotal.WithLabelValues(kind.String()).Inc()
	return g
}

// Generation returns the number of the latest started job.
func (p *Pipeline[K, E, A]) Generation() uint64 {
	return p.generation.Load()
}

// State returns the phase of the latest started job.
func (p *Pipeline[K, E, A]) State() State {
	return State(p.state.Load())
}

// Settle reports whether a completed job of generation g may publish.
//
// A current job returns the pipeline to Idle. A stale job leaves the state
// of the newer job untouched.
func (p *Pipeline[K, E, A]) Settle(g uint64) bool {
	if g != p.generation.Load() {
		resultsTotal.WithLabelValues("discarded").Inc()
		p.logger.Debug("discarding stale result",
			"generation", g,
			"current", p.generation.Load(),
		)
		return false
	}
	p.state.Store(int32(Idle))
	resultsTotal.WithLabelValues("published").Inc()
	return true
}

// Run executes work and then complete.
//
// Description:
//
//	In Sync mode both run inline on the caller. In Async mode work runs on
//	a new goroutine and complete is posted to exec once work returns. A
//	panic in work is recovered on the worker and re-raised as a
//	*PanicError inside the posted task, so it surfaces on the control
//	context instead of crashing an anonymous goroutine.
func (p *Pipeline[K, E, A]) Run(mode Mode, exec control.Executor, work func(), complete func()) {
	if mode == Sync {
		work()
		complete()
		return
	}

	go func() {
		var caught *PanicError
		func() {
			defer func() {
				if r := recover(); r != nil {
					caught = asPanicError(r)
				}
			}()
			work()
		}()

		exec.Post(func() {
			if caught != nil {
				panic(caught)
			}
			complete()
		})
	}()
}

// Bulk computes an artifact for every element under c.
func (p *Pipeline[K, E, A]) Bulk(ctx context.Context, elements []E, c layout.Constraints) []Model[E, A] {
	ctx, span := tracer.Start(ctx, "pipeline.Bulk",
		trace.WithAttributes(
			attribute.Int("elements", len(elements)),
			attribute.String("constraints", c.String()),
		),
	)
	defer span.End()
	start := time.Now()

	models := make([]Model[E, A], len(elements))
	pending := make([]int, len(elements))
	for i := range elements {
		models[i].Element = elements[i]
		pending[i] = i
	}
	p.compute(ctx, models, pending, c)

	jobDuration.WithLabelValues(ComputingBulk.String()).Observe(time.Since(start).Seconds())
	return models
}

// DiffedResult is the outcome of a diffed job.
type DiffedResult[E any, A any] struct {
	// Changes is the edit script from the published sequence to the new one.
	Changes diff.Changes

	// Models is the new visible sequence. Nil when Empty.
	Models []Model[E, A]

	// Fresh marks the models whose artifact was computed by this job.
	Fresh []bool

	// Rebased is set when no published artifact could be reused because
	// they were computed under different constraints.
	Rebased bool

	// Empty is set when nothing changed and nothing was recomputed.
	Empty bool

	Computed int
	Reused   int
}

// Diffed computes the edit script from published to next and produces the
// new visible sequence, recomputing only what the script requires.
//
// Description:
//
//	With reuse set, each new element matched by the diff to an unchanged
//	published element takes over its artifact, including across moves.
//	Inserts and updates are always computed.
//	Without reuse every artifact is recomputed and the result is Rebased,
//	even when the script is empty.
//
// Inputs:
//
//	published - Currently visible models. Not modified.
//	reuse - Whether published artifacts match constraints c.
//	next - The new element sequence.
//	c - Constraints for any computation.
func (p *Pipeline[K, E, A]) Diffed(
	ctx context.Context,
	published []Model[E, A],
	reuse bool,
	next []E,
	c layout.Constraints,
) DiffedResult[E, A] {
	ctx, span := tracer.Start(ctx, "pipeline.Diffed",
		trace.WithAttributes(
			attribute.Int("old_elements", len(published)),
			attribute.Int("new_elements", len(next)),
			attribute.Bool("reuse", reuse),
		),
	)
	defer span.End()
	start := time.Now()

	old := Elements(published)
	changes := diff.BetweenFunc(old, next, p.identify, p.equal)
	span.SetAttributes(attribute.Int("changes", len(changes)))

	if dups := diff.Duplicates(next, p.identify); len(dups) > 0 {
		p.logger.Warn("duplicate identities in element sequence",
			"count", len(dups),
		)
	}

	if len(changes) == 0 && reuse {
		return DiffedResult[E, A]{Empty: true}
	}

	// Artifacts follow the diff's own pairing, so a duplicate identity
	// never inherits the artifact of a different element.
	var matches []int
	if reuse {
		matches = diff.Matches(old, next, p.identify)
	}

	models := make([]Model[E, A], len(next))
	fresh := make([]bool, len(next))
	var pending []int
	for i, e := range next {
		models[i].Element = e
		if reuse {
			if j := matches[i]; j >= 0 && p.equal(old[j], e) {
				models[i].Artifact = published[j].Artifact
				continue
			}
		}
		fresh[i] = true
		pending = append(pending, i)
	}
	p.compute(ctx, models, pending, c)

	reused := len(next) - len(pending)
	artifactsReused.Add(float64(reused))
	jobDuration.WithLabelValues(ComputingDiffed.String()).Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("computed", len(pending)),
		attribute.Int("reused", reused),
	)

	return DiffedResult[E, A]{
		Changes:  changes,
		Models:   models,
		Fresh:    fresh,
		Rebased:  !reuse && len(published) > 0,
		Computed: len(pending),
		Reused:   reused,
	}
}

// compute fills models[i].Artifact for every i in pending.
//
// Small batches run sequentially. Larger ones are split into contiguous
// chunks over an errgroup bounded by the worker count. A panic in any chunk
// is re-raised on the calling goroutine after the others finish.
func (p *Pipeline[K, E, A]) compute(ctx context.Context, models []Model[E, A], pending []int, c layout.Constraints) {
	if len(pending) == 0 {
		return
	}
	defer artifactsComputed.Add(float64(len(pending)))

	if p.workers <= 1 || len(pending) < parallelThreshold {
		for _, i := range pending {
			models[i].Artifact = p.computer.Compute(ctx, models[i].Element, c)
		}
		return
	}

	chunk := (len(pending) + p.workers - 1) / p.workers
	var (
		g      errgroup.Group
		once   sync.Once
		caught *PanicError
	)
	g.SetLimit(p.workers)

	for lo := 0; lo < len(pending); lo += chunk {
		part := pending[lo:min(lo+chunk, len(pending))]
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					once.Do(func() { caught = asPanicError(r) })
				}
			}()
			for _, i := range part {
				models[i].Artifact = p.computer.Compute(ctx, models[i].Element, c)
			}
			return nil
		})
	}
	_ = g.Wait()

	if caught != nil {
		panic(caught)
	}
}
