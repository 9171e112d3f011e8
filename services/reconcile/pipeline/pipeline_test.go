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

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/listsync/pkg/diff"
	"github.com/AleutianAI/listsync/pkg/layout"
	"github.com/AleutianAI/listsync/services/reconcile/control"
)

type row struct {
	id   string
	text string
}

type measured struct {
	id    string
	text  string
	width float64
}

type countingComputer struct {
	calls atomic.Int64
	panic string
}

func (c *countingComputer) Compute(_ context.Context, r row, cons layout.Constraints) *measured {
	c.calls.Add(1)
	if c.panic != "" && r.id == c.panic {
		panic("layout exploded for " + r.id)
	}
	w, _ := cons.Size()
	return &measured{id: r.id, text: r.text, width: w}
}

func newTestPipeline(workers int) (*Pipeline[string, row, *measured], *countingComputer) {
	comp := &countingComputer{}
	p := New[string, row, *measured](
		comp,
		func(r row) string { return r.id },
		func(a, b row) bool { return a.text == b.text },
		WithWorkers(workers),
	)
	return p, comp
}

func rows(ids ...string) []row {
	out := make([]row, len(ids))
	for i, id := range ids {
		out[i] = row{id: id, text: id}
	}
	return out
}

func TestPipeline_BeginSettle(t *testing.T) {
	p, _ := newTestPipeline(1)
	assert.Equal(t, Idle, p.State())

	g1 := p.Begin(ComputingBulk)
	assert.Equal(t, ComputingBulk, p.State())
	g2 := p.Begin(ComputingDiffed)
	assert.Equal(t, g1+1, g2)
	assert.Equal(t, g2, p.Generation())

	assert.False(t, p.Settle(g1), "superseded generation must be refused")
	assert.Equal(t, ComputingDiffed, p.State(), "stale settle must not touch newer state")

	assert.True(t, p.Settle(g2))
	assert.Equal(t, Idle, p.State())
}

func TestPipeline_Bulk(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			p, comp := newTestPipeline(workers)

			ids := make([]string, 100)
			for i := range ids {
				ids[i] = fmt.Sprintf("r%03d", i)
			}
			models := p.Bulk(context.Background(), rows(ids...), layout.Bounded(320, 0))

			require.Len(t, models, 100)
			for i, m := range models {
				assert.Equal(t, ids[i], m.Element.id)
				assert.Equal(t, ids[i], m.Artifact.id)
				assert.Equal(t, 320.0, m.Artifact.width)
			}
			assert.Equal(t, int64(100), comp.calls.Load())
		})
	}
}

func TestPipeline_Diffed_ReusesUnchangedAndMoved(t *testing.T) {
	p, comp := newTestPipeline(1)
	c := layout.Bounded(100, 0)
	published := p.Bulk(context.Background(), rows("a", "b", "c"), c)
	comp.calls.Store(0)

	next := []row{{id: "c", text: "c"}, {id: "a", text: "a"}, {id: "b", text: "B"}, {id: "d", text: "d"}}
	res := p.Diffed(context.Background(), published, true, next, c)

	require.False(t, res.Empty)
	assert.False(t, res.Rebased)
	assert.Equal(t, int64(2), comp.calls.Load(), "only the updated and inserted rows compute")
	assert.Equal(t, 2, res.Computed)
	assert.Equal(t, 2, res.Reused)

	assert.Same(t, published[2].Artifact, res.Models[0].Artifact, "moved row keeps its artifact")
	assert.Same(t, published[0].Artifact, res.Models[1].Artifact, "unchanged row keeps its artifact")
	assert.NotSame(t, published[1].Artifact, res.Models[2].Artifact)
	assert.Equal(t, "B", res.Models[2].Artifact.text)
	assert.Equal(t, []bool{false, false, true, true}, res.Fresh)

	assert.NoError(t, res.Changes.Validate(3, 4))
	assert.Equal(t, 1, res.Changes.Count(diff.OpUpdate))
	assert.Equal(t, 1, res.Changes.Count(diff.OpInsert))
}

func TestPipeline_Diffed_DuplicateIdentity(t *testing.T) {
	p, comp := newTestPipeline(1)
	c := layout.Bounded(100, 0)
	published := p.Bulk(context.Background(), []row{{id: "a", text: "x"}, {id: "b", text: "y"}}, c)
	comp.calls.Store(0)

	next := []row{{id: "a", text: "x"}, {id: "b", text: "y"}, {id: "a", text: "z"}}
	res := p.Diffed(context.Background(), published, true, next, c)

	require.False(t, res.Empty)
	assert.Equal(t, diff.Changes{diff.Insert(2)}, res.Changes)
	assert.Equal(t, int64(1), comp.calls.Load())
	assert.Equal(t, 1, res.Computed)
	assert.Equal(t, []bool{false, false, true}, res.Fresh)

	assert.Same(t, published[0].Artifact, res.Models[0].Artifact)
	assert.Same(t, published[1].Artifact, res.Models[1].Artifact)
	assert.NotSame(t, published[0].Artifact, res.Models[2].Artifact, "a repeated identity is not the published element")
	assert.Equal(t, "z", res.Models[2].Artifact.text)
}

func TestPipeline_Diffed_Empty(t *testing.T) {
	p, comp := newTestPipeline(1)
	c := layout.Bounded(100, 0)
	published := p.Bulk(context.Background(), rows("a", "b"), c)
	comp.calls.Store(0)

	res := p.Diffed(context.Background(), published, true, rows("a", "b"), c)
	assert.True(t, res.Empty)
	assert.Nil(t, res.Models)
	assert.Zero(t, comp.calls.Load())
}

func TestPipeline_Diffed_WithoutReuseRecomputesAll(t *testing.T) {
	p, comp := newTestPipeline(1)
	published := p.Bulk(context.Background(), rows("a", "b"), layout.Bounded(100, 0))
	comp.calls.Store(0)

	res := p.Diffed(context.Background(), published, false, rows("a", "b"), layout.Bounded(200, 0))

	assert.False(t, res.Empty)
	assert.True(t, res.Rebased)
	assert.Empty(t, res.Changes)
	assert.Equal(t, int64(2), comp.calls.Load())
	assert.Equal(t, 200.0, res.Models[0].Artifact.width)
}

func TestPipeline_Diffed_FromNothing(t *testing.T) {
	p, _ := newTestPipeline(1)
	res := p.Diffed(context.Background(), nil, false, rows("a"), layout.Bounded(10, 0))

	assert.False(t, res.Rebased, "nothing was published, so nothing was rebased")
	assert.Equal(t, diff.Changes{diff.Insert(0)}, res.Changes)
}

func TestPipeline_ComputePanicPropagates(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			p, comp := newTestPipeline(workers)
			comp.panic = "r040"

			ids := make([]string, 64)
			for i := range ids {
				ids[i] = fmt.Sprintf("r%03d", i)
			}
			assert.Panics(t, func() {
				p.Bulk(context.Background(), rows(ids...), layout.Bounded(10, 0))
			})
		})
	}
}

type recordingExecutor struct {
	tasks chan func()
}

func (e *recordingExecutor) Post(task func()) { e.tasks <- task }

func TestPipeline_Run_Async(t *testing.T) {
	p, _ := newTestPipeline(1)
	exec := &recordingExecutor{tasks: make(chan func(), 1)}

	var worked, completed atomic.Bool
	p.Run(Async, exec, func() { worked.Store(true) }, func() { completed.Store(true) })

	select {
	case task := <-exec.tasks:
		assert.True(t, worked.Load())
		assert.False(t, completed.Load(), "completion must wait for the executor")
		task()
		assert.True(t, completed.Load())
	case <-time.After(time.Second):
		t.Fatal("completion never posted")
	}
}

func TestPipeline_Run_Sync(t *testing.T) {
	p, _ := newTestPipeline(1)
	var order []string
	p.Run(Sync, nil, func() { order = append(order, "work") }, func() { order = append(order, "complete") })
	assert.Equal(t, []string{"work", "complete"}, order)
}

func TestPipeline_Run_AsyncPanicReraisedOnExecutor(t *testing.T) {
	p, _ := newTestPipeline(1)
	exec := &recordingExecutor{tasks: make(chan func(), 1)}
	boom := errors.New("boom")

	p.Run(Async, exec, func() { panic(boom) }, func() { t.Error("complete must not run") })

	task := <-exec.tasks
	var recovered any
	func() {
		defer func() { recovered = recover() }()
		task()
	}()

	pe, ok := recovered.(*PanicError)
	require.True(t, ok, "expected *PanicError, got %T", recovered)
	assert.ErrorIs(t, pe, boom)
	assert.NotEmpty(t, pe.Stack)
}

// Completions arriving out of order must publish only the newest job.
func TestPipeline_ShuffledCompletions(t *testing.T) {
	p, _ := newTestPipeline(1)
	loop := control.NewLoop().Start(context.Background())
	defer loop.Stop()

	const jobs = 5
	release := make([]chan struct{}, jobs)
	results := make(chan bool, jobs)

	for i := 0; i < jobs; i++ {
		release[i] = make(chan struct{})
		ch := release[i]
		var g uint64
		require.NoError(t, loop.Call(context.Background(), func() { g = p.Begin(ComputingDiffed) }))
		p.Run(Async, loop, func() { <-ch }, func() { results <- p.Settle(g) })
	}

	for _, i := range []int{3, 0, 4, 1, 2} {
		close(release[i])
	}

	published := 0
	for i := 0; i < jobs; i++ {
		if <-results {
			published++
		}
	}
	assert.Equal(t, 1, published)
	assert.Equal(t, Idle, p.State())
}

func TestElements(t *testing.T) {
	models := []Model[string, int]{{Element: "a", Artifact: 1}, {Element: "b", Artifact: 2}}
	assert.Equal(t, []string{"a", "b"}, Elements(models))
}

func TestStateAndModeString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "computing_bulk", ComputingBulk.String())
	assert.Equal(t, "computing_diffed", ComputingDiffed.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.Equal(t, "sync", Sync.String())
	assert.Equal(t, "async", Async.String())
}
