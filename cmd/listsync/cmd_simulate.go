// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/listsync/pkg/config"
	"github.com/AleutianAI/listsync/pkg/diff"
	"github.com/AleutianAI/listsync/pkg/layout"
	"github.com/AleutianAI/listsync/pkg/logging"
	"github.com/AleutianAI/listsync/pkg/ux"
	"github.com/AleutianAI/listsync/services/reconcile"
	"github.com/AleutianAI/listsync/services/reconcile/control"
)

// ErrUnstable is returned when the simulated reconciler does not settle on
// the last state it was given.
var ErrUnstable = errors.New("reconciler did not settle on the final state")

// finalWidth is never drawn by the random steps, so the closing constraint
// change always starts a new job.
const finalWidth = 97

var words = strings.Fields("alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima mike november oscar papa")

// simOptions configures one simulation run.
type simOptions struct {
	Steps    int
	MaxItems int
	Seed     uint64
}

// simReport summarizes a simulation run.
type simReport struct {
	Steps      int
	Published  map[reconcile.Kind]int
	Discarded  int
	Generation uint64
	Final      int
	Cache      string
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	report, err := simulate(cmd.Context(), app.cfg, app.logger, simOptions{
		Steps:    simSteps,
		MaxItems: simItems,
		Seed:     simSeed,
	})

	r := rendererFor(cmd)
	out := cmd.OutOrStdout()
	if err != nil {
		fmt.Fprintln(out, r.Status(ux.IconDelete, "simulate", err.Error()))
		return err
	}
	fmt.Fprintln(out, r.Status(ux.IconOK, fmt.Sprintf("settled at g%d", report.Generation),
		fmt.Sprintf("%d steps, %d elements", report.Steps, report.Final)))
	fmt.Fprintf(out, "  published: %d full_reload, %d patch, %d no_change; %d discarded\n",
		report.Published[reconcile.FullReload], report.Published[reconcile.Patch],
		report.Published[reconcile.NoChange], report.Discarded)
	fmt.Fprintf(out, "  cache: %s\n", report.Cache)
	return nil
}

// simulate interleaves random element and constraint updates in random
// modes on a control loop, then issues one last constraint change and
// checks the reconciler settles on exactly the last elements with every
// artifact computed under the final constraints.
func simulate(ctx context.Context, cfg config.Config, logger *logging.Logger, opts simOptions) (simReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 1
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	loop := control.NewLoop().Start(loopCtx)
	defer loop.Stop()

	rec, err := newReconciler(loop, cfg, logger, "simulate")
	if err != nil {
		return simReport{}, err
	}

	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[:], opts.Seed)
	src := rand.NewChaCha8(seed)
	rng := rand.New(src)
	h := &harness{rng: rng, ids: src}

	report := simReport{Steps: opts.Steps, Published: make(map[reconcile.Kind]int)}
	count := func(u Update) {
		if u.Discarded {
			report.Discarded++
		}
	}
	rec.SetConsumer(reconcile.ConsumerFunc[string, layout.TextLayout](func(u Update) {
		report.Published[u.Kind]++
	}))

	var items []Item
	if err := loop.Call(ctx, func() {
		rec.SetConstraints(constraintsFor(cfg), reconcile.Sync, count)
	}); err != nil {
		return simReport{}, err
	}

	for step := 0; step < opts.Steps; step++ {
		mode := reconcile.Sync
		if rng.IntN(2) == 0 {
			mode = reconcile.Async
		}

		var issue func()
		if rng.IntN(10) < 7 {
			items = h.mutate(items, opts.MaxItems)
			next := slices.Clone(items)
			issue = func() { rec.SetElements(next, mode, count) }
		} else {
			c := layout.Bounded(float64(10+rng.IntN(71)), 0)
			issue = func() { rec.SetConstraints(c, mode, count) }
		}
		if err := loop.Call(ctx, issue); err != nil {
			return simReport{}, err
		}
	}

	final := layout.Bounded(finalWidth, 0)
	u, err := reconcile.Await[string, layout.TextLayout](ctx, loop, func(done func(Update)) {
		rec.SetConstraints(final, reconcile.Async, func(u Update) {
			count(u)
			done(u)
		})
	})
	if err != nil {
		return simReport{}, err
	}
	if u.Discarded {
		return simReport{}, fmt.Errorf("%w: final constraint change was discarded", ErrUnstable)
	}

	sizer := layout.TextSizer{
		GlyphWidth: cfg.Layout.GlyphWidth,
		LineHeight: cfg.Layout.LineHeight,
		Padding:    cfg.Layout.Padding,
	}
	// Superseded async jobs may still complete after this point, so the
	// report is copied on the loop.
	var (
		snap simReport
		verr error
	)
	if err := loop.Call(ctx, func() {
		report.Generation = rec.Generation()
		report.Final = rec.Count()
		report.Cache = cacheLine(rec)
		snap = report
		snap.Published = maps.Clone(report.Published)
		verr = verify(rec, items, final, sizer)
	}); err != nil {
		return simReport{}, err
	}
	return snap, verr
}

// verify runs on the control context.
func verify(rec *Reconciler, items []Item, c layout.Constraints, sizer layout.TextSizer) error {
	if got := rec.State().String(); got != "idle" {
		return fmt.Errorf("%w: state %s", ErrUnstable, got)
	}
	if want := diff.IDs[string](items); !slices.Equal(rec.Published(), want) {
		return fmt.Errorf("%w: published %d ids, want %d", ErrUnstable, len(rec.Published()), len(want))
	}
	if !rec.Constraints().Equal(c) {
		return fmt.Errorf("%w: constraints %s, want %s", ErrUnstable, rec.Constraints(), c)
	}
	for _, it := range items {
		got, ok := rec.ArtifactFor(it.ID)
		if !ok {
			return fmt.Errorf("%w: no artifact for %s", ErrUnstable, it.ID)
		}
		want := sizer.Measure(it.Text(), layout.Effective(it, c))
		if got.Size != want.Size || !slices.Equal(got.Lines, want.Lines) {
			return fmt.Errorf("%w: artifact for %s is %v, want %v", ErrUnstable, it.ID, got.Size, want.Size)
		}
	}
	return nil
}

func cacheLine(rec *Reconciler) string {
	s := rec.CacheStats()
	return fmt.Sprintf("%d entries, %d hits, %d misses (%.0f%%)", s.Entries, s.Hits, s.Misses, 100*s.HitRate())
}

// harness produces random edits of an item list.
type harness struct {
	rng *rand.Rand
	ids *rand.ChaCha8
}

func (h *harness) newItem() Item {
	id := uuid.Must(uuid.NewRandomFromReader(h.ids))
	it := Item{ID: id.String(), Value: h.phrase()}
	if h.rng.IntN(8) == 0 {
		it.MaxWidth = float64(8 + h.rng.IntN(16))
	}
	return it
}

func (h *harness) phrase() string {
	n := 1 + h.rng.IntN(12)
	out := make([]string, n)
	for i := range out {
		out[i] = words[h.rng.IntN(len(words))]
	}
	return strings.Join(out, " ")
}

// mutate returns a new list derived from items by a burst of random
// deletes, inserts, edits and moves.
func (h *harness) mutate(items []Item, maxItems int) []Item {
	next := slices.Clone(items)
	edits := 1 + h.rng.IntN(6)
	for range edits {
		switch op := h.rng.IntN(5); {
		case op == 0 && len(next) > 0:
			i := h.rng.IntN(len(next))
			next = slices.Delete(next, i, i+1)
		case op == 1 && len(next) < maxItems:
			i := h.rng.IntN(len(next) + 1)
			next = slices.Insert(next, i, h.newItem())
		case op == 2 && len(next) > 0:
			next[h.rng.IntN(len(next))].Value = h.phrase()
		case op == 3 && len(next) > 1:
			from, to := h.rng.IntN(len(next)), h.rng.IntN(len(next))
			it := next[from]
			next = slices.Insert(slices.Delete(next, from, from+1), to, it)
		default:
			if h.rng.IntN(20) == 0 {
				next = next[:0]
			} else if len(next) < maxItems {
				next = append(next, h.newItem())
			}
		}
	}
	return next
}
