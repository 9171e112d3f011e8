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
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/listsync/pkg/config"
	"github.com/AleutianAI/listsync/pkg/layout"
	"github.com/AleutianAI/listsync/pkg/logging"
	"github.com/AleutianAI/listsync/pkg/ux"
	"github.com/AleutianAI/listsync/pkg/watch"
	"github.com/AleutianAI/listsync/services/reconcile"
	"github.com/AleutianAI/listsync/services/reconcile/control"
)

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := watchFile(ctx, args[0], app.cfg, app.logger, cmd.OutOrStdout(), rendererFor(cmd))
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// watchFile reconciles path once, then again after every settled change,
// printing each published update to out. It returns when ctx is done.
func watchFile(ctx context.Context, path string, cfg config.Config, logger *logging.Logger, out io.Writer, r ux.Renderer) error {
	items, err := loadItems(path)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	loop := control.NewLoop().Start(loopCtx)
	defer loop.Stop()

	rec, err := newReconciler(loop, cfg, logger, "watch")
	if err != nil {
		return err
	}
	rec.SetConsumer(reconcile.ConsumerFunc[string, layout.TextLayout](func(u Update) {
		fmt.Fprintln(out, describe(r, u))
	}))

	mode := modeFor(cfg)
	apply := func(ctx context.Context, items []Item) error {
		_, err := reconcile.Await[string, layout.TextLayout](ctx, loop, func(done func(Update)) {
			rec.SetElements(items, mode, done)
		})
		return err
	}

	if _, err := reconcile.Await[string, layout.TextLayout](ctx, loop, func(done func(Update)) {
		rec.SetConstraints(constraintsFor(cfg), mode, done)
	}); err != nil {
		return err
	}
	if err := apply(ctx, items); err != nil {
		return err
	}

	w, err := watch.New(path, func(p string) {
		next, err := loadItems(p)
		if err != nil {
			logger.Warn("skipping unreadable item file", "path", p, "error", err)
			return
		}
		reqCtx, cancel := context.WithTimeout(ctx, cfg.Serve.Timeout())
		defer cancel()
		if err := apply(reqCtx, next); err != nil {
			logger.Warn("reload did not complete", "path", p, "error", err)
		}
	}, &watch.Options{
		Debounce:    cfg.Watch.Debounce(),
		MinInterval: cfg.Watch.Debounce(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	logger.Info("watching item file", "path", w.Path(), "elements", len(items))
	<-ctx.Done()
	return ctx.Err()
}

// describe renders one published update as a status line.
func describe(r ux.Renderer, u Update) string {
	label := fmt.Sprintf("g%d %s", u.Generation, u.Kind)
	switch u.Kind {
	case reconcile.Patch:
		return r.Status(ux.IconUpdate, label, r.Summary(u.Changes))
	case reconcile.FullReload:
		return r.Status(ux.IconInsert, label, fmt.Sprintf("%d elements", len(u.Order)))
	default:
		return r.Status(ux.IconOK, label, "")
	}
}
