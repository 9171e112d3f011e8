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
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/listsync/pkg/layout"
	"github.com/AleutianAI/listsync/pkg/telemetry"
	"github.com/AleutianAI/listsync/services/reconcile"
	"github.com/AleutianAI/listsync/services/reconcile/control"
)

const shutdownGrace = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := app.cfg
	logger := app.logger
	if serveAddr != "" {
		cfg.Serve.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = cfg.Telemetry.ServiceName
	tcfg.TraceExporter = cfg.Telemetry.Traces
	tcfg.MetricExporter = cfg.Telemetry.Metrics
	if cfg.Telemetry.OTLPEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	shutdownTelemetry, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	loop := control.NewLoop().Start(ctx)
	defer loop.Stop()

	rec, err := newReconciler(loop, cfg, logger, "serve")
	if err != nil {
		return err
	}
	if _, err := reconcile.Await[string, layout.TextLayout](ctx, loop, func(done func(Update)) {
		rec.SetConstraints(constraintsFor(cfg), reconcile.Sync, done)
	}); err != nil {
		return err
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := newServer(loop, rec, modeFor(cfg), cfg.Serve.Timeout(), logger)
	httpServer := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: cfg.Serve.Timeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Serve.Addr, "constraints", constraintsFor(cfg).String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
