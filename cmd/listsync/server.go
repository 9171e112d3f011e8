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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/listsync/pkg/diff"
	"github.com/AleutianAI/listsync/pkg/layout"
	"github.com/AleutianAI/listsync/pkg/logging"
	"github.com/AleutianAI/listsync/pkg/telemetry"
	"github.com/AleutianAI/listsync/services/reconcile"
	"github.com/AleutianAI/listsync/services/reconcile/control"
)

// =============================================================================
// Request and Response Types
// =============================================================================

type itemsRequest struct {
	Items []Item `json:"items" binding:"dive"`
}

type constraintsRequest struct {
	Width  float64 `json:"width" binding:"gte=0"`
	Height float64 `json:"height" binding:"gte=0"`
}

type updateResponse struct {
	Update
	Summary *diff.Result `json:"summary,omitempty"`
}

type artifactResponse struct {
	ID       string            `json:"id"`
	Artifact layout.TextLayout `json:"artifact"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Generation  uint64 `json:"generation"`
	State       string `json:"state"`
	Elements    int    `json:"elements"`
	Constraints string `json:"constraints"`
}

// =============================================================================
// Server
// =============================================================================

// server exposes one Reconciler over HTTP.
//
// Every handler reaches the reconciler through the control loop, so
// requests never touch it concurrently.
type server struct {
	loop    *control.Loop
	rec     *Reconciler
	mode    reconcile.Mode
	timeout time.Duration
	logger  *logging.Logger

	lookups singleflight.Group
	router  *gin.Engine
}

func newServer(loop *control.Loop, rec *Reconciler, mode reconcile.Mode, timeout time.Duration, logger *logging.Logger) *server {
	s := &server{
		loop:    loop,
		rec:     rec,
		mode:    mode,
		timeout: timeout,
		logger:  logger.With("component", "serve"),
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware("listsync"))

	metrics := telemetry.MetricsHandler()
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	s.router.GET("/metrics", gin.WrapH(metrics))

	v1 := s.router.Group("/v1")
	{
		v1.GET("/health", s.health)
		v1.GET("/items", s.listItems)
		v1.PUT("/items", s.putItems)
		v1.PUT("/constraints", s.putConstraints)
		v1.GET("/artifacts/:id", s.getArtifact)
	}
	return s
}

// Router returns the gin engine.
func (s *server) Router() *gin.Engine {
	return s.router
}

func (s *server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	var resp healthResponse
	if err := s.loop.Call(ctx, func() {
		resp = healthResponse{
			Status:      "ok",
			Generation:  s.rec.Generation(),
			State:       s.rec.State().String(),
			Elements:    s.rec.Count(),
			Constraints: s.rec.Constraints().String(),
		}
	}); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) listItems(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	var items []Item
	var published []string
	if err := s.loop.Call(ctx, func() {
		items = s.rec.Elements()
		published = s.rec.Published()
	}); err != nil {
		s.fail(c, err)
		return
	}
	if items == nil {
		items = []Item{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "published": published})
}

func (s *server) putItems(c *gin.Context) {
	var req itemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := checkItems(req.Items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	var oldCount int
	u, err := reconcile.Await[string, layout.TextLayout](ctx, s.loop, func(done func(Update)) {
		oldCount = len(s.rec.Published())
		s.rec.SetElements(req.Items, s.mode, done)
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := updateResponse{Update: u}
	if u.Kind == reconcile.Patch {
		summary := diff.Summarize(u.Changes, oldCount, len(req.Items))
		resp.Summary = &summary
	}
	s.logger.Debug("items applied", "update", u.String())
	c.JSON(statusFor(u), resp)
}

func (s *server) putConstraints(c *gin.Context) {
	var req constraintsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	bounds := layout.Bounded(req.Width, req.Height)
	u, err := reconcile.Await[string, layout.TextLayout](ctx, s.loop, func(done func(Update)) {
		s.rec.SetConstraints(bounds, s.mode, done)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Debug("constraints applied", "constraints", bounds.String(), "update", u.String())
	c.JSON(statusFor(u), updateResponse{Update: u})
}

// getArtifact coalesces concurrent lookups of one identity into a single
// trip through the control loop. The shared trip is bounded by the server
// timeout alone; the request that happens to lead it may go away without
// failing the others waiting on it.
func (s *server) getArtifact(c *gin.Context) {
	id := c.Param("id")

	type lookup struct {
		artifact layout.TextLayout
		ok       bool
	}
	v, err, _ := s.lookups.Do(id, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		var l lookup
		err := s.loop.Call(ctx, func() {
			l.artifact, l.ok = s.rec.ArtifactFor(id)
		})
		return l, err
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	l := v.(lookup)
	if !l.ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no artifact for " + id})
		return
	}
	c.JSON(http.StatusOK, artifactResponse{ID: id, Artifact: l.artifact})
}

func (s *server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "timed out waiting for the reconciler"})
	case errors.Is(err, control.ErrLoopStopped), errors.Is(err, context.Canceled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// statusFor maps a superseded request to 409 so callers know their state
// was overtaken by a later one.
func statusFor(u Update) int {
	if u.Discarded {
		return http.StatusConflict
	}
	return http.StatusOK
}
