// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/listsync/pkg/config"
	"github.com/AleutianAI/listsync/pkg/diff"
	"github.com/AleutianAI/listsync/pkg/layout"
	"github.com/AleutianAI/listsync/pkg/logging"
	"github.com/AleutianAI/listsync/services/reconcile"
	"github.com/AleutianAI/listsync/services/reconcile/control"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

// updateBody mirrors updateResponse with the kind kept as text.
type updateBody struct {
	Kind       string       `json:"kind"`
	Generation uint64       `json:"generation"`
	Changes    diff.Changes `json:"changes"`
	Order      []string     `json:"order"`
	Discarded  bool         `json:"discarded"`
	Summary    *diff.Result `json:"summary"`
}

func newTestServer(t *testing.T, mode reconcile.Mode) *server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	loop := control.NewLoop().Start(ctx)
	t.Cleanup(func() {
		loop.Stop()
		cancel()
	})

	cfg := config.DefaultConfig()
	rec, err := newReconciler(loop, cfg, logging.Nop(), "test")
	require.NoError(t, err)
	_, err = reconcile.Await[string, layout.TextLayout](ctx, loop, func(done func(Update)) {
		rec.SetConstraints(layout.Bounded(10, 0), reconcile.Sync, done)
	})
	require.NoError(t, err)

	return newServer(loop, rec, mode, 5*time.Second, logging.Nop())
}

func do(t *testing.T, s *server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// ============================================================================
// Route Tests
// ============================================================================

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t, reconcile.Sync)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/metrics"},
		{"GET", "/v1/health"},
		{"GET", "/v1/items"},
		{"PUT", "/v1/items"},
		{"PUT", "/v1/constraints"},
		{"GET", "/v1/artifacts/:id"},
	}

	routes := s.Router().Routes()
	for _, e := range expected {
		found := false
		for _, r := range routes {
			if r.Method == e.method && r.Path == e.path {
				found = true
				break
			}
		}
		assert.True(t, found, "route %s %s not registered", e.method, e.path)
	}
}

func TestServer_ItemsLifecycle(t *testing.T) {
	for _, mode := range []reconcile.Mode{reconcile.Sync, reconcile.Async} {
		t.Run(mode.String(), func(t *testing.T) {
			s := newTestServer(t, mode)

			w := do(t, s, http.MethodPut, "/v1/items", itemsRequest{Items: []Item{
				{ID: "a", Value: "short"},
				{ID: "b", Value: "a value that wraps"},
			}})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			first := decode[updateBody](t, w)
			assert.Equal(t, "full_reload", first.Kind)
			assert.Equal(t, []string{"a", "b"}, first.Order)
			assert.Nil(t, first.Summary)

			w = do(t, s, http.MethodPut, "/v1/items", itemsRequest{Items: []Item{
				{ID: "b", Value: "a value that wraps"},
				{ID: "a", Value: "short"},
				{ID: "c", Value: "new"},
			}})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			second := decode[updateBody](t, w)
			assert.Equal(t, "patch", second.Kind)
			assert.Greater(t, second.Generation, first.Generation)
			require.NotNil(t, second.Summary)
			assert.Equal(t, 2, second.Summary.OldCount)
			assert.Equal(t, 3, second.Summary.NewCount)
			assert.Equal(t, []int{2}, second.Summary.Inserts)

			w = do(t, s, http.MethodGet, "/v1/artifacts/b", nil)
			require.Equal(t, http.StatusOK, w.Code)
			art := decode[artifactResponse](t, w)
			assert.Equal(t, "b", art.ID)
			assert.Equal(t, []string{"a value", "that wraps"}, art.Artifact.Lines)

			w = do(t, s, http.MethodGet, "/v1/items", nil)
			require.Equal(t, http.StatusOK, w.Code)
			list := decode[struct {
				Items     []Item   `json:"items"`
				Published []string `json:"published"`
			}](t, w)
			assert.Equal(t, []string{"b", "a", "c"}, list.Published)
			assert.Len(t, list.Items, 3)
		})
	}
}

func TestServer_Unchanged(t *testing.T) {
	s := newTestServer(t, reconcile.Sync)
	items := itemsRequest{Items: []Item{{ID: "a", Value: "x"}}}

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, "/v1/items", items).Code)
	w := do(t, s, http.MethodPut, "/v1/items", items)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no_change", decode[updateBody](t, w).Kind)
}

func TestServer_Constraints(t *testing.T) {
	s := newTestServer(t, reconcile.Sync)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, "/v1/items",
		itemsRequest{Items: []Item{{ID: "a", Value: "one two three"}}}).Code)

	w := do(t, s, http.MethodPut, "/v1/constraints", constraintsRequest{Width: 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "full_reload", decode[updateBody](t, w).Kind)

	art := decode[artifactResponse](t, do(t, s, http.MethodGet, "/v1/artifacts/a", nil))
	assert.Equal(t, []string{"one", "two", "thr", "ee"}, art.Artifact.Lines)

	w = do(t, s, http.MethodPut, "/v1/constraints", constraintsRequest{Width: 3})
	assert.Equal(t, "no_change", decode[updateBody](t, w).Kind)

	w = do(t, s, http.MethodPut, "/v1/constraints", constraintsRequest{})
	assert.Equal(t, "no_change", decode[updateBody](t, w).Kind, "empty constraints are ignored")

	w = do(t, s, http.MethodPut, "/v1/constraints", map[string]any{"width": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_BadItems(t *testing.T) {
	s := newTestServer(t, reconcile.Sync)

	w := do(t, s, http.MethodPut, "/v1/items", itemsRequest{Items: []Item{{Value: "no id"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPut, "/v1/items", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ArtifactMissing(t *testing.T) {
	s := newTestServer(t, reconcile.Sync)
	w := do(t, s, http.MethodGet, "/v1/artifacts/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_ConcurrentArtifactLookups(t *testing.T) {
	s := newTestServer(t, reconcile.Sync)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, "/v1/items",
		itemsRequest{Items: []Item{{ID: "a", Value: "x"}, {ID: "b", Value: "y"}}}).Code)

	var wg sync.WaitGroup
	codes := make([]int, 32)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "a"
			if i%2 == 1 {
				id = "b"
			}
			codes[i] = do(t, s, http.MethodGet, "/v1/artifacts/"+id, nil).Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusOK, code, "lookup %d", i)
	}
}

func TestServer_ArtifactLookupIgnoresCallerCancel(t *testing.T) {
	s := newTestServer(t, reconcile.Sync)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, "/v1/items",
		itemsRequest{Items: []Item{{ID: "a", Value: "x"}}}).Code)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/v1/artifacts/a", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "a", decode[artifactResponse](t, w).ID)
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, reconcile.Sync)

	w := do(t, s, http.MethodGet, "/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	h := decode[healthResponse](t, w)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "idle", h.State)
	assert.Equal(t, "10x∞", h.Constraints)
	assert.Zero(t, h.Elements)
}

func TestServer_StoppedLoop(t *testing.T) {
	s := newTestServer(t, reconcile.Sync)
	s.loop.Stop()
	<-s.loop.Done()

	w := do(t, s, http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, reconcile.Sync)
	w := do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "listsync_pipeline_jobs_total")
}
