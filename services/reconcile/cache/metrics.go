// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("listsync.cache")

var (
	cacheHits          metric.Int64Counter
	cacheMisses        metric.Int64Counter
	cacheInvalidations metric.Int64Counter
	cacheClears        metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments once. Safe to call repeatedly.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"listsync_cache_hits_total",
			metric.WithDescription("Artifact lookups served from the cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"listsync_cache_misses_total",
			metric.WithDescription("Artifact lookups that found no entry"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheInvalidations, err = meter.Int64Counter(
			"listsync_cache_invalidations_total",
			metric.WithDescription("Entries dropped by deletes and updates"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheClears, err = meter.Int64Counter(
			"listsync_cache_clears_total",
			metric.WithDescription("Full cache clears on constraint change"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func cacheAttr(name string) metric.AddOption {
	return metric.WithAttributes(attribute.String("cache", name))
}

func recordHit(ctx context.Context, name string) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1, cacheAttr(name))
}

func recordMiss(ctx context.Context, name string) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheMisses.Add(ctx, 1, cacheAttr(name))
}

func recordInvalidations(ctx context.Context, name string, n int) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheInvalidations.Add(ctx, int64(n), cacheAttr(name))
}

func recordClear(ctx context.Context, name string) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheClears.Add(ctx, 1, cacheAttr(name))
}
