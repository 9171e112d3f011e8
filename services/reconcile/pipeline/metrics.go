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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listsync_pipeline_jobs_total",
		Help: "Jobs dispatched by kind",
	}, []string{"kind"})

	resultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listsync_pipeline_results_total",
		Help: "Job completions by outcome (published, discarded)",
	}, []string{"outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "listsync_pipeline_job_duration_seconds",
		Help:    "Worker-side duration of a job",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"kind"})

	artifactsComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listsync_pipeline_artifacts_computed_total",
		Help: "Artifacts produced by the computer",
	})

	artifactsReused = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listsync_pipeline_artifacts_reused_total",
		Help: "Artifacts carried over from the previous generation",
	})
)
