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

	"github.com/AleutianAI/listsync/pkg/logging"
	"github.com/AleutianAI/listsync/services/reconcile/pipeline"
)

// Mode selects where a mutation's computation runs.
type Mode = pipeline.Mode

const (
	// Async computes on a worker and publishes from the control executor.
	Async = pipeline.Async

	// Sync computes and publishes before the mutation returns.
	Sync = pipeline.Sync
)

// Option configures a Reconciler.
type Option func(*options)

type options struct {
	logger  *logging.Logger
	workers int
	ctx     context.Context
	name    string
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithWorkers bounds parallel artifact computation.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithContext sets the base context handed to the computer. It carries
// trace spans and values only; cancelling it does not abort jobs.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithName labels the reconciler's logs and cache metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}
