// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package control provides the serial execution context that owns a
// reconciler's visible state.
//
// A Loop runs posted tasks one at a time, in the order they were posted, on
// a single goroutine. Workers hand results back by posting a task; they
// never touch owned state directly.
package control

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrLoopStopped is returned when a task is offered to a stopped loop.
var ErrLoopStopped = errors.New("control loop stopped")

// Executor runs tasks serially on the control context.
//
// Post must never block the caller; workers post completions from
// arbitrary goroutines.
type Executor interface {
	Post(task func())
}

// Loop is an unbounded FIFO task queue drained by one goroutine.
//
// Description:
//
//	Post appends to the queue and wakes the runner. Run drains tasks until
//	the context is cancelled or Stop is called. Tasks still queued at stop
//	time are dropped.
//
// Thread Safety:
//
//	Post, Stop and Len are safe from any goroutine. Run must be called once.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped chan struct{}
	done    chan struct{}

	stopOnce sync.Once
	running  atomic.Bool
	executed atomic.Int64
}

// NewLoop creates a loop that is not yet running.
func NewLoop() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs the loop on a new goroutine.
func (l *Loop) Start(ctx context.Context) *Loop {
	go func() { _ = l.Run(ctx) }()
	return l
}

// Run drains tasks on the calling goroutine until ctx is done or Stop is
// called. It returns ctx.Err() on cancellation and nil on Stop.
//
// A panicking task is not recovered; it takes the loop goroutine down.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("control loop already running")
	}
	defer close(l.done)

	for {
		task, ok := l.next()
		if ok {
			task()
			l.executed.Add(1)
			continue
		}

		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.stopped:
			return nil
		case <-l.wake:
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-l.stopped:
		l.queue = nil
		return nil, false
	default:
	}

	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

// Post enqueues task. Tasks posted after Stop are dropped.
func (l *Loop) Post(task func()) {
	_ = l.TryPost(task)
}

// TryPost enqueues task, returning ErrLoopStopped if the loop is stopped.
func (l *Loop) TryPost(task func()) error {
	if task == nil {
		return nil
	}

	l.mu.Lock()
	select {
	case <-l.stopped:
		l.mu.Unlock()
		return ErrLoopStopped
	default:
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Call runs fn on the loop and waits for it to return.
//
// Outputs:
//
//	error - ctx.Err() if ctx ends first, ErrLoopStopped if the loop stops
//	        before fn ran. fn may still run after a ctx timeout.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.TryPost(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopStopped
		}
	}
}

// Stop asks the loop to exit after the task in progress. Idempotent.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		close(l.stopped)
		l.mu.Unlock()
	})
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Executed returns the number of tasks run so far.
func (l *Loop) Executed() int64 {
	return l.executed.Load()
}
