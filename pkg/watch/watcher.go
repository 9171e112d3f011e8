// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch reports debounced changes to a single file.
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/listsync/pkg/logging"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("watcher already started")

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("watcher stopped")

// Handler is called with the watched path after a burst of changes settles.
type Handler func(path string)

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the file must stay quiet before Handler runs.
	// Default: 100ms
	Debounce time.Duration

	// MinInterval is the minimum gap between two Handler calls, however
	// often the file settles. Zero disables the limit.
	MinInterval time.Duration

	Logger *logging.Logger
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{Debounce: 100 * time.Millisecond}
}

// Watcher watches one file.
//
// # Description
//
// The parent directory is watched, since editors commonly replace files by
// rename, which drops a watch on the file itself. Events for other entries
// in the directory are ignored.
//
// # Thread Safety
//
// Handler is called from a single goroutine.
type Watcher struct {
	path    string
	handler Handler
	opts    Options
	limiter *rate.Limiter
	logger  *logging.Logger

	fs       *fsnotify.Watcher
	events   chan struct{}
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
	closed  bool
}

// New creates a watcher for path. Call Start to begin.
func New(path string, handler Handler, opts *Options) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions().Debounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	return &Watcher{
		path:    abs,
		handler: handler,
		opts:    *opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "watch", "path", abs),
		fs:      fs,
		events:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Path returns the absolute watched path.
func (w *Watcher) Path() string { return w.path }

// Start begins watching. Both goroutines exit on Stop or ctx cancellation.
// A failed Start leaves the watcher unstarted, so it may be retried.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrStopped
	}
	if w.started {
		return ErrAlreadyStarted
	}

	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.started = true

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops watching. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.closed = true
		close(w.done)
		_ = w.fs.Close()
		if !w.started {
			close(w.stopped)
		}
	})
}

// Stopped is closed once the handler goroutine has exited, or by Stop if
// the watcher never started.
func (w *Watcher) Stopped() <-chan struct{} { return w.stopped }

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			select {
			case w.events <- struct{}{}:
			default:
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer close(w.stopped)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			return
		case <-w.done:
			stopTimer()
			return
		case <-w.events:
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
			if w.handler != nil {
				w.handler(w.path)
			}
		}
	}
}
