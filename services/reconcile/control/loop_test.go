// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunsTasksInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop := NewLoop().Start(ctx)
	defer loop.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		loop.Post(func() { got = append(got, i) })
	}
	require.NoError(t, loop.Call(ctx, func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.Equal(t, int64(101), loop.Executed())
}

func TestLoop_PostFromManyGoroutines(t *testing.T) {
	ctx := context.Background()
	loop := NewLoop().Start(ctx)
	defer loop.Stop()

	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				loop.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()

	var final int
	require.NoError(t, loop.Call(ctx, func() { final = counter }))
	assert.Equal(t, 800, final)
}

func TestLoop_TasksMayPostTasks(t *testing.T) {
	ctx := context.Background()
	loop := NewLoop().Start(ctx)
	defer loop.Stop()

	done := make(chan struct{})
	loop.Post(func() {
		loop.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested post never ran")
	}
}

func TestLoop_Stop(t *testing.T) {
	loop := NewLoop().Start(context.Background())
	loop.Stop()
	loop.Stop()

	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit")
	}

	assert.ErrorIs(t, loop.TryPost(func() {}), ErrLoopStopped)
	assert.ErrorIs(t, loop.Call(context.Background(), func() {}), ErrLoopStopped)
}

func TestLoop_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop()

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop ignored cancellation")
	}
}

func TestLoop_RunTwice(t *testing.T) {
	loop := NewLoop().Start(context.Background())
	defer loop.Stop()

	require.NoError(t, loop.Call(context.Background(), func() {}))
	assert.Error(t, loop.Run(context.Background()))
}

func TestLoop_CallTimeout(t *testing.T) {
	loop := NewLoop().Start(context.Background())
	defer loop.Stop()

	release := make(chan struct{})
	loop.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, loop.Call(ctx, func() {}), context.DeadlineExceeded)
}

func TestLoop_PostNilIgnored(t *testing.T) {
	loop := NewLoop()
	assert.NoError(t, loop.TryPost(nil))
	assert.Zero(t, loop.Len())
}
