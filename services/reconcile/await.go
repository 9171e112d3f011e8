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

	"github.com/AleutianAI/listsync/services/reconcile/control"
)

// Await runs issue on loop and blocks until the mutation it starts
// completes.
//
// Description:
//
//	issue is called on the control context with a done callback to hand
//	to SetElements or SetConstraints. Await is for callers outside the
//	control context, such as HTTP handlers and tests; calling it from a
//	loop task deadlocks.
//
// Outputs:
//
//	Update - What the mutation completed with. Discarded if superseded.
//	error - ctx.Err() on timeout, control.ErrLoopStopped if the loop exits
//	        first. The mutation itself is not cancelled.
func Await[K comparable, A any](
	ctx context.Context,
	loop *control.Loop,
	issue func(done func(Update[K, A])),
) (Update[K, A], error) {
	result := make(chan Update[K, A], 1)
	if err := loop.TryPost(func() {
		issue(func(u Update[K, A]) { result <- u })
	}); err != nil {
		return Update[K, A]{}, err
	}

	select {
	case u := <-result:
		return u, nil
	case <-ctx.Done():
		return Update[K, A]{}, ctx.Err()
	case <-loop.Done():
		select {
		case u := <-result:
			return u, nil
		default:
			return Update[K, A]{}, control.ErrLoopStopped
		}
	}
}
