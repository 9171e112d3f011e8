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

import "errors"

// Sentinel errors for the reconcile package.
var (
	// ErrConcurrentMutation is the panic value raised when a reconciler is
	// entered from two goroutines at once. It signals a caller bug: all
	// mutations must come from the control context.
	ErrConcurrentMutation = errors.New("reconciler mutated concurrently outside its control context")

	// ErrNilExecutor is returned when no control executor is supplied.
	ErrNilExecutor = errors.New("control executor must not be nil")

	// ErrNilComputer is returned when no artifact computer is supplied.
	ErrNilComputer = errors.New("artifact computer must not be nil")

	// ErrNilIdentity is returned when identity or equality functions are missing.
	ErrNilIdentity = errors.New("identity and equality functions must not be nil")
)
