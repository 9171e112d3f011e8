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
	"fmt"

	"github.com/AleutianAI/listsync/pkg/diff"
)

// Kind classifies a published update.
type Kind int

const (
	// NoChange means the visible sequence is unchanged.
	NoChange Kind = iota

	// FullReload means the consumer must discard its view and rebuild it
	// from Update.Order and Update.Artifacts.
	FullReload

	// Patch means the consumer may apply Update.Changes incrementally.
	// Old indices refer to the previously published sequence, new indices
	// to the one just published.
	Patch
)

func (k Kind) String() string {
	switch k {
	case NoChange:
		return "no_change"
	case FullReload:
		return "full_reload"
	case Patch:
		return "patch"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Update is what a reconciler publishes after a mutation settles.
type Update[K comparable, A any] struct {
	Kind       Kind         `json:"kind"`
	Generation uint64       `json:"generation"`
	Changes    diff.Changes `json:"changes,omitempty"`

	// Order lists the identities of the published sequence. Set for
	// FullReload.
	Order []K `json:"order,omitempty"`

	// Artifacts maps identity to artifact for the published sequence. Set
	// for FullReload.
	Artifacts map[K]A `json:"-"`

	// Discarded is set when the request was superseded before it could be
	// published. Only the per-call completion sees discarded updates.
	Discarded bool `json:"discarded,omitempty"`
}

// Changed reports whether the consumer's view must change.
func (u Update[K, A]) Changed() bool {
	return u.Kind != NoChange
}

func (u Update[K, A]) String() string {
	switch {
	case u.Discarded:
		return fmt.Sprintf("discarded(g%d)", u.Generation)
	case u.Kind == Patch:
		return fmt.Sprintf("patch(g%d) %s", u.Generation, u.Changes)
	case u.Kind == FullReload:
		return fmt.Sprintf("full_reload(g%d) %d elements", u.Generation, len(u.Order))
	default:
		return fmt.Sprintf("no_change(g%d)", u.Generation)
	}
}

// Consumer receives every update that was not discarded, on the control
// context, in publication order.
type Consumer[K comparable, A any] interface {
	Publish(Update[K, A])
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc[K comparable, A any] func(Update[K, A])

// Publish implements Consumer.
func (f ConsumerFunc[K, A]) Publish(u Update[K, A]) { f(u) }
