// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package layout defines bounding constraints and the artifact computation
// contract used by the reconciler.
//
// The solver that turns an element and its constraints into a measured
// layout lives outside this module. This package only describes what the
// reconciler passes to it and what it expects back.
package layout

import (
	"fmt"
	"math"
)

// NoLimit is the size reported for an unconstrained dimension.
const NoLimit = math.MaxFloat64

// Dimension is an optional, strictly positive bound.
//
// The zero value is unconstrained.
type Dimension struct {
	value float64
	set   bool
}

// smallestNormal is the smallest positive normal float64.
const smallestNormal = 0x1p-1022

// Limit returns a dimension bounded at v.
//
// Values that are not finite, zero, negative or subnormal yield an
// unconstrained dimension.
func Limit(v float64) Dimension {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < smallestNormal {
		return Dimension{}
	}
	return Dimension{value: v, set: true}
}

// Unconstrained returns a dimension with no bound.
func Unconstrained() Dimension { return Dimension{} }

// Value returns the bound and whether one is set.
func (d Dimension) Value() (float64, bool) { return d.value, d.set }

// IsSet reports whether the dimension is bounded.
func (d Dimension) IsSet() bool { return d.set }

// OrNoLimit returns the bound, or NoLimit when unconstrained.
func (d Dimension) OrNoLimit() float64 {
	if !d.set {
		return NoLimit
	}
	return d.value
}

// orNaN is the representation handed to Modifier functions.
func (d Dimension) orNaN() float64 {
	if !d.set {
		return math.NaN()
	}
	return d.value
}

// String renders the bound, or "∞" when unconstrained.
func (d Dimension) String() string {
	if !d.set {
		return "∞"
	}
	return fmt.Sprintf("%g", d.value)
}

// Constraints bound the width and height an artifact is computed against.
//
// Constraints are comparable with ==; two unconstrained dimensions are
// equal.
type Constraints struct {
	Width  Dimension
	Height Dimension
}

// Bounded returns constraints from raw width and height values, applying
// Limit to each.
func Bounded(width, height float64) Constraints {
	return Constraints{Width: Limit(width), Height: Limit(height)}
}

// Equal reports whether both dimensions match.
func (c Constraints) Equal(other Constraints) bool {
	return c == other
}

// IsEmpty reports whether neither dimension is bounded.
//
// Empty constraints mean no layout is possible yet.
func (c Constraints) IsEmpty() bool {
	return !c.Width.set && !c.Height.set
}

// Size returns the maximum width and height, with NoLimit for unbounded
// dimensions.
func (c Constraints) Size() (width, height float64) {
	return c.Width.OrNoLimit(), c.Height.OrNoLimit()
}

// Modifier maps raw width and height to new values. Unconstrained inputs
// arrive as NaN.
type Modifier func(width, height float64) (float64, float64)

// Modify returns the constraints produced by fn, normalized through Limit.
func (c Constraints) Modify(fn Modifier) Constraints {
	w, h := fn(c.Width.orNaN(), c.Height.orNaN())
	return Bounded(w, h)
}

// String renders the constraints as "WxH".
func (c Constraints) String() string {
	return c.Width.String() + "x" + c.Height.String()
}

// ConstraintsModifier is implemented by elements that adjust the bounding
// constraints before their artifact is computed, for example to subtract
// insets or to fix a row height.
type ConstraintsModifier interface {
	ModifyConstraints(Constraints) Constraints
}

// Effective returns the constraints an element's artifact should be
// computed against.
func Effective(element any, c Constraints) Constraints {
	if m, ok := element.(ConstraintsModifier); ok {
		return m.ModifyConstraints(c)
	}
	return c
}
