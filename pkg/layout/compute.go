// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layout

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"
)

// Computer produces the artifact for one element under the given
// constraints.
//
// Description:
//
//	Supplied by the surrounding rendering system. Compute is called from
//	worker goroutines, possibly concurrently for different elements, and
//	must not mutate shared UI state. Unconstrained dimensions are reported
//	by Constraints.Size as NoLimit, never as zero.
//
// Panics raised by Compute are re-raised on the reconciler's control
// context; they are not swallowed.
type Computer[E any, A any] interface {
	Compute(ctx context.Context, element E, c Constraints) A
}

// ComputeFunc adapts a function to Computer.
type ComputeFunc[E any, A any] func(ctx context.Context, element E, c Constraints) A

// Compute implements Computer.
func (f ComputeFunc[E, A]) Compute(ctx context.Context, element E, c Constraints) A {
	return f(ctx, element, c)
}

// Size is a measured width and height.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// TextLayout is the artifact computed by TextSizer.
type TextLayout struct {
	Size  Size     `json:"size" yaml:"size"`
	Lines []string `json:"lines" yaml:"lines"`
}

// Texter is implemented by elements measured as text.
type Texter interface {
	Text() string
}

// TextSizer measures text with fixed glyph metrics.
//
// It wraps words greedily at the width bound, breaking words that do not
// fit on a line of their own, and clips the line count to the height
// bound. It stands in for a real text layout engine in tools and tests.
type TextSizer struct {
	// GlyphWidth is the advance of every rune.
	GlyphWidth float64

	// LineHeight is the height of one line.
	LineHeight float64

	// Padding is added on every side.
	Padding float64
}

// DefaultTextSizer returns a sizer with terminal-like metrics.
func DefaultTextSizer() TextSizer {
	return TextSizer{GlyphWidth: 1, LineHeight: 1}
}

// Measure lays out text under c.
func (s TextSizer) Measure(text string, c Constraints) TextLayout {
	maxWidth, maxHeight := c.Size()

	cols := math.MaxInt
	if maxWidth != NoLimit && s.GlyphWidth > 0 {
		cols = max(1, int((maxWidth-2*s.Padding)/s.GlyphWidth))
	}
	rows := math.MaxInt
	if maxHeight != NoLimit && s.LineHeight > 0 {
		rows = max(1, int((maxHeight-2*s.Padding)/s.LineHeight))
	}

	lines := wrap(text, cols)
	if len(lines) > rows {
		lines = lines[:rows]
	}

	widest := 0
	for _, line := range lines {
		widest = max(widest, utf8.RuneCountInString(line))
	}

	return TextLayout{
		Size: Size{
			Width:  float64(widest)*s.GlyphWidth + 2*s.Padding,
			Height: float64(len(lines))*s.LineHeight + 2*s.Padding,
		},
		Lines: lines,
	}
}

// TextComputer returns a Computer that measures each element's Text.
//
// Elements implementing ConstraintsModifier get their adjusted
// constraints.
func TextComputer[E Texter](s TextSizer) ComputeFunc[E, TextLayout] {
	return func(_ context.Context, element E, c Constraints) TextLayout {
		return s.Measure(element.Text(), Effective(element, c))
	}
}

func wrap(text string, cols int) []string {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var line []rune
		for _, word := range strings.Fields(paragraph) {
			w := []rune(word)
			if len(line) > 0 && len(line)+1+len(w) > cols {
				lines = append(lines, string(line))
				line = line[:0]
			}
			for len(w) > cols {
				if len(line) > 0 {
					lines = append(lines, string(line))
					line = line[:0]
				}
				lines = append(lines, string(w[:cols]))
				w = w[cols:]
			}
			if len(line) > 0 {
				line = append(line, ' ')
			}
			line = append(line, w...)
		}
		lines = append(lines, string(line))
	}
	return lines
}
