// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/disiqueira/gotree/v3"

	"github.com/AleutianAI/listsync/pkg/diff"
)

// Renderer formats edit scripts and reconciler updates.
type Renderer struct {
	// Color enables lipgloss styling. Off for pipes and files.
	Color bool
}

func (r Renderer) style(s lipgloss.Style, text string) string {
	if !r.Color {
		return text
	}
	return s.Render(text)
}

// Script renders changes as a tree grouped by operation.
//
// Description:
//
//	oldLabels and newLabels name the elements at each index, typically
//	their identities. Either may be nil, in which case only indices are
//	shown. Empty groups are omitted.
//
// Example output:
//
//	items.yaml → items2.yaml (3 changes)
//	├── ✗ delete (1)
//	│   └── [2] c
//	├── ~ update (1)
//	│   └── [0 → 0] a
//	└── → move (1)
//	    └── [1 → 2] b
func (r Renderer) Script(title string, changes diff.Changes, oldCount, newCount int, oldLabels, newLabels []string) string {
	res := diff.Summarize(changes, oldCount, newCount)

	header := fmt.Sprintf("%s (%d changes)", title, res.ChangesCount())
	if res.IsEmpty() {
		header = fmt.Sprintf("%s (no changes)", title)
	}
	root := gotree.New(r.style(Styles.Title, header))

	if len(res.Deletes) > 0 {
		group := root.Add(r.style(Styles.Delete, fmt.Sprintf("%s delete (%d)", IconDelete, len(res.Deletes))))
		for _, i := range res.Deletes {
			group.Add(fmt.Sprintf("[%d] %s", i, label(oldLabels, i)))
		}
	}
	if len(res.Inserts) > 0 {
		group := root.Add(r.style(Styles.Insert, fmt.Sprintf("%s insert (%d)", IconInsert, len(res.Inserts))))
		for _, i := range res.Inserts {
			group.Add(fmt.Sprintf("[%d] %s", i, label(newLabels, i)))
		}
	}
	if len(res.Updates) > 0 {
		group := root.Add(r.style(Styles.Update, fmt.Sprintf("%s update (%d)", IconUpdate, len(res.Updates))))
		for _, p := range res.Updates {
			group.Add(fmt.Sprintf("[%d → %d] %s", p.Old, p.New, label(newLabels, p.New)))
		}
	}
	if len(res.Moves) > 0 {
		group := root.Add(r.style(Styles.Move, fmt.Sprintf("%s move (%d)", IconMove, len(res.Moves))))
		for _, p := range res.Moves {
			group.Add(fmt.Sprintf("[%d → %d] %s", p.Old, p.New, label(newLabels, p.New)))
		}
	}

	return root.Print()
}

// Summary renders a one-line count per operation, e.g.
// "1 delete, 2 insert, 0 update, 1 move".
func (r Renderer) Summary(changes diff.Changes) string {
	parts := []string{
		r.style(Styles.Delete, fmt.Sprintf("%d delete", changes.Count(diff.OpDelete))),
		r.style(Styles.Insert, fmt.Sprintf("%d insert", changes.Count(diff.OpInsert))),
		r.style(Styles.Update, fmt.Sprintf("%d update", changes.Count(diff.OpUpdate))),
		r.style(Styles.Move, fmt.Sprintf("%d move", changes.Count(diff.OpMove))),
	}
	return strings.Join(parts, ", ")
}

// Status renders a labelled line such as "✓ g4 patch: 1 delete, ...".
func (r Renderer) Status(icon Icon, label, detail string) string {
	head := r.style(Styles.Title, fmt.Sprintf("%s %s", icon, label))
	if detail == "" {
		return head
	}
	return head + r.style(Styles.Muted, ": ") + detail
}

// Boxed wraps text in the rounded box style when color is on.
func (r Renderer) Boxed(text string) string {
	if !r.Color {
		return text
	}
	return Styles.Box.Render(text)
}

func label(labels []string, i int) string {
	if i < 0 || i >= len(labels) {
		return ""
	}
	return labels[i]
}
