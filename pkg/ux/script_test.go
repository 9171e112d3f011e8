// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/listsync/pkg/diff"
)

func TestRenderer_Script(t *testing.T) {
	r := Renderer{}
	changes := diff.Changes{diff.Delete(2), diff.UpdateAt(0, 0), diff.MoveTo(1, 2), diff.Insert(1)}

	out := r.Script("old → new", changes, 3, 3, []string{"a", "b", "c"}, []string{"a", "d", "b"})

	assert.True(t, strings.HasPrefix(out, "old → new (4 changes)"))
	assert.Contains(t, out, "✗ delete (1)")
	assert.Contains(t, out, "[2] c")
	assert.Contains(t, out, "+ insert (1)")
	assert.Contains(t, out, "[1] d")
	assert.Contains(t, out, "~ update (1)")
	assert.Contains(t, out, "[0 → 0] a")
	assert.Contains(t, out, "→ move (1)")
	assert.Contains(t, out, "[1 → 2] b")
	assert.NotContains(t, out, "\x1b[", "plain renderer must not emit escapes")
}

func TestRenderer_ScriptEmpty(t *testing.T) {
	out := Renderer{}.Script("same", nil, 2, 2, nil, nil)
	assert.Contains(t, out, "same (no changes)")
	assert.NotContains(t, out, "delete")
}

func TestRenderer_ScriptMissingLabels(t *testing.T) {
	out := Renderer{}.Script("x", diff.Changes{diff.Insert(0)}, 0, 1, nil, nil)
	assert.Contains(t, out, "[0]")
}

func TestRenderer_Summary(t *testing.T) {
	changes := diff.Changes{diff.Delete(0), diff.Insert(0), diff.Insert(1)}
	assert.Equal(t, "1 delete, 2 insert, 0 update, 0 move", Renderer{}.Summary(changes))
}

func TestRenderer_Status(t *testing.T) {
	r := Renderer{}
	assert.Equal(t, "✓ g2 patch: 1 move", r.Status(IconOK, "g2 patch", "1 move"))
	assert.Equal(t, "✓ ready", r.Status(IconOK, "ready", ""))
	assert.Equal(t, "text", r.Boxed("text"))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))

	t.Setenv("NO_COLOR", "1")
	assert.False(t, IsTerminal(nil))
}
