// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	changes := Changes{Delete(3), Insert(0), UpdateAt(1, 1), MoveTo(2, 4), Insert(5)}

	r := Summarize(changes, 4, 6)

	assert.Equal(t, 4, r.OldCount)
	assert.Equal(t, 6, r.NewCount)
	assert.Equal(t, []int{3}, r.Deletes)
	assert.Equal(t, []int{0, 5}, r.Inserts)
	assert.Equal(t, []Pair{{Old: 1, New: 1}}, r.Updates)
	assert.Equal(t, []Pair{{Old: 2, New: 4}}, r.Moves)
	assert.Equal(t, 5, r.ChangesCount())
	assert.False(t, r.IsEmpty())
	assert.True(t, Summarize(nil, 2, 2).IsEmpty())
}

func TestTranslate(t *testing.T) {
	changes := Changes{Delete(0), Insert(2), UpdateAt(1, 0), MoveTo(2, 1)}

	t.Run("moves kept", func(t *testing.T) {
		b := Translate(changes, TranslateOptions{AllowMoves: true})
		assert.Equal(t, []int{0, 1}, b.Deletes)
		assert.Equal(t, []int{2, 0}, b.Inserts)
		assert.Equal(t, []Pair{{Old: 2, New: 1}}, b.Moves)
	})

	t.Run("moves expanded", func(t *testing.T) {
		b := Translate(changes, TranslateOptions{AllowMoves: false})
		assert.Equal(t, []int{0, 1, 2}, b.Deletes)
		assert.Equal(t, []int{2, 0, 1}, b.Inserts)
		assert.Empty(t, b.Moves)
	})
}

func TestChanges_Validate(t *testing.T) {
	tests := []struct {
		name    string
		changes Changes
		oldLen  int
		newLen  int
		wantErr error
	}{
		{name: "valid", changes: Changes{Delete(0), Insert(1)}, oldLen: 2, newLen: 2},
		{name: "old out of range", changes: Changes{Delete(2), Insert(0)}, oldLen: 2, newLen: 1, wantErr: ErrIndexOutOfRange},
		{name: "new out of range", changes: Changes{Insert(-1)}, oldLen: 0, newLen: 1, wantErr: ErrIndexOutOfRange},
		{name: "old reused", changes: Changes{Delete(0), MoveTo(0, 1)}, oldLen: 2, newLen: 2, wantErr: ErrIndexReused},
		{name: "unbalanced", changes: Changes{Delete(0)}, oldLen: 2, newLen: 2, wantErr: ErrUnbalanced},
		{name: "unknown op", changes: Changes{{Op: Op(9)}}, oldLen: 1, newLen: 1, wantErr: ErrUnknownOp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.changes.Validate(tt.oldLen, tt.newLen)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestChange_JSON(t *testing.T) {
	data, err := json.Marshal(Changes{MoveTo(2, 1), Delete(0)})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"op":"move","old":2,"new":1},{"op":"delete","old":0,"new":-1}]`, string(data))

	var back Changes
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Changes{MoveTo(2, 1), Delete(0)}, back)
}

func TestChanges_String(t *testing.T) {
	assert.Equal(t, "[delete(1) insert(0) update(0,2) move(3,1)]",
		Changes{Delete(1), Insert(0), UpdateAt(0, 2), MoveTo(3, 1)}.String())
	assert.Equal(t, "unknown", Op(42).String())
}

func TestDuplicates(t *testing.T) {
	items := []row{{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "a"}, {ID: "b"}}
	assert.Equal(t, []string{"a", "b"}, Duplicates(items, func(r row) string { return r.ID }))
	assert.Equal(t, []string{"a", "b", "a", "a", "b"}, IDs[string](items))
}
