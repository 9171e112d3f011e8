// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/listsync/pkg/config"
	"github.com/AleutianAI/listsync/pkg/diff"
	"github.com/AleutianAI/listsync/pkg/layout"
)

// ErrEmptyID is returned for an item without an id.
var ErrEmptyID = errors.New("item has no id")

// Item is one row of an item file.
type Item struct {
	ID    string `yaml:"id" json:"id" binding:"required"`
	Value string `yaml:"value" json:"value"`

	// MaxWidth narrows the width constraint for this item only. Zero
	// leaves it alone.
	MaxWidth float64 `yaml:"max_width,omitempty" json:"max_width,omitempty"`
}

// DiffID implements diff.Identifiable.
func (it Item) DiffID() string { return it.ID }

// ContentEqual implements diff.Diffable.
func (it Item) ContentEqual(other Item) bool {
	return it.Value == other.Value && it.MaxWidth == other.MaxWidth
}

// Text implements layout.Texter.
func (it Item) Text() string { return it.Value }

// ModifyConstraints implements layout.ConstraintsModifier.
func (it Item) ModifyConstraints(c layout.Constraints) layout.Constraints {
	if it.MaxWidth <= 0 {
		return c
	}
	return c.Modify(func(w, h float64) (float64, float64) {
		if math.IsNaN(w) || w > it.MaxWidth {
			return it.MaxWidth, h
		}
		return w, h
	})
}

var (
	_ diff.Diffable[string, Item] = Item{}
	_ layout.Texter               = Item{}
	_ layout.ConstraintsModifier  = Item{}
)

// itemFile accepts either a bare list of items or {items: [...]}.
type itemFile struct {
	Items []Item
}

func (f *itemFile) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&f.Items)
	}
	var wrapped struct {
		Items []Item `yaml:"items"`
	}
	if err := node.Decode(&wrapped); err != nil {
		return err
	}
	f.Items = wrapped.Items
	return nil
}

func (f *itemFile) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &f.Items)
	}
	var wrapped struct {
		Items []Item `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	f.Items = wrapped.Items
	return nil
}

// loadItems reads and checks an item file.
func loadItems(path string) ([]Item, error) {
	var f itemFile
	if err := config.ReadDocument(path, &f); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := checkItems(f.Items); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f.Items, nil
}

func checkItems(items []Item) error {
	for i, it := range items {
		if it.ID == "" {
			return fmt.Errorf("item %d: %w", i, ErrEmptyID)
		}
	}
	return nil
}

// labels returns display labels for a tree rendering.
func labels(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		if it.Value == "" {
			out[i] = it.ID
			continue
		}
		out[i] = it.ID + ": " + it.Value
	}
	return out
}
