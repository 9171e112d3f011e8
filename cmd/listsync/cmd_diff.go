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
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/listsync/pkg/diff"
	"github.com/AleutianAI/listsync/pkg/ux"
)

// diffReport is the machine-readable form of `listsync diff`.
type diffReport struct {
	Changes diff.Changes `json:"changes" yaml:"changes"`
	Summary diff.Result  `json:"summary" yaml:"summary"`
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldItems, err := loadItems(args[0])
	if err != nil {
		return err
	}
	newItems, err := loadItems(args[1])
	if err != nil {
		return err
	}

	changes := diff.BetweenDiffable[string](oldItems, newItems)
	if err := changes.Validate(len(oldItems), len(newItems)); err != nil {
		// Only duplicate identities can produce an inconsistent script.
		app.logger.Warn("edit script does not validate", "error", err)
	}
	app.logger.Debug("diff computed",
		"old_count", len(oldItems),
		"new_count", len(newItems),
		"changes", len(changes))

	return writeDiff(cmd.OutOrStdout(), rendererFor(cmd), diffOutput, args[0]+" → "+args[1], oldItems, newItems, changes)
}

func writeDiff(w io.Writer, r ux.Renderer, format, title string, oldItems, newItems []Item, changes diff.Changes) error {
	switch format {
	case "tree", "":
		fmt.Fprintln(w, r.Script(title, changes, len(oldItems), len(newItems), labels(oldItems), labels(newItems)))
		fmt.Fprintln(w, r.Summary(changes))
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(diffReport{Changes: changes, Summary: diff.Summarize(changes, len(oldItems), len(newItems))})
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(diffReport{Changes: changes, Summary: diff.Summarize(changes, len(oldItems), len(newItems))})
	case "batch":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(diff.Translate(changes, diff.TranslateOptions{AllowMoves: diffMoves}))
	default:
		return fmt.Errorf("unknown output format %q (want tree, json, yaml or batch)", format)
	}
}
