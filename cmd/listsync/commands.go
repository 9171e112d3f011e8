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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/listsync/pkg/config"
	"github.com/AleutianAI/listsync/pkg/layout"
	"github.com/AleutianAI/listsync/pkg/logging"
	"github.com/AleutianAI/listsync/pkg/ux"
	"github.com/AleutianAI/listsync/services/reconcile"
	"github.com/AleutianAI/listsync/services/reconcile/control"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	jsonLogs   bool
	width      float64
	height     float64

	diffOutput string
	diffMoves  bool

	simSteps int
	simItems int
	simSeed  uint64

	serveAddr string

	app struct {
		cfg    config.Config
		logger *logging.Logger
	}

	rootCmd = &cobra.Command{
		Use:   "listsync",
		Short: "Diff item lists and keep derived layouts in step with them",
		Long: `listsync computes identity-aware edit scripts between item lists and
runs a reconciler that recomputes per-item layouts only where the script
requires it.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if app.logger != nil {
				_ = app.logger.Close()
			}
		},
	}

	// --- Diff ---
	diffCmd = &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Print the edit script between two item files (YAML, JSON or JSONC)",
		Args:  cobra.ExactArgs(2),
		RunE:  runDiff, // Defined in cmd_diff.go
	}

	// --- Reconciler ---
	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Interleave random element and constraint updates and check the result settles",
		Args:  cobra.NoArgs,
		RunE:  runSimulate, // Defined in cmd_simulate.go
	}
	watchCmd = &cobra.Command{
		Use:   "watch FILE",
		Short: "Reconcile an item file every time it changes",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch, // Defined in cmd_watch.go
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve a reconciler over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (YAML, JSON or JSONC)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON")
	pf.Float64Var(&width, "width", 0, "width constraint (overrides config)")
	pf.Float64Var(&height, "height", 0, "height constraint (overrides config)")

	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "tree", "output format: tree, json, yaml, batch")
	diffCmd.Flags().BoolVar(&diffMoves, "moves", true, "with -o batch, keep moves instead of delete+insert")

	simulateCmd.Flags().IntVar(&simSteps, "steps", 500, "number of random updates")
	simulateCmd.Flags().IntVar(&simItems, "items", 200, "maximum list length")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 1, "random seed")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")

	rootCmd.AddCommand(diffCmd, simulateCmd, watchCmd, serveCmd)
}

// setup loads config and builds the logger for every command.
func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if cmd.Flags().Changed("width") {
		cfg.Layout.Width = width
	}
	if cmd.Flags().Changed("height") {
		cfg.Layout.Height = height
	}
	if jsonLogs {
		cfg.Logging.JSON = true
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	app.cfg = cfg
	app.logger = logging.New(logging.Config{
		Level:   level,
		Output:  cmd.ErrOrStderr(),
		JSON:    cfg.Logging.JSON,
		LogDir:  cfg.Logging.Dir,
		Service: "listsync",
	})
	return nil
}

// Reconciler is the concrete reconciler the CLI drives.
type Reconciler = reconcile.Reconciler[string, Item, layout.TextLayout]

// Update is what Reconciler publishes.
type Update = reconcile.Update[string, layout.TextLayout]

func newReconciler(exec control.Executor, cfg config.Config, logger *logging.Logger, name string) (*Reconciler, error) {
	sizer := layout.TextSizer{
		GlyphWidth: cfg.Layout.GlyphWidth,
		LineHeight: cfg.Layout.LineHeight,
		Padding:    cfg.Layout.Padding,
	}
	r, err := reconcile.NewDiffable[string, Item, layout.TextLayout](exec, layout.TextComputer[Item](sizer),
		reconcile.WithLogger(logger),
		reconcile.WithWorkers(cfg.Workers),
		reconcile.WithName(name),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reconciler: %w", err)
	}
	return r, nil
}

func modeFor(cfg config.Config) reconcile.Mode {
	if cfg.Mode == "sync" {
		return reconcile.Sync
	}
	return reconcile.Async
}

func constraintsFor(cfg config.Config) layout.Constraints {
	return layout.Bounded(cfg.Layout.Width, cfg.Layout.Height)
}

func rendererFor(cmd *cobra.Command) ux.Renderer {
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		return ux.Renderer{Color: ux.IsTerminal(f)}
	}
	return ux.Renderer{}
}
