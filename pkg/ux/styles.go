// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux renders listsync output for terminals.
package ux

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles holds one style per edit operation plus headings.
var Styles = struct {
	Title  lipgloss.Style
	Muted  lipgloss.Style
	Delete lipgloss.Style
	Insert lipgloss.Style
	Update lipgloss.Style
	Move   lipgloss.Style
	Box    lipgloss.Style
}{
	Title:  lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Muted:  lipgloss.NewStyle().Foreground(ColorSlate),
	Delete: lipgloss.NewStyle().Foreground(ColorError),
	Insert: lipgloss.NewStyle().Foreground(ColorSuccess),
	Update: lipgloss.NewStyle().Foreground(ColorWarning),
	Move:   lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon marks an operation in rendered output.
type Icon string

const (
	IconDelete Icon = "✗"
	IconInsert Icon = "+"
	IconUpdate Icon = "~"
	IconMove   Icon = "→"
	IconOK     Icon = "✓"
)

// IsTerminal reports whether w is a terminal that accepts color. NO_COLOR
// disables color everywhere.
func IsTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
