// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders command line output for the vroomx CLI.
//
// A Printer writes either styled terminal output (lipgloss colors, icons and
// boxes) or plain machine output suitable for scripts and log collectors.
// The mode is picked from the VROOMX_OUTPUT environment variable or, when
// unset, from whether stdout is a terminal.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

// Mode selects how a Printer renders.
type Mode string

const (
	// ModeStyled uses colors, icons and boxes.
	ModeStyled Mode = "styled"

	// ModePlain uses icons without colors.
	ModePlain Mode = "plain"

	// ModeMachine prints prefixed plain lines and tab separated tables.
	ModeMachine Mode = "machine"
)

// OutputEnv overrides mode detection.
const OutputEnv = "VROOMX_OUTPUT"

var (
	ColorBrand   = lipgloss.Color("#20B9B4")
	ColorAccent  = lipgloss.Color("#16858E")
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#2C4A54")
)

// Styles holds the reusable lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
	Header  lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorBrand),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorAccent).
		Padding(0, 1),
	Header: lipgloss.NewStyle().Bold(true).Foreground(ColorBrand).Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

func (i Icon) render(mode Mode) string {
	if mode != ModeStyled {
		return string(i)
	}
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// ParseMode converts a flag or environment value. Unknown values give
// ModeStyled.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "machine", "quiet", "json", "q":
		return ModeMachine
	case "plain", "minimal", "p":
		return ModePlain
	default:
		return ModeStyled
	}
}

// DetectMode returns the mode from OutputEnv, falling back to ModeMachine
// when out is not a terminal.
func DetectMode(out *os.File) Mode {
	if env := os.Getenv(OutputEnv); env != "" {
		return ParseMode(env)
	}
	fd := out.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return ModeMachine
	}
	return ModeStyled
}

// Printer writes CLI output. The zero value is not usable; use NewPrinter.
type Printer struct {
	out  io.Writer
	err  io.Writer
	mode Mode
}

// NewPrinter creates a Printer. Warnings and errors go to errOut in
// ModeMachine and to out otherwise.
func NewPrinter(out, errOut io.Writer, mode Mode) *Printer {
	return &Printer{out: out, err: errOut, mode: mode}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode { return p.mode }

// Interactive reports whether prompts may be shown.
func (p *Printer) Interactive() bool { return p.mode != ModeMachine }

// Title prints a heading. Machine mode omits it.
func (p *Printer) Title(text string) {
	switch p.mode {
	case ModeMachine:
	case ModePlain:
		fmt.Fprintln(p.out, text)
	default:
		fmt.Fprintln(p.out, Styles.Title.Render(text))
	}
}

// Success prints a success line.
func (p *Printer) Success(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.out, "OK: %s\n", text)
	case ModePlain:
		fmt.Fprintf(p.out, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(p.out, "%s %s\n", IconSuccess.render(p.mode), Styles.Success.Render(text))
	}
}

// Warning prints a warning line.
func (p *Printer) Warning(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.err, "WARN: %s\n", text)
	case ModePlain:
		fmt.Fprintf(p.out, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(p.out, "%s %s\n", IconWarning.render(p.mode), Styles.Warning.Render(text))
	}
}

// Error prints an error line.
func (p *Printer) Error(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.err, "ERROR: %s\n", text)
	case ModePlain:
		fmt.Fprintf(p.out, "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(p.out, "%s %s\n", IconError.render(p.mode), Styles.Error.Render(text))
	}
}

// Info prints an informational line.
func (p *Printer) Info(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.mode == ModeMachine {
		fmt.Fprintln(p.out, text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// KV is one key/value row of Fields.
type KV struct {
	Key   string
	Value any
}

// Fields prints aligned key/value pairs, boxed in styled mode.
func (p *Printer) Fields(title string, fields []KV) {
	if p.mode == ModeMachine {
		for _, f := range fields {
			fmt.Fprintf(p.out, "%s=%v\n", machineKey(f.Key), f.Value)
		}
		return
	}
	width := 0
	for _, f := range fields {
		width = max(width, len(f.Key))
	}
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('\n')
		}
		key := fmt.Sprintf("%-*s", width, f.Key)
		if p.mode == ModeStyled {
			key = Styles.Muted.Render(key)
		}
		fmt.Fprintf(&b, "%s  %v", key, f.Value)
	}
	if p.mode == ModePlain {
		if title != "" {
			fmt.Fprintln(p.out, title)
		}
		fmt.Fprintln(p.out, b.String())
		return
	}
	content := b.String()
	if title != "" {
		content = Styles.Title.Render(title) + "\n" + content
	}
	fmt.Fprintln(p.out, Styles.Box.Render(content))
}

// Table prints rows under headers. Machine mode writes tab separated
// lines with a header row.
func (p *Printer) Table(headers []string, rows [][]string) {
	if p.mode == ModeMachine {
		fmt.Fprintln(p.out, strings.Join(headers, "\t"))
		for _, r := range rows {
			fmt.Fprintln(p.out, strings.Join(r, "\t"))
		}
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	if p.mode == ModeStyled {
		t = t.BorderStyle(lipgloss.NewStyle().Foreground(ColorAccent)).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return Styles.Header
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
	}
	fmt.Fprintln(p.out, t.Render())
}

// ScoreBar renders a 0-100 score as a bar colored by band.
func (p *Printer) ScoreBar(score, width int) string {
	if p.mode == ModeMachine {
		return fmt.Sprintf("%d/100", score)
	}
	score = min(max(score, 0), 100)
	filled := score * width / 100
	bar := strings.Repeat("█", filled)
	rest := strings.Repeat("░", width-filled)
	if p.mode == ModeStyled {
		style := Styles.Success
		switch {
		case score < 70:
			style = Styles.Error
		case score < 85:
			style = Styles.Warning
		}
		bar = style.Render(bar)
		rest = Styles.Muted.Render(rest)
	}
	return fmt.Sprintf("%s%s %3d", bar, rest, score)
}

func machineKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), " ", "_")
}
