// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package ux

import (
	"fmt"
	"io"
	"strings"
)

// Mode selects how a Printer formats output.
type Mode int

const (
	// ModeRich uses colours, icons and boxes.
	ModeRich Mode = iota

	// ModePlain uses icons without colour or boxes.
	ModePlain

	// ModeMachine prints tab-separated lines for scripts.
	ModeMachine
)

// ParseMode accepts "rich", "plain" or "machine".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "rich":
		return ModeRich, nil
	case "plain":
		return ModePlain, nil
	case "machine":
		return ModeMachine, nil
	default:
		return ModeRich, fmt.Errorf("unknown output mode %q", s)
	}
}

// Printer writes styled lines to w.
//
// Thread Safety: not safe for concurrent use.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	return &Printer{w: w, mode: mode}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode { return p.mode }

// Title prints a heading. Machine mode skips it.
func (p *Printer) Title(text string) {
	switch p.mode {
	case ModeMachine:
	case ModePlain:
		fmt.Fprintln(p.w, text)
	default:
		fmt.Fprintln(p.w, Styles.Title.Render(text))
	}
}

// Status prints one line prefixed by icon. detail is shown muted.
func (p *Printer) Status(icon Icon, text, detail string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "%s\t%s\t%s\n", machineStatus(icon), text, detail)
	case ModePlain:
		if detail != "" {
			fmt.Fprintf(p.w, "%s %s (%s)\n", icon, text, detail)
			return
		}
		fmt.Fprintf(p.w, "%s %s\n", icon, text)
	default:
		if detail != "" {
			fmt.Fprintf(p.w, "%s %s %s\n", icon.Render(), text, Styles.Muted.Render("("+detail+")"))
			return
		}
		fmt.Fprintf(p.w, "%s %s\n", icon.Render(), text)
	}
}

// Box prints a titled block of lines.
func (p *Printer) Box(title string, lines ...string) {
	p.box(Styles.Box, Styles.Title, title, lines)
}

// ErrorBox prints a titled block of lines in error colours.
func (p *Printer) ErrorBox(title string, lines ...string) {
	p.box(Styles.ErrorBox, Styles.Error.Bold(true), title, lines)
}

func (p *Printer) box(frame, heading interface{ Render(...string) string }, title string, lines []string) {
	switch p.mode {
	case ModeMachine:
		for _, l := range lines {
			fmt.Fprintf(p.w, "%s\t%s\n", title, l)
		}
	case ModePlain:
		fmt.Fprintln(p.w, title)
		for _, l := range lines {
			fmt.Fprintf(p.w, "  %s\n", l)
		}
	default:
		body := heading.Render(title)
		if len(lines) > 0 {
			body += "\n" + strings.Join(lines, "\n")
		}
		fmt.Fprintln(p.w, frame.Render(body))
	}
}

// Counter is one labelled number in a Summary line.
type Counter struct {
	Label string
	Value int
	Icon  Icon
}

// Summary prints counters on one line.
func (p *Printer) Summary(counters ...Counter) {
	parts := make([]string, 0, len(counters))
	for _, c := range counters {
		switch p.mode {
		case ModeMachine:
			parts = append(parts, fmt.Sprintf("%s=%d", c.Label, c.Value))
		case ModePlain:
			parts = append(parts, fmt.Sprintf("%d %s", c.Value, c.Label))
		default:
			parts = append(parts, styleFor(c.Icon).Render(fmt.Sprintf("%d", c.Value))+" "+Styles.Muted.Render(c.Label))
		}
	}
	if p.mode == ModeMachine {
		fmt.Fprintf(p.w, "SUMMARY\t%s\n", strings.Join(parts, "\t"))
		return
	}
	fmt.Fprintln(p.w, strings.Join(parts, "  "))
}

func styleFor(i Icon) interface{ Render(...string) string } {
	switch i {
	case IconSuccess:
		return Styles.Success
	case IconWarning:
		return Styles.Warning
	case IconError:
		return Styles.Error
	default:
		return Styles.Bold
	}
}

func machineStatus(i Icon) string {
	switch i {
	case IconSuccess:
		return "OK"
	case IconWarning:
		return "WARN"
	case IconError:
		return "ERROR"
	default:
		return "INFO"
	}
}
