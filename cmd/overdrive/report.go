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
	"context"
	"fmt"
	"sort"

	"github.com/AleutianAI/overdrive/pkg/ux"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/cso/version"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/session"
	"github.com/AleutianAI/overdrive/services/graph/states"
	"github.com/AleutianAI/overdrive/services/graph/views"
)

// Report summarises a replay and the session state it left behind.
type Report struct {
	Title    string
	Steps    []StepResult
	Asset    model.ID
	Versions map[string]version.Version
	View     views.GraphViewStats
	Toolbar  views.ToolbarCounts
	Problems []states.ProcessingError
}

// Failed counts steps that returned an error.
func (r Report) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Skipped counts steps that were not submitted.
func (r Report) Skipped() int {
	n := 0
	for _, s := range r.Steps {
		if s.Skipped {
			n++
		}
	}
	return n
}

// buildReport collects the session state after steps ran.
func buildReport(ctx context.Context, title string, s *session.Session, steps []StepResult) (Report, error) {
	r := Report{
		Title:   title,
		Steps:   steps,
		View:    s.Canvas().Stats(),
		Toolbar: s.Toolbar().Counts(),
	}
	err := s.Read(ctx, func(st *state.State, c states.Components) error {
		r.Asset = c.View.Asset()
		r.Versions = st.Versions()
		r.Problems = c.Processing.Errors()
		return nil
	})
	return r, err
}

// printReport renders r.
func printReport(p *ux.Printer, r Report) {
	p.Title(r.Title)
	for _, s := range r.Steps {
		name := fmt.Sprintf("%d. %s", s.Index, s.Command)
		switch {
		case s.Skipped:
			p.Status(ux.IconPending, name, "skipped")
		case s.Err != nil:
			p.Status(ux.IconError, name, s.Err.Error())
		default:
			p.Status(ux.IconSuccess, name, s.Label)
		}
	}

	names := make([]string, 0, len(r.Versions))
	for name := range r.Versions {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := []string{fmt.Sprintf("asset: %s", r.Asset)}
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s: v%d", name, r.Versions[name]))
	}
	lines = append(lines,
		fmt.Sprintf("elements: %d", r.View.Elements),
		fmt.Sprintf("full rebuilds: %d, incremental updates: %d", r.View.FullRebuilds, r.View.IncrementalUpdates))
	p.Box("State", lines...)

	if len(r.Problems) > 0 {
		problems := make([]string, 0, len(r.Problems))
		for _, e := range r.Problems {
			line := fmt.Sprintf("[%s] %s: %s", e.Severity, e.Element, e.Message)
			if e.QuickFix != "" {
				line += fmt.Sprintf(" %s %s", ux.IconArrow, e.QuickFix)
			}
			problems = append(problems, line)
		}
		if r.Toolbar.Errors > 0 {
			p.ErrorBox("Problems", problems...)
		} else {
			p.Box("Problems", problems...)
		}
	}

	p.Summary(
		ux.Counter{Label: "ok", Value: len(r.Steps) - r.Failed() - r.Skipped(), Icon: ux.IconSuccess},
		ux.Counter{Label: "failed", Value: r.Failed(), Icon: ux.IconError},
		ux.Counter{Label: "skipped", Value: r.Skipped(), Icon: ux.IconPending},
		ux.Counter{Label: "errors", Value: r.Toolbar.Errors, Icon: ux.IconError},
		ux.Counter{Label: "warnings", Value: r.Toolbar.Warnings, Icon: ux.IconWarning},
	)
}
