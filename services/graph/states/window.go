// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package states

import (
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/graph/model"
)

// GraphReference points at a graph asset in the Library.
type GraphReference struct {
	Asset model.ID `json:"asset" yaml:"asset"`
	Title string   `json:"title,omitempty" yaml:"title,omitempty"`
}

// IsZero reports whether r points at nothing.
func (r GraphReference) IsZero() bool { return r.Asset == "" }

// Window tracks which graph is open and the breadcrumb stack of parent
// graphs. It keeps no changeset history: observers always rebuild.
type Window struct {
	state.Base

	library *model.Library
	current GraphReference
	last    GraphReference
	stack   []GraphReference
}

// NewWindow returns a window with nothing open.
func NewWindow(lib *model.Library) *Window {
	w := &Window{library: lib}
	w.Base = state.NewBase(WindowName, nil)
	return w
}

// Current returns the open graph reference.
func (w *Window) Current() GraphReference { return w.current }

// Last returns the previously opened graph reference.
func (w *Window) Last() GraphReference { return w.last }

// Stack returns a copy of the breadcrumb stack, outermost first.
func (w *Window) Stack() []GraphReference {
	return append([]GraphReference(nil), w.stack...)
}

// Update runs fn with an open updater.
func (w *Window) Update(fn func(u *WindowUpdater) error) error {
	return state.Update(w, func(s *state.Scope) error {
		return fn(&WindowUpdater{Scope: s, w: w})
	})
}

// WindowUpdater mutates a Window inside an update scope.
type WindowUpdater struct {
	*state.Scope
	w *Window
}

// LoadGraph opens ref, remembering the previous reference as Last.
func (u *WindowUpdater) LoadGraph(ref GraphReference) {
	if !u.w.current.IsZero() && u.w.current != ref {
		u.w.last = u.w.current
	}
	u.w.current = ref
	u.MarkPartial()
}

// PushCurrentGraph pushes the open graph onto the breadcrumb stack.
func (u *WindowUpdater) PushCurrentGraph() {
	if u.w.current.IsZero() {
		return
	}
	u.w.stack = append(u.w.stack, u.w.current)
	u.MarkPartial()
}

// TruncateHistory keeps the first n stack entries.
func (u *WindowUpdater) TruncateHistory(n int) {
	if n < 0 {
		n = 0
	}
	if n >= len(u.w.stack) {
		return
	}
	u.w.stack = u.w.stack[:n]
	u.MarkPartial()
}

// ClearHistory empties the breadcrumb stack.
func (u *WindowUpdater) ClearHistory() {
	u.TruncateHistory(0)
}

type windowPayload struct {
	Current GraphReference   `json:"current"`
	Last    GraphReference   `json:"last"`
	Stack   []GraphReference `json:"stack,omitempty"`
}

// MarshalState encodes the references.
func (w *Window) MarshalState() ([]byte, error) {
	return json.Marshal(windowPayload{Current: w.current, Last: w.last, Stack: w.stack})
}

// UnmarshalState replaces the references.
func (w *Window) UnmarshalState(data []byte) error {
	var p windowPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode window: %w", err)
	}
	w.current, w.last, w.stack = p.Current, p.Last, p.Stack
	return nil
}

// ValidateAfterLoad resets references to assets missing from the library.
func (w *Window) ValidateAfterLoad() []string {
	if w.library == nil {
		return nil
	}
	var repairs []string
	check := func(label string, ref *GraphReference) bool {
		if ref.IsZero() || w.library.Has(ref.Asset) {
			return true
		}
		repairs = append(repairs, fmt.Sprintf("reset %s graph reference to missing asset %s", label, ref.Asset))
		*ref = GraphReference{}
		return false
	}
	check("current", &w.current)
	check("last", &w.last)
	kept := w.stack[:0]
	for i := range w.stack {
		if check("stacked", &w.stack[i]) {
			kept = append(kept, w.stack[i])
		}
	}
	w.stack = kept
	return repairs
}
