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

	"github.com/AleutianAI/overdrive/services/cso/changeset"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/cso/version"
	"github.com/AleutianAI/overdrive/services/graph/model"
)

// Selection is the set of selected elements of the view's graph. Its
// changesets record toggled IDs as Changed.
type Selection struct {
	state.Base

	changes  *changeset.Manager[*changeset.ItemChangeset]
	view     *GraphView
	selected changeset.Set
}

// NewSelection returns an empty selection over view's graph.
func NewSelection(view *GraphView) *Selection {
	s := &Selection{
		changes:  changeset.NewManager(changeset.NewItemChangeset),
		view:     view,
		selected: changeset.NewSet(),
	}
	s.Base = state.NewBase(SelectionName, s.changes)
	return s
}

// IsSelected reports whether id is selected.
func (s *Selection) IsSelected(id model.ID) bool {
	return s.selected.Has(changeset.ID(id))
}

// Selected returns the selected IDs, sorted.
func (s *Selection) Selected() []model.ID {
	return ToModelIDs(s.selected.Sorted())
}

// Len returns the number of selected elements.
func (s *Selection) Len() int {
	return s.selected.Len()
}

// Changes aggregates the toggled IDs in (since, current].
func (s *Selection) Changes(since version.Version) (*changeset.ItemChangeset, bool) {
	return s.changes.GetAggregatedChangeset(since, s.CurrentVersion())
}

// Update runs fn with an open updater.
func (s *Selection) Update(fn func(u *SelectionUpdater) error) error {
	return state.Update(s, func(sc *state.Scope) error {
		return fn(&SelectionUpdater{Scope: sc, s: s})
	})
}

// SelectionUpdater mutates a Selection inside an update scope.
type SelectionUpdater struct {
	*state.Scope
	s *Selection
}

// Select adds ids to, or removes them from, the selection. Only IDs whose
// state actually toggles are recorded.
func (u *SelectionUpdater) Select(selected bool, ids ...model.ID) {
	for _, id := range ids {
		cid := changeset.ID(id)
		if u.s.selected.Has(cid) == selected {
			continue
		}
		if selected {
			u.s.selected.Add(cid)
		} else {
			u.s.selected.Remove(cid)
		}
		u.s.changes.Current().MarkChanged(cid)
		u.MarkPartial()
	}
}

// Clear deselects everything.
func (u *SelectionUpdater) Clear() {
	u.Select(false, u.s.Selected()...)
}

// Replace makes ids the whole selection.
func (u *SelectionUpdater) Replace(ids ...model.ID) {
	keep := make(map[model.ID]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	for _, id := range u.s.Selected() {
		if !keep[id] {
			u.Select(false, id)
		}
	}
	u.Select(true, ids...)
}

// MarshalState encodes the selected IDs.
func (s *Selection) MarshalState() ([]byte, error) {
	return json.Marshal(struct {
		Selected []model.ID `json:"selected"`
	}{s.Selected()})
}

// UnmarshalState replaces the selected IDs.
func (s *Selection) UnmarshalState(data []byte) error {
	var p struct {
		Selected []model.ID `json:"selected"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode selection: %w", err)
	}
	s.selected = changeset.NewSet(toChangesetIDs(p.Selected)...)
	return nil
}

// ValidateAfterLoad drops selected IDs missing from the view's graph.
func (s *Selection) ValidateAfterLoad() []string {
	if s.view == nil {
		return nil
	}
	var repairs []string
	for _, id := range s.Selected() {
		if !s.view.Graph().Has(id) {
			s.selected.Remove(changeset.ID(id))
			repairs = append(repairs, fmt.Sprintf("deselected missing element %s", id))
		}
	}
	return repairs
}
