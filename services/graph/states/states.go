// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package states holds the editor's state components.
//
// Each component embeds state.Base and exposes a typed updater: callers run
// Update(func(u *XUpdater) error) and the updater's methods record changes
// and escalate the scope. Nothing outside an updater mutates a component.
//
//	GraphView   graph, zoom, pan, item changesets (aux "auto-align")
//	Selection   selected element IDs, changesets of toggled IDs
//	Window      opened graph reference and sub-graph breadcrumb stack
//	Processing  validation results of the current graph
package states

import (
	"github.com/AleutianAI/overdrive/services/cso/changeset"
	"github.com/AleutianAI/overdrive/services/cso/config"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/graph/model"
)

// Component names.
const (
	GraphViewName  = "graph_view"
	SelectionName  = "selection"
	WindowName     = "window"
	ProcessingName = "processing"
)

// Components bundles the editor components built over one Library.
type Components struct {
	View       *GraphView
	Selection  *Selection
	Window     *Window
	Processing *Processing
}

// NewComponents builds every editor component.
func NewComponents(prefs config.Preferences, lib *model.Library) Components {
	view := NewGraphView(prefs, lib)
	return Components{
		View:       view,
		Selection:  NewSelection(view),
		Window:     NewWindow(lib),
		Processing: NewProcessing(),
	}
}

// All lists the components in restore order: the view first, so that
// components referring to its graph validate against the restored graph.
func (c Components) All() []state.Component {
	return []state.Component{c.View, c.Selection, c.Window, c.Processing}
}

func toChangesetIDs(ids []model.ID) []changeset.ID {
	out := make([]changeset.ID, len(ids))
	for i, id := range ids {
		out[i] = changeset.ID(id)
	}
	return out
}

// ToModelIDs converts changeset IDs back to element IDs.
func ToModelIDs(ids []changeset.ID) []model.ID {
	out := make([]model.ID, len(ids))
	for i, id := range ids {
		out[i] = model.ID(id)
	}
	return out
}
