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
	"github.com/AleutianAI/overdrive/services/cso/config"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/cso/version"
	"github.com/AleutianAI/overdrive/services/graph/model"
)

// AutoAlignTag marks elements the host should re-layout.
const AutoAlignTag = "auto-align"

// GraphView is the graph being edited plus its viewport.
type GraphView struct {
	state.Base

	changes  *changeset.Manager[*changeset.ItemChangeset]
	library  *model.Library
	minScale float64
	maxScale float64

	asset    model.ID
	graph    *model.Graph
	scale    float64
	position model.Vec2
}

// NewGraphView returns an empty view at scale 1.
func NewGraphView(prefs config.Preferences, lib *model.Library) *GraphView {
	v := &GraphView{
		changes:  changeset.NewManager(changeset.NewItemChangeset),
		library:  lib,
		minScale: prefs.MinScale,
		maxScale: prefs.MaxScale,
		graph:    model.NewGraph(),
		scale:    1,
	}
	v.Base = state.NewBase(GraphViewName, v.changes)
	return v
}

// Asset returns the ID of the displayed graph asset, or "" when none.
func (v *GraphView) Asset() model.ID { return v.asset }

// Graph returns the displayed graph. Callers must not mutate it outside
// an updater.
func (v *GraphView) Graph() *model.Graph { return v.graph }

// Scale returns the zoom factor.
func (v *GraphView) Scale() float64 { return v.scale }

// Position returns the pan offset.
func (v *GraphView) Position() model.Vec2 { return v.position }

// Changes aggregates the item changes in (since, current]. ok is false when
// the range is not representable and the caller must rebuild.
func (v *GraphView) Changes(since version.Version) (*changeset.ItemChangeset, bool) {
	return v.changes.GetAggregatedChangeset(since, v.CurrentVersion())
}

// Update runs fn with an open updater.
func (v *GraphView) Update(fn func(u *GraphViewUpdater) error) error {
	return state.Update(v, func(s *state.Scope) error {
		return fn(&GraphViewUpdater{Scope: s, v: v})
	})
}

// GraphViewUpdater mutates a GraphView inside an update scope.
type GraphViewUpdater struct {
	*state.Scope
	v *GraphView
}

// Graph returns the displayed graph for mutation. Changes must be reported
// with MarkNew, MarkChanged or MarkDeleted.
func (u *GraphViewUpdater) Graph() *model.Graph { return u.v.graph }

// LoadGraph displays g as asset. The update is Complete.
func (u *GraphViewUpdater) LoadGraph(asset model.ID, g *model.Graph) {
	if g == nil {
		g = model.NewGraph()
	}
	u.v.asset = asset
	u.v.graph = g
	u.MarkComplete()
}

// SetScale sets the zoom factor, clamped to the configured range.
// An unchanged scale does not escalate the update.
func (u *GraphViewUpdater) SetScale(scale float64) {
	scale = clamp(scale, u.v.minScale, u.v.maxScale)
	if scale == u.v.scale {
		return
	}
	u.v.scale = scale
	u.MarkPartial()
}

// SetPosition sets the pan offset.
func (u *GraphViewUpdater) SetPosition(p model.Vec2) {
	if p == u.v.position {
		return
	}
	u.v.position = p
	u.MarkPartial()
}

// MarkNew records created elements.
func (u *GraphViewUpdater) MarkNew(ids ...model.ID) {
	if len(ids) == 0 {
		return
	}
	u.v.changes.Current().MarkNew(toChangesetIDs(ids)...)
	u.MarkPartial()
}

// MarkChanged records modified elements.
func (u *GraphViewUpdater) MarkChanged(ids ...model.ID) {
	if len(ids) == 0 {
		return
	}
	u.v.changes.Current().MarkChanged(toChangesetIDs(ids)...)
	u.MarkPartial()
}

// MarkDeleted records removed elements.
func (u *GraphViewUpdater) MarkDeleted(ids ...model.ID) {
	if len(ids) == 0 {
		return
	}
	u.v.changes.Current().MarkDeleted(toChangesetIDs(ids)...)
	u.MarkPartial()
}

// MarkRemoval records the outcome of model.Graph.Delete.
func (u *GraphViewUpdater) MarkRemoval(r model.Removal) {
	u.MarkDeleted(r.Deleted...)
	u.MarkChanged(r.Changed...)
}

// MarkToAutoAlign tags elements for re-layout.
func (u *GraphViewUpdater) MarkToAutoAlign(ids ...model.ID) {
	if len(ids) == 0 {
		return
	}
	u.v.changes.Current().MarkAux(AutoAlignTag, toChangesetIDs(ids)...)
	u.MarkPartial()
}

// AssetChangedOnDisk signals that the asset was modified externally and
// every observer must rebuild.
func (u *GraphViewUpdater) AssetChangedOnDisk() {
	u.MarkComplete()
}

func clamp(x, lo, hi float64) float64 {
	if hi > 0 && x > hi {
		return hi
	}
	if x < lo {
		return lo
	}
	return x
}

// -----------------------------------------------------------------------------
// Persistence
// -----------------------------------------------------------------------------

type graphViewPayload struct {
	Asset    model.ID     `json:"asset,omitempty"`
	Scale    float64      `json:"scale"`
	Position model.Vec2   `json:"position"`
	Graph    *model.Graph `json:"graph"`
}

// MarshalState encodes the view.
func (v *GraphView) MarshalState() ([]byte, error) {
	return json.Marshal(graphViewPayload{Asset: v.asset, Scale: v.scale, Position: v.position, Graph: v.graph})
}

// UnmarshalState replaces the view.
func (v *GraphView) UnmarshalState(data []byte) error {
	var p graphViewPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode graph view: %w", err)
	}
	if p.Graph == nil {
		p.Graph = model.NewGraph()
	}
	v.asset, v.scale, v.position, v.graph = p.Asset, p.Scale, p.Position, p.Graph
	return nil
}

// ValidateAfterLoad repairs the restored graph, clamps the scale and
// registers the graph in the library when its asset is unknown there.
func (v *GraphView) ValidateAfterLoad() []string {
	repairs := v.graph.Repair()
	if s := clamp(v.scale, v.minScale, v.maxScale); s != v.scale {
		repairs = append(repairs, fmt.Sprintf("clamped scale %g to %g", v.scale, s))
		v.scale = s
	}
	if v.asset != "" && v.library != nil && !v.library.Has(v.asset) {
		v.library.Put(&model.Asset{ID: v.asset, Name: string(v.asset), Graph: v.graph})
		repairs = append(repairs, fmt.Sprintf("registered restored asset %s", v.asset))
	}
	return repairs
}
