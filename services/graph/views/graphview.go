// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package views holds headless observers of the editor state.
//
// GraphView mirrors graph elements the way a canvas would, applying item
// changesets incrementally and rebuilding only on Complete updates.
// ErrorToolbar summarises processing results. GraphProcessor validates the
// graph whenever it changes and posts the results back as a command.
package views

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/AleutianAI/overdrive/pkg/logging"
	"github.com/AleutianAI/overdrive/services/cso/changeset"
	"github.com/AleutianAI/overdrive/services/cso/command"
	"github.com/AleutianAI/overdrive/services/cso/observer"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/cso/version"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/states"
)

// ElementUI is the mirrored representation of one element.
type ElementUI struct {
	ID       model.ID   `json:"id"`
	Kind     model.Kind `json:"kind"`
	Label    string     `json:"label,omitempty"`
	Revision int        `json:"revision"`
	Selected bool       `json:"selected,omitempty"`
}

// GraphViewStats counts how the mirror has been kept up to date.
type GraphViewStats struct {
	FullRebuilds       int `json:"full_rebuilds"`
	IncrementalUpdates int `json:"incremental_updates"`
	SelectionRebuilds  int `json:"selection_rebuilds"`
	Elements           int `json:"elements"`
	PendingRealign     int `json:"pending_realign"`
}

// GraphView mirrors the graph view and selection components.
//
// Thread Safety: Observe runs on the dispatcher's goroutine; the accessors
// may be called from any goroutine.
type GraphView struct {
	observer.Base

	mu       sync.RWMutex
	elements map[model.ID]*ElementUI
	realign  []model.ID
	stats    GraphViewStats
	logger   *slog.Logger
}

// NewGraphView returns an empty mirror.
func NewGraphView(id string) *GraphView {
	return &GraphView{
		Base:     observer.NewBase(id, states.GraphViewName, states.SelectionName),
		elements: make(map[model.ID]*ElementUI),
		logger:   logging.Discard(),
	}
}

// Observe synchronises with the graph view, then the selection.
func (o *GraphView) Observe(_ context.Context, st *state.State, _ command.Poster) error {
	view, err := state.Get[*states.GraphView](st, states.GraphViewName)
	if err != nil {
		return err
	}
	o.logger = logging.Component(st.Logger(), "views").With(slog.String("observer", o.ID()))

	o.mu.Lock()
	defer o.mu.Unlock()

	kind, err := o.Sync(view, observer.Sync{
		Full: func() error {
			o.rebuild(view.Graph())
			return nil
		},
		Incremental: func(since version.Version) (bool, error) {
			cs, ok := view.Changes(since)
			if !ok {
				return false, nil
			}
			o.apply(view.Graph(), cs)
			return true, nil
		},
	})
	if err != nil {
		return err
	}
	if kind == observer.FullResync {
		o.logger.Debug("graph view rebuilt", slog.Int("elements", len(o.elements)))
	}

	sel, err := state.Get[*states.Selection](st, states.SelectionName)
	if err != nil {
		return err
	}
	selectAll := func() error {
		o.stats.SelectionRebuilds++
		for id, ui := range o.elements {
			ui.Selected = sel.IsSelected(id)
		}
		return nil
	}
	if kind == observer.FullResync {
		// Rebuilt elements carry no selection flags yet.
		_ = selectAll()
	}
	_, err = o.Sync(sel, observer.Sync{
		Full: selectAll,
		Incremental: func(since version.Version) (bool, error) {
			cs, ok := sel.Changes(since)
			if !ok {
				return false, nil
			}
			for cid := range cs.Changed {
				if ui, ok := o.elements[model.ID(cid)]; ok {
					ui.Selected = sel.IsSelected(model.ID(cid))
				}
			}
			return true, nil
		},
	})
	return err
}

func (o *GraphView) rebuild(g *model.Graph) {
	o.stats.FullRebuilds++
	clear(o.elements)
	o.realign = nil
	for _, el := range g.Elements() {
		o.elements[el.ElementID()] = newElementUI(el)
	}
}

func (o *GraphView) apply(g *model.Graph, cs *changeset.ItemChangeset) {
	o.stats.IncrementalUpdates++
	for cid := range cs.Deleted {
		delete(o.elements, model.ID(cid))
	}
	for cid := range cs.New {
		if el, ok := g.Element(model.ID(cid)); ok {
			o.elements[el.ElementID()] = newElementUI(el)
		}
	}
	for cid := range cs.Changed {
		el, ok := g.Element(model.ID(cid))
		if !ok {
			continue
		}
		ui, ok := o.elements[el.ElementID()]
		if !ok {
			ui = newElementUI(el)
			o.elements[el.ElementID()] = ui
		}
		ui.Label = labelOf(el)
		ui.Revision++
	}
	for _, cid := range cs.AuxSet(states.AutoAlignTag).Sorted() {
		if _, ok := o.elements[model.ID(cid)]; ok {
			o.realign = append(o.realign, model.ID(cid))
		}
	}
}

// Element returns a copy of the mirrored element.
func (o *GraphView) Element(id model.ID) (ElementUI, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ui, ok := o.elements[id]
	if !ok {
		return ElementUI{}, false
	}
	return *ui, true
}

// Elements returns copies of every mirrored element sorted by ID.
func (o *GraphView) Elements() []ElementUI {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]ElementUI, 0, len(o.elements))
	for _, ui := range o.elements {
		out = append(out, *ui)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns the update counters.
func (o *GraphView) Stats() GraphViewStats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := o.stats
	s.Elements = len(o.elements)
	s.PendingRealign = len(o.realign)
	return s
}

// TakeRealign drains the queue of elements tagged for re-layout.
func (o *GraphView) TakeRealign() []model.ID {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.realign
	o.realign = nil
	return out
}

func newElementUI(el model.Element) *ElementUI {
	return &ElementUI{ID: el.ElementID(), Kind: el.Kind(), Label: labelOf(el), Revision: 1}
}

func labelOf(el model.Element) string {
	switch e := el.(type) {
	case *model.Node:
		return e.Title
	case *model.Port:
		return e.Name
	case *model.StickyNote:
		return e.Title
	case *model.Placemat:
		return e.Title
	case *model.VariableDeclaration:
		return e.Name
	default:
		return ""
	}
}
