// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package commands

import (
	"context"
	"fmt"

	"github.com/AleutianAI/overdrive/services/cso/command"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/states"
)

// PortSpec describes a port created with a node.
type PortSpec struct {
	ID        model.ID `json:"id,omitempty"`
	Name      string   `json:"name" validate:"required"`
	Direction string   `json:"direction" validate:"oneof=input output"`
	DataType  string   `json:"data_type,omitempty"`
}

// ConstantSpec turns a created node into a constant.
type ConstantSpec struct {
	DataType string   `json:"data_type" validate:"required"`
	Value    any      `json:"value"`
	PortID   model.ID `json:"port_id,omitempty"`
}

// CreateNode adds a node to the graph.
type CreateNode struct {
	command.Labeled
	ID       model.ID      `json:"id,omitempty"`
	Title    string        `json:"title"`
	Position model.Vec2    `json:"position"`
	Constant *ConstantSpec `json:"constant,omitempty"`
	Ports    []PortSpec    `json:"ports,omitempty" validate:"dive"`
}

func (CreateNode) CommandName() string { return "CreateNode" }
func (c CreateNode) UndoLabel() string { return c.LabelOr("Create Node") }

// CreatePlacemat adds a placemat.
type CreatePlacemat struct {
	command.Labeled
	ID     model.ID   `json:"id,omitempty"`
	Title  string     `json:"title"`
	Bounds model.Rect `json:"bounds"`
}

func (CreatePlacemat) CommandName() string { return "CreatePlacemat" }
func (c CreatePlacemat) UndoLabel() string { return c.LabelOr("Create Placemat") }

// DeleteElements removes elements with their dependents.
type DeleteElements struct {
	command.Labeled
	IDs []model.ID `json:"ids" validate:"required,min=1"`
}

func (DeleteElements) CommandName() string { return "DeleteElements" }
func (c DeleteElements) UndoLabel() string { return c.LabelOr("Delete") }

// CreateEdge connects two ports. Edges already attached to a single-capacity
// end are replaced.
type CreateEdge struct {
	command.Labeled
	ID    model.ID `json:"id,omitempty"`
	From  model.ID `json:"from" validate:"required"`
	To    model.ID `json:"to" validate:"required"`
	Align *bool    `json:"align,omitempty"`
}

func (CreateEdge) CommandName() string { return "CreateEdge" }
func (c CreateEdge) UndoLabel() string { return c.LabelOr("Create Edge") }

// MoveElements offsets movable elements.
type MoveElements struct {
	command.Labeled
	IDs   []model.ID `json:"ids" validate:"required,min=1"`
	Delta model.Vec2 `json:"delta"`
}

func (MoveElements) CommandName() string { return "MoveElements" }
func (c MoveElements) UndoLabel() string { return c.LabelOr("Move") }

// SetModelField assigns one registered field of an element.
type SetModelField struct {
	command.Labeled
	Element model.ID `json:"element" validate:"required"`
	Field   string   `json:"field" validate:"required"`
	Value   any      `json:"value"`
}

func (SetModelField) CommandName() string { return "SetModelField" }
func (c SetModelField) UndoLabel() string { return c.LabelOr("Set " + c.Field) }

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (h *handlers) createNode(_ context.Context, st *state.State, cmd CreateNode) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	g := v.Graph()
	ids := []model.ID{cmd.ID}
	if cmd.Constant != nil {
		ids = append(ids, cmd.Constant.PortID)
	}
	for _, p := range cmd.Ports {
		ids = append(ids, p.ID)
	}
	if err := checkFreeIDs(g, ids...); err != nil {
		return err
	}

	return v.Update(func(u *states.GraphViewUpdater) error {
		var n *model.Node
		if cmd.Constant != nil {
			n = g.AddConstant(cmd.Constant.DataType, cmd.Constant.Value, cmd.Position)
			if cmd.Constant.PortID != "" {
				if err := g.SetID(n.Ports[0], cmd.Constant.PortID); err != nil {
					return err
				}
			}
			if cmd.Title != "" {
				n.Title = cmd.Title
			}
		} else {
			n = g.AddNode(cmd.Title, cmd.Position)
		}
		if cmd.ID != "" {
			if err := g.SetID(n.ID, cmd.ID); err != nil {
				return err
			}
		}
		for _, spec := range cmd.Ports {
			dir := model.Input
			if spec.Direction == "output" {
				dir = model.Output
			}
			p, err := g.AddPort(n.ID, spec.Name, dir, spec.DataType)
			if err != nil {
				return err
			}
			if spec.ID != "" {
				if err := g.SetID(p.ID, spec.ID); err != nil {
					return err
				}
			}
		}
		u.MarkNew(n.ID)
		u.MarkNew(n.Ports...)
		return nil
	})
}

func (h *handlers) createPlacemat(_ context.Context, st *state.State, cmd CreatePlacemat) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	if err := checkFreeIDs(v.Graph(), cmd.ID); err != nil {
		return err
	}
	return v.Update(func(u *states.GraphViewUpdater) error {
		p := u.Graph().AddPlacemat(cmd.Title, cmd.Bounds)
		if cmd.ID != "" {
			if err := u.Graph().SetID(p.ID, cmd.ID); err != nil {
				return err
			}
		}
		u.MarkNew(p.ID)
		return nil
	})
}

func (h *handlers) deleteElements(_ context.Context, st *state.State, cmd DeleteElements) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	var removal model.Removal
	err = v.Update(func(u *states.GraphViewUpdater) error {
		removal = u.Graph().Delete(cmd.IDs...)
		u.MarkRemoval(removal)
		return nil
	})
	if err != nil {
		return err
	}
	if len(removal.Skipped) > 0 {
		h.env.Logger.Debug("elements not deletable", "ids", removal.Skipped)
	}
	return deselect(st, removal.Deleted)
}

func (h *handlers) createEdge(_ context.Context, st *state.State, cmd CreateEdge) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	g := v.Graph()
	if err := checkFreeIDs(g, cmd.ID); err != nil {
		return err
	}
	var replaced []model.ID
	for _, id := range []model.ID{cmd.From, cmd.To} {
		p, err := g.Port(id)
		if err != nil {
			return err
		}
		if p.Capacity == model.Single {
			for _, e := range g.EdgesAt(id) {
				replaced = append(replaced, e.ID)
			}
		}
	}
	align := st.Preferences().AutoAlignNewEdges
	if cmd.Align != nil {
		align = *cmd.Align
	}

	// A rejected edge keeps the edges it would have replaced.
	trial := g.Clone()
	trial.Delete(replaced...)
	if _, err := trial.Connect(cmd.From, cmd.To); err != nil {
		return err
	}

	var removal model.Removal
	err = v.Update(func(u *states.GraphViewUpdater) error {
		removal = g.Delete(replaced...)
		u.MarkRemoval(removal)
		e, err := g.Connect(cmd.From, cmd.To)
		if err != nil {
			return err
		}
		if cmd.ID != "" {
			if err := g.SetID(e.ID, cmd.ID); err != nil {
				return err
			}
		}
		u.MarkNew(e.ID)
		if align {
			u.MarkToAutoAlign(e.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return deselect(st, removal.Deleted)
}

func (h *handlers) moveElements(_ context.Context, st *state.State, cmd MoveElements) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	g := v.Graph()
	for _, id := range cmd.IDs {
		el, ok := g.Element(id)
		if !ok {
			return fmt.Errorf("%w: %s", model.ErrUnknownElement, id)
		}
		if _, ok := el.(model.Positioned); !ok || !el.Capabilities().Has(model.Movable) {
			return fmt.Errorf("%w: %s is not movable", model.ErrNotCapable, id)
		}
	}
	return v.Update(func(u *states.GraphViewUpdater) error {
		for _, id := range cmd.IDs {
			if err := g.Move(id, cmd.Delta); err != nil {
				return err
			}
		}
		u.MarkChanged(cmd.IDs...)
		return nil
	})
}

func (h *handlers) setModelField(_ context.Context, st *state.State, cmd SetModelField) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	g := v.Graph()
	el, ok := g.Element(cmd.Element)
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownElement, cmd.Element)
	}
	acc, err := model.Field(el.Kind(), cmd.Field)
	if err != nil {
		return err
	}
	// A rejected value leaves the graph and its version untouched.
	trial := g.Clone()
	trialEl, _ := trial.Element(cmd.Element)
	if err := acc.Set(trialEl, cmd.Value); err != nil {
		return err
	}
	return v.Update(func(u *states.GraphViewUpdater) error {
		if err := acc.Set(el, cmd.Value); err != nil {
			return err
		}
		u.MarkChanged(cmd.Element)
		if decl, ok := el.(*model.VariableDeclaration); ok && cmd.Field == "name" {
			for _, n := range g.VariableNodes(decl.ID) {
				n.Title = decl.Name
				u.MarkChanged(n.ID)
			}
		}
		return nil
	})
}

// checkFreeIDs rejects caller-chosen IDs that are taken in g or repeated
// within ids. Empty IDs are skipped.
func checkFreeIDs(g *model.Graph, ids ...model.ID) error {
	seen := make(map[model.ID]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if g.Has(id) {
			return fmt.Errorf("%w: id %s is already in use", ErrInvalidCommand, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: id %s is given twice", ErrInvalidCommand, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// checkDistinct rejects a target list that names an element twice.
func checkDistinct(ids []model.ID) error {
	seen := make(map[model.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s is listed twice", ErrInvalidCommand, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
