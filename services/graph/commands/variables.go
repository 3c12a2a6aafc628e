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
	"slices"

	"github.com/AleutianAI/overdrive/services/cso/command"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/states"
)

// VariableNodeSpec places one variable node.
type VariableNodeSpec struct {
	ID        model.ID   `json:"id,omitempty"`
	Position  model.Vec2 `json:"position"`
	ConnectTo model.ID   `json:"connect_to,omitempty"`
}

// CreateVariableNodes places variable nodes for a declaration. When
// Declaration is empty a new declaration is created from Name and DataType.
type CreateVariableNodes struct {
	command.Labeled
	Declaration   model.ID           `json:"declaration,omitempty"`
	DeclarationID model.ID           `json:"declaration_id,omitempty"`
	Name          string             `json:"name,omitempty" validate:"required_without=Declaration"`
	DataType      string             `json:"data_type,omitempty"`
	Modifiers     model.Modifiers    `json:"modifiers,omitempty" validate:"lte=2"`
	Nodes         []VariableNodeSpec `json:"nodes" validate:"required,min=1,dive"`
}

func (CreateVariableNodes) CommandName() string { return "CreateVariableNodes" }
func (c CreateVariableNodes) UndoLabel() string { return c.LabelOr("Create Variable Nodes") }

// ConvertConstantsAndVariables turns constants into variable nodes backed by
// a new declaration, and readable variable nodes into constants holding the
// declaration's default. Outgoing edges are carried over.
type ConvertConstantsAndVariables struct {
	command.Labeled
	Constants []model.ID `json:"constants,omitempty"`
	Variables []model.ID `json:"variables,omitempty"`
}

func (ConvertConstantsAndVariables) CommandName() string { return "ConvertConstantsAndVariables" }
func (c ConvertConstantsAndVariables) UndoLabel() string {
	return c.LabelOr("Convert Constants And Variables")
}

// ItemizeNode gives every outgoing edge of a constant or variable node its
// own copy of the node.
type ItemizeNode struct {
	command.Labeled
	IDs []model.ID `json:"ids" validate:"required,min=1"`
}

func (ItemizeNode) CommandName() string { return "ItemizeNode" }
func (c ItemizeNode) UndoLabel() string { return c.LabelOr("Itemize Node") }

// LockConstantNode locks or unlocks constants against value edits.
type LockConstantNode struct {
	command.Labeled
	IDs    []model.ID `json:"ids" validate:"required,min=1"`
	Locked bool       `json:"locked"`
}

func (LockConstantNode) CommandName() string { return "LockConstantNode" }
func (c LockConstantNode) UndoLabel() string {
	if c.Locked {
		return c.LabelOr("Lock Constant")
	}
	return c.LabelOr("Unlock Constant")
}

// ChangeVariableDeclaration points variable nodes at another declaration.
type ChangeVariableDeclaration struct {
	command.Labeled
	Nodes       []model.ID `json:"nodes" validate:"required,min=1"`
	Declaration model.ID   `json:"declaration" validate:"required"`
}

func (ChangeVariableDeclaration) CommandName() string { return "ChangeVariableDeclaration" }
func (c ChangeVariableDeclaration) UndoLabel() string {
	return c.LabelOr("Change Variable Declaration")
}

// itemizeSpacing is the vertical offset between itemized copies.
const itemizeSpacing = 40

func (h *handlers) createVariableNodes(_ context.Context, st *state.State, cmd CreateVariableNodes) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	g := v.Graph()
	if cmd.Declaration != "" {
		if _, err := g.Declaration(cmd.Declaration); err != nil {
			return err
		}
	}
	ids := []model.ID{cmd.DeclarationID}
	for _, spec := range cmd.Nodes {
		ids = append(ids, spec.ID)
	}
	if err := checkFreeIDs(g, ids...); err != nil {
		return err
	}
	for _, spec := range cmd.Nodes {
		if spec.ConnectTo != "" {
			if _, err := g.Port(spec.ConnectTo); err != nil {
				return err
			}
		}
	}

	return v.Update(func(u *states.GraphViewUpdater) error {
		declID := cmd.Declaration
		if declID == "" {
			decl := g.AddDeclaration(cmd.Name, cmd.DataType, cmd.Modifiers)
			if cmd.DeclarationID != "" {
				if err := g.SetID(decl.ID, cmd.DeclarationID); err != nil {
					return err
				}
			}
			declID = decl.ID
			u.MarkNew(decl.ID)
		}
		for _, spec := range cmd.Nodes {
			n, err := g.AddVariableNode(declID, spec.Position)
			if err != nil {
				return err
			}
			if spec.ID != "" {
				if err := g.SetID(n.ID, spec.ID); err != nil {
					return err
				}
			}
			u.MarkNew(n.ID)
			u.MarkNew(n.Ports...)
			if spec.ConnectTo == "" {
				continue
			}
			if e := connectAny(g, n, spec.ConnectTo); e != nil {
				u.MarkNew(e.ID)
				u.MarkToAutoAlign(n.ID)
			} else {
				h.env.Logger.Debug("variable node not connected", "node", n.ID, "port", spec.ConnectTo)
			}
		}
		return nil
	})
}

// connectAny connects the first port of n that accepts target.
func connectAny(g *model.Graph, n *model.Node, target model.ID) *model.Edge {
	for _, pid := range n.Ports {
		if e, err := g.Connect(pid, target); err == nil {
			return e
		}
	}
	return nil
}

func (h *handlers) convertConstantsAndVariables(_ context.Context, st *state.State, cmd ConvertConstantsAndVariables) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	g := v.Graph()
	if err := checkDistinct(append(slices.Clone(cmd.Constants), cmd.Variables...)); err != nil {
		return err
	}
	for _, id := range cmd.Constants {
		n, err := g.Node(id)
		if err != nil {
			return err
		}
		if n.NodeKind != model.NodeConstant {
			return fmt.Errorf("%w: %s is not a constant", model.ErrWrongKind, id)
		}
	}
	for _, id := range cmd.Variables {
		n, err := g.Node(id)
		if err != nil {
			return err
		}
		if n.NodeKind != model.NodeVariable {
			return fmt.Errorf("%w: %s is not a variable node", model.ErrWrongKind, id)
		}
		decl, err := g.Declaration(n.Declaration)
		if err != nil {
			return err
		}
		if !decl.Modifiers.Readable() {
			return fmt.Errorf("%w: variable %q is write-only", ErrInvalidCommand, decl.Name)
		}
	}

	return v.Update(func(u *states.GraphViewUpdater) error {
		for _, id := range cmd.Constants {
			n, err := g.Node(id)
			if err != nil {
				return err
			}
			decl := g.AddDeclaration(n.Title, n.Constant.DataType, model.ReadOnly)
			decl.Default = n.Constant.Value
			vn, err := g.AddVariableNode(decl.ID, n.Pos)
			if err != nil {
				return err
			}
			u.MarkNew(decl.ID, vn.ID)
			u.MarkNew(vn.Ports...)
			replaceNode(u, g, n, vn)
		}
		for _, id := range cmd.Variables {
			n, err := g.Node(id)
			if err != nil {
				return err
			}
			decl, err := g.Declaration(n.Declaration)
			if err != nil {
				return err
			}
			c := g.AddConstant(decl.DataType, decl.Default, n.Pos)
			c.Title = decl.Name
			u.MarkNew(c.ID)
			u.MarkNew(c.Ports...)
			replaceNode(u, g, n, c)
		}
		return nil
	})
}

// replaceNode moves the outgoing edges of old onto the output port of
// replacement and deletes old.
func replaceNode(u *states.GraphViewUpdater, g *model.Graph, old, replacement *model.Node) {
	out := outputPort(g, replacement)
	var targets []model.ID
	for _, e := range g.NodeEdges(old.ID) {
		if p, err := g.Port(e.From); err == nil && p.Node == old.ID {
			targets = append(targets, e.To)
		}
	}
	u.MarkRemoval(g.Delete(old.ID))
	if out == "" {
		return
	}
	for _, to := range targets {
		if e, err := g.Connect(out, to); err == nil {
			u.MarkNew(e.ID)
		}
	}
}

func outputPort(g *model.Graph, n *model.Node) model.ID {
	for _, pid := range n.Ports {
		if p, err := g.Port(pid); err == nil && p.Direction == model.Output {
			return pid
		}
	}
	return ""
}

func (h *handlers) itemizeNode(_ context.Context, st *state.State, cmd ItemizeNode) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	g := v.Graph()
	for _, id := range cmd.IDs {
		n, err := g.Node(id)
		if err != nil {
			return err
		}
		if n.NodeKind == model.NodeGeneric {
			return fmt.Errorf("%w: %s is neither a constant nor a variable node", model.ErrWrongKind, id)
		}
	}

	return v.Update(func(u *states.GraphViewUpdater) error {
		for _, id := range cmd.IDs {
			n, _ := g.Node(id)
			out := outputPort(g, n)
			if out == "" {
				continue
			}
			edges := g.EdgesAt(out)
			for i, e := range edges {
				if i == 0 {
					continue
				}
				dup, err := g.Duplicate(n.ID, model.Vec2{Y: float64(i * itemizeSpacing)})
				if err != nil {
					return err
				}
				to := e.To
				u.MarkRemoval(g.Delete(e.ID))
				u.MarkNew(dup.ID)
				u.MarkNew(dup.Ports...)
				if ne, err := g.Connect(outputPort(g, dup), to); err == nil {
					u.MarkNew(ne.ID)
				}
				u.MarkToAutoAlign(dup.ID)
			}
		}
		return nil
	})
}

func (h *handlers) lockConstantNode(_ context.Context, st *state.State, cmd LockConstantNode) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	nodes := make([]*model.Node, 0, len(cmd.IDs))
	for _, id := range cmd.IDs {
		n, err := v.Graph().Node(id)
		if err != nil {
			return err
		}
		if n.Constant == nil {
			return fmt.Errorf("%w: %s is not a constant", model.ErrWrongKind, id)
		}
		nodes = append(nodes, n)
	}
	return v.Update(func(u *states.GraphViewUpdater) error {
		for _, n := range nodes {
			if n.Constant.Locked != cmd.Locked {
				n.Constant.Locked = cmd.Locked
				u.MarkChanged(n.ID)
			}
		}
		return nil
	})
}

func (h *handlers) changeVariableDeclaration(_ context.Context, st *state.State, cmd ChangeVariableDeclaration) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	g := v.Graph()
	if _, err := g.Declaration(cmd.Declaration); err != nil {
		return err
	}
	for _, id := range cmd.Nodes {
		n, err := g.Node(id)
		if err != nil {
			return err
		}
		if n.NodeKind != model.NodeVariable {
			return fmt.Errorf("%w: %s is not a variable node", model.ErrWrongKind, id)
		}
	}
	return v.Update(func(u *states.GraphViewUpdater) error {
		for _, id := range cmd.Nodes {
			n, _ := g.Node(id)
			if n.Declaration == cmd.Declaration {
				continue
			}
			before := append([]model.ID(nil), n.Ports...)
			n.Declaration = cmd.Declaration
			r, err := g.RebuildVariablePorts(id)
			if err != nil {
				return err
			}
			u.MarkDeleted(r.Deleted...)
			for _, changed := range r.Changed {
				if isNewPort(before, changed, g) {
					u.MarkNew(changed)
				} else {
					u.MarkChanged(changed)
				}
			}
		}
		return nil
	})
}

func isNewPort(before []model.ID, id model.ID, g *model.Graph) bool {
	if _, err := g.Port(id); err != nil {
		return false
	}
	for _, b := range before {
		if b == id {
			return false
		}
	}
	return true
}
