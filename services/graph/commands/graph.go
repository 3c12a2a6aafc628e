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
	"log/slog"

	"github.com/AleutianAI/overdrive/services/cso/command"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/states"
)

// Load strategies.
const (
	// LoadReplace clears the breadcrumb stack.
	LoadReplace = "replace"
	// LoadPushOnStack pushes the open graph before loading.
	LoadPushOnStack = "push_on_stack"
	// LoadKeepHistory leaves the breadcrumb stack alone.
	LoadKeepHistory = "keep_history"
)

// LoadGraph opens a library asset in the view. Loading is not undoable.
type LoadGraph struct {
	command.Labeled
	Asset    model.ID `json:"asset" validate:"required"`
	Title    string   `json:"title,omitempty"`
	Strategy string   `json:"strategy,omitempty" validate:"omitempty,oneof=replace push_on_stack keep_history"`
	// TruncateHistory keeps only the first n breadcrumb entries before the
	// strategy applies.
	TruncateHistory *int `json:"truncate_history,omitempty" validate:"omitempty,gte=0"`
}

func (LoadGraph) CommandName() string { return "LoadGraph" }

// AssetChangedOnDisk tells the editor an asset was modified externally.
type AssetChangedOnDisk struct {
	command.Labeled
	Asset model.ID `json:"asset" validate:"required"`
}

func (AssetChangedOnDisk) CommandName() string { return "AssetChangedOnDisk" }

// SetViewport zooms and/or pans the view. Nil fields are left as they are.
type SetViewport struct {
	command.Labeled
	Scale    *float64    `json:"scale,omitempty" validate:"omitempty,gt=0"`
	Position *model.Vec2 `json:"position,omitempty"`
}

func (SetViewport) CommandName() string { return "SetViewport" }

func (h *handlers) loadGraph(_ context.Context, st *state.State, cmd LoadGraph) error {
	if err := Validate(cmd); err != nil {
		return err
	}
	asset, err := h.env.Library.Get(cmd.Asset)
	if err != nil {
		return err
	}
	c, err := editor(st)
	if err != nil {
		return err
	}
	title := cmd.Title
	if title == "" {
		title = asset.Name
	}

	if err := c.Window.Update(func(u *states.WindowUpdater) error {
		if cmd.TruncateHistory != nil {
			u.TruncateHistory(*cmd.TruncateHistory)
		}
		switch cmd.Strategy {
		case LoadPushOnStack:
			u.PushCurrentGraph()
		case LoadKeepHistory:
		default:
			u.ClearHistory()
		}
		u.LoadGraph(states.GraphReference{Asset: asset.ID, Title: title})
		return nil
	}); err != nil {
		return err
	}

	if st.Preferences().CheckIntegrityOnLoad {
		if repairs := asset.Graph.Repair(); len(repairs) > 0 {
			h.env.Logger.Warn("graph repaired on load",
				slog.String("asset", string(asset.ID)),
				slog.Int("repairs", len(repairs)),
				slog.Any("details", repairs))
		}
	}
	if err := c.View.Update(func(u *states.GraphViewUpdater) error {
		u.LoadGraph(asset.ID, asset.Graph)
		return nil
	}); err != nil {
		return err
	}
	if err := c.Selection.Update(func(u *states.SelectionUpdater) error {
		u.Clear()
		return nil
	}); err != nil {
		return err
	}
	return c.Processing.Update(func(u *states.ProcessingUpdater) error {
		u.Clear()
		u.SetPending(true)
		return nil
	})
}

func (h *handlers) assetChangedOnDisk(_ context.Context, st *state.State, cmd AssetChangedOnDisk) error {
	if err := Validate(cmd); err != nil {
		return err
	}
	c, err := editor(st)
	if err != nil {
		return err
	}
	if c.View.Asset() != cmd.Asset {
		return nil
	}
	if repairs := c.View.Graph().Repair(); len(repairs) > 0 {
		h.env.Logger.Warn("graph repaired after external change",
			slog.String("asset", string(cmd.Asset)),
			slog.Int("repairs", len(repairs)))
	}
	if err := c.View.Update(func(u *states.GraphViewUpdater) error {
		u.AssetChangedOnDisk()
		return nil
	}); err != nil {
		return err
	}
	var missing []model.ID
	for _, id := range c.Selection.Selected() {
		if !c.View.Graph().Has(id) {
			missing = append(missing, id)
		}
	}
	return deselect(st, missing)
}

func (h *handlers) setViewport(_ context.Context, st *state.State, cmd SetViewport) error {
	if err := Validate(cmd); err != nil {
		return err
	}
	v, err := state.Get[*states.GraphView](st, states.GraphViewName)
	if err != nil {
		return err
	}
	return v.Update(func(u *states.GraphViewUpdater) error {
		if cmd.Scale != nil {
			u.SetScale(*cmd.Scale)
		}
		if cmd.Position != nil {
			u.SetPosition(*cmd.Position)
		}
		return nil
	})
}
