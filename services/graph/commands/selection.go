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

// Selection modes.
const (
	SelectReplace = "replace"
	SelectAdd     = "add"
	SelectRemove  = "remove"
	SelectToggle  = "toggle"
)

// SelectElements changes the selection. Mode defaults to replace.
type SelectElements struct {
	command.Labeled
	IDs  []model.ID `json:"ids" validate:"required,min=1"`
	Mode string     `json:"mode,omitempty" validate:"omitempty,oneof=replace add remove toggle"`
}

func (SelectElements) CommandName() string { return "SelectElements" }
func (c SelectElements) UndoLabel() string { return c.LabelOr("Select") }

// ClearSelection deselects everything.
type ClearSelection struct {
	command.Labeled
}

func (ClearSelection) CommandName() string { return "ClearSelection" }
func (c ClearSelection) UndoLabel() string { return c.LabelOr("Clear Selection") }

// SetProcessingErrors publishes validation results. It is posted by the
// graph processor and is not undoable.
type SetProcessingErrors struct {
	command.Labeled
	Errors []states.ProcessingError `json:"errors" validate:"dive"`
}

func (SetProcessingErrors) CommandName() string { return "SetProcessingErrors" }

func (h *handlers) selectElements(_ context.Context, st *state.State, cmd SelectElements) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	for _, id := range cmd.IDs {
		if !v.Graph().Has(id) {
			return fmt.Errorf("%w: %s", model.ErrUnknownElement, id)
		}
	}
	sel, err := state.Get[*states.Selection](st, states.SelectionName)
	if err != nil {
		return err
	}
	return sel.Update(func(u *states.SelectionUpdater) error {
		switch cmd.Mode {
		case SelectAdd:
			u.Select(true, cmd.IDs...)
		case SelectRemove:
			u.Select(false, cmd.IDs...)
		case SelectToggle:
			for _, id := range cmd.IDs {
				u.Select(!sel.IsSelected(id), id)
			}
		default:
			u.Replace(cmd.IDs...)
		}
		return nil
	})
}

func (h *handlers) clearSelection(_ context.Context, st *state.State, _ ClearSelection) error {
	sel, err := state.Get[*states.Selection](st, states.SelectionName)
	if err != nil {
		return err
	}
	return sel.Update(func(u *states.SelectionUpdater) error {
		u.Clear()
		return nil
	})
}

func (h *handlers) setProcessingErrors(_ context.Context, st *state.State, cmd SetProcessingErrors) error {
	if err := Validate(cmd); err != nil {
		return err
	}
	p, err := state.Get[*states.Processing](st, states.ProcessingName)
	if err != nil {
		return err
	}
	return p.Update(func(u *states.ProcessingUpdater) error {
		u.SetErrors(cmd.Errors)
		return nil
	})
}
