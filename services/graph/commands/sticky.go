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

// CreateStickyNote adds a sticky note using the preferred theme and size.
type CreateStickyNote struct {
	command.Labeled
	ID       model.ID   `json:"id,omitempty"`
	Bounds   model.Rect `json:"bounds"`
	Title    string     `json:"title,omitempty"`
	Contents string     `json:"contents,omitempty"`
}

func (CreateStickyNote) CommandName() string { return "CreateStickyNote" }
func (c CreateStickyNote) UndoLabel() string { return c.LabelOr("Create Sticky Note") }

// UpdateStickyNote changes a note's title and/or contents. Nil fields are
// left as they are.
type UpdateStickyNote struct {
	command.Labeled
	ID       model.ID `json:"id" validate:"required"`
	Title    *string  `json:"title,omitempty"`
	Contents *string  `json:"contents,omitempty"`
}

func (UpdateStickyNote) CommandName() string { return "UpdateStickyNote" }
func (c UpdateStickyNote) UndoLabel() string { return c.LabelOr("Update Sticky Note") }

// UpdateStickyNoteTheme recolours sticky notes.
type UpdateStickyNoteTheme struct {
	command.Labeled
	IDs   []model.ID `json:"ids" validate:"required,min=1"`
	Theme string     `json:"theme" validate:"oneof=Classic Dark Orange Green Blue Red Purple Teal"`
}

func (UpdateStickyNoteTheme) CommandName() string { return "UpdateStickyNoteTheme" }
func (c UpdateStickyNoteTheme) UndoLabel() string { return c.LabelOr("Change Sticky Note Theme") }

// UpdateStickyNoteTextSize resizes sticky note text.
type UpdateStickyNoteTextSize struct {
	command.Labeled
	IDs      []model.ID `json:"ids" validate:"required,min=1"`
	TextSize string     `json:"text_size" validate:"oneof=Small Medium Large Huge"`
}

func (UpdateStickyNoteTextSize) CommandName() string { return "UpdateStickyNoteTextSize" }
func (c UpdateStickyNoteTextSize) UndoLabel() string {
	return c.LabelOr("Change Sticky Note Text Size")
}

func (h *handlers) createStickyNote(_ context.Context, st *state.State, cmd CreateStickyNote) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	if err := checkFreeIDs(v.Graph(), cmd.ID); err != nil {
		return err
	}
	prefs := st.Preferences()
	return v.Update(func(u *states.GraphViewUpdater) error {
		s := u.Graph().AddStickyNote(cmd.Bounds, prefs.StickyNoteTheme, prefs.StickyNoteTextSize)
		s.Title, s.Contents = cmd.Title, cmd.Contents
		if cmd.ID != "" {
			if err := u.Graph().SetID(s.ID, cmd.ID); err != nil {
				return err
			}
		}
		u.MarkNew(s.ID)
		return nil
	})
}

func (h *handlers) updateStickyNote(_ context.Context, st *state.State, cmd UpdateStickyNote) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	s, err := v.Graph().StickyNote(cmd.ID)
	if err != nil {
		return err
	}
	return v.Update(func(u *states.GraphViewUpdater) error {
		changed := false
		if cmd.Title != nil && *cmd.Title != s.Title {
			s.Title, changed = *cmd.Title, true
		}
		if cmd.Contents != nil && *cmd.Contents != s.Contents {
			s.Contents, changed = *cmd.Contents, true
		}
		if changed {
			u.MarkChanged(s.ID)
		}
		return nil
	})
}

func (h *handlers) updateStickyNoteTheme(_ context.Context, st *state.State, cmd UpdateStickyNoteTheme) error {
	return h.updateStickyNotes(st, cmd, cmd.IDs, func(s *model.StickyNote) bool {
		if s.Theme == cmd.Theme {
			return false
		}
		s.Theme = cmd.Theme
		return true
	})
}

func (h *handlers) updateStickyNoteTextSize(_ context.Context, st *state.State, cmd UpdateStickyNoteTextSize) error {
	return h.updateStickyNotes(st, cmd, cmd.IDs, func(s *model.StickyNote) bool {
		if s.TextSize == cmd.TextSize {
			return false
		}
		s.TextSize = cmd.TextSize
		return true
	})
}

// updateStickyNotes applies fn to every listed note, recording the ones fn
// reports as changed.
func (h *handlers) updateStickyNotes(st *state.State, cmd command.Command, ids []model.ID, fn func(*model.StickyNote) bool) error {
	v, err := view(st, cmd)
	if err != nil {
		return err
	}
	notes := make([]*model.StickyNote, 0, len(ids))
	for _, id := range ids {
		s, err := v.Graph().StickyNote(id)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.CommandName(), err)
		}
		notes = append(notes, s)
	}
	return v.Update(func(u *states.GraphViewUpdater) error {
		for _, s := range notes {
			if fn(s) {
				u.MarkChanged(s.ID)
			}
		}
		return nil
	})
}
