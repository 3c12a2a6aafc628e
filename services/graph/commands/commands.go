// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package commands defines the editor's commands and their default handlers.
//
// Every command is a plain value type. RegisterDefaults installs one handler
// per type on a dispatcher; a host may replace any of them by registering
// its own handler for the same type afterwards.
//
// Handlers validate the whole command before touching state, so a rejected
// command leaves every component at its current version.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/overdrive/pkg/logging"
	"github.com/AleutianAI/overdrive/services/cso/command"
	"github.com/AleutianAI/overdrive/services/cso/dispatch"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/states"
)

var (
	// ErrInvalidCommand is returned for commands failing validation.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrUnknownCommand is returned by Decode for unregistered names.
	ErrUnknownCommand = errors.New("unknown command name")

	// ErrNoGraph is returned by graph edits when no graph is loaded.
	ErrNoGraph = errors.New("no graph loaded")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cmd's struct tags.
func Validate(cmd command.Command) error {
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidCommand, cmd.CommandName(), err)
	}
	return nil
}

// Env is what default handlers need besides the State.
type Env struct {
	Library *model.Library
	Logger  *slog.Logger
}

// RegisterDefaults installs the default handler of every command.
func RegisterDefaults(d *dispatch.Dispatcher, env Env) {
	if env.Library == nil {
		env.Library = model.NewLibrary()
	}
	env.Logger = logging.Component(env.Logger, "commands")
	h := &handlers{env: env}

	dispatch.Register(d, h.createNode)
	dispatch.Register(d, h.createPlacemat)
	dispatch.Register(d, h.deleteElements)
	dispatch.Register(d, h.createEdge)
	dispatch.Register(d, h.moveElements)
	dispatch.Register(d, h.setModelField)

	dispatch.Register(d, h.createStickyNote)
	dispatch.Register(d, h.updateStickyNote)
	dispatch.Register(d, h.updateStickyNoteTheme)
	dispatch.Register(d, h.updateStickyNoteTextSize)

	dispatch.Register(d, h.createVariableNodes)
	dispatch.Register(d, h.convertConstantsAndVariables)
	dispatch.Register(d, h.itemizeNode)
	dispatch.Register(d, h.lockConstantNode)
	dispatch.Register(d, h.changeVariableDeclaration)

	dispatch.Register(d, h.loadGraph)
	dispatch.Register(d, h.assetChangedOnDisk)
	dispatch.Register(d, h.setViewport)

	dispatch.Register(d, h.selectElements)
	dispatch.Register(d, h.clearSelection)
	dispatch.Register(d, h.setProcessingErrors)
}

type handlers struct {
	env Env
}

// editor resolves the editor components of st.
func editor(st *state.State) (states.Components, error) {
	var (
		c   states.Components
		err error
	)
	if c.View, err = state.Get[*states.GraphView](st, states.GraphViewName); err != nil {
		return c, err
	}
	if c.Selection, err = state.Get[*states.Selection](st, states.SelectionName); err != nil {
		return c, err
	}
	if c.Window, err = state.Get[*states.Window](st, states.WindowName); err != nil {
		return c, err
	}
	if c.Processing, err = state.Get[*states.Processing](st, states.ProcessingName); err != nil {
		return c, err
	}
	return c, nil
}

// view validates cmd and resolves the graph view of st, which must show a
// graph.
func view(st *state.State, cmd command.Command) (*states.GraphView, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	v, err := state.Get[*states.GraphView](st, states.GraphViewName)
	if err != nil {
		return nil, err
	}
	if v.Asset() == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoGraph, cmd.CommandName())
	}
	return v, nil
}

// deselect drops deleted elements from the selection, if one is present.
func deselect(st *state.State, ids []model.ID) error {
	if len(ids) == 0 {
		return nil
	}
	sel, err := state.Get[*states.Selection](st, states.SelectionName)
	if errors.Is(err, state.ErrUnknownComponent) {
		return nil
	}
	if err != nil {
		return err
	}
	return sel.Update(func(u *states.SelectionUpdater) error {
		u.Select(false, ids...)
		return nil
	})
}

// =============================================================================
// Decoding
// =============================================================================

type decoder func(data []byte) (command.Command, error)

var (
	decodersMu sync.RWMutex
	decoders   = make(map[string]decoder)
)

// RegisterName makes C decodable by name. A later registration for the same
// name replaces the earlier one.
func RegisterName[C command.Command](name string) {
	decodersMu.Lock()
	defer decodersMu.Unlock()
	decoders[name] = func(data []byte) (command.Command, error) {
		var cmd C
		if len(data) > 0 {
			if err := json.Unmarshal(data, &cmd); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCommand, name, err)
			}
		}
		return cmd, nil
	}
}

// Decode builds the command registered under name from its JSON arguments.
func Decode(name string, data []byte) (command.Command, error) {
	decodersMu.RLock()
	dec, ok := decoders[name]
	decodersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return dec(data)
}

// Names lists the decodable command names, sorted.
func Names() []string {
	decodersMu.RLock()
	defer decodersMu.RUnlock()
	out := make([]string, 0, len(decoders))
	for name := range decoders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func init() {
	RegisterName[CreateNode]("CreateNode")
	RegisterName[CreatePlacemat]("CreatePlacemat")
	RegisterName[DeleteElements]("DeleteElements")
	RegisterName[CreateEdge]("CreateEdge")
	RegisterName[MoveElements]("MoveElements")
	RegisterName[SetModelField]("SetModelField")
	RegisterName[CreateStickyNote]("CreateStickyNote")
	RegisterName[UpdateStickyNote]("UpdateStickyNote")
	RegisterName[UpdateStickyNoteTheme]("UpdateStickyNoteTheme")
	RegisterName[UpdateStickyNoteTextSize]("UpdateStickyNoteTextSize")
	RegisterName[CreateVariableNodes]("CreateVariableNodes")
	RegisterName[ConvertConstantsAndVariables]("ConvertConstantsAndVariables")
	RegisterName[ItemizeNode]("ItemizeNode")
	RegisterName[LockConstantNode]("LockConstantNode")
	RegisterName[ChangeVariableDeclaration]("ChangeVariableDeclaration")
	RegisterName[LoadGraph]("LoadGraph")
	RegisterName[AssetChangedOnDisk]("AssetChangedOnDisk")
	RegisterName[SetViewport]("SetViewport")
	RegisterName[SelectElements]("SelectElements")
	RegisterName[ClearSelection]("ClearSelection")
	RegisterName[SetProcessingErrors]("SetProcessingErrors")
}
