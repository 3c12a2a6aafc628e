// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/overdrive/services/cso/command"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/graph/commands"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/session"
	"github.com/AleutianAI/overdrive/services/graph/states"
)

// errStepsFailed is returned by run when any script step failed.
var errStepsFailed = errors.New("script steps failed")

var scriptValidate = validator.New(validator.WithRequiredStructEnabled())

// Script is a YAML command script.
//
//	assets:
//	  - id: main
//	    name: Main Graph
//	    file: graphs/main.json
//	commands:
//	  - command: LoadGraph
//	    args: {asset: main}
//	  - command: CreateNode
//	    args: {id: add, title: Add}
type Script struct {
	Assets []ScriptAsset `yaml:"assets" validate:"dive"`
	Steps  []ScriptStep  `yaml:"commands" validate:"required,min=1,dive"`

	// dir resolves relative asset files.
	dir string
}

// ScriptAsset declares a library asset, optionally read from a graph JSON file.
type ScriptAsset struct {
	ID   model.ID `yaml:"id" validate:"required"`
	Name string   `yaml:"name"`
	File string   `yaml:"file"`
}

// ScriptStep is one command with its arguments.
type ScriptStep struct {
	Command string         `yaml:"command" validate:"required"`
	Args    map[string]any `yaml:"args"`
}

// LoadScript reads and parses the script at path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data, filepath.Dir(path))
}

// ParseScript decodes a script. Asset files are resolved against dir.
func ParseScript(data []byte, dir string) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := scriptValidate.Struct(s); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	s.dir = dir
	return &s, nil
}

// AssetPath returns the absolute file path of a, or "" when it has none.
func (s *Script) AssetPath(a ScriptAsset) string {
	if a.File == "" {
		return ""
	}
	if filepath.IsAbs(a.File) {
		return a.File
	}
	p, err := filepath.Abs(filepath.Join(s.dir, a.File))
	if err != nil {
		return filepath.Join(s.dir, a.File)
	}
	return p
}

// Commands decodes every step. Decoding stops at the first bad step.
func (s *Script) Commands() ([]command.Command, error) {
	out := make([]command.Command, 0, len(s.Steps))
	for i, step := range s.Steps {
		args := step.Args
		if args == nil {
			args = map[string]any{}
		}
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Command, err)
		}
		cmd, err := commands.Decode(step.Command, data)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		out = append(out, cmd)
	}
	return out, nil
}

// InstallAssets puts fresh copies of every declared asset into lib.
func (s *Script) InstallAssets(lib *model.Library) error {
	for _, a := range s.Assets {
		g, err := s.readGraph(a)
		if err != nil {
			return err
		}
		name := a.Name
		if name == "" {
			name = string(a.ID)
		}
		lib.Put(&model.Asset{ID: a.ID, Name: name, Graph: g})
	}
	return nil
}

func (s *Script) readGraph(a ScriptAsset) (*model.Graph, error) {
	path := s.AssetPath(a)
	if path == "" {
		return model.NewGraph(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", a.ID, err)
	}
	g := model.NewGraph()
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("decode asset %s: %w", a.ID, err)
	}
	return g, nil
}

// -----------------------------------------------------------------------------
// Replay
// -----------------------------------------------------------------------------

// StepResult is the outcome of one replayed command.
type StepResult struct {
	Index   int
	Command string
	Label   string
	Err     error
	Skipped bool
}

// Replay submits cmds in order. Without keepGoing, the steps after the
// first failure are marked skipped.
func Replay(ctx context.Context, s *session.Session, cmds []command.Command, keepGoing bool) []StepResult {
	out := make([]StepResult, 0, len(cmds))
	failed := false
	for i, cmd := range cmds {
		r := StepResult{Index: i + 1, Command: cmd.CommandName(), Label: cmd.UndoLabel()}
		if failed && !keepGoing {
			r.Skipped = true
			out = append(out, r)
			continue
		}
		if r.Err = s.Submit(ctx, cmd); r.Err != nil {
			failed = true
		}
		out = append(out, r)
	}
	return out
}

// ReloadAsset replaces the contents of the library asset declared by a with
// its file and tells the session the asset changed.
func ReloadAsset(ctx context.Context, s *session.Session, script *Script, a ScriptAsset) error {
	g, err := script.readGraph(a)
	if err != nil {
		return err
	}
	asset, err := s.Library().Get(a.ID)
	if err != nil {
		return err
	}
	if err := s.Read(ctx, func(_ *state.State, _ states.Components) error {
		asset.Graph.Replace(g)
		return nil
	}); err != nil {
		return err
	}
	return s.Submit(ctx, commands.AssetChangedOnDisk{Asset: a.ID})
}
