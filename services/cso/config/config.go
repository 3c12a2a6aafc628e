// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the preferences an editing State is constructed with.
//
// Preferences are plain values: a process loads them once at startup, hands
// a copy to each State, and never mutates them afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidPreferences wraps every validation failure returned by Validate.
var ErrInvalidPreferences = errors.New("invalid preferences")

var prefsValidate = validator.New()

// Preferences controls dispatcher and editor behaviour.
type Preferences struct {
	// MaxFollowUpCommands bounds how many commands observers may post
	// during one top-level dispatch.
	MaxFollowUpCommands int `yaml:"max_follow_up_commands" json:"max_follow_up_commands" validate:"min=1,max=1000"`

	// PurgeAfterNotify trims changeset history to the observer floor after
	// every notification cycle.
	PurgeAfterNotify bool `yaml:"purge_after_notify" json:"purge_after_notify"`

	// HistorySize is the number of dispatch records the dispatcher keeps.
	HistorySize int `yaml:"history_size" json:"history_size" validate:"min=1,max=100000"`

	// StrictDispatch logs unhandled commands at error level instead of warn.
	StrictDispatch bool `yaml:"strict_dispatch" json:"strict_dispatch"`

	// AutoAlignNewEdges tags nodes connected by variable creation for realignment.
	AutoAlignNewEdges bool `yaml:"auto_align_new_edges" json:"auto_align_new_edges"`

	// CheckIntegrityOnLoad repairs a graph when it is loaded.
	CheckIntegrityOnLoad bool `yaml:"check_integrity_on_load" json:"check_integrity_on_load"`

	// MinScale and MaxScale bound the graph view zoom.
	MinScale float64 `yaml:"min_scale" json:"min_scale" validate:"gt=0"`
	MaxScale float64 `yaml:"max_scale" json:"max_scale" validate:"gtfield=MinScale"`

	// StickyNoteTheme and StickyNoteTextSize apply to new sticky notes.
	StickyNoteTheme    string `yaml:"sticky_note_theme" json:"sticky_note_theme" validate:"oneof=Classic Dark Orange Green Blue Red Purple Teal"`
	StickyNoteTextSize string `yaml:"sticky_note_text_size" json:"sticky_note_text_size" validate:"oneof=Small Medium Large Huge"`
}

// Default returns the built-in preferences.
func Default() Preferences {
	return Preferences{
		MaxFollowUpCommands:  64,
		PurgeAfterNotify:     true,
		HistorySize:          256,
		AutoAlignNewEdges:    true,
		CheckIntegrityOnLoad: true,
		MinScale:             0.1,
		MaxScale:             8,
		StickyNoteTheme:      "Classic",
		StickyNoteTextSize:   "Small",
	}
}

// Validate checks field constraints.
func (p Preferences) Validate() error {
	if err := prefsValidate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPreferences, err)
	}
	return nil
}

// Parse decodes YAML over the defaults and validates the result.
//
// Fields missing from data keep their default value.
func Parse(data []byte) (Preferences, error) {
	prefs := Default()
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return Preferences{}, fmt.Errorf("decode preferences: %w", err)
	}
	if err := prefs.Validate(); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

// Load reads preferences from a YAML file. An empty path returns Default.
func Load(path string) (Preferences, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Preferences{}, fmt.Errorf("read preferences %s: %w", path, err)
	}
	return Parse(data)
}

// WriteDefault writes the default preferences to path as YAML.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

var (
	process     Preferences
	processErr  error
	processOnce sync.Once
)

// Process loads the process-wide preferences from path on first call and
// returns the same value afterwards. Later paths are ignored.
func Process(path string) (Preferences, error) {
	processOnce.Do(func() {
		process, processErr = Load(path)
	})
	return process, processErr
}
