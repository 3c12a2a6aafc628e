// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package command defines the immutable requests dispatched against a State.
package command

import "reflect"

// Command is a request to change state.
//
// Commands are values: once built they are never mutated, and each is
// consumed by exactly one handler. Handlers are matched on the concrete
// type, so two commands with the same Name but different types route to
// different handlers.
type Command interface {
	// CommandName names the command for logs, metrics and history.
	CommandName() string

	// UndoLabel is the user-facing label of the change. Commands that
	// should not appear in an undo history return "".
	UndoLabel() string
}

// Poster accepts follow-up commands for dispatch after the current cycle.
type Poster interface {
	Post(cmd Command) error
}

// TypeOf returns the routing key of cmd.
func TypeOf(cmd Command) reflect.Type {
	return reflect.TypeOf(cmd)
}

// Labeled is embedded by commands to carry their undo label.
//
// Example:
//
//	type RenameNode struct {
//	    command.Labeled
//	    NodeID model.ID
//	    Name   string
//	}
type Labeled struct {
	Label string `json:"undo_label,omitempty" yaml:"undo_label,omitempty"`
}

// UndoLabel returns the embedded label.
func (l Labeled) UndoLabel() string {
	return l.Label
}

// LabelOr returns the embedded label, or def when none was set.
func (l Labeled) LabelOr(def string) string {
	if l.Label == "" {
		return def
	}
	return l.Label
}
