// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch routes commands to their handlers and notifies observers.
//
// # Dispatch Cycle
//
//	        Dispatch(cmd)
//	             │
//	   ┌─────────▼─────────┐   phase != Idle   ┌────────────────────────┐
//	   │ Idle              ├──────────────────►│ ErrReentrantDispatch   │
//	   └─────────┬─────────┘                   └────────────────────────┘
//	             │ handler for exact type?  no ► ErrUnhandledCommand
//	   ┌─────────▼─────────┐
//	   │ Dispatching       │ handler mutates components through scopes;
//	   │                   │ leaked scopes are committed afterwards
//	   └─────────┬─────────┘
//	   ┌─────────▼─────────┐
//	   │ Notifying         │ every observer once, then purge to the floor
//	   └─────────┬─────────┘
//	   ┌─────────▼─────────┐
//	   │ Idle              │ commands posted by observers run now, FIFO
//	   └───────────────────┘
//
// Dispatch is rejected, not queued, while a cycle is running. Observers
// and handlers that need to issue further commands Post them instead.
//
// # Thread Safety
//
// A Dispatcher and its State are owned by one goroutine. Use
// services/graph/session to feed commands from concurrent callers.
package dispatch

import "errors"

var (
	// ErrReentrantDispatch is returned when Dispatch is called during a cycle.
	ErrReentrantDispatch = errors.New("dispatch already in progress")

	// ErrUnhandledCommand is returned when no handler is registered for the
	// command's type.
	ErrUnhandledCommand = errors.New("no handler registered for command")

	// ErrNilCommand is returned by Dispatch and Post for a nil command.
	ErrNilCommand = errors.New("nil command")

	// ErrHandlerPanic wraps a panic recovered from a handler.
	ErrHandlerPanic = errors.New("command handler panicked")

	// ErrFollowUpLimit is returned by Post when a dispatch already posted
	// the configured maximum of follow-up commands.
	ErrFollowUpLimit = errors.New("follow-up command limit reached")
)

// Phase is the dispatcher state.
type Phase uint8

const (
	// Idle accepts Dispatch.
	Idle Phase = iota

	// Dispatching runs a handler.
	Dispatching

	// Notifying runs observers.
	Notifying
)

// String returns the lower-case phase name.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Dispatching:
		return "dispatching"
	case Notifying:
		return "notifying"
	default:
		return "unknown"
	}
}
