// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observer implements the contract between state components and
// the views that mirror them.
//
// Each observer keeps a cursor per watched component: the last version it
// synchronised with. On every notification Cursor.Sync picks one of three
// paths:
//
//	cursor == current            → skip
//	no cursor, or Complete since → full resync from the payload
//	otherwise                    → apply the aggregated changeset
//
// and advances the cursor to current whatever path ran. The Registry
// exposes the minimum cursor per component as the purge floor, so history
// an observer still needs is never discarded.
package observer

import (
	"context"
	"errors"
	"slices"

	"github.com/AleutianAI/overdrive/services/cso/command"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/cso/version"
)

// ErrDuplicateObserver is returned when an observer ID is registered twice.
var ErrDuplicateObserver = errors.New("observer already registered")

// Observer watches state components and updates a downstream representation.
type Observer interface {
	// ID uniquely identifies the observer in a Registry.
	ID() string

	// ObservedComponents names the components whose changes the observer
	// consumes.
	ObservedComponents() []string

	// LastObservedVersion returns the cursor for a component. ok is false
	// until the observer has synchronised with it once.
	LastObservedVersion(component string) (v version.Version, ok bool)

	// Observe synchronises with st. Follow-up commands go through post;
	// they run after the current notification cycle.
	Observe(ctx context.Context, st *state.State, post command.Poster) error
}

// Base provides ID, ObservedComponents and the cursor to observers that
// embed it.
type Base struct {
	Cursor
	id         string
	components []string
}

// NewBase returns the shared observer bookkeeping.
func NewBase(id string, components ...string) Base {
	return Base{id: id, components: components}
}

// ID returns the observer ID.
func (b *Base) ID() string {
	return b.id
}

// ObservedComponents returns the watched component names.
func (b *Base) ObservedComponents() []string {
	return slices.Clone(b.components)
}

// Watches reports whether name is one of the observed components.
func (b *Base) Watches(name string) bool {
	return slices.Contains(b.components, name)
}
