// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observer

import (
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/cso/version"
)

// SyncKind reports which path a Sync took.
type SyncKind uint8

const (
	// Skipped means the cursor was already at the current version.
	Skipped SyncKind = iota

	// FullResync means the observer rebuilt from the payload.
	FullResync

	// Incremental means the observer applied an aggregated changeset.
	Incremental
)

// String returns the lower-case name of k.
func (k SyncKind) String() string {
	switch k {
	case Skipped:
		return "skipped"
	case FullResync:
		return "full"
	case Incremental:
		return "incremental"
	default:
		return "unknown"
	}
}

// Sync holds the two ways an observer can catch up with a component.
type Sync struct {
	// Full rebuilds the observer's representation from the component.
	Full func() error

	// Incremental applies the changes in (since, current]. It returns
	// false when the changeset is not representable, in which case Full
	// runs instead.
	Incremental func(since version.Version) (bool, error)
}

// Cursor tracks the last observed version per component.
//
// The zero value has no cursors.
type Cursor struct {
	versions map[string]version.Version
}

// LastObservedVersion returns the cursor for component.
func (c *Cursor) LastObservedVersion(component string) (version.Version, bool) {
	v, ok := c.versions[component]
	return v, ok
}

// Advance moves the cursor for component to v.
func (c *Cursor) Advance(component string, v version.Version) {
	if c.versions == nil {
		c.versions = make(map[string]version.Version)
	}
	c.versions[component] = v
}

// Forget drops every cursor, so the next Sync of each component is full.
func (c *Cursor) Forget() {
	clear(c.versions)
}

// Sync brings the observer up to date with comp.
//
// Description:
//
//	Runs Full when the observer never saw comp or comp reports a Complete
//	update since the cursor, Incremental otherwise. The cursor advances to
//	the current version after either path, even when it fails, so a
//	failing observer does not pin changeset history.
//
// Inputs:
//   - comp: The component to synchronise with.
//   - s: The observer's full and incremental update paths.
//
// Outputs:
//   - SyncKind: The path that ran.
//   - error: The error returned by the path, if any.
func (c *Cursor) Sync(comp state.Component, s Sync) (SyncKind, error) {
	name := comp.Name()
	current := comp.CurrentVersion()
	defer c.Advance(name, current)

	last, seen := c.LastObservedVersion(name)
	if seen && last == current {
		return Skipped, nil
	}

	if seen && comp.GetUpdateType(last) != state.Complete && s.Incremental != nil {
		ok, err := s.Incremental(last)
		if err != nil {
			return Incremental, err
		}
		if ok {
			return Incremental, nil
		}
	}

	if s.Full == nil {
		return FullResync, nil
	}
	return FullResync, s.Full()
}
