// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"github.com/AleutianAI/overdrive/services/cso/version"
)

// Scope is the exclusive mutation handle of one component for one update.
//
// A scope starts at None. Typed updaters embed *Scope and escalate it as
// they record changes. End commits and releases the component.
type Scope struct {
	base       *Base
	updateType UpdateType
	closed     bool
}

// Component returns the name of the component being updated.
func (s *Scope) Component() string {
	return s.base.name
}

// UpdateType returns the type that End will commit.
func (s *Scope) UpdateType() UpdateType {
	return s.updateType
}

// SetUpdateType escalates the scope to t.
//
// Description:
//
//	Without force the scope keeps the coarser of its current type and t,
//	so requests never downgrade. With force the type is set as given.
//
// Outputs:
//   - error: ErrNoUpdateInProgress after End.
func (s *Scope) SetUpdateType(t UpdateType, force bool) error {
	if s.closed {
		return ErrNoUpdateInProgress
	}
	if force {
		s.updateType = t
	} else {
		s.updateType = s.updateType.Escalate(t)
	}
	return nil
}

// MarkPartial is SetUpdateType(Partial, false) for updaters that already
// hold an open scope.
func (s *Scope) MarkPartial() {
	_ = s.SetUpdateType(Partial, false)
}

// MarkComplete is SetUpdateType(Complete, false).
func (s *Scope) MarkComplete() {
	_ = s.SetUpdateType(Complete, false)
}

// End commits the scope and returns the component's resulting version.
//
// Ending a scope twice returns ErrNoUpdateInProgress and changes nothing.
func (s *Scope) End() (version.Version, error) {
	if s.closed {
		return s.base.counter.Current(), ErrNoUpdateInProgress
	}
	s.closed = true
	return s.base.commit(s), nil
}

// Update runs fn inside an update scope of c.
//
// The scope is committed on every exit path, including errors returned by
// fn and panics raised inside it.
//
// Example:
//
//	err := state.Update(view, func(s *state.Scope) error {
//	    view.changes.Current().MarkNew(id)
//	    s.MarkPartial()
//	    return nil
//	})
func Update(c Component, fn func(*Scope) error) (err error) {
	s, err := c.BeginUpdate()
	if err != nil {
		return err
	}
	defer func() {
		_, _ = s.End()
	}()
	return fn(s)
}
