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
	"errors"
	"fmt"
)

var (
	// ErrUpdateInProgress is returned by BeginUpdate while a scope is open.
	ErrUpdateInProgress = errors.New("update already in progress")

	// ErrNoUpdateInProgress is returned when a scope is used after End.
	ErrNoUpdateInProgress = errors.New("no update in progress")

	// ErrDuplicateComponent is returned when two components share a name.
	ErrDuplicateComponent = errors.New("duplicate component")

	// ErrUnknownComponent is returned by lookups for a missing name.
	ErrUnknownComponent = errors.New("unknown component")

	// ErrComponentType is returned by Get when the component has another type.
	ErrComponentType = errors.New("component type mismatch")
)

// UpdateType describes how a component changed since a given version.
type UpdateType uint8

const (
	// None means nothing changed.
	None UpdateType = iota

	// Partial means the changes are described by a changeset.
	Partial

	// Complete means observers must rebuild from the payload.
	Complete
)

// String returns "None", "Partial" or "Complete".
func (t UpdateType) String() string {
	switch t {
	case None:
		return "None"
	case Partial:
		return "Partial"
	case Complete:
		return "Complete"
	default:
		return fmt.Sprintf("UpdateType(%d)", uint8(t))
	}
}

// Escalate returns the coarser of t and other.
func (t UpdateType) Escalate(other UpdateType) UpdateType {
	if other > t {
		return other
	}
	return t
}
