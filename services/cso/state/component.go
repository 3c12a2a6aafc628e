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
	"log/slog"

	"github.com/AleutianAI/overdrive/pkg/logging"
	"github.com/AleutianAI/overdrive/services/cso/version"
)

// Component is a named, versioned slice of state.
//
// Implementations embed Base, which provides every method except any
// ValidateAfterLoad override.
type Component interface {
	// Name identifies the component inside its State.
	Name() string

	// CurrentVersion is the last committed version.
	CurrentVersion() version.Version

	// EarliestRetainedVersion is the oldest version changesets can be
	// aggregated from.
	EarliestRetainedVersion() version.Version

	// GetUpdateType classifies the changes since the given version.
	GetUpdateType(since version.Version) UpdateType

	// BeginUpdate opens the component's update scope.
	BeginUpdate() (*Scope, error)

	// PurgeOldChangesets trims history below until, never past the
	// oldest observer cursor.
	PurgeOldChangesets(until version.Version) version.Version

	// ValidateAfterLoad repairs dangling references after a restore and
	// describes each repair.
	ValidateAfterLoad() []string

	base() *Base
}

// History is the version-keyed changeset storage a Base commits into.
//
// *changeset.Manager[C] implements it for every changeset type C.
type History interface {
	PushChangeset(v version.Version)
	DiscardCurrent()
	PurgeOldChangesets(until, current version.Version) version.Version
	Reset(v version.Version)
}

// Base carries the bookkeeping shared by every component.
type Base struct {
	name     string
	counter  version.Counter
	earliest version.Version
	history  History
	last     UpdateType
	open     *Scope
	owner    *State
	logger   *slog.Logger
}

// NewBase returns the bookkeeping for a component at version 0.
//
// Inputs:
//   - name: Unique component name within a State.
//   - history: Changeset storage, or nil for components whose updates
//     are always treated as complete by observers.
func NewBase(name string, history History) Base {
	return Base{
		name:    name,
		history: history,
		logger:  logging.Component(nil, "state").With(slog.String("state_component", name)),
	}
}

// Name returns the component name.
func (b *Base) Name() string {
	return b.name
}

// CurrentVersion returns the last committed version.
func (b *Base) CurrentVersion() version.Version {
	return b.counter.Current()
}

// EarliestRetainedVersion returns the oldest aggregatable version.
func (b *Base) EarliestRetainedVersion() version.Version {
	return b.earliest
}

// LastUpdateType returns the type of the most recent committed scope.
func (b *Base) LastUpdateType() UpdateType {
	return b.last
}

// Updating reports whether a scope is open.
func (b *Base) Updating() bool {
	return b.open != nil
}

// GetUpdateType classifies the changes in (since, current].
//
// Description:
//
//	None when since is current. Complete when since predates the
//	retained history, lies in the future, or the component keeps no
//	history. Partial otherwise.
func (b *Base) GetUpdateType(since version.Version) UpdateType {
	current := b.counter.Current()
	switch {
	case since == current:
		return None
	case since > current, since < b.earliest, b.history == nil:
		return Complete
	default:
		return Partial
	}
}

// BeginUpdate opens an update scope.
//
// Outputs:
//   - *Scope: Exclusive mutation handle. Callers must call End, usually
//     with defer.
//   - error: ErrUpdateInProgress when a scope is already open.
func (b *Base) BeginUpdate() (*Scope, error) {
	if b.open != nil {
		return nil, ErrUpdateInProgress
	}
	s := &Scope{base: b}
	b.open = s
	if b.owner != nil {
		b.owner.scopeOpened(s)
	}
	return s, nil
}

// PurgeOldChangesets advances the earliest retained version towards until.
//
// Description:
//
//	until is lowered to the owning State's observer floor for this
//	component, so a cursor that has not consumed a version keeps it.
//	Purging is skipped while a scope is open.
//
// Outputs:
//   - version.Version: The earliest retained version after the purge.
func (b *Base) PurgeOldChangesets(until version.Version) version.Version {
	if b.open != nil {
		return b.earliest
	}
	if b.owner != nil {
		if floor, ok := b.owner.observerFloor(b.name); ok {
			until = version.Min(until, floor)
		}
	}

	before := b.earliest
	current := b.counter.Current()
	if b.history != nil {
		b.earliest = b.history.PurgeOldChangesets(until, current)
	} else {
		b.earliest = version.Max(version.Min(until, current), b.earliest)
	}
	if b.earliest != before {
		b.logger.Debug("changesets purged",
			slog.Uint64("earliest", uint64(b.earliest)),
			slog.Uint64("current", uint64(current)))
	}
	return b.earliest
}

// ValidateAfterLoad is the default post-load hook: nothing to repair.
func (b *Base) ValidateAfterLoad() []string {
	return nil
}

func (b *Base) base() *Base {
	return b
}

// commit closes scope s, bumping the version unless nothing changed.
func (b *Base) commit(s *Scope) version.Version {
	b.open = nil
	if b.owner != nil {
		b.owner.scopeClosed(s)
	}

	switch s.updateType {
	case None:
		if b.history != nil {
			// Records without an escalation are not observable.
			b.history.DiscardCurrent()
		}
		return b.counter.Current()

	case Complete:
		v := b.counter.Advance()
		if b.history != nil {
			b.history.Reset(v)
		}
		b.earliest = v
		b.last = Complete
		b.logger.Debug("complete update committed", slog.Uint64("version", uint64(v)))
		return v

	default:
		v := b.counter.Advance()
		if b.history != nil {
			b.history.PushChangeset(v)
		} else {
			// Without history nothing older than v is describable.
			b.earliest = v
		}
		b.last = Partial
		b.logger.Debug("partial update committed", slog.Uint64("version", uint64(v)))
		return v
	}
}
