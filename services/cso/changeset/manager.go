// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package changeset

import (
	"slices"

	"github.com/AleutianAI/overdrive/services/cso/version"
)

// entry is one snapshot stored under the version it was committed with.
type entry[C any] struct {
	version version.Version
	cs      C
}

// Manager owns the accumulating changeset of a state component and the
// snapshots committed under each version.
//
// Description:
//
//	The accumulator returned by Current is where updaters record changes.
//	PushChangeset moves it into history under a version and starts a new
//	one. History only ever holds versions in [Earliest, current]; anything
//	older was purged and cannot be aggregated any more.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type Manager[C Changeset[C]] struct {
	factory  func() C
	current  C
	entries  []entry[C]
	earliest version.Version
}

// NewManager creates a Manager whose changesets are built by factory.
//
// Inputs:
//   - factory: Returns a new, empty changeset. Must not return nil.
//
// Outputs:
//   - *Manager[C]: Manager with an empty accumulator and no history.
func NewManager[C Changeset[C]](factory func() C) *Manager[C] {
	return &Manager[C]{
		factory: factory,
		current: factory(),
	}
}

// Current returns the accumulating changeset for the version in progress.
func (m *Manager[C]) Current() C {
	return m.current
}

// Earliest returns the oldest version an aggregation may start from.
func (m *Manager[C]) Earliest() version.Version {
	return m.earliest
}

// Versions returns the versions with a stored snapshot, ascending.
func (m *Manager[C]) Versions() []version.Version {
	out := make([]version.Version, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.version
	}
	return out
}

// PushChangeset stores the accumulator under v and clears the accumulator.
//
// Description:
//
//	Snapshots are kept in version order. Pushing a version that already
//	has a snapshot merges the accumulator into it.
//
// Inputs:
//   - v: The version the accumulated changes were committed as.
func (m *Manager[C]) PushChangeset(v version.Version) {
	cs := m.current
	m.current = m.factory()

	i, found := slices.BinarySearchFunc(m.entries, v, func(e entry[C], target version.Version) int {
		switch {
		case e.version < target:
			return -1
		case e.version > target:
			return 1
		default:
			return 0
		}
	})
	if found {
		m.entries[i].cs.Merge(cs)
		return
	}
	m.entries = slices.Insert(m.entries, i, entry[C]{version: v, cs: cs})
}

// GetAggregatedChangeset merges all snapshots in (since, current].
//
// Description:
//
//	Snapshots are merged in ascending version order into a fresh
//	changeset, so the stored history is never modified. The boolean is
//	false when the range cannot be described: since predates Earliest or
//	lies beyond current. Callers fall back to a full resync in that case.
//
// Inputs:
//   - since: Last version the caller has seen.
//   - current: The component's current version.
//
// Outputs:
//   - C: The aggregated changeset. Empty when since == current.
//   - bool: False when the range is not representable.
func (m *Manager[C]) GetAggregatedChangeset(since, current version.Version) (C, bool) {
	if since > current || since < m.earliest {
		var zero C
		return zero, false
	}

	out := m.factory()
	if since == current {
		return out, true
	}
	for _, e := range m.entries {
		if e.version <= since {
			continue
		}
		if e.version > current {
			break
		}
		out.Merge(e.cs)
	}
	return out, true
}

// PurgeOldChangesets drops snapshots below until.
//
// Description:
//
//	until is clamped to current and never moves Earliest backwards. The
//	returned floor is what the owning component records as its earliest
//	retained version.
//
// Inputs:
//   - until: Versions strictly below this value are discarded.
//   - current: The component's current version.
//
// Outputs:
//   - version.Version: The resulting earliest retained version.
func (m *Manager[C]) PurgeOldChangesets(until, current version.Version) version.Version {
	until = version.Max(version.Min(until, current), m.earliest)

	keep := 0
	for keep < len(m.entries) && m.entries[keep].version < until {
		keep++
	}
	m.entries = slices.Delete(m.entries, 0, keep)
	m.earliest = until
	return m.earliest
}

// DiscardCurrent clears the accumulator without touching history.
func (m *Manager[C]) DiscardCurrent() {
	m.current.Clear()
}

// Reset discards the accumulator and every snapshot, and moves Earliest to v.
//
// A component calls Reset when it commits a version that no changeset can
// describe.
func (m *Manager[C]) Reset(v version.Version) {
	m.current.Clear()
	m.entries = nil
	m.earliest = v
}
