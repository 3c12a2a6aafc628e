// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package changeset records what changed in a state component between two
// versions.
//
// # Overview
//
// A state component accumulates a changeset while an update scope is open.
// When the scope commits a new version, the Manager snapshots the
// accumulator under that version and starts a fresh one. Observers later
// ask for the aggregated changeset over (since, current], which the Manager
// builds by merging the retained snapshots in version order.
//
//	  scope v1          scope v2          scope v3
//	┌──────────┐      ┌──────────┐      ┌──────────┐
//	│ New{1,2} │      │ Del{1}   │      │ Chg{2}   │
//	└────┬─────┘      └────┬─────┘      └────┬─────┘
//	     │ Push(1)         │ Push(2)         │ Push(3)
//	     ▼                 ▼                 ▼
//	┌─────────────────────────────────────────────────┐
//	│ Manager   {1: ..., 2: ..., 3: ...}  earliest=0  │
//	└─────────────────────────────────────────────────┘
//	     Aggregate(0, 3) = New{2}   (1 never existed for the caller)
//	     Aggregate(1, 3) = Del{1} Chg{2}
//
// # Merge Rules
//
// ItemChangeset keeps at most one classification per item. Recording an
// event for an item that already has a classification follows this table,
// both while a scope accumulates and when snapshots are aggregated:
//
//	prior \ event │ New       Changed   Deleted
//	──────────────┼──────────────────────────────
//	(none)        │ New       Changed   Deleted
//	New           │ New       New       (none)
//	Changed       │ New       Changed   Deleted
//	Deleted       │ Changed   Deleted   Deleted
//
// The (none) result for New then Deleted means the item never existed from
// the caller's point of view. Deleted then New is a revival: the caller
// still has the item, so it sees a change. An item that ends up Deleted or
// absent also leaves every auxiliary set.
//
// # Thread Safety
//
// Nothing in this package is safe for concurrent use. Changesets are owned
// by a single state component, which is mutated on one goroutine.
package changeset
