// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package state implements versioned state components and the State that
// aggregates them.
//
// # Overview
//
// A component is a named, versioned bundle of data. Its payload is only
// mutated inside an update scope. The scope batches any number of edits into
// a single version bump that happens when the scope ends:
//
//	BeginUpdate ──► edits + SetUpdateType ──► End
//	                                           │
//	          ┌───────────────┬────────────────┴───────────┐
//	          ▼               ▼                            ▼
//	        None           Partial                      Complete
//	   version kept     version+1,               version+1, history
//	   changes dropped  changeset stored         purged, earliest=version
//
// Observers compare their cursor against a component with GetUpdateType.
// Partial means the aggregated changeset since the cursor describes the
// delta; Complete means the observer must rebuild from the payload.
//
// # Concrete Components
//
// Components embed Base and, when they track item changes, give it a
// changeset.Manager as History:
//
//	type Selection struct {
//	    state.Base
//	    changes  *changeset.Manager[*changeset.ItemChangeset]
//	    selected map[string]bool
//	}
//
//	func NewSelection() *Selection {
//	    s := &Selection{changes: changeset.NewManager(changeset.NewItemChangeset)}
//	    s.Base = state.NewBase("selection", s.changes)
//	    return s
//	}
//
// # Thread Safety
//
// Components and State are owned by one goroutine. Readers running between
// dispatch cycles on the same goroutine need no locking.
package state
