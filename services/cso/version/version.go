// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package version defines the version counter shared by state components,
// changesets and observers.
package version

import "strconv"

// Version identifies one committed tick of a state component.
//
// Versions are monotonically non-decreasing per component, never reused,
// and compared with < and <=. A freshly created component is at Initial.
type Version uint64

// Initial is the version of a component that was never updated.
const Initial Version = 0

// Next returns the version that follows v.
func (v Version) Next() Version {
	return v + 1
}

// String returns the decimal form of v.
func (v Version) String() string {
	return strconv.FormatUint(uint64(v), 10)
}

// Min returns the smaller of a and b.
func Min(a, b Version) Version {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Version) Version {
	if a > b {
		return a
	}
	return b
}

// Counter hands out increasing versions.
//
// The zero value starts at Initial. Counter is not safe for concurrent use;
// it is owned by a single state component.
type Counter struct {
	current Version
}

// NewCounter returns a counter positioned at v.
func NewCounter(v Version) Counter {
	return Counter{current: v}
}

// Current returns the last committed version.
func (c *Counter) Current() Version {
	return c.current
}

// Advance commits the next version and returns it.
func (c *Counter) Advance() Version {
	c.current = c.current.Next()
	return c.current
}
