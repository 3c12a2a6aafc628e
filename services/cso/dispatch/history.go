// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"time"

	"github.com/AleutianAI/overdrive/services/cso/version"
)

// -----------------------------------------------------------------------------
// Record
// -----------------------------------------------------------------------------

// Record describes one dispatched command.
//
// Thread Safety: Immutable after creation.
type Record struct {
	// Seq numbers records in dispatch order, starting at 1.
	Seq uint64 `json:"seq"`

	// Command is the command name.
	Command string `json:"command"`

	// UndoLabel is the command's user-facing label.
	UndoLabel string `json:"undo_label,omitempty"`

	// Status is one of the telemetry Status values.
	Status string `json:"status"`

	// Error is the handler error text, if any.
	Error string `json:"error,omitempty"`

	// FollowUp is true for commands posted during another dispatch.
	FollowUp bool `json:"follow_up,omitempty"`

	// Versions holds the new version of every component the command changed.
	Versions map[string]version.Version `json:"versions,omitempty"`

	// At is when dispatch started.
	At time.Time `json:"at"`

	// Duration covers the handler and observer notification.
	Duration time.Duration `json:"duration"`
}

// -----------------------------------------------------------------------------
// History
// -----------------------------------------------------------------------------

// history is a fixed-size ring of the most recent records.
type history struct {
	records []Record
	next    int
	full    bool
	seq     uint64
}

func newHistory(size int) *history {
	if size < 1 {
		size = 1
	}
	return &history{records: make([]Record, size)}
}

func (h *history) add(r Record) Record {
	h.seq++
	r.Seq = h.seq
	h.records[h.next] = r
	h.next = (h.next + 1) % len(h.records)
	if h.next == 0 {
		h.full = true
	}
	return r
}

// list returns the records oldest first.
func (h *history) list() []Record {
	if !h.full {
		out := make([]Record, h.next)
		copy(out, h.records[:h.next])
		return out
	}
	out := make([]Record, 0, len(h.records))
	out = append(out, h.records[h.next:]...)
	return append(out, h.records[:h.next]...)
}
