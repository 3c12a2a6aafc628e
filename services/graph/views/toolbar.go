// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package views

import (
	"context"
	"sync"

	"github.com/AleutianAI/overdrive/services/cso/command"
	"github.com/AleutianAI/overdrive/services/cso/observer"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/graph/states"
)

// ToolbarCounts is what the error toolbar displays.
type ToolbarCounts struct {
	Errors   int  `json:"errors"`
	Warnings int  `json:"warnings"`
	Pending  bool `json:"pending"`
}

// ErrorToolbar summarises the Processing component.
type ErrorToolbar struct {
	observer.Base

	mu      sync.RWMutex
	counts  ToolbarCounts
	refresh int
}

// NewErrorToolbar returns a toolbar with nothing to show.
func NewErrorToolbar(id string) *ErrorToolbar {
	return &ErrorToolbar{Base: observer.NewBase(id, states.ProcessingName)}
}

// Observe refreshes the counts. Processing keeps no history, so every
// change is a full refresh.
func (o *ErrorToolbar) Observe(_ context.Context, st *state.State, _ command.Poster) error {
	p, err := state.Get[*states.Processing](st, states.ProcessingName)
	if err != nil {
		return err
	}
	_, err = o.Sync(p, observer.Sync{
		Full: func() error {
			errs, warnings := p.Counts()
			o.mu.Lock()
			defer o.mu.Unlock()
			o.counts = ToolbarCounts{Errors: errs, Warnings: warnings, Pending: p.Pending()}
			o.refresh++
			return nil
		},
	})
	return err
}

// Counts returns the displayed counts.
func (o *ErrorToolbar) Counts() ToolbarCounts {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.counts
}

// Refreshes returns how many times the counts were recomputed.
func (o *ErrorToolbar) Refreshes() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.refresh
}
