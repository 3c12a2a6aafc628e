// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package states

import (
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/graph/model"
)

// ProcessingError is one validation result shown to the user.
type ProcessingError struct {
	Element  model.ID       `json:"element" validate:"required"`
	Code     string         `json:"code,omitempty"`
	Message  string         `json:"message" validate:"required"`
	Severity model.Severity `json:"severity"`
	QuickFix string         `json:"quick_fix,omitempty"`
}

// Processing holds the results of the last graph validation. It keeps no
// changeset history.
type Processing struct {
	state.Base

	errors  []ProcessingError
	pending bool
}

// NewProcessing returns an empty Processing component.
func NewProcessing() *Processing {
	p := &Processing{}
	p.Base = state.NewBase(ProcessingName, nil)
	return p
}

// Errors returns a copy of the current results.
func (p *Processing) Errors() []ProcessingError {
	return append([]ProcessingError(nil), p.errors...)
}

// Pending reports whether a validation is scheduled but not yet applied.
func (p *Processing) Pending() bool { return p.pending }

// Counts returns the number of errors and warnings.
func (p *Processing) Counts() (errs, warnings int) {
	for _, e := range p.errors {
		if e.Severity == model.SeverityError {
			errs++
		} else {
			warnings++
		}
	}
	return errs, warnings
}

// Update runs fn with an open updater.
func (p *Processing) Update(fn func(u *ProcessingUpdater) error) error {
	return state.Update(p, func(s *state.Scope) error {
		return fn(&ProcessingUpdater{Scope: s, p: p})
	})
}

// ProcessingUpdater mutates Processing inside an update scope.
type ProcessingUpdater struct {
	*state.Scope
	p *Processing
}

// SetErrors replaces the results and clears the pending flag.
func (u *ProcessingUpdater) SetErrors(errs []ProcessingError) {
	u.p.errors = append([]ProcessingError(nil), errs...)
	u.p.pending = false
	u.MarkComplete()
}

// SetPending flags a scheduled validation.
func (u *ProcessingUpdater) SetPending(pending bool) {
	if u.p.pending == pending {
		return
	}
	u.p.pending = pending
	u.MarkPartial()
}

// Clear drops every result.
func (u *ProcessingUpdater) Clear() {
	if len(u.p.errors) == 0 {
		return
	}
	u.SetErrors(nil)
}

// MarshalState encodes the results.
func (p *Processing) MarshalState() ([]byte, error) {
	return json.Marshal(struct {
		Errors []ProcessingError `json:"errors,omitempty"`
	}{p.errors})
}

// UnmarshalState replaces the results. Pending is not persisted.
func (p *Processing) UnmarshalState(data []byte) error {
	var in struct {
		Errors []ProcessingError `json:"errors"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode processing: %w", err)
	}
	p.errors, p.pending = in.Errors, false
	return nil
}
