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
	"sync/atomic"

	"github.com/AleutianAI/overdrive/services/cso/command"
	"github.com/AleutianAI/overdrive/services/cso/observer"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/cso/version"
	"github.com/AleutianAI/overdrive/services/graph/commands"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/states"
)

// GraphProcessor validates the displayed graph whenever its elements change
// and posts the results as SetProcessingErrors.
//
// Viewport-only updates produce an empty changeset and are not validated.
type GraphProcessor struct {
	observer.Base

	runs atomic.Int64
}

// NewGraphProcessor returns a processor.
func NewGraphProcessor(id string) *GraphProcessor {
	return &GraphProcessor{Base: observer.NewBase(id, states.GraphViewName)}
}

// Observe validates the graph if it changed since the last run.
func (o *GraphProcessor) Observe(_ context.Context, st *state.State, post command.Poster) error {
	view, err := state.Get[*states.GraphView](st, states.GraphViewName)
	if err != nil {
		return err
	}
	process := func() error {
		if view.Asset() == "" {
			return nil
		}
		o.runs.Add(1)
		return post.Post(commands.SetProcessingErrors{Errors: ToProcessingErrors(view.Graph().Validate())})
	}
	_, err = o.Sync(view, observer.Sync{
		Full: process,
		Incremental: func(since version.Version) (bool, error) {
			cs, ok := view.Changes(since)
			if !ok {
				return false, nil
			}
			if cs.IsEmpty() {
				return true, nil
			}
			return true, process()
		},
	})
	return err
}

// Runs returns how many validations were posted.
func (o *GraphProcessor) Runs() int {
	return int(o.runs.Load())
}

// ToProcessingErrors converts validation problems, attaching a quick-fix
// label where one applies.
func ToProcessingErrors(problems []model.Problem) []states.ProcessingError {
	out := make([]states.ProcessingError, 0, len(problems))
	for _, p := range problems {
		out = append(out, states.ProcessingError{
			Element:  p.Element,
			Code:     p.Code,
			Message:  p.Message,
			Severity: p.Severity,
			QuickFix: quickFix(p),
		})
	}
	return out
}

func quickFix(p model.Problem) string {
	switch p.Code {
	case model.ProblemUnusedVariable:
		return "Delete variable"
	case model.ProblemEdgeTypes:
		return "Delete edge"
	case model.ProblemUnconnectedNode:
		return "Delete node"
	case model.ProblemDuplicateVariable:
		return "Rename variable"
	default:
		return ""
	}
}
