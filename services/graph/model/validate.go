// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"fmt"
	"strings"
)

// Severity ranks a validation problem.
type Severity uint8

const (
	SeverityWarning Severity = iota
	SeverityError
)

// String returns "warning" or "error".
func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Problem codes.
const (
	ProblemEdgeTypes          = "edge_types"
	ProblemMissingDeclaration = "missing_declaration"
	ProblemUnconnectedNode    = "unconnected_node"
	ProblemMissingPort        = "missing_port"
	ProblemPortOverflow       = "port_overflow"
	ProblemUnnamedVariable    = "unnamed_variable"
	ProblemDuplicateVariable  = "duplicate_variable"
	ProblemUnusedVariable     = "unused_variable"
)

// Problem is one finding reported by Validate.
type Problem struct {
	Element  ID       `json:"element"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Validate inspects g and returns its problems in element order. It does not
// modify the graph.
func (g *Graph) Validate() []Problem {
	var out []Problem
	report := func(id ID, sev Severity, code, format string, args ...any) {
		out = append(out, Problem{Element: id, Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	names := make(map[string]ID)
	for _, el := range g.Elements() {
		switch e := el.(type) {
		case *Edge:
			if !g.edgeTypesMatch(e) {
				report(e.ID, SeverityError, ProblemEdgeTypes, "edge connects incompatible data types")
			}
		case *Node:
			if e.NodeKind == NodeVariable {
				if _, err := g.Declaration(e.Declaration); err != nil {
					report(e.ID, SeverityError, ProblemMissingDeclaration, "variable node references missing declaration %s", e.Declaration)
				}
			}
			if e.NodeKind == NodeGeneric && len(e.Ports) > 0 && len(g.NodeEdges(e.ID)) == 0 {
				report(e.ID, SeverityWarning, ProblemUnconnectedNode, "node %q is not connected", e.Title)
			}
			for _, pid := range e.Ports {
				p, err := g.Port(pid)
				if err != nil {
					report(e.ID, SeverityError, ProblemMissingPort, "node lists missing port %s", pid)
					continue
				}
				if p.Direction == Input && p.Capacity == Single && len(g.EdgesAt(pid)) > 1 {
					report(pid, SeverityError, ProblemPortOverflow, "single port has %d edges", len(g.EdgesAt(pid)))
				}
			}
		case *VariableDeclaration:
			if e.Name == "" {
				report(e.ID, SeverityError, ProblemUnnamedVariable, "variable declaration has no name")
			} else if other, dup := names[e.Name]; dup {
				report(e.ID, SeverityError, ProblemDuplicateVariable, "variable name %q is already declared by %s", e.Name, other)
			} else {
				names[e.Name] = e.ID
			}
			if len(g.VariableNodes(e.ID)) == 0 {
				report(e.ID, SeverityWarning, ProblemUnusedVariable, "variable %q is unused", e.Name)
			}
		}
	}
	return out
}

// HasErrors reports whether any problem is an error.
func HasErrors(problems []Problem) bool {
	for _, p := range problems {
		if p.Severity == SeverityError {
			return true
		}
	}
	return false
}
