// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package api

import (
	"encoding/json"

	"github.com/AleutianAI/overdrive/services/cso/dispatch"
	"github.com/AleutianAI/overdrive/services/cso/version"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/views"
)

// CommandRequest is the body of POST /v1/commands.
type CommandRequest struct {
	// Command is a registered command name, e.g. "CreateNode".
	Command string `json:"command" binding:"required"`

	// Args holds the command fields. Omitted for commands without fields.
	Args json.RawMessage `json:"args,omitempty"`
}

// CommandResponse is returned after a command was dispatched.
type CommandResponse struct {
	Command  string                     `json:"command"`
	Versions map[string]version.Version `json:"versions"`
}

// StateResponse lists each component's current version.
type StateResponse struct {
	Asset    model.ID                   `json:"asset,omitempty"`
	Versions map[string]version.Version `json:"versions"`
}

// ViewResponse is the graph view mirror.
type ViewResponse struct {
	Elements []views.ElementUI    `json:"elements"`
	Stats    views.GraphViewStats `json:"stats"`
	Toolbar  views.ToolbarCounts  `json:"toolbar"`
}

// HistoryResponse lists recently dispatched commands, oldest first.
type HistoryResponse struct {
	Records []dispatch.Record `json:"records"`
}

// AssetRequest is the body of PUT /v1/assets/:id.
type AssetRequest struct {
	Name  string       `json:"name" binding:"required"`
	Graph *model.Graph `json:"graph"`
}

// AssetSummary describes one library asset.
type AssetSummary struct {
	ID       model.ID `json:"id"`
	Name     string   `json:"name"`
	Elements int      `json:"elements"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Commands int    `json:"commands"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`
}
