// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package persistence saves and restores state components.
//
// The encoding of a component's payload belongs to the component: it
// implements Persistable. This package wraps the payload in an envelope,
// restores it inside a Complete update scope so every observer resyncs, and
// runs the component's ValidateAfterLoad hook before the scope commits.
//
// Store keeps envelopes in BadgerDB, framed as [4-byte CRC32][envelope].
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AleutianAI/overdrive/services/cso/state"
)

var (
	// ErrNotFound is returned when no snapshot exists for a component.
	ErrNotFound = errors.New("component snapshot not found")

	// ErrCorrupted is returned when a stored snapshot fails its checksum.
	ErrCorrupted = errors.New("component snapshot corrupted")

	// ErrStoreClosed is returned by operations on a closed Store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrComponentMismatch is returned when a snapshot belongs to another
	// component.
	ErrComponentMismatch = errors.New("snapshot belongs to another component")

	// ErrSchemaVersion is returned for envelopes written by a newer format.
	ErrSchemaVersion = errors.New("unsupported snapshot schema version")
)

// SchemaVersion is the envelope format written by Serialize.
const SchemaVersion = 1

// Persistable is a component whose payload can be saved.
type Persistable interface {
	state.Component

	// MarshalState encodes the payload.
	MarshalState() ([]byte, error)

	// UnmarshalState replaces the payload. It runs inside an open update
	// scope and must not open one itself. On error the payload is left
	// as it was.
	UnmarshalState(data []byte) error
}

type envelope struct {
	Schema    int             `json:"schema"`
	Component string          `json:"component"`
	Version   uint64          `json:"version"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Raw       []byte          `json:"raw,omitempty"`
}

// Serialize encodes c with its name and version.
func Serialize(c Persistable) ([]byte, error) {
	payload, err := c.MarshalState()
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", c.Name(), err)
	}
	env := envelope{
		Schema:    SchemaVersion,
		Component: c.Name(),
		Version:   uint64(c.CurrentVersion()),
	}
	if json.Valid(payload) {
		env.Payload = payload
	} else {
		env.Raw = payload
	}
	return json.Marshal(env)
}

// Deserialize restores data into c and returns the repairs the post-load
// validation made.
//
// Description:
//
//	The payload is applied inside a Complete update scope, so c advances
//	one version and every observer performs a full resync. Dangling
//	references are repaired by c.ValidateAfterLoad before the scope
//	commits.
//
// Outputs:
//   - []string: Repair descriptions, possibly empty.
//   - error: Decode errors, ErrComponentMismatch, ErrSchemaVersion, or the
//     error from UnmarshalState. c is unchanged on error.
func Deserialize(data []byte, c Persistable) ([]string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if env.Schema > SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrSchemaVersion, env.Schema)
	}
	if env.Component != c.Name() {
		return nil, fmt.Errorf("%w: %s into %s", ErrComponentMismatch, env.Component, c.Name())
	}

	payload := []byte(env.Payload)
	if len(env.Raw) > 0 {
		payload = env.Raw
	}

	var repairs []string
	err := state.Update(c, func(s *state.Scope) error {
		if err := c.UnmarshalState(payload); err != nil {
			// Leave the version untouched on failure.
			_ = s.SetUpdateType(state.None, true)
			return fmt.Errorf("unmarshal %s: %w", c.Name(), err)
		}
		repairs = c.ValidateAfterLoad()
		return s.SetUpdateType(state.Complete, false)
	})
	if err != nil {
		return nil, err
	}
	return repairs, nil
}
