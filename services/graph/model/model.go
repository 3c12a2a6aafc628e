// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model is the graph domain edited through commands: nodes, ports,
// edges, sticky notes, placemats and variable declarations.
//
// Elements are a closed set of kinds. Behaviour shared across kinds is
// expressed as capability flags (Deletable, Movable, Collapsible, ...) and
// small interfaces (Positioned, Collapser) instead of a type hierarchy:
//
//	              Element
//	  ┌──────┬──────┼──────┬───────────┬─────────────────────┐
//	 Node   Port   Edge  StickyNote  Placemat  VariableDeclaration
//	  │                     │           │
//	  └── Positioned ───────┴───────────┘
//
// Generic field edits go through the FieldAccessor registry, which maps a
// (Kind, field name) pair to a typed setter resolved once per kind.
package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrUnknownElement is returned for IDs not present in a graph.
	ErrUnknownElement = errors.New("unknown element")

	// ErrWrongKind is returned when an element has an unexpected kind.
	ErrWrongKind = errors.New("element has wrong kind")

	// ErrUnknownField is returned for fields not registered for a kind.
	ErrUnknownField = errors.New("unknown field")

	// ErrFieldType is returned when a value cannot be converted to a
	// field's type.
	ErrFieldType = errors.New("field value has wrong type")

	// ErrIncompatiblePorts is returned when two ports cannot be connected.
	ErrIncompatiblePorts = errors.New("ports cannot be connected")

	// ErrPortCapacity is returned when connecting to a full single port.
	ErrPortCapacity = errors.New("port is already connected")

	// ErrLocked is returned when editing a locked constant.
	ErrLocked = errors.New("constant is locked")

	// ErrNotCapable is returned when an element lacks a required capability.
	ErrNotCapable = errors.New("element lacks capability")

	// ErrIDInUse is returned when a caller-chosen ID is already taken.
	ErrIDInUse = errors.New("id is already in use")
)

// ID identifies an element within a graph, or a graph asset in a Library.
type ID string

// NewID returns a fresh random ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// Kind is the closed set of element kinds.
type Kind uint8

const (
	KindNode Kind = iota + 1
	KindPort
	KindEdge
	KindStickyNote
	KindPlacemat
	KindVariableDeclaration
)

var kindNames = map[Kind]string{
	KindNode:                "node",
	KindPort:                "port",
	KindEdge:                "edge",
	KindStickyNote:          "sticky_note",
	KindPlacemat:            "placemat",
	KindVariableDeclaration: "variable_declaration",
}

// String returns the snake_case kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown element kind %q", s)
}

// Capability is a set of cross-cutting element traits.
type Capability uint16

const (
	Deletable Capability = 1 << iota
	Movable
	Collapsible
	Renamable
	Copiable
	Resizable
)

// Has reports whether every flag in want is set.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// String lists the set flags, joined by "|".
func (c Capability) String() string {
	names := []string{}
	for _, f := range []struct {
		flag Capability
		name string
	}{
		{Deletable, "deletable"},
		{Movable, "movable"},
		{Collapsible, "collapsible"},
		{Renamable, "renamable"},
		{Copiable, "copiable"},
		{Resizable, "resizable"},
	} {
		if c.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Vec2 is a canvas position or offset.
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns v+o.
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Rect is a canvas rectangle.
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// Element is implemented by every graph element.
type Element interface {
	ElementID() ID
	Kind() Kind
	Capabilities() Capability
}

// Positioned elements have a canvas position.
type Positioned interface {
	Element
	Position() Vec2
	SetPosition(Vec2)
}

// Collapser elements can be collapsed.
type Collapser interface {
	Element
	IsCollapsed() bool
	SetCollapsed(bool)
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown element kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
