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

// -----------------------------------------------------------------------------
// Node
// -----------------------------------------------------------------------------

// NodeKind distinguishes the node sub-kinds.
type NodeKind uint8

const (
	NodeGeneric NodeKind = iota
	NodeConstant
	NodeVariable
)

// String returns the sub-kind name.
func (k NodeKind) String() string {
	switch k {
	case NodeConstant:
		return "constant"
	case NodeVariable:
		return "variable"
	default:
		return "generic"
	}
}

// Constant is the value carried by a constant node.
type Constant struct {
	DataType string `json:"data_type"`
	Value    any    `json:"value"`
	Locked   bool   `json:"locked,omitempty"`
}

// Node is a graph node. Ports are listed in display order.
type Node struct {
	ID          ID         `json:"id"`
	Title       string     `json:"title"`
	NodeKind    NodeKind   `json:"node_kind"`
	Pos         Vec2       `json:"position"`
	Collapsed   bool       `json:"collapsed,omitempty"`
	Color       string     `json:"color,omitempty"`
	Ports       []ID       `json:"ports,omitempty"`
	Constant    *Constant  `json:"constant,omitempty"`
	Declaration ID         `json:"declaration,omitempty"`
	Caps        Capability `json:"capabilities"`
}

const nodeCaps = Deletable | Movable | Collapsible | Renamable | Copiable

func (n *Node) ElementID() ID { return n.ID }
func (n *Node) Kind() Kind { return KindNode }
func (n *Node) Capabilities() Capability { return n.Caps }
func (n *Node) Position() Vec2 { return n.Pos }
func (n *Node) SetPosition(p Vec2) { n.Pos = p }
func (n *Node) IsCollapsed() bool { return n.Collapsed }
func (n *Node) SetCollapsed(collapsed bool) { n.Collapsed = collapsed }

// IsLocked reports whether n is a locked constant.
func (n *Node) IsLocked() bool {
	return n.Constant != nil && n.Constant.Locked
}

// -----------------------------------------------------------------------------
// Port
// -----------------------------------------------------------------------------

// Direction is the data flow direction of a port.
type Direction uint8

const (
	Input Direction = iota
	Output
)

// String returns "input" or "output".
func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Capacity is how many edges a port accepts.
type Capacity uint8

const (
	Single Capacity = iota
	Multi
)

// AnyType is compatible with every data type.
const AnyType = "any"

// Port belongs to exactly one node.
type Port struct {
	ID        ID        `json:"id"`
	Node      ID        `json:"node"`
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	Capacity  Capacity  `json:"capacity"`
	DataType  string    `json:"data_type"`
}

func (p *Port) ElementID() ID            { return p.ID }
func (p *Port) Kind() Kind               { return KindPort }
func (p *Port) Capabilities() Capability { return 0 }

// Accepts reports whether data of type t may flow into p.
func (p *Port) Accepts(t string) bool {
	return p.DataType == t || p.DataType == AnyType || t == AnyType || p.DataType == "" || t == ""
}

// -----------------------------------------------------------------------------
// Edge
// -----------------------------------------------------------------------------

// Edge connects an output port to an input port.
type Edge struct {
	ID   ID `json:"id"`
	From ID `json:"from"`
	To   ID `json:"to"`
}

func (e *Edge) ElementID() ID            { return e.ID }
func (e *Edge) Kind() Kind               { return KindEdge }
func (e *Edge) Capabilities() Capability { return Deletable | Copiable }

// -----------------------------------------------------------------------------
// Sticky note
// -----------------------------------------------------------------------------

// StickyNote is a free-floating text annotation.
type StickyNote struct {
	ID       ID     `json:"id"`
	Title    string `json:"title"`
	Contents string `json:"contents"`
	Theme    string `json:"theme"`
	TextSize string `json:"text_size"`
	Bounds   Rect   `json:"bounds"`
}

func (s *StickyNote) ElementID() ID { return s.ID }
func (s *StickyNote) Kind() Kind    { return KindStickyNote }
func (s *StickyNote) Capabilities() Capability {
	return Deletable | Movable | Renamable | Copiable | Resizable
}
func (s *StickyNote) Position() Vec2 { return Vec2{X: s.Bounds.X, Y: s.Bounds.Y} }
func (s *StickyNote) SetPosition(p Vec2) {
	s.Bounds.X, s.Bounds.Y = p.X, p.Y
}

// -----------------------------------------------------------------------------
// Placemat
// -----------------------------------------------------------------------------

// Placemat is a coloured background area grouping other elements. When
// collapsed, the elements it covers are listed in Hidden.
type Placemat struct {
	ID        ID     `json:"id"`
	Title     string `json:"title"`
	Color     string `json:"color,omitempty"`
	Bounds    Rect   `json:"bounds"`
	Collapsed bool   `json:"collapsed,omitempty"`
	Hidden    []ID   `json:"hidden,omitempty"`
}

func (p *Placemat) ElementID() ID { return p.ID }
func (p *Placemat) Kind() Kind    { return KindPlacemat }
func (p *Placemat) Capabilities() Capability {
	return Deletable | Movable | Collapsible | Renamable | Copiable | Resizable
}
func (p *Placemat) Position() Vec2 { return Vec2{X: p.Bounds.X, Y: p.Bounds.Y} }
func (p *Placemat) SetPosition(v Vec2) {
	p.Bounds.X, p.Bounds.Y = v.X, v.Y
}
func (p *Placemat) IsCollapsed() bool { return p.Collapsed }
func (p *Placemat) SetCollapsed(collapsed bool) {
	p.Collapsed = collapsed
	if !collapsed {
		p.Hidden = nil
	}
}

// -----------------------------------------------------------------------------
// Variable declaration
// -----------------------------------------------------------------------------

// Modifiers control which ports a variable node exposes.
type Modifiers uint8

const (
	ReadOnly Modifiers = iota
	WriteOnly
	ReadWrite
)

// Readable reports whether variable nodes get an output port.
func (m Modifiers) Readable() bool { return m == ReadOnly || m == ReadWrite }

// Writable reports whether variable nodes get an input port.
func (m Modifiers) Writable() bool { return m == WriteOnly || m == ReadWrite }

// VariableDeclaration is referenced by variable nodes.
type VariableDeclaration struct {
	ID        ID        `json:"id"`
	Name      string    `json:"name"`
	DataType  string    `json:"data_type"`
	Modifiers Modifiers `json:"modifiers"`
	Exposed   bool      `json:"exposed,omitempty"`
	Tooltip   string    `json:"tooltip,omitempty"`
	Default   any       `json:"default,omitempty"`
}

func (v *VariableDeclaration) ElementID() ID { return v.ID }
func (v *VariableDeclaration) Kind() Kind    { return KindVariableDeclaration }
func (v *VariableDeclaration) Capabilities() Capability {
	return Deletable | Renamable | Copiable
}
