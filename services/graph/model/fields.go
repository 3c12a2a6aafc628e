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
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// FieldAccessor reads and writes one named field of one element kind.
type FieldAccessor struct {
	Kind Kind
	Name string

	get func(Element) any
	set func(Element, any) error
}

// Get returns the field value of el.
func (a FieldAccessor) Get(el Element) (any, error) {
	if el.Kind() != a.Kind {
		return nil, fmt.Errorf("%w: field %s.%s on %s", ErrWrongKind, a.Kind, a.Name, el.Kind())
	}
	return a.get(el), nil
}

// Set converts value to the field's type and assigns it.
func (a FieldAccessor) Set(el Element, value any) error {
	if el.Kind() != a.Kind {
		return fmt.Errorf("%w: field %s.%s on %s", ErrWrongKind, a.Kind, a.Name, el.Kind())
	}
	return a.set(el, value)
}

var (
	fieldsMu sync.RWMutex
	fields   = make(map[Kind]map[string]FieldAccessor)
)

// RegisterField installs an accessor for (kind, name). A later registration
// for the same pair replaces the earlier one.
//
// Description:
//
//	The setter is typed: Set converts incoming values to V, either by direct
//	assertion or by a JSON round trip so that decoded API payloads
//	(float64 numbers, maps for structs) are accepted.
func RegisterField[E Element, V any](kind Kind, name string, get func(E) V, set func(E, V) error) {
	acc := FieldAccessor{
		Kind: kind,
		Name: name,
		get: func(el Element) any {
			return get(el.(E))
		},
		set: func(el Element, value any) error {
			typed, ok := el.(E)
			if !ok {
				return fmt.Errorf("%w: %T", ErrWrongKind, el)
			}
			v, err := convert[V](value)
			if err != nil {
				return fmt.Errorf("%w: %s.%s: %v", ErrFieldType, kind, name, err)
			}
			return set(typed, v)
		},
	}
	fieldsMu.Lock()
	defer fieldsMu.Unlock()
	if fields[kind] == nil {
		fields[kind] = make(map[string]FieldAccessor)
	}
	fields[kind][name] = acc
}

// Field resolves the accessor for (kind, name).
func Field(kind Kind, name string) (FieldAccessor, error) {
	fieldsMu.RLock()
	defer fieldsMu.RUnlock()
	acc, ok := fields[kind][name]
	if !ok {
		return FieldAccessor{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, kind, name)
	}
	return acc, nil
}

// Fields lists the registered field names of a kind, sorted.
func Fields(kind Kind) []string {
	fieldsMu.RLock()
	defer fieldsMu.RUnlock()
	names := make([]string, 0, len(fields[kind]))
	for name := range fields[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func convert[V any](value any) (V, error) {
	if v, ok := value.(V); ok {
		return v, nil
	}
	var out V
	data, err := json.Marshal(value)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("want %T, got %T", out, value)
	}
	return out, nil
}

func assign[E Element, V any](field func(E) *V) func(E, V) error {
	return func(el E, v V) error {
		*field(el) = v
		return nil
	}
}

func read[E Element, V any](field func(E) *V) func(E) V {
	return func(el E) V { return *field(el) }
}

func init() {
	title := func(n *Node) *string { return &n.Title }
	RegisterField(KindNode, "title", read(title), assign(title))
	color := func(n *Node) *string { return &n.Color }
	RegisterField(KindNode, "color", read(color), assign(color))
	RegisterField(KindNode, "position", (*Node).Position, func(n *Node, p Vec2) error {
		n.SetPosition(p)
		return nil
	})
	RegisterField(KindNode, "collapsed", (*Node).IsCollapsed, func(n *Node, c bool) error {
		n.SetCollapsed(c)
		return nil
	})
	RegisterField(KindNode, "value", func(n *Node) any {
		if n.Constant == nil {
			return nil
		}
		return n.Constant.Value
	}, func(n *Node, v any) error {
		if n.Constant == nil {
			return fmt.Errorf("%w: node %s is not a constant", ErrWrongKind, n.ID)
		}
		if n.Constant.Locked {
			return fmt.Errorf("%w: %s", ErrLocked, n.ID)
		}
		n.Constant.Value = v
		return nil
	})

	portName := func(p *Port) *string { return &p.Name }
	RegisterField(KindPort, "name", read(portName), assign(portName))

	snTitle := func(s *StickyNote) *string { return &s.Title }
	RegisterField(KindStickyNote, "title", read(snTitle), assign(snTitle))
	contents := func(s *StickyNote) *string { return &s.Contents }
	RegisterField(KindStickyNote, "contents", read(contents), assign(contents))
	theme := func(s *StickyNote) *string { return &s.Theme }
	RegisterField(KindStickyNote, "theme", read(theme), assign(theme))
	textSize := func(s *StickyNote) *string { return &s.TextSize }
	RegisterField(KindStickyNote, "text_size", read(textSize), assign(textSize))
	snBounds := func(s *StickyNote) *Rect { return &s.Bounds }
	RegisterField(KindStickyNote, "bounds", read(snBounds), assign(snBounds))

	pmTitle := func(p *Placemat) *string { return &p.Title }
	RegisterField(KindPlacemat, "title", read(pmTitle), assign(pmTitle))
	pmColor := func(p *Placemat) *string { return &p.Color }
	RegisterField(KindPlacemat, "color", read(pmColor), assign(pmColor))
	pmBounds := func(p *Placemat) *Rect { return &p.Bounds }
	RegisterField(KindPlacemat, "bounds", read(pmBounds), assign(pmBounds))
	RegisterField(KindPlacemat, "collapsed", (*Placemat).IsCollapsed, func(p *Placemat, c bool) error {
		p.SetCollapsed(c)
		return nil
	})

	declName := func(v *VariableDeclaration) *string { return &v.Name }
	RegisterField(KindVariableDeclaration, "name", read(declName), assign(declName))
	tooltip := func(v *VariableDeclaration) *string { return &v.Tooltip }
	RegisterField(KindVariableDeclaration, "tooltip", read(tooltip), assign(tooltip))
	exposed := func(v *VariableDeclaration) *bool { return &v.Exposed }
	RegisterField(KindVariableDeclaration, "exposed", read(exposed), assign(exposed))
	def := func(v *VariableDeclaration) *any { return &v.Default }
	RegisterField(KindVariableDeclaration, "default", read(def), assign(def))
}
