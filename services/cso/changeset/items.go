// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package changeset

// Changeset is the contract a Manager needs from the delta type it stores.
//
// C is the concrete changeset type itself, so Merge receives a typed value:
//
//	type ItemChangeset struct{ ... }
//	func (c *ItemChangeset) Merge(next *ItemChangeset) { ... }
//
// Merge folds next into the receiver as if next happened after it.
type Changeset[C any] interface {
	// Clear drops every recorded change.
	Clear()

	// IsEmpty reports whether the changeset records nothing.
	IsEmpty() bool

	// Merge applies next on top of the receiver.
	Merge(next C)
}

// status is the single classification an item holds in an ItemChangeset.
type status uint8

const (
	absent status = iota
	isNew
	isChanged
	isDeleted
)

// transitions[prior][event] is the classification after event.
var transitions = [4][4]status{
	absent:    {absent: absent, isNew: isNew, isChanged: isChanged, isDeleted: isDeleted},
	isNew:     {absent: isNew, isNew: isNew, isChanged: isNew, isDeleted: absent},
	isChanged: {absent: isChanged, isNew: isNew, isChanged: isChanged, isDeleted: isDeleted},
	isDeleted: {absent: isDeleted, isNew: isChanged, isChanged: isDeleted, isDeleted: isDeleted},
}

// ItemChangeset tracks new, changed and deleted items plus tagged auxiliary
// sets such as "items to realign".
//
// An item is in at most one of New, Changed and Deleted. Auxiliary sets only
// hold items that are not Deleted. Mutate through the Mark methods; the
// exported sets are for reading.
type ItemChangeset struct {
	New     Set
	Changed Set
	Deleted Set

	// Aux maps a tag to the items carrying it.
	Aux map[string]Set
}

// NewItemChangeset returns an empty changeset.
func NewItemChangeset() *ItemChangeset {
	return &ItemChangeset{
		New:     Set{},
		Changed: Set{},
		Deleted: Set{},
		Aux:     map[string]Set{},
	}
}

// MarkNew records that id was created.
func (c *ItemChangeset) MarkNew(ids ...ID) {
	for _, id := range ids {
		c.apply(id, isNew)
	}
}

// MarkChanged records that id was modified.
func (c *ItemChangeset) MarkChanged(ids ...ID) {
	for _, id := range ids {
		c.apply(id, isChanged)
	}
}

// MarkDeleted records that id was removed.
func (c *ItemChangeset) MarkDeleted(ids ...ID) {
	for _, id := range ids {
		c.apply(id, isDeleted)
	}
}

// MarkAux tags id in the auxiliary set named tag.
//
// Tagging a deleted item is ignored, since observers no longer have it.
func (c *ItemChangeset) MarkAux(tag string, ids ...ID) {
	for _, id := range ids {
		if c.Deleted.Has(id) {
			continue
		}
		set, ok := c.Aux[tag]
		if !ok {
			set = Set{}
			c.Aux[tag] = set
		}
		set.Add(id)
	}
}

// AuxSet returns the items tagged with tag. The result may be nil.
func (c *ItemChangeset) AuxSet(tag string) Set {
	return c.Aux[tag]
}

// Clear drops every recorded change.
func (c *ItemChangeset) Clear() {
	clear(c.New)
	clear(c.Changed)
	clear(c.Deleted)
	clear(c.Aux)
}

// IsEmpty reports whether no item is recorded in any set.
func (c *ItemChangeset) IsEmpty() bool {
	if c.New.Len() > 0 || c.Changed.Len() > 0 || c.Deleted.Len() > 0 {
		return false
	}
	for _, set := range c.Aux {
		if set.Len() > 0 {
			return false
		}
	}
	return true
}

// Merge applies next on top of c following the transition table.
func (c *ItemChangeset) Merge(next *ItemChangeset) {
	if next == nil {
		return
	}
	// Order inside one snapshot does not matter: each item holds a single
	// classification there.
	for id := range next.New {
		c.apply(id, isNew)
	}
	for id := range next.Changed {
		c.apply(id, isChanged)
	}
	for id := range next.Deleted {
		c.apply(id, isDeleted)
	}
	for tag, set := range next.Aux {
		c.MarkAux(tag, set.Sorted()...)
	}
}

// Clone returns a deep copy.
func (c *ItemChangeset) Clone() *ItemChangeset {
	out := &ItemChangeset{
		New:     c.New.Clone(),
		Changed: c.Changed.Clone(),
		Deleted: c.Deleted.Clone(),
		Aux:     make(map[string]Set, len(c.Aux)),
	}
	for tag, set := range c.Aux {
		out.Aux[tag] = set.Clone()
	}
	return out
}

func (c *ItemChangeset) statusOf(id ID) status {
	switch {
	case c.New.Has(id):
		return isNew
	case c.Changed.Has(id):
		return isChanged
	case c.Deleted.Has(id):
		return isDeleted
	default:
		return absent
	}
}

func (c *ItemChangeset) apply(id ID, event status) {
	prior := c.statusOf(id)
	next := transitions[prior][event]
	if next == prior {
		return
	}

	c.New.Remove(id)
	c.Changed.Remove(id)
	c.Deleted.Remove(id)

	switch next {
	case isNew:
		c.New.Add(id)
	case isChanged:
		c.Changed.Add(id)
	case isDeleted:
		c.Deleted.Add(id)
	}

	if next == isDeleted || next == absent {
		for _, set := range c.Aux {
			set.Remove(id)
		}
	}
}

var _ Changeset[*ItemChangeset] = (*ItemChangeset)(nil)
