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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/overdrive/services/cso/version"
)

func newItemManager() *Manager[*ItemChangeset] {
	return NewManager(NewItemChangeset)
}

func TestItemChangeset_Transitions(t *testing.T) {
	mark := map[string]func(*ItemChangeset, ...ID){
		"new":     (*ItemChangeset).MarkNew,
		"changed": (*ItemChangeset).MarkChanged,
		"deleted": (*ItemChangeset).MarkDeleted,
	}

	tests := []struct {
		name   string
		events []string
		want   string
	}{
		{"new", []string{"new"}, "new"},
		{"changed", []string{"changed"}, "changed"},
		{"deleted", []string{"deleted"}, "deleted"},
		{"new then changed", []string{"new", "changed"}, "new"},
		{"new then deleted", []string{"new", "deleted"}, ""},
		{"changed then new", []string{"changed", "new"}, "new"},
		{"changed then deleted", []string{"changed", "deleted"}, "deleted"},
		{"deleted then new", []string{"deleted", "new"}, "changed"},
		{"deleted then changed", []string{"deleted", "changed"}, "deleted"},
		{"new changed deleted", []string{"new", "changed", "deleted"}, ""},
		{"changed deleted new", []string{"changed", "deleted", "new"}, "changed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := NewItemChangeset()
			for _, ev := range tt.events {
				mark[ev](cs, "a")
			}

			assert.Equal(t, tt.want == "new", cs.New.Has("a"), "new")
			assert.Equal(t, tt.want == "changed", cs.Changed.Has("a"), "changed")
			assert.Equal(t, tt.want == "deleted", cs.Deleted.Has("a"), "deleted")
			assert.Equal(t, tt.want == "", cs.IsEmpty())
		})
	}
}

func TestItemChangeset_DeletedExcludesNewAndChanged(t *testing.T) {
	events := [][]func(*ItemChangeset, ...ID){
		{(*ItemChangeset).MarkChanged},
		{(*ItemChangeset).MarkNew},
		{(*ItemChangeset).MarkNew, (*ItemChangeset).MarkChanged},
		{(*ItemChangeset).MarkDeleted, (*ItemChangeset).MarkNew},
		{},
	}
	for i, seq := range events {
		cs := NewItemChangeset()
		for _, fn := range seq {
			fn(cs, "x")
		}
		cs.MarkDeleted("x")
		assert.False(t, cs.New.Has("x"), "sequence %d", i)
		assert.False(t, cs.Changed.Has("x"), "sequence %d", i)
	}
}

func TestItemChangeset_AuxFollowsDeletion(t *testing.T) {
	cs := NewItemChangeset()
	cs.MarkChanged("a", "b")
	cs.MarkAux("realign", "a", "b")
	cs.MarkDeleted("a")

	assert.False(t, cs.AuxSet("realign").Has("a"))
	assert.True(t, cs.AuxSet("realign").Has("b"))

	cs.MarkAux("realign", "a")
	assert.False(t, cs.AuxSet("realign").Has("a"), "deleted items are not tagged")
}

func TestItemChangeset_CloneIsIndependent(t *testing.T) {
	cs := NewItemChangeset()
	cs.MarkNew("a")
	cs.MarkAux("realign", "a")

	cp := cs.Clone()
	cs.MarkDeleted("a")

	assert.True(t, cp.New.Has("a"))
	assert.True(t, cp.AuxSet("realign").Has("a"))
	assert.True(t, cs.IsEmpty())
}

func TestManager_AggregateSameVersionIsEmpty(t *testing.T) {
	m := newItemManager()
	m.Current().MarkNew("1")
	m.PushChangeset(1)

	for _, v := range []version.Version{0, 1} {
		cs, ok := m.GetAggregatedChangeset(v, v)
		require.True(t, ok)
		assert.True(t, cs.IsEmpty())
	}
}

func TestManager_NewThenDeletedAcrossVersions(t *testing.T) {
	m := newItemManager()

	m.Current().MarkNew("1", "2")
	m.PushChangeset(1)

	cs, ok := m.GetAggregatedChangeset(0, 1)
	require.True(t, ok)
	assert.ElementsMatch(t, []ID{"1", "2"}, cs.New.Sorted())

	m.Current().MarkDeleted("1")
	m.PushChangeset(2)

	cs, ok = m.GetAggregatedChangeset(0, 2)
	require.True(t, ok)
	assert.Equal(t, []ID{"2"}, cs.New.Sorted())
	assert.Empty(t, cs.Deleted.Sorted())
	assert.Empty(t, cs.Changed.Sorted())

	cs, ok = m.GetAggregatedChangeset(1, 2)
	require.True(t, ok)
	assert.Equal(t, []ID{"1"}, cs.Deleted.Sorted())
}

func TestManager_AggregationDoesNotMutateHistory(t *testing.T) {
	m := newItemManager()
	m.Current().MarkNew("1")
	m.PushChangeset(1)
	m.Current().MarkDeleted("1")
	m.PushChangeset(2)

	_, ok := m.GetAggregatedChangeset(0, 2)
	require.True(t, ok)

	cs, ok := m.GetAggregatedChangeset(0, 1)
	require.True(t, ok)
	assert.Equal(t, []ID{"1"}, cs.New.Sorted())
}

func TestManager_PushMergesSameVersion(t *testing.T) {
	m := newItemManager()
	m.Current().MarkNew("1")
	m.PushChangeset(1)
	m.Current().MarkChanged("2")
	m.PushChangeset(1)

	assert.Equal(t, []version.Version{1}, m.Versions())
	cs, ok := m.GetAggregatedChangeset(0, 1)
	require.True(t, ok)
	assert.Equal(t, []ID{"1"}, cs.New.Sorted())
	assert.Equal(t, []ID{"2"}, cs.Changed.Sorted())
}

func TestManager_PurgeSignalsNotRepresentable(t *testing.T) {
	m := newItemManager()
	for v := version.Version(1); v <= 4; v++ {
		m.Current().MarkChanged(ID(v.String()))
		m.PushChangeset(v)
	}

	earliest := m.PurgeOldChangesets(3, 4)
	assert.Equal(t, version.Version(3), earliest)
	assert.Equal(t, []version.Version{3, 4}, m.Versions())

	_, ok := m.GetAggregatedChangeset(2, 4)
	assert.False(t, ok)

	cs, ok := m.GetAggregatedChangeset(3, 4)
	require.True(t, ok)
	assert.Equal(t, []ID{"4"}, cs.Changed.Sorted())
}

func TestManager_PurgeClamps(t *testing.T) {
	m := newItemManager()
	m.Current().MarkNew("a")
	m.PushChangeset(1)

	assert.Equal(t, version.Version(1), m.PurgeOldChangesets(10, 1), "clamped to current")
	assert.Equal(t, version.Version(1), m.PurgeOldChangesets(0, 1), "never moves backwards")
}

func TestManager_FutureSinceNotRepresentable(t *testing.T) {
	m := newItemManager()
	_, ok := m.GetAggregatedChangeset(5, 2)
	assert.False(t, ok)
}

func TestManager_Reset(t *testing.T) {
	m := newItemManager()
	m.Current().MarkNew("a")
	m.PushChangeset(1)
	m.Current().MarkNew("b")

	m.Reset(2)

	assert.True(t, m.Current().IsEmpty())
	assert.Empty(t, m.Versions())
	assert.Equal(t, version.Version(2), m.Earliest())

	_, ok := m.GetAggregatedChangeset(1, 2)
	assert.False(t, ok)
}
