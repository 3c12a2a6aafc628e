// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/overdrive/services/cso/changeset"
	"github.com/AleutianAI/overdrive/services/cso/command"
	"github.com/AleutianAI/overdrive/services/cso/config"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/cso/version"
)

type items struct {
	state.Base
	changes *changeset.Manager[*changeset.ItemChangeset]
	present map[changeset.ID]bool
}

func newItems() *items {
	c := &items{
		changes: changeset.NewManager(changeset.NewItemChangeset),
		present: map[changeset.ID]bool{},
	}
	c.Base = state.NewBase("items", c.changes)
	return c
}

func (c *items) update(t *testing.T, ut state.UpdateType, add ...changeset.ID) {
	t.Helper()
	require.NoError(t, state.Update(c, func(s *state.Scope) error {
		for _, id := range add {
			c.present[id] = true
		}
		c.changes.Current().MarkNew(add...)
		return s.SetUpdateType(ut, false)
	}))
}

// mirror copies the item set of an items component.
type mirror struct {
	Base
	comp        *items
	seen        map[changeset.ID]bool
	full, incr  int
	lastChanges *changeset.ItemChangeset
}

func newMirror(id string, comp *items) *mirror {
	return &mirror{Base: NewBase(id, "items"), comp: comp, seen: map[changeset.ID]bool{}}
}

func (m *mirror) Observe(_ context.Context, _ *state.State, _ command.Poster) error {
	_, err := m.Sync(m.comp, Sync{
		Full: func() error {
			m.full++
			clear(m.seen)
			for id := range m.comp.present {
				m.seen[id] = true
			}
			return nil
		},
		Incremental: func(since version.Version) (bool, error) {
			cs, ok := m.comp.changes.GetAggregatedChangeset(since, m.comp.CurrentVersion())
			if !ok {
				return false, nil
			}
			m.incr++
			m.lastChanges = cs
			for id := range cs.New {
				m.seen[id] = true
			}
			for id := range cs.Deleted {
				delete(m.seen, id)
			}
			return true, nil
		},
	})
	return err
}

func TestCursor_SyncPaths(t *testing.T) {
	comp := newItems()
	m := newMirror("m", comp)
	ctx := context.Background()

	require.NoError(t, m.Observe(ctx, nil, nil))
	assert.Equal(t, 1, m.full, "first sync is full even at version 0")

	require.NoError(t, m.Observe(ctx, nil, nil))
	assert.Equal(t, 1, m.full, "same version is skipped")
	assert.Equal(t, 0, m.incr)

	comp.update(t, state.Partial, "a")
	require.NoError(t, m.Observe(ctx, nil, nil))
	assert.Equal(t, 1, m.incr)
	assert.True(t, m.seen["a"])

	comp.update(t, state.Complete, "b")
	require.NoError(t, m.Observe(ctx, nil, nil))
	assert.Equal(t, 2, m.full)
	assert.True(t, m.seen["b"])

	v, ok := m.LastObservedVersion("items")
	require.True(t, ok)
	assert.Equal(t, comp.CurrentVersion(), v)
}

func TestCursor_RoundTripYieldsEmpty(t *testing.T) {
	comp := newItems()
	m := newMirror("m", comp)
	ctx := context.Background()
	require.NoError(t, m.Observe(ctx, nil, nil))

	comp.update(t, state.Partial, "a", "b")
	require.NoError(t, m.Observe(ctx, nil, nil))
	require.NotNil(t, m.lastChanges)

	since, _ := m.LastObservedVersion("items")
	cs, ok := comp.changes.GetAggregatedChangeset(since, comp.CurrentVersion())
	require.True(t, ok)
	assert.True(t, cs.IsEmpty())
}

func TestCursor_FallsBackWhenNotRepresentable(t *testing.T) {
	comp := newItems()
	c := &Cursor{}
	c.Advance("items", 0)
	comp.update(t, state.Partial, "a")

	var fullRan bool
	kind, err := c.Sync(comp, Sync{
		Full:        func() error { fullRan = true; return nil },
		Incremental: func(version.Version) (bool, error) { return false, nil },
	})
	require.NoError(t, err)
	assert.Equal(t, FullResync, kind)
	assert.True(t, fullRan)
}

func TestCursor_AdvancesOnError(t *testing.T) {
	comp := newItems()
	comp.update(t, state.Partial, "a")

	c := &Cursor{}
	boom := errors.New("boom")
	kind, err := c.Sync(comp, Sync{Full: func() error { return boom }})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, FullResync, kind)

	v, ok := c.LastObservedVersion("items")
	assert.True(t, ok)
	assert.Equal(t, version.Version(1), v)

	c.Forget()
	_, ok = c.LastObservedVersion("items")
	assert.False(t, ok)
}

func TestCompleteForcesSecondObserverToResync(t *testing.T) {
	comp := newItems()
	first, second := newMirror("first", comp), newMirror("second", comp)
	ctx := context.Background()
	require.NoError(t, first.Observe(ctx, nil, nil))
	require.NoError(t, second.Observe(ctx, nil, nil))

	comp.update(t, state.Partial, "a")
	require.NoError(t, first.Observe(ctx, nil, nil))

	comp.update(t, state.Complete, "b")
	require.NoError(t, first.Observe(ctx, nil, nil))
	require.NoError(t, second.Observe(ctx, nil, nil))

	assert.Equal(t, 2, second.full)
	assert.Equal(t, 0, second.incr)
	assert.Equal(t, map[changeset.ID]bool{"a": true, "b": true}, second.seen)
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry(nil)
	comp := newItems()
	m := newMirror("m", comp)

	require.NoError(t, r.Register(m))
	assert.ErrorIs(t, r.Register(newMirror("m", comp)), ErrDuplicateObserver)
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Unregister(m))
	assert.False(t, r.Unregister(m))
	assert.Empty(t, r.Observers())
}

func TestRegistry_FloorIsMinimumCursor(t *testing.T) {
	r := NewRegistry(nil)
	comp := newItems()
	a, b, fresh := newMirror("a", comp), newMirror("b", comp), newMirror("fresh", comp)
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))
	require.NoError(t, r.Register(fresh))

	_, ok := r.Floor("items")
	assert.False(t, ok, "no cursor yet")

	a.Advance("items", 5)
	b.Advance("items", 3)
	floor, ok := r.Floor("items")
	require.True(t, ok)
	assert.Equal(t, version.Version(3), floor)

	// A cursor on a component the observer does not watch is ignored.
	a.Advance("other", 1)
	_, ok = r.Floor("other")
	assert.False(t, ok)
}

func TestRegistry_FloorProtectsHistory(t *testing.T) {
	r := NewRegistry(nil)
	st := state.New(config.Default())
	comp := newItems()
	require.NoError(t, st.Add(comp))
	st.SetFloorFunc(r.Floor)

	lagging, current := newMirror("lagging", comp), newMirror("current", comp)
	require.NoError(t, r.Register(lagging))
	require.NoError(t, r.Register(current))
	ctx := context.Background()
	require.NoError(t, lagging.Observe(ctx, st, nil))

	comp.update(t, state.Partial, "a")
	comp.update(t, state.Partial, "b")
	require.NoError(t, current.Observe(ctx, st, nil))

	comp.PurgeOldChangesets(comp.CurrentVersion())
	assert.Equal(t, version.Initial, comp.EarliestRetainedVersion())

	require.NoError(t, lagging.Observe(ctx, st, nil))
	assert.Equal(t, 1, lagging.incr, "lagging observer still syncs incrementally")

	comp.PurgeOldChangesets(comp.CurrentVersion())
	assert.Equal(t, comp.CurrentVersion(), comp.EarliestRetainedVersion())
}
