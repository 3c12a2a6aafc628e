// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/overdrive/pkg/logging"
	"github.com/AleutianAI/overdrive/services/cso/config"
	"github.com/AleutianAI/overdrive/services/cso/persistence"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/graph/commands"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/states"
)

func newSession(t *testing.T, store *persistence.Store) (*Session, *model.Asset) {
	t.Helper()
	lib := model.NewLibrary()
	asset := lib.Create("main")
	s, err := New(Config{
		Preferences: config.Default(),
		Library:     lib,
		Store:       store,
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, asset
}

func openStore(t *testing.T) *persistence.Store {
	t.Helper()
	cfg := persistence.InMemoryConfig()
	cfg.Logger = logging.Discard()
	store, err := persistence.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNew_InvalidPreferences(t *testing.T) {
	prefs := config.Default()
	prefs.HistorySize = 0
	_, err := New(Config{Preferences: prefs, Logger: logging.Discard()})
	assert.ErrorIs(t, err, config.ErrInvalidPreferences)
}

func TestSubmit_UpdatesViews(t *testing.T) {
	s, asset := newSession(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Submit(ctx, commands.LoadGraph{Asset: asset.ID}))
	require.NoError(t, s.Submit(ctx, commands.CreateNode{ID: "n1", Title: "Add", Ports: []commands.PortSpec{
		{Name: "a", Direction: "input", DataType: "float"},
	}}))

	el, ok := s.Canvas().Element("n1")
	require.True(t, ok)
	assert.Equal(t, "Add", el.Label)
	assert.Equal(t, model.KindNode, el.Kind)

	// A lone node is reported by the processor follow-up.
	assert.Equal(t, 1, s.Toolbar().Counts().Warnings)

	err := s.Read(ctx, func(_ *state.State, c states.Components) error {
		assert.True(t, c.View.Graph().Has("n1"))
		return nil
	})
	require.NoError(t, err)
}

func TestSubmit_HandlerError(t *testing.T) {
	s, _ := newSession(t, nil)
	err := s.Submit(context.Background(), commands.CreateNode{Title: "x"})
	assert.ErrorIs(t, err, commands.ErrNoGraph)
}

func TestSubmit_NilContext(t *testing.T) {
	s, _ := newSession(t, nil)
	//nolint:staticcheck // nil context is the case under test
	err := s.Submit(nil, commands.ClearSelection{})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestSubmit_CancelledContext(t *testing.T) {
	s, _ := newSession(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Submit(ctx, commands.ClearSelection{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubmit_Concurrent(t *testing.T) {
	s, asset := newSession(t, nil)
	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, commands.LoadGraph{Asset: asset.ID}))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Submit(ctx, commands.CreateNode{Title: "n"})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	err := s.Read(ctx, func(_ *state.State, c states.Components) error {
		assert.Len(t, c.View.Graph().Nodes(), workers)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, s.Canvas().Elements(), workers)
}

func TestHistoryAndVersions(t *testing.T) {
	s, asset := newSession(t, nil)
	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, commands.LoadGraph{Asset: asset.ID}))

	recs, err := s.History(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "LoadGraph", recs[0].Command)

	vs, err := s.Versions(ctx)
	require.NoError(t, err)
	assert.Contains(t, vs, states.GraphViewName)
	assert.Contains(t, vs, states.SelectionName)
}

func TestSaveRestore(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	s1, asset := newSession(t, store)
	require.NoError(t, s1.Submit(ctx, commands.LoadGraph{Asset: asset.ID}))
	require.NoError(t, s1.Submit(ctx, commands.CreateNode{ID: "n1", Title: "Add"}))
	require.NoError(t, s1.Submit(ctx, commands.SelectElements{IDs: []model.ID{"n1"}}))
	require.NoError(t, s1.Save(ctx))
	require.NoError(t, s1.Close())

	s2, _ := newSession(t, store)
	_, err := s2.Restore(ctx)
	require.NoError(t, err)

	el, ok := s2.Canvas().Element("n1")
	require.True(t, ok)
	assert.True(t, el.Selected)

	// The restored asset is registered in the new library.
	assert.True(t, s2.Library().Has(asset.ID))
	assert.Equal(t, 1, s2.Processor().Runs())
}

func TestSaveRestore_NoStore(t *testing.T) {
	s, _ := newSession(t, nil)
	assert.ErrorIs(t, s.Save(context.Background()), ErrNoStore)
	_, err := s.Restore(context.Background())
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestClose(t *testing.T) {
	s, _ := newSession(t, nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err := s.Submit(context.Background(), commands.ClearSelection{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRead_PropagatesError(t *testing.T) {
	s, _ := newSession(t, nil)
	boom := errors.New("boom")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Read(ctx, func(*state.State, states.Components) error { return boom })
	assert.ErrorIs(t, err, boom)
}
