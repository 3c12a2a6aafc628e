// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package views

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/overdrive/pkg/logging"
	"github.com/AleutianAI/overdrive/services/cso/command"
	"github.com/AleutianAI/overdrive/services/cso/config"
	"github.com/AleutianAI/overdrive/services/cso/dispatch"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/graph/commands"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/states"
)

type fixture struct {
	t         *testing.T
	d         *dispatch.Dispatcher
	c         states.Components
	asset     *model.Asset
	mirror    *GraphView
	toolbar   *ErrorToolbar
	processor *GraphProcessor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	prefs := config.Default()
	lib := model.NewLibrary()
	asset := lib.Create("main")
	c := states.NewComponents(prefs, lib)
	st := state.New(prefs, state.WithLogger(logging.Discard()))
	require.NoError(t, st.Add(c.All()...))
	d := dispatch.New(st, dispatch.WithLogger(logging.Discard()))
	commands.RegisterDefaults(d, commands.Env{Library: lib, Logger: logging.Discard()})

	f := &fixture{
		t: t, d: d, c: c, asset: asset,
		mirror:    NewGraphView("canvas"),
		toolbar:   NewErrorToolbar("toolbar"),
		processor: NewGraphProcessor("processor"),
	}
	require.NoError(t, d.RegisterObserver(f.mirror))
	require.NoError(t, d.RegisterObserver(f.toolbar))
	require.NoError(t, d.RegisterObserver(f.processor))
	f.do(commands.LoadGraph{Asset: asset.ID})
	return f
}

func (f *fixture) do(cmd command.Command) {
	f.t.Helper()
	require.NoError(f.t, f.d.Dispatch(context.Background(), cmd))
}

func (f *fixture) addLonely() {
	f.do(commands.CreateNode{ID: "lonely", Title: "Lonely", Ports: []commands.PortSpec{
		{ID: "lonely.in", Name: "in", Direction: "input", DataType: "float"},
	}})
}

func TestLoadGraph_FullRebuildAndProcessing(t *testing.T) {
	f := newFixture(t)
	stats := f.mirror.Stats()
	assert.Equal(t, 1, stats.FullRebuilds)
	assert.Equal(t, 0, stats.IncrementalUpdates)
	assert.Equal(t, 1, f.processor.Runs())

	counts := f.toolbar.Counts()
	assert.False(t, counts.Pending, "posted results cleared the pending flag")
	assert.Equal(t, 2, f.toolbar.Refreshes(), "load, then the posted results")
}

func TestGraphView_IncrementalUpdates(t *testing.T) {
	f := newFixture(t)
	f.addLonely()

	stats := f.mirror.Stats()
	assert.Equal(t, 1, stats.FullRebuilds)
	assert.Equal(t, 1, stats.IncrementalUpdates)
	assert.Equal(t, 2, stats.Elements)

	ui, ok := f.mirror.Element("lonely")
	require.True(t, ok)
	assert.Equal(t, "Lonely", ui.Label)
	assert.Equal(t, 1, ui.Revision)
	assert.Equal(t, model.KindNode, ui.Kind)

	f.do(commands.SetModelField{Element: "lonely", Field: "title", Value: "Alone"})
	ui, _ = f.mirror.Element("lonely")
	assert.Equal(t, "Alone", ui.Label)
	assert.Equal(t, 2, ui.Revision)

	f.do(commands.DeleteElements{IDs: []model.ID{"lonely"}})
	_, ok = f.mirror.Element("lonely")
	assert.False(t, ok)
	assert.Empty(t, f.mirror.Elements())
	assert.Equal(t, 1, f.mirror.Stats().FullRebuilds)
}

func TestGraphView_SelectionFlags(t *testing.T) {
	f := newFixture(t)
	f.addLonely()
	f.do(commands.SelectElements{IDs: []model.ID{"lonely"}})
	ui, _ := f.mirror.Element("lonely")
	assert.True(t, ui.Selected)

	// A Complete update rebuilds elements and re-applies the selection.
	f.do(commands.AssetChangedOnDisk{Asset: f.asset.ID})
	assert.Equal(t, 2, f.mirror.Stats().FullRebuilds)
	ui, _ = f.mirror.Element("lonely")
	assert.True(t, ui.Selected)

	f.do(commands.ClearSelection{})
	ui, _ = f.mirror.Element("lonely")
	assert.False(t, ui.Selected)
}

func TestGraphView_Realign(t *testing.T) {
	f := newFixture(t)
	f.addLonely()
	f.do(commands.CreateNode{ID: "k", Constant: &commands.ConstantSpec{DataType: "float", Value: 1.0, PortID: "k.out"}})
	f.do(commands.CreateEdge{ID: "e", From: "k.out", To: "lonely.in"})

	assert.Equal(t, 1, f.mirror.Stats().PendingRealign)
	assert.Equal(t, []model.ID{"e"}, f.mirror.TakeRealign())
	assert.Empty(t, f.mirror.TakeRealign())
}

func TestGraphView_LateObserverRebuilds(t *testing.T) {
	f := newFixture(t)
	f.addLonely()

	late := NewGraphView("late")
	require.NoError(t, f.d.RegisterObserver(late))
	f.do(commands.SelectElements{IDs: []model.ID{"lonely"}})

	stats := late.Stats()
	assert.Equal(t, 1, stats.FullRebuilds)
	assert.Equal(t, 2, stats.Elements)
	ui, _ := late.Element("lonely")
	assert.True(t, ui.Selected)
}

func TestGraphProcessor_ValidatesOnElementChanges(t *testing.T) {
	f := newFixture(t)
	f.addLonely()
	assert.Equal(t, 2, f.processor.Runs())
	assert.Equal(t, ToolbarCounts{Warnings: 1}, f.toolbar.Counts())

	errs := f.c.Processing.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, model.ID("lonely"), errs[0].Element)
	assert.Equal(t, model.ProblemUnconnectedNode, errs[0].Code)
	assert.Equal(t, "Delete node", errs[0].QuickFix)

	scale := 2.0
	f.do(commands.SetViewport{Scale: &scale})
	assert.Equal(t, 2, f.processor.Runs(), "viewport changes are not validated")

	f.do(commands.CreateNode{ID: "k", Constant: &commands.ConstantSpec{DataType: "float", Value: 1.0, PortID: "k.out"}})
	f.do(commands.CreateEdge{From: "k.out", To: "lonely.in"})
	assert.Equal(t, 4, f.processor.Runs())
	assert.Equal(t, ToolbarCounts{}, f.toolbar.Counts())
}

func TestToProcessingErrors(t *testing.T) {
	out := ToProcessingErrors([]model.Problem{
		{Element: "v", Code: model.ProblemUnusedVariable, Severity: model.SeverityWarning, Message: "unused"},
		{Element: "x", Code: "other", Severity: model.SeverityError, Message: "bad"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "Delete variable", out[0].QuickFix)
	assert.Empty(t, out[1].QuickFix)
	assert.Equal(t, model.SeverityError, out[1].Severity)
}
