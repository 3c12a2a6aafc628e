// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/overdrive/pkg/logging"
	"github.com/AleutianAI/overdrive/services/cso/changeset"
	"github.com/AleutianAI/overdrive/services/cso/command"
	"github.com/AleutianAI/overdrive/services/cso/config"
	"github.com/AleutianAI/overdrive/services/cso/dispatch"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/cso/version"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/states"
)

// -----------------------------------------------------------------------------
// Harness
// -----------------------------------------------------------------------------

type harness struct {
	t     *testing.T
	st    *state.State
	d     *dispatch.Dispatcher
	c     states.Components
	lib   *model.Library
	asset *model.Asset
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	prefs := config.Default()
	lib := model.NewLibrary()
	asset := lib.Create("main")
	c := states.NewComponents(prefs, lib)
	st := state.New(prefs, state.WithLogger(logging.Discard()))
	require.NoError(t, st.Add(c.All()...))
	d := dispatch.New(st, dispatch.WithLogger(logging.Discard()))
	RegisterDefaults(d, Env{Library: lib, Logger: logging.Discard()})

	h := &harness{t: t, st: st, d: d, c: c, lib: lib, asset: asset}
	h.do(LoadGraph{Asset: asset.ID})
	return h
}

func (h *harness) do(cmd command.Command) {
	h.t.Helper()
	require.NoError(h.t, h.d.Dispatch(context.Background(), cmd))
}

func (h *harness) graph() *model.Graph {
	return h.c.View.Graph()
}

// changes returns the view's item changes since v.
func (h *harness) changes(v version.Version) *changeset.ItemChangeset {
	h.t.Helper()
	cs, ok := h.c.View.Changes(v)
	require.True(h.t, ok)
	return cs
}

func cid(id model.ID) changeset.ID { return changeset.ID(id) }

// addChain creates constant k (1.0) feeding add.a through edge e1.
func (h *harness) addChain() {
	h.t.Helper()
	h.do(CreateNode{ID: "k", Constant: &ConstantSpec{DataType: "float", Value: 1.0, PortID: "k.out"}})
	h.do(CreateNode{ID: "add", Title: "Add", Position: model.Vec2{X: 200}, Ports: []PortSpec{
		{ID: "add.a", Name: "a", Direction: "input", DataType: "float"},
		{ID: "add.b", Name: "b", Direction: "input", DataType: "float"},
		{ID: "add.out", Name: "out", Direction: "output", DataType: "float"},
	}})
	h.do(CreateEdge{ID: "e1", From: "k.out", To: "add.a"})
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestRegisterDefaults_HandlesEveryDecodableCommand(t *testing.T) {
	h := newHarness(t)
	for _, name := range Names() {
		cmd, err := Decode(name, nil)
		require.NoError(t, err, name)
		assert.True(t, h.d.Handles(cmd), name)
		assert.Equal(t, name, cmd.CommandName())
	}
	_, err := Decode("Nope", nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
	_, err = Decode("CreateNode", []byte(`{"title": 5}`))
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestDecode_JSONArguments(t *testing.T) {
	cmd, err := Decode("MoveElements", []byte(`{"ids":["a"],"delta":{"x":1,"y":2},"undo_label":"Nudge"}`))
	require.NoError(t, err)
	move := cmd.(MoveElements)
	assert.Equal(t, []model.ID{"a"}, move.IDs)
	assert.Equal(t, model.Vec2{X: 1, Y: 2}, move.Delta)
	assert.Equal(t, "Nudge", move.UndoLabel())
	assert.Equal(t, "Move", MoveElements{}.UndoLabel())
}

func TestLoadGraph(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, h.asset.ID, h.c.View.Asset())
	assert.Equal(t, state.Complete, h.c.View.LastUpdateType())
	assert.Equal(t, "main", h.c.Window.Current().Title)
	assert.True(t, h.c.Processing.Pending())

	sub := h.lib.Create("sub")
	h.do(LoadGraph{Asset: sub.ID, Strategy: LoadPushOnStack})
	assert.Equal(t, sub.ID, h.c.Window.Current().Asset)
	require.Len(t, h.c.Window.Stack(), 1)

	zero := 0
	other := h.lib.Create("other")
	h.do(LoadGraph{Asset: other.ID, Strategy: LoadKeepHistory, TruncateHistory: &zero})
	assert.Empty(t, h.c.Window.Stack())

	err := h.d.Dispatch(context.Background(), LoadGraph{Asset: "missing"})
	assert.ErrorIs(t, err, model.ErrUnknownAsset)
	err = h.d.Dispatch(context.Background(), LoadGraph{Asset: sub.ID, Strategy: "sideways"})
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestLoadGraph_RepairsIntegrity(t *testing.T) {
	h := newHarness(t)
	broken := h.lib.Create("broken")
	require.NoError(t, broken.Graph.UnmarshalJSON([]byte(`{"elements":[
		{"kind":"node","data":{"id":"n","title":"n","position":{"x":0,"y":0},"ports":["gone"],"capabilities":31}},
		{"kind":"edge","data":{"id":"dangling","from":"x","to":"y"}}]}`)))

	h.do(LoadGraph{Asset: broken.ID})
	assert.False(t, h.graph().Has("dangling"))
	n, err := h.graph().Node("n")
	require.NoError(t, err)
	assert.Empty(t, n.Ports)
}

func TestEditsRequireLoadedGraph(t *testing.T) {
	prefs := config.Default()
	lib := model.NewLibrary()
	c := states.NewComponents(prefs, lib)
	st := state.New(prefs, state.WithLogger(logging.Discard()))
	require.NoError(t, st.Add(c.All()...))
	d := dispatch.New(st, dispatch.WithLogger(logging.Discard()))
	RegisterDefaults(d, Env{Library: lib})

	err := d.Dispatch(context.Background(), CreateNode{Title: "n"})
	assert.ErrorIs(t, err, ErrNoGraph)

	scale := 2.0
	require.NoError(t, d.Dispatch(context.Background(), SetViewport{Scale: &scale}))
	assert.Equal(t, 2.0, c.View.Scale())
}

func TestCreateNodeAndEdge(t *testing.T) {
	h := newHarness(t)
	loaded := h.c.View.CurrentVersion()
	h.addChain()

	g := h.graph()
	add, err := g.Node("add")
	require.NoError(t, err)
	assert.Equal(t, []model.ID{"add.a", "add.b", "add.out"}, add.Ports)
	k, err := g.Node("k")
	require.NoError(t, err)
	assert.Equal(t, model.NodeConstant, k.NodeKind)

	cs := h.changes(loaded)
	for _, id := range []model.ID{"k", "k.out", "add", "add.a", "add.b", "add.out", "e1"} {
		assert.True(t, cs.New.Has(cid(id)), id)
	}
	assert.True(t, cs.AuxSet(states.AutoAlignTag).Has("e1"), "new edges auto-align by default")
}

func TestCreateNode_RejectsTakenID(t *testing.T) {
	h := newHarness(t)
	h.addChain()
	before := h.c.View.CurrentVersion()
	err := h.d.Dispatch(context.Background(), CreateNode{ID: "add"})
	assert.ErrorIs(t, err, ErrInvalidCommand)
	err = h.d.Dispatch(context.Background(), CreateNode{Ports: []PortSpec{{Name: "p", Direction: "sideways"}}})
	assert.ErrorIs(t, err, ErrInvalidCommand)
	assert.Equal(t, before, h.c.View.CurrentVersion())
}

func TestCommands_RejectSelfConflicts(t *testing.T) {
	tests := []struct {
		name string
		cmd  command.Command
	}{
		{
			name: "repeated port id",
			cmd: CreateNode{ID: "n1", Ports: []PortSpec{
				{ID: "p", Name: "a", Direction: "input"},
				{ID: "p", Name: "b", Direction: "input"},
			}},
		},
		{
			name: "port id equals node id",
			cmd:  CreateNode{ID: "x", Ports: []PortSpec{{ID: "x", Name: "a", Direction: "input"}}},
		},
		{
			name: "constant port id equals node id",
			cmd:  CreateNode{ID: "c", Constant: &ConstantSpec{DataType: "float", Value: 2.0, PortID: "c"}},
		},
		{
			name: "constant port id equals extra port id",
			cmd: CreateNode{ID: "c", Constant: &ConstantSpec{DataType: "float", PortID: "c.out"},
				Ports: []PortSpec{{ID: "c.out", Name: "extra", Direction: "output"}}},
		},
		{
			name: "repeated variable node id",
			cmd: CreateVariableNodes{DeclarationID: "d", Name: "d", DataType: "float",
				Nodes: []VariableNodeSpec{{ID: "w"}, {ID: "w"}}},
		},
		{
			name: "variable node id equals declaration id",
			cmd: CreateVariableNodes{DeclarationID: "d", Name: "d", DataType: "float",
				Nodes: []VariableNodeSpec{{ID: "d"}}},
		},
		{
			name: "repeated constant",
			cmd:  ConvertConstantsAndVariables{Constants: []model.ID{"k", "k"}},
		},
		{
			name: "repeated variable",
			cmd:  ConvertConstantsAndVariables{Variables: []model.ID{"v1", "v1"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addChain()
			h.do(CreateVariableNodes{DeclarationID: "speed", Name: "speed", DataType: "float",
				Nodes: []VariableNodeSpec{{ID: "v1"}}})
			v := h.c.View.CurrentVersion()
			n := h.graph().Len()

			err := h.d.Dispatch(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, ErrInvalidCommand)
			assert.Equal(t, n, h.graph().Len())
			assert.Equal(t, v, h.c.View.CurrentVersion())
		})
	}
}

func TestCreateEdge_ReplacesSingleCapacity(t *testing.T) {
	h := newHarness(t)
	h.addChain()
	h.do(CreateNode{ID: "k2", Constant: &ConstantSpec{DataType: "float", Value: 2.0, PortID: "k2.out"}})
	v := h.c.View.CurrentVersion()

	noAlign := false
	h.do(CreateEdge{ID: "e2", From: "k2.out", To: "add.a", Align: &noAlign})
	g := h.graph()
	assert.False(t, g.Has("e1"))
	require.Len(t, g.EdgesAt("add.a"), 1)
	assert.Equal(t, model.ID("e2"), g.EdgesAt("add.a")[0].ID)

	cs := h.changes(v)
	assert.True(t, cs.Deleted.Has("e1"))
	assert.True(t, cs.New.Has("e2"))
	assert.False(t, cs.AuxSet(states.AutoAlignTag).Has("e2"))
}

func TestCreateEdge_RejectedKeepsExisting(t *testing.T) {
	h := newHarness(t)
	h.addChain()
	h.do(CreateNode{ID: "s", Constant: &ConstantSpec{DataType: "string", Value: "x", PortID: "s.out"}})
	v := h.c.View.CurrentVersion()

	err := h.d.Dispatch(context.Background(), CreateEdge{From: "s.out", To: "add.a"})
	assert.ErrorIs(t, err, model.ErrIncompatiblePorts)
	assert.True(t, h.graph().Has("e1"))
	assert.Equal(t, v, h.c.View.CurrentVersion())
}

func TestDeleteElements_CascadesAndDeselects(t *testing.T) {
	h := newHarness(t)
	h.addChain()
	h.do(SelectElements{IDs: []model.ID{"add", "k"}})
	v := h.c.View.CurrentVersion()

	h.do(DeleteElements{IDs: []model.ID{"add"}})
	g := h.graph()
	assert.False(t, g.Has("add"))
	assert.False(t, g.Has("add.a"))
	assert.False(t, g.Has("e1"))
	assert.Equal(t, []model.ID{"k"}, h.c.Selection.Selected())

	cs := h.changes(v)
	for _, id := range []model.ID{"add", "add.a", "add.b", "add.out", "e1"} {
		assert.True(t, cs.Deleted.Has(cid(id)), id)
	}
}

func TestMoveElements(t *testing.T) {
	h := newHarness(t)
	h.addChain()
	h.do(MoveElements{IDs: []model.ID{"k", "add"}, Delta: model.Vec2{X: 10, Y: 5}})
	add, _ := h.graph().Node("add")
	assert.Equal(t, model.Vec2{X: 210, Y: 5}, add.Pos)

	v := h.c.View.CurrentVersion()
	err := h.d.Dispatch(context.Background(), MoveElements{IDs: []model.ID{"k", "e1"}, Delta: model.Vec2{X: 1}})
	assert.ErrorIs(t, err, model.ErrNotCapable)
	k, _ := h.graph().Node("k")
	assert.Equal(t, model.Vec2{X: 10, Y: 5}, k.Pos, "nothing moves when one element cannot")
	assert.Equal(t, v, h.c.View.CurrentVersion())
}

func TestSetModelField(t *testing.T) {
	h := newHarness(t)
	h.addChain()
	h.do(SetModelField{Element: "add", Field: "title", Value: "Sum"})
	add, _ := h.graph().Node("add")
	assert.Equal(t, "Sum", add.Title)

	h.do(LockConstantNode{IDs: []model.ID{"k"}, Locked: true})
	v := h.c.View.CurrentVersion()
	err := h.d.Dispatch(context.Background(), SetModelField{Element: "k", Field: "value", Value: 3.0})
	assert.ErrorIs(t, err, model.ErrLocked)
	assert.Equal(t, v, h.c.View.CurrentVersion())

	err = h.d.Dispatch(context.Background(), SetModelField{Element: "add", Field: "bogus", Value: 1})
	assert.ErrorIs(t, err, model.ErrUnknownField)
}

func TestSetModelField_RenamesVariableNodes(t *testing.T) {
	h := newHarness(t)
	h.do(CreateVariableNodes{DeclarationID: "speed", Name: "speed", DataType: "float",
		Nodes: []VariableNodeSpec{{ID: "v1"}, {ID: "v2"}}})
	v := h.c.View.CurrentVersion()
	h.do(SetModelField{Element: "speed", Field: "name", Value: "velocity"})

	n, _ := h.graph().Node("v2")
	assert.Equal(t, "velocity", n.Title)
	cs := h.changes(v)
	assert.ElementsMatch(t, []changeset.ID{"speed", "v1", "v2"}, cs.Changed.Sorted())
}

func TestStickyNotes(t *testing.T) {
	h := newHarness(t)
	h.do(CreateStickyNote{ID: "note", Bounds: model.Rect{Width: 200, Height: 100}, Title: "todo"})
	s, err := h.graph().StickyNote("note")
	require.NoError(t, err)
	assert.Equal(t, "Classic", s.Theme)
	assert.Equal(t, "Small", s.TextSize)

	contents := "ship it"
	h.do(UpdateStickyNote{ID: "note", Contents: &contents})
	h.do(UpdateStickyNoteTheme{IDs: []model.ID{"note"}, Theme: "Dark"})
	h.do(UpdateStickyNoteTextSize{IDs: []model.ID{"note"}, TextSize: "Huge"})
	assert.Equal(t, "todo", s.Title)
	assert.Equal(t, "ship it", s.Contents)
	assert.Equal(t, "Dark", s.Theme)
	assert.Equal(t, "Huge", s.TextSize)

	v := h.c.View.CurrentVersion()
	h.do(UpdateStickyNoteTheme{IDs: []model.ID{"note"}, Theme: "Dark"})
	assert.Equal(t, v, h.c.View.CurrentVersion(), "same theme is not a change")

	err = h.d.Dispatch(context.Background(), UpdateStickyNoteTheme{IDs: []model.ID{"note"}, Theme: "Plaid"})
	assert.ErrorIs(t, err, ErrInvalidCommand)
	err = h.d.Dispatch(context.Background(), UpdateStickyNoteTextSize{IDs: []model.ID{"missing"}, TextSize: "Large"})
	assert.ErrorIs(t, err, model.ErrUnknownElement)
}

func TestCreatePlacemat(t *testing.T) {
	h := newHarness(t)
	h.do(CreatePlacemat{ID: "pm", Title: "Group", Bounds: model.Rect{Width: 400, Height: 300}})
	pm, err := h.graph().Placemat("pm")
	require.NoError(t, err)
	assert.Equal(t, "Group", pm.Title)
}

func TestCreateVariableNodes_ConnectsToPort(t *testing.T) {
	h := newHarness(t)
	h.addChain()
	h.do(CreateVariableNodes{DeclarationID: "speed", Name: "speed", DataType: "float",
		Nodes: []VariableNodeSpec{{ID: "v", ConnectTo: "add.b"}}})

	g := h.graph()
	vn, err := g.Node("v")
	require.NoError(t, err)
	assert.Equal(t, model.ID("speed"), vn.Declaration)
	require.Len(t, g.EdgesAt("add.b"), 1)

	h.do(CreateVariableNodes{Declaration: "speed", Nodes: []VariableNodeSpec{{ID: "v2"}}})
	assert.Len(t, g.VariableNodes("speed"), 2)

	err = h.d.Dispatch(context.Background(), CreateVariableNodes{Nodes: []VariableNodeSpec{{}}})
	assert.ErrorIs(t, err, ErrInvalidCommand, "name required without declaration")
}

func TestConvertConstantsAndVariables(t *testing.T) {
	h := newHarness(t)
	h.addChain()

	h.do(ConvertConstantsAndVariables{Constants: []model.ID{"k"}})
	g := h.graph()
	assert.False(t, g.Has("k"))
	edges := g.EdgesAt("add.a")
	require.Len(t, edges, 1)
	from, _ := g.Port(edges[0].From)
	vn, _ := g.Node(from.Node)
	require.Equal(t, model.NodeVariable, vn.NodeKind)
	decl, _ := g.Declaration(vn.Declaration)
	assert.Equal(t, 1.0, decl.Default)

	h.do(ConvertConstantsAndVariables{Variables: []model.ID{vn.ID}})
	edges = g.EdgesAt("add.a")
	require.Len(t, edges, 1)
	from, _ = g.Port(edges[0].From)
	c, _ := g.Node(from.Node)
	assert.Equal(t, model.NodeConstant, c.NodeKind)
	assert.Equal(t, 1.0, c.Constant.Value)

	err := h.d.Dispatch(context.Background(), ConvertConstantsAndVariables{Constants: []model.ID{"add"}})
	assert.ErrorIs(t, err, model.ErrWrongKind)
}

func TestItemizeNode(t *testing.T) {
	h := newHarness(t)
	h.addChain()
	h.do(CreateEdge{From: "k.out", To: "add.b"})
	require.Len(t, h.graph().EdgesAt("k.out"), 2)

	h.do(ItemizeNode{IDs: []model.ID{"k"}})
	g := h.graph()
	assert.Len(t, g.EdgesAt("k.out"), 1)
	assert.Equal(t, 2, countConstants(g))
	require.Len(t, g.EdgesAt("add.b"), 1)

	err := h.d.Dispatch(context.Background(), ItemizeNode{IDs: []model.ID{"add"}})
	assert.ErrorIs(t, err, model.ErrWrongKind)
}

func countConstants(g *model.Graph) int {
	n := 0
	for _, node := range g.Nodes() {
		if node.NodeKind == model.NodeConstant {
			n++
		}
	}
	return n
}

func TestLockConstantNode(t *testing.T) {
	h := newHarness(t)
	h.addChain()
	h.do(LockConstantNode{IDs: []model.ID{"k"}, Locked: true})
	k, _ := h.graph().Node("k")
	assert.True(t, k.IsLocked())
	assert.Equal(t, "Lock Constant", LockConstantNode{Locked: true}.UndoLabel())

	err := h.d.Dispatch(context.Background(), LockConstantNode{IDs: []model.ID{"add"}, Locked: true})
	assert.ErrorIs(t, err, model.ErrWrongKind)
}

func TestChangeVariableDeclaration(t *testing.T) {
	h := newHarness(t)
	h.addChain()
	h.do(CreateVariableNodes{DeclarationID: "f", Name: "f", DataType: "float",
		Nodes: []VariableNodeSpec{{ID: "v", ConnectTo: "add.b"}}})
	h.do(CreateVariableNodes{DeclarationID: "s", Name: "s", DataType: "string",
		Modifiers: model.ReadWrite, Nodes: []VariableNodeSpec{{ID: "other"}}})
	v := h.c.View.CurrentVersion()

	h.do(ChangeVariableDeclaration{Nodes: []model.ID{"v"}, Declaration: "s"})
	g := h.graph()
	n, _ := g.Node("v")
	assert.Equal(t, "s", n.Title)
	assert.Len(t, n.Ports, 2)
	assert.Empty(t, g.EdgesAt("add.b"), "string no longer fits the float input")

	cs := h.changes(v)
	assert.True(t, cs.Changed.Has("v"))
	assert.Equal(t, 1, cs.Deleted.Len())
	assert.Equal(t, 1, cs.New.Len(), "the new input port")
}

func TestSelectElements(t *testing.T) {
	h := newHarness(t)
	h.addChain()
	h.do(SelectElements{IDs: []model.ID{"k"}})
	h.do(SelectElements{IDs: []model.ID{"add"}, Mode: SelectAdd})
	assert.Equal(t, []model.ID{"add", "k"}, h.c.Selection.Selected())

	h.do(SelectElements{IDs: []model.ID{"add", "e1"}, Mode: SelectToggle})
	assert.Equal(t, []model.ID{"e1", "k"}, h.c.Selection.Selected())

	h.do(SelectElements{IDs: []model.ID{"k"}, Mode: SelectRemove})
	assert.Equal(t, []model.ID{"e1"}, h.c.Selection.Selected())

	h.do(ClearSelection{})
	assert.Zero(t, h.c.Selection.Len())

	err := h.d.Dispatch(context.Background(), SelectElements{IDs: []model.ID{"ghost"}})
	assert.ErrorIs(t, err, model.ErrUnknownElement)
}

func TestSetViewportAndProcessingErrors(t *testing.T) {
	h := newHarness(t)
	scale := 100.0
	h.do(SetViewport{Scale: &scale, Position: &model.Vec2{X: 3}})
	assert.Equal(t, config.Default().MaxScale, h.c.View.Scale())
	assert.Equal(t, model.Vec2{X: 3}, h.c.View.Position())

	h.do(SetProcessingErrors{Errors: []states.ProcessingError{{Element: "x", Message: "bad", Severity: model.SeverityError}}})
	errs, _ := h.c.Processing.Counts()
	assert.Equal(t, 1, errs)
	assert.False(t, h.c.Processing.Pending())

	err := h.d.Dispatch(context.Background(), SetProcessingErrors{Errors: []states.ProcessingError{{Element: "x"}}})
	assert.ErrorIs(t, err, ErrInvalidCommand, "message required")
}

func TestAssetChangedOnDisk(t *testing.T) {
	h := newHarness(t)
	h.addChain()
	h.do(SelectElements{IDs: []model.ID{"add"}})
	v := h.c.View.CurrentVersion()

	// Another asset's change is ignored.
	h.do(AssetChangedOnDisk{Asset: "elsewhere"})
	assert.Equal(t, v, h.c.View.CurrentVersion())

	// The host replaced the asset contents behind the editor's back.
	h.asset.Graph.Delete("add")
	h.do(AssetChangedOnDisk{Asset: h.asset.ID})
	assert.Equal(t, state.Complete, h.c.View.LastUpdateType())
	assert.Equal(t, state.Complete, h.c.View.GetUpdateType(v))
	assert.Zero(t, h.c.Selection.Len())
}

func TestHostOverridesDefaultHandler(t *testing.T) {
	h := newHarness(t)
	called := false
	dispatch.Register(h.d, func(_ context.Context, _ *state.State, _ ClearSelection) error {
		called = true
		return nil
	})
	h.do(ClearSelection{})
	assert.True(t, called)
}
