// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/overdrive/services/cso/config"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/cso/version"
)

// catalog holds named entries and a reference to the selected one.
type catalog struct {
	state.Base
	Entries  map[string]string `json:"entries"`
	Selected string            `json:"selected"`
}

func newCatalog(name string) *catalog {
	c := &catalog{Entries: map[string]string{}}
	c.Base = state.NewBase(name, nil)
	return c
}

func (c *catalog) MarshalState() ([]byte, error) {
	return json.Marshal(c)
}

func (c *catalog) UnmarshalState(data []byte) error {
	var next catalog
	if err := json.Unmarshal(data, &next); err != nil {
		return err
	}
	c.Entries, c.Selected = next.Entries, next.Selected
	return nil
}

func (c *catalog) ValidateAfterLoad() []string {
	if c.Selected != "" && c.Entries[c.Selected] == "" {
		c.Selected = ""
		return []string{"selected entry missing"}
	}
	return nil
}

// blob persists a non-JSON payload.
type blob struct {
	state.Base
	data []byte
}

func (b *blob) MarshalState() ([]byte, error)     { return b.data, nil }
func (b *blob) UnmarshalState(data []byte) error { b.data = data; return nil }

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	src := newCatalog("catalog")
	src.Entries["a"] = "Alpha"
	src.Selected = "a"

	data, err := Serialize(src)
	require.NoError(t, err)

	dst := newCatalog("catalog")
	repairs, err := Deserialize(data, dst)
	require.NoError(t, err)
	assert.Empty(t, repairs)
	assert.Equal(t, "Alpha", dst.Entries["a"])
	assert.Equal(t, "a", dst.Selected)

	assert.Equal(t, version.Version(1), dst.CurrentVersion())
	assert.Equal(t, state.Complete, dst.LastUpdateType())
	assert.Equal(t, state.Complete, dst.GetUpdateType(0))
}

func TestDeserialize_RepairsDanglingReference(t *testing.T) {
	src := newCatalog("catalog")
	src.Selected = "gone"
	data, err := Serialize(src)
	require.NoError(t, err)

	dst := newCatalog("catalog")
	repairs, err := Deserialize(data, dst)
	require.NoError(t, err)
	assert.Equal(t, []string{"selected entry missing"}, repairs)
	assert.Empty(t, dst.Selected)
}

func TestDeserialize_Errors(t *testing.T) {
	good, err := Serialize(newCatalog("catalog"))
	require.NoError(t, err)

	t.Run("mismatch", func(t *testing.T) {
		_, err := Deserialize(good, newCatalog("other"))
		assert.ErrorIs(t, err, ErrComponentMismatch)
	})

	t.Run("schema", func(t *testing.T) {
		data := []byte(`{"schema":99,"component":"catalog","payload":{}}`)
		_, err := Deserialize(data, newCatalog("catalog"))
		assert.ErrorIs(t, err, ErrSchemaVersion)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := Deserialize([]byte("not json"), newCatalog("catalog"))
		assert.Error(t, err)
	})

	t.Run("bad payload keeps version", func(t *testing.T) {
		dst := newCatalog("catalog")
		data := []byte(`{"schema":1,"component":"catalog","payload":{"entries":7}}`)
		_, err := Deserialize(data, dst)
		assert.Error(t, err)
		assert.Equal(t, version.Initial, dst.CurrentVersion())
		assert.False(t, dst.Updating())
	})
}

func TestSerialize_RawPayload(t *testing.T) {
	src := &blob{data: []byte{0xff, 0x00, 0x01}}
	src.Base = state.NewBase("blob", nil)
	data, err := Serialize(src)
	require.NoError(t, err)

	dst := &blob{}
	dst.Base = state.NewBase("blob", nil)
	_, err = Deserialize(data, dst)
	require.NoError(t, err)
	assert.Equal(t, src.data, dst.data)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveLoad(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	src := newCatalog("catalog")
	src.Entries["a"] = "Alpha"
	require.NoError(t, s.Save(ctx, src))

	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog"}, names)

	dst := newCatalog("catalog")
	repairs, err := s.Load(ctx, dst)
	require.NoError(t, err)
	assert.Empty(t, repairs)
	assert.Equal(t, "Alpha", dst.Entries["a"])

	require.NoError(t, s.Delete(ctx, "catalog"))
	_, err = s.Load(ctx, newCatalog("catalog"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Corrupted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, newCatalog("catalog")))

	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key("catalog"), []byte{0, 0, 0, 0, '{', '}'})
	}))
	_, err := s.Load(ctx, newCatalog("catalog"))
	assert.ErrorIs(t, err, ErrCorrupted)

	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key("catalog"), []byte{1})
	}))
	_, err = s.Load(ctx, newCatalog("catalog"))
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestStore_Closed(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	ctx := context.Background()
	assert.ErrorIs(t, s.Save(ctx, newCatalog("c")), ErrStoreClosed)
	_, err = s.Load(ctx, newCatalog("c"))
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.Names(ctx)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Delete(ctx, "c"), ErrStoreClosed)
}

func TestStore_SaveAllLoadAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st := state.New(config.Default())
	a, b := newCatalog("a"), newCatalog("b")
	a.Entries["x"] = "X"
	a.Selected = "x"
	b.Selected = "dangling"
	require.NoError(t, st.Add(a, b))
	require.NoError(t, s.SaveAll(ctx, st))

	restored := state.New(config.Default())
	ra, rb, rc := newCatalog("a"), newCatalog("b"), newCatalog("never-saved")
	require.NoError(t, restored.Add(ra, rb, rc))

	repairs, err := s.LoadAll(ctx, restored)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"b": {"selected entry missing"}}, repairs)
	assert.Equal(t, "x", ra.Selected)
	assert.Equal(t, version.Version(1), ra.CurrentVersion())
	assert.Equal(t, version.Initial, rc.CurrentVersion())
}

func TestStore_PersistentPath(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0
	s, err := Open(cfg)
	require.NoError(t, err)
	src := newCatalog("catalog")
	src.Entries["k"] = "v"
	require.NoError(t, s.Save(ctx, src))
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()
	dst := newCatalog("catalog")
	_, err = s.Load(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, "v", dst.Entries["k"])
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestFrame(t *testing.T) {
	data := []byte("payload")
	got, err := unframe(frame(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	bad := frame(data)
	bad[5] ^= 0xff
	_, err = unframe(bad)
	assert.True(t, errors.Is(err, ErrCorrupted))
}
