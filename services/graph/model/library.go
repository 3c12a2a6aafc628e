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
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownAsset is returned for asset IDs not present in a Library.
var ErrUnknownAsset = errors.New("unknown graph asset")

// Asset is a named graph owned by the host.
type Asset struct {
	ID    ID     `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Graph *Graph `json:"graph" yaml:"-"`
}

// Library is the host-owned set of graph assets that windows open.
//
// Thread Safety: safe for concurrent use.
type Library struct {
	mu     sync.RWMutex
	assets map[ID]*Asset
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{assets: make(map[ID]*Asset)}
}

// Create adds a new empty asset.
func (l *Library) Create(name string) *Asset {
	a := &Asset{ID: NewID(), Name: name, Graph: NewGraph()}
	l.Put(a)
	return a
}

// Put adds or replaces an asset.
func (l *Library) Put(a *Asset) {
	if a.Graph == nil {
		a.Graph = NewGraph()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.assets[a.ID] = a
}

// Get returns the asset with the given ID.
func (l *Library) Get(id ID) (*Asset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	return a, nil
}

// Has reports whether id is present.
func (l *Library) Has(id ID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.assets[id]
	return ok
}

// Remove deletes an asset. It reports whether the asset existed.
func (l *Library) Remove(id ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.assets[id]
	delete(l.assets, id)
	return ok
}

// Assets returns all assets sorted by name, then ID.
func (l *Library) Assets() []*Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Asset, 0, len(l.assets))
	for _, a := range l.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
