// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/AleutianAI/overdrive/pkg/logging"
	"github.com/AleutianAI/overdrive/services/cso/config"
	"github.com/AleutianAI/overdrive/services/cso/version"
)

// FloorFunc reports the oldest version any live observer still needs from
// the named component. ok is false when no observer constrains it.
type FloorFunc func(component string) (floor version.Version, ok bool)

// State aggregates the components commands mutate and observers read.
type State struct {
	prefs      config.Preferences
	root       *slog.Logger
	logger     *slog.Logger
	components []Component
	byName     map[string]Component
	open       []*Scope
	floor      FloorFunc
}

// Option configures a State.
type Option func(*State)

// WithLogger sets the root logger for the State and everything built on it.
func WithLogger(logger *slog.Logger) Option {
	return func(s *State) {
		if logger != nil {
			s.root = logger
		}
	}
}

// New creates an empty State holding prefs.
func New(prefs config.Preferences, opts ...Option) *State {
	s := &State{
		prefs:  prefs,
		root:   slog.Default(),
		byName: make(map[string]Component),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Component(s.root, "state")
	return s
}

// Preferences returns the preferences the State was built with.
func (s *State) Preferences() config.Preferences {
	return s.prefs
}

// Logger returns the root logger the State was built with.
func (s *State) Logger() *slog.Logger {
	return s.root
}

// Add registers components in order.
//
// Outputs:
//   - error: ErrDuplicateComponent if a name is taken. Components before
//     the duplicate are kept.
func (s *State) Add(components ...Component) error {
	for _, c := range components {
		if _, ok := s.byName[c.Name()]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateComponent, c.Name())
		}
		b := c.base()
		b.owner = s
		b.logger = s.logger.With(slog.String("state_component", c.Name()))
		s.components = append(s.components, c)
		s.byName[c.Name()] = c
	}
	return nil
}

// Component returns the named component.
func (s *State) Component(name string) (Component, bool) {
	c, ok := s.byName[name]
	return c, ok
}

// Components returns all components in registration order.
func (s *State) Components() []Component {
	return slices.Clone(s.components)
}

// Get returns the named component as T.
func Get[T Component](s *State, name string) (T, error) {
	var zero T
	c, ok := s.byName[name]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	typed, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrComponentType, name, c)
	}
	return typed, nil
}

// Versions returns every component's current version by name.
func (s *State) Versions() map[string]version.Version {
	out := make(map[string]version.Version, len(s.components))
	for _, c := range s.components {
		out[c.Name()] = c.CurrentVersion()
	}
	return out
}

// SetFloorFunc installs the observer floor used by purges.
func (s *State) SetFloorFunc(f FloorFunc) {
	s.floor = f
}

// OpenScopes returns the names of components with an open scope.
func (s *State) OpenScopes() []string {
	names := make([]string, len(s.open))
	for i, sc := range s.open {
		names[i] = sc.Component()
	}
	return names
}

// CommitOpenScopes ends every open scope and returns the affected names.
//
// The dispatcher calls it after a handler returns so that a scope the
// handler leaked still commits.
func (s *State) CommitOpenScopes() []string {
	if len(s.open) == 0 {
		return nil
	}
	leaked := slices.Clone(s.open)
	names := make([]string, 0, len(leaked))
	for _, sc := range leaked {
		names = append(names, sc.Component())
		_, _ = sc.End()
	}
	s.logger.Warn("committed leaked update scopes", slog.Any("components", names))
	return names
}

// ValidateAfterLoad runs every component's post-load hook and returns the
// repairs made, keyed by component name.
func (s *State) ValidateAfterLoad() map[string][]string {
	out := make(map[string][]string)
	for _, c := range s.components {
		repairs := c.ValidateAfterLoad()
		if len(repairs) == 0 {
			continue
		}
		out[c.Name()] = repairs
		for _, r := range repairs {
			s.logger.Warn("state repaired after load",
				slog.String("state_component", c.Name()),
				slog.String("repair", r))
		}
	}
	return out
}

func (s *State) scopeOpened(sc *Scope) {
	s.open = append(s.open, sc)
}

func (s *State) scopeClosed(sc *Scope) {
	if i := slices.Index(s.open, sc); i >= 0 {
		s.open = slices.Delete(s.open, i, i+1)
	}
}

func (s *State) observerFloor(name string) (version.Version, bool) {
	if s.floor == nil {
		return 0, false
	}
	return s.floor(name)
}
