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
	"fmt"
	"log/slog"
	"slices"

	"github.com/AleutianAI/overdrive/pkg/logging"
	"github.com/AleutianAI/overdrive/services/cso/version"
)

// Registry holds the observers notified after each dispatch.
//
// Observers are notified in registration order.
type Registry struct {
	observers []Observer
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logging.Component(logger, "observer")}
}

// Register adds o.
func (r *Registry) Register(o Observer) error {
	if r.index(o.ID()) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateObserver, o.ID())
	}
	r.observers = append(r.observers, o)
	r.logger.Debug("observer registered",
		slog.String("observer", o.ID()),
		slog.Any("components", o.ObservedComponents()))
	return nil
}

// Unregister removes o and reports whether it was registered.
func (r *Registry) Unregister(o Observer) bool {
	i := r.index(o.ID())
	if i < 0 {
		return false
	}
	r.observers = slices.Delete(r.observers, i, i+1)
	r.logger.Debug("observer unregistered", slog.String("observer", o.ID()))
	return true
}

// Observers returns the registered observers in notification order.
func (r *Registry) Observers() []Observer {
	return slices.Clone(r.observers)
}

// Len returns the number of registered observers.
func (r *Registry) Len() int {
	return len(r.observers)
}

// Floor returns the smallest cursor any registered observer holds for
// component. ok is false when no observer has synchronised with it yet.
//
// Floor has the shape of state.FloorFunc.
func (r *Registry) Floor(component string) (version.Version, bool) {
	var (
		floor version.Version
		found bool
	)
	for _, o := range r.observers {
		v, ok := o.LastObservedVersion(component)
		if !ok || !slices.Contains(o.ObservedComponents(), component) {
			continue
		}
		if !found || v < floor {
			floor, found = v, true
		}
	}
	return floor, found
}

func (r *Registry) index(id string) int {
	return slices.IndexFunc(r.observers, func(o Observer) bool { return o.ID() == id })
}
