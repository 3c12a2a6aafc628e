// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session runs an editor State and its Dispatcher on one goroutine.
//
// Commands arrive from any goroutine through Submit; reads that need a
// consistent view of the state go through Read. Both are executed by the
// worker in arrival order, so the dispatcher never sees concurrent calls.
//
//	HTTP / CLI ──Submit──┐
//	                     ├──▶ worker goroutine ──▶ Dispatcher ──▶ State
//	HTTP / CLI ──Read────┘                          │
//	                                                └──▶ observers (views)
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/overdrive/pkg/logging"
	"github.com/AleutianAI/overdrive/services/cso/command"
	"github.com/AleutianAI/overdrive/services/cso/config"
	"github.com/AleutianAI/overdrive/services/cso/dispatch"
	"github.com/AleutianAI/overdrive/services/cso/persistence"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/cso/telemetry"
	"github.com/AleutianAI/overdrive/services/cso/version"
	"github.com/AleutianAI/overdrive/services/graph/commands"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/states"
	"github.com/AleutianAI/overdrive/services/graph/views"
)

var (
	// ErrClosed is returned by operations on a closed Session.
	ErrClosed = errors.New("session is closed")

	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNoStore is returned by Save and Restore without a Store.
	ErrNoStore = errors.New("session has no store")
)

// DefaultQueueSize is the buffer size of the request channel.
const DefaultQueueSize = 64

// Observer IDs of the built-in views.
const (
	CanvasObserverID    = "canvas"
	ToolbarObserverID   = "error_toolbar"
	ProcessorObserverID = "graph_processor"
)

// Config configures a Session.
type Config struct {
	Preferences config.Preferences
	// Library is shared with the host. A new empty one is used when nil.
	Library *model.Library
	// Store persists components across runs. Optional.
	Store          *persistence.Store
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	Metrics        *telemetry.DispatchMetrics
	QueueSize      int
}

type request struct {
	ctx    context.Context
	run    func(ctx context.Context) error
	result chan error
}

// Session owns an editor State, its Dispatcher and the built-in views.
//
// Thread Safety: safe for concurrent use.
type Session struct {
	requests  chan request
	closeCh   chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	st         *state.State
	dispatcher *dispatch.Dispatcher
	components states.Components
	library    *model.Library
	store      *persistence.Store

	canvas    *views.GraphView
	toolbar   *views.ErrorToolbar
	processor *views.GraphProcessor

	logger    *slog.Logger
	submitted atomic.Uint64
}

// New builds a session and starts its worker.
//
// Outputs:
//   - *Session: Running session. Call Close to stop it.
//   - error: Invalid preferences or a failure to register a component.
func New(cfg Config) (*Session, error) {
	if err := cfg.Preferences.Validate(); err != nil {
		return nil, err
	}
	if cfg.Library == nil {
		cfg.Library = model.NewLibrary()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	st := state.New(cfg.Preferences, state.WithLogger(cfg.Logger))
	comps := states.NewComponents(cfg.Preferences, cfg.Library)
	if err := st.Add(comps.All()...); err != nil {
		return nil, fmt.Errorf("add components: %w", err)
	}

	opts := []dispatch.Option{dispatch.WithLogger(cfg.Logger), dispatch.WithMetrics(cfg.Metrics)}
	if cfg.TracerProvider != nil {
		opts = append(opts, dispatch.WithTracerProvider(cfg.TracerProvider))
	}
	d := dispatch.New(st, opts...)
	commands.RegisterDefaults(d, commands.Env{Library: cfg.Library, Logger: cfg.Logger})

	s := &Session{
		requests:   make(chan request, cfg.QueueSize),
		closeCh:    make(chan struct{}),
		doneCh:     make(chan struct{}),
		st:         st,
		dispatcher: d,
		components: comps,
		library:    cfg.Library,
		store:      cfg.Store,
		canvas:     views.NewGraphView(CanvasObserverID),
		toolbar:    views.NewErrorToolbar(ToolbarObserverID),
		processor:  views.NewGraphProcessor(ProcessorObserverID),
		logger:     logging.Component(cfg.Logger, "session"),
	}
	if err := d.RegisterObserver(s.canvas); err != nil {
		return nil, err
	}
	if err := d.RegisterObserver(s.toolbar); err != nil {
		return nil, err
	}
	if err := d.RegisterObserver(s.processor); err != nil {
		return nil, err
	}

	go s.run()
	return s, nil
}

// run is the worker loop. It is the only goroutine touching the State.
func (s *Session) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.closeCh:
			s.logger.Debug("session worker shutting down",
				slog.Uint64("submitted", s.submitted.Load()))
			return
		case req := <-s.requests:
			if err := req.ctx.Err(); err != nil {
				req.result <- err
				continue
			}
			req.result <- req.run(req.ctx)
		}
	}
}

// do runs fn on the worker and waits for its result.
func (s *Session) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		return ErrNilContext
	}
	select {
	case <-s.closeCh:
		return ErrClosed
	default:
	}

	req := request{ctx: ctx, run: fn, result: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.result:
		return err
	case <-s.doneCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit dispatches cmd on the worker and returns the dispatch result.
func (s *Session) Submit(ctx context.Context, cmd command.Command) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.submitted.Add(1)
		return s.dispatcher.Dispatch(ctx, cmd)
	})
}

// Read runs fn on the worker with exclusive access to the state. fn must
// not retain the components beyond its return.
func (s *Session) Read(ctx context.Context, fn func(st *state.State, c states.Components) error) error {
	return s.do(ctx, func(context.Context) error {
		return fn(s.st, s.components)
	})
}

// History returns the dispatcher's recent records.
func (s *Session) History(ctx context.Context) ([]dispatch.Record, error) {
	var out []dispatch.Record
	err := s.do(ctx, func(context.Context) error {
		out = s.dispatcher.History()
		return nil
	})
	return out, err
}

// Versions returns every component's current version.
func (s *Session) Versions(ctx context.Context) (map[string]version.Version, error) {
	var out map[string]version.Version
	err := s.do(ctx, func(context.Context) error {
		out = s.st.Versions()
		return nil
	})
	return out, err
}

// Save writes every component to the store.
func (s *Session) Save(ctx context.Context) error {
	if s.store == nil {
		return ErrNoStore
	}
	return s.do(ctx, func(ctx context.Context) error {
		return s.store.SaveAll(ctx, s.st)
	})
}

// Restore loads every stored component, then lets the views catch up.
//
// Outputs:
//   - map[string][]string: Repairs made by each component's post-load
//     validation.
//   - error: ErrNoStore, or the first load failure.
func (s *Session) Restore(ctx context.Context) (map[string][]string, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	var repairs map[string][]string
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		if repairs, err = s.store.LoadAll(ctx, s.st); err != nil {
			return err
		}
		return s.dispatcher.Refresh(ctx)
	})
	return repairs, err
}

// Library returns the host-owned graph assets.
func (s *Session) Library() *model.Library { return s.library }

// Canvas returns the headless graph view mirror.
func (s *Session) Canvas() *views.GraphView { return s.canvas }

// Toolbar returns the error toolbar view.
func (s *Session) Toolbar() *views.ErrorToolbar { return s.toolbar }

// Processor returns the graph processor.
func (s *Session) Processor() *views.GraphProcessor { return s.processor }

// Close stops the worker. Pending requests fail with ErrClosed. The store
// is not closed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
	<-s.doneCh
	return nil
}
