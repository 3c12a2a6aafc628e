// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/overdrive/pkg/logging"
	"github.com/AleutianAI/overdrive/services/cso/command"
	"github.com/AleutianAI/overdrive/services/cso/observer"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/cso/telemetry"
	"github.com/AleutianAI/overdrive/services/cso/version"
)

// Handler applies a command of type C to st. Register accepts any function
// with this signature.
//
// Handlers mutate components only through update scopes. They run to
// completion synchronously.
type Handler[C command.Command] func(ctx context.Context, st *state.State, cmd C) error

type handlerFunc func(ctx context.Context, st *state.State, cmd command.Command) error

// Dispatcher serialises command application against one State.
type Dispatcher struct {
	state     *state.State
	handlers  map[reflect.Type]handlerFunc
	observers *observer.Registry
	phase     Phase
	pending   []command.Command
	followUps int
	history   *history
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *telemetry.DispatchMetrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logging.Component(logger, "dispatch")
	}
}

// WithTracerProvider sets where dispatch spans are created.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		d.tracer = tp.Tracer("overdrive.dispatch")
	}
}

// WithMetrics sets the instruments dispatch outcomes are recorded into.
func WithMetrics(m *telemetry.DispatchMetrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// New creates a Dispatcher for st and installs its observer floor on st.
func New(st *state.State, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		state:    st,
		handlers: make(map[reflect.Type]handlerFunc),
		logger:   logging.Component(st.Logger(), "dispatch"),
		tracer:   otel.Tracer("overdrive.dispatch"),
		history:  newHistory(st.Preferences().HistorySize),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.observers = observer.NewRegistry(d.logger)
	st.SetFloorFunc(d.observers.Floor)
	return d
}

// -----------------------------------------------------------------------------
// Registration
// -----------------------------------------------------------------------------

// Register installs h for commands whose dynamic type is exactly C.
//
// Description:
//
//	Registering a second handler for the same type replaces the first, so
//	a caller can override a default handler. A pointer type and its value
//	type are different routing keys.
//
// Example:
//
//	dispatch.Register(d, func(ctx context.Context, st *state.State, cmd CreateNode) error {
//	    ...
//	})
func Register[C command.Command](d *Dispatcher, h func(ctx context.Context, st *state.State, cmd C) error) {
	key := reflect.TypeFor[C]()
	if _, ok := d.handlers[key]; ok {
		d.logger.Debug("command handler replaced", slog.String("type", key.String()))
	}
	d.handlers[key] = func(ctx context.Context, st *state.State, cmd command.Command) error {
		return h(ctx, st, cmd.(C))
	}
}

// Unregister removes the handler for C and reports whether one existed.
func Unregister[C command.Command](d *Dispatcher) bool {
	key := reflect.TypeFor[C]()
	_, ok := d.handlers[key]
	delete(d.handlers, key)
	return ok
}

// Handles reports whether a handler is registered for cmd's type.
func (d *Dispatcher) Handles(cmd command.Command) bool {
	_, ok := d.handlers[command.TypeOf(cmd)]
	return ok
}

// RegisterObserver adds o to the notification list.
func (d *Dispatcher) RegisterObserver(o observer.Observer) error {
	return d.observers.Register(o)
}

// UnregisterObserver removes o and reports whether it was registered.
func (d *Dispatcher) UnregisterObserver(o observer.Observer) bool {
	return d.observers.Unregister(o)
}

// Observers returns the registered observers in notification order.
func (d *Dispatcher) Observers() []observer.Observer {
	return d.observers.Observers()
}

// State returns the dispatcher's State.
func (d *Dispatcher) State() *state.State {
	return d.state
}

// Phase returns the current phase.
func (d *Dispatcher) Phase() Phase {
	return d.phase
}

// History returns the most recent dispatch records, oldest first.
func (d *Dispatcher) History() []Record {
	return d.history.list()
}

// -----------------------------------------------------------------------------
// Dispatch
// -----------------------------------------------------------------------------

// Dispatch applies cmd and notifies observers.
//
// Description:
//
//	Rejects cmd with ErrReentrantDispatch while another cycle runs and
//	with ErrUnhandledCommand when no handler matches its type. Neither
//	rejection mutates state. Otherwise the handler runs, leaked scopes
//	are committed, every observer is notified once, and history is
//	purged to the observer floor. Commands posted during the cycle are
//	then dispatched in order.
//
// Inputs:
//   - ctx: Carries the trace span. Handlers never block on it.
//   - cmd: The command to apply.
//
// Outputs:
//   - error: The rejection, or the handler's error. Errors of posted
//     follow-up commands are logged and recorded in History only.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd command.Command) error {
	if cmd == nil {
		return ErrNilCommand
	}
	if d.phase != Idle {
		d.logger.WarnContext(ctx, "dispatch rejected",
			slog.String("command", cmd.CommandName()),
			slog.String("phase", d.phase.String()),
			slog.String("reason", telemetry.StatusReentrant))
		d.metrics.RecordCommand(ctx, cmd.CommandName(), telemetry.StatusReentrant, 0)
		d.history.add(Record{
			Command:   cmd.CommandName(),
			UndoLabel: cmd.UndoLabel(),
			Status:    telemetry.StatusReentrant,
			At:        time.Now(),
		})
		return fmt.Errorf("%w: %s during %s", ErrReentrantDispatch, cmd.CommandName(), d.phase)
	}

	d.followUps = 0
	err := d.dispatchOne(ctx, cmd, false)

	for len(d.pending) > 0 {
		next := d.pending[0]
		d.pending = d.pending[1:]
		if ferr := d.dispatchOne(ctx, next, true); ferr != nil {
			d.logger.WarnContext(ctx, "follow-up command failed",
				slog.String("command", next.CommandName()),
				slog.String("error", ferr.Error()))
		}
	}
	d.pending = nil
	return err
}

// Post queues cmd to run once the current cycle is back to Idle.
//
// Outside a cycle Post dispatches cmd immediately.
func (d *Dispatcher) Post(cmd command.Command) error {
	if cmd == nil {
		return ErrNilCommand
	}
	if d.phase == Idle {
		return d.Dispatch(context.Background(), cmd)
	}
	limit := d.state.Preferences().MaxFollowUpCommands
	if d.followUps >= limit {
		d.logger.Warn("follow-up command dropped",
			slog.String("command", cmd.CommandName()),
			slog.Int("limit", limit))
		d.metrics.RecordCommand(context.Background(), cmd.CommandName(), telemetry.StatusLimitHit, 0)
		return fmt.Errorf("%w: %d", ErrFollowUpLimit, limit)
	}
	d.followUps++
	d.pending = append(d.pending, cmd)
	d.metrics.RecordFollowUp(context.Background(), cmd.CommandName())
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, cmd command.Command, followUp bool) (err error) {
	start := time.Now()
	name := cmd.CommandName()

	ctx, span := d.tracer.Start(ctx, "dispatch.Dispatch", trace.WithAttributes(
		attribute.String("command", name),
		attribute.Bool("follow_up", followUp),
	))
	defer span.End()

	rec := Record{Command: name, UndoLabel: cmd.UndoLabel(), FollowUp: followUp, At: start}

	h, ok := d.handlers[command.TypeOf(cmd)]
	if !ok {
		level := slog.LevelWarn
		if d.state.Preferences().StrictDispatch {
			level = slog.LevelError
		}
		d.logger.Log(ctx, level, "unhandled command",
			slog.String("command", name),
			slog.String("type", fmt.Sprintf("%T", cmd)))
		err = fmt.Errorf("%w: %s (%T)", ErrUnhandledCommand, name, cmd)
		telemetry.RecordError(span, err)
		rec.Status, rec.Error = telemetry.StatusUnhandled, err.Error()
		d.history.add(rec)
		d.metrics.RecordCommand(ctx, name, telemetry.StatusUnhandled, time.Since(start))
		return err
	}

	before := d.state.Versions()
	rec.Status = telemetry.StatusApplied

	func() {
		d.phase = Dispatching
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, name, r)
				rec.Status = telemetry.StatusPanicked
				d.logger.ErrorContext(ctx, "command handler panicked",
					slog.String("command", name),
					slog.Any("panic", r))
			}
		}()
		err = h(ctx, d.state, cmd)
	}()
	if leaked := d.state.CommitOpenScopes(); len(leaked) > 0 {
		d.logger.WarnContext(ctx, "handler left update scopes open",
			slog.String("command", name),
			slog.Any("components", leaked))
	}
	if err != nil && rec.Status == telemetry.StatusApplied {
		rec.Status = telemetry.StatusFailed
		d.logger.ErrorContext(ctx, "command failed",
			slog.String("command", name),
			slog.String("error", err.Error()))
	}
	if err != nil {
		telemetry.RecordError(span, err)
		rec.Error = err.Error()
	}

	d.phase = Notifying
	d.notify(ctx)
	if d.state.Preferences().PurgeAfterNotify {
		d.purge()
	}
	d.phase = Idle

	rec.Versions = changedVersions(before, d.state.Versions())
	rec.Duration = time.Since(start)
	d.history.add(rec)
	d.metrics.RecordCommand(ctx, name, rec.Status, rec.Duration)

	d.logger.DebugContext(ctx, "command dispatched",
		slog.String("command", name),
		slog.String("status", rec.Status),
		slog.Any("versions", rec.Versions))
	return err
}

// Refresh runs a notification cycle without a command, so observers catch
// up with changes made outside Dispatch, such as a restore from a Store.
// Commands posted by observers are dispatched before Refresh returns.
func (d *Dispatcher) Refresh(ctx context.Context) error {
	if d.phase != Idle {
		return fmt.Errorf("%w: refresh during %s", ErrReentrantDispatch, d.phase)
	}
	d.followUps = 0
	d.phase = Notifying
	d.notify(ctx)
	if d.state.Preferences().PurgeAfterNotify {
		d.purge()
	}
	d.phase = Idle

	for len(d.pending) > 0 {
		next := d.pending[0]
		d.pending = d.pending[1:]
		if err := d.dispatchOne(ctx, next, true); err != nil {
			d.logger.WarnContext(ctx, "follow-up command failed",
				slog.String("command", next.CommandName()),
				slog.String("error", err.Error()))
		}
	}
	d.pending = nil
	return nil
}

// notify runs every observer once. Observer failures and panics are logged
// and do not stop the remaining observers.
func (d *Dispatcher) notify(ctx context.Context) {
	for _, o := range d.observers.Observers() {
		err := d.safeObserve(ctx, o)
		if err != nil {
			d.logger.ErrorContext(ctx, "observer failed",
				slog.String("observer", o.ID()),
				slog.String("error", err.Error()))
		}
		d.metrics.RecordObserver(ctx, o.ID(), err != nil)
	}
}

func (d *Dispatcher) safeObserve(ctx context.Context, o observer.Observer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer %s panicked: %v", o.ID(), r)
		}
	}()
	return o.Observe(ctx, d.state, d)
}

// purge trims every component to its observer floor. Components nobody
// watches are trimmed to their current version.
func (d *Dispatcher) purge() {
	for _, c := range d.state.Components() {
		c.PurgeOldChangesets(c.CurrentVersion())
	}
}

func changedVersions(before, after map[string]version.Version) map[string]version.Version {
	var out map[string]version.Version
	for name, v := range after {
		if before[name] == v {
			continue
		}
		if out == nil {
			out = make(map[string]version.Version)
		}
		out[name] = v
	}
	return out
}

var _ command.Poster = (*Dispatcher)(nil)
