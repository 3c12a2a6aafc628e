// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Dispatch outcome values for the "status" attribute.
const (
	StatusApplied   = "applied"
	StatusUnhandled = "unhandled"
	StatusReentrant = "reentrant"
	StatusFailed    = "failed"
	StatusPanicked  = "panicked"
	StatusLimitHit  = "follow_up_limit"
)

// DispatchMetrics holds the instruments the dispatcher records into.
//
// Thread Safety: Safe for concurrent use after creation.
type DispatchMetrics struct {
	// CommandsTotal counts dispatched commands by command and status.
	CommandsTotal metric.Int64Counter

	// DispatchDuration records handler plus notification time in seconds.
	DispatchDuration metric.Float64Histogram

	// ObserverSyncsTotal counts observer notifications by observer and outcome.
	ObserverSyncsTotal metric.Int64Counter

	// FollowUpsTotal counts commands posted by observers.
	FollowUpsTotal metric.Int64Counter
}

// NewDispatchMetrics registers the dispatcher instruments on meter.
//
// Example:
//
//	m, err := telemetry.NewDispatchMetrics(otel.Meter("overdrive.dispatch"))
func NewDispatchMetrics(meter metric.Meter) (*DispatchMetrics, error) {
	m := &DispatchMetrics{}
	var err error

	m.CommandsTotal, err = meter.Int64Counter(
		"overdrive_commands_total",
		metric.WithDescription("Dispatched commands by outcome"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create commands_total: %w", err)
	}

	m.DispatchDuration, err = meter.Float64Histogram(
		"overdrive_dispatch_duration_seconds",
		metric.WithDescription("Command handling and observer notification time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create dispatch_duration: %w", err)
	}

	m.ObserverSyncsTotal, err = meter.Int64Counter(
		"overdrive_observer_notifications_total",
		metric.WithDescription("Observer notifications by outcome"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create observer_notifications_total: %w", err)
	}

	m.FollowUpsTotal, err = meter.Int64Counter(
		"overdrive_follow_up_commands_total",
		metric.WithDescription("Commands posted by observers"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create follow_up_commands_total: %w", err)
	}

	return m, nil
}

// RecordCommand counts one dispatch and its duration.
func (m *DispatchMetrics) RecordCommand(ctx context.Context, name, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("command", name),
		attribute.String("status", status),
	)
	m.CommandsTotal.Add(ctx, 1, attrs)
	m.DispatchDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordObserver counts one observer notification.
func (m *DispatchMetrics) RecordObserver(ctx context.Context, observer string, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.ObserverSyncsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("observer", observer),
		attribute.String("outcome", outcome),
	))
}

// RecordFollowUp counts one posted command.
func (m *DispatchMetrics) RecordFollowUp(ctx context.Context, name string) {
	if m == nil {
		return
	}
	m.FollowUpsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("command", name)))
}
