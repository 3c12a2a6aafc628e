// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_RecorderReceivesServiceAttr(t *testing.T) {
	rec := NewRecorder()
	logger := New(Config{Level: LevelDebug, Service: "graph", Quiet: true, Extra: []slog.Handler{rec}})
	defer logger.Close()

	Component(logger.Slog(), "dispatch").Debug("committed", slog.Uint64("version", 3))

	entries := rec.ByMessage("committed")
	require.Len(t, entries, 1)
	assert.Equal(t, "graph", entries[0].Attrs["service"])
	assert.Equal(t, "dispatch", entries[0].Attrs["component"])
	assert.Equal(t, uint64(3), entries[0].Attrs["version"])
}

func TestNew_TraceCorrelation(t *testing.T) {
	rec := NewRecorder()
	logger := New(Config{Quiet: true, Extra: []slog.Handler{rec}})

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.Slog().InfoContext(ctx, "with span")
	logger.Slog().Info("without span")

	withSpan := rec.ByMessage("with span")
	require.Len(t, withSpan, 1)
	assert.Equal(t, sc.TraceID().String(), withSpan[0].Attrs["trace_id"])
	assert.Equal(t, sc.SpanID().String(), withSpan[0].Attrs["span_id"])

	withoutSpan := rec.ByMessage("without span")
	require.Len(t, withoutSpan, 1)
	assert.NotContains(t, withoutSpan[0].Attrs, "trace_id")
}

func TestNew_LevelFilter(t *testing.T) {
	rec := NewRecorder()
	logger := New(Config{Level: LevelWarn, Quiet: true, Extra: []slog.Handler{rec}})

	logger.Slog().Info("dropped")
	logger.Slog().Warn("kept")

	// Extra handlers apply their own filtering; the Recorder keeps all
	// levels, so both records arrive. The file and stderr handlers honour
	// Level.
	assert.Len(t, rec.Entries(), 2)
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "cli", Quiet: true})
	logger.Slog().Info("to file")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close(), "second close is a no-op")

	matches, err := filepath.Glob(filepath.Join(dir, "cli_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}

func TestComponent_NilBase(t *testing.T) {
	assert.NotNil(t, Component(nil, "x"))
}

func TestRecorder_WithGroupAndReset(t *testing.T) {
	rec := NewRecorder()
	logger := slog.New(rec).WithGroup("cso").With(slog.String("name", "graph_view"))
	logger.Info("purged")

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "graph_view", entries[0].Attrs["cso.name"])

	rec.Reset()
	assert.Empty(t, rec.Entries())
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
	logger.Error("nothing")
}
