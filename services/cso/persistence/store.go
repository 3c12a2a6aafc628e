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
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/overdrive/pkg/logging"
	"github.com/AleutianAI/overdrive/services/cso/state"
	"github.com/AleutianAI/overdrive/services/cso/telemetry"
)

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

var (
	storeOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overdrive_store_operations_total",
		Help: "Component store operations by type and outcome",
	}, []string{"op", "status"})

	storeOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "overdrive_store_operation_duration_seconds",
		Help:    "Duration of component store operations",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"op"})

	storeSnapshotBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "overdrive_store_snapshot_bytes",
		Help:    "Size of saved component snapshots",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	})

	storeRepairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overdrive_store_repairs_total",
		Help: "Repairs made by post-load validation",
	}, []string{"component"})
)

const keyPrefix = "component/"

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures a Store.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in memory. Used by tests.
	InMemory bool

	// SyncWrites makes every Save durable before returning.
	SyncWrites bool

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the discardable fraction that triggers a rewrite.
	GCDiscardRatio float64

	// Logger receives store and BadgerDB messages. Nil uses slog.Default.
	Logger *slog.Logger
}

// DefaultConfig returns durable settings for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns settings for an in-memory store.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger routes BadgerDB's logger to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store persists component snapshots in BadgerDB.
//
// Thread Safety: Safe for concurrent use. The components passed to Save
// and Load must only be touched by their owning goroutine.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	tracer trace.Tracer

	mu     sync.RWMutex
	closed bool
	stopGC chan struct{}
	doneGC chan struct{}
}

// Open opens or creates a Store.
//
// Outputs:
//   - *Store: The open store. Call Close when done.
//   - error: Non-nil if the directory or database cannot be opened.
func Open(cfg Config) (*Store, error) {
	logger := logging.Component(cfg.Logger, "persistence")

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("path is required for a persistent store")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		tracer: otel.Tracer("overdrive.persistence"),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	logger.Info("component store opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory))
	return s, nil
}

// Close stops GC and closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
	}
	return s.db.Close()
}

// Save writes a snapshot of c, replacing any previous one.
func (s *Store) Save(ctx context.Context, c Persistable) (err error) {
	ctx, span, done := s.begin(ctx, "save", c.Name())
	defer span.End()
	defer func() { done(err) }()

	data, err := Serialize(c)
	if err != nil {
		return err
	}
	framed := frame(data)
	storeSnapshotBytes.Observe(float64(len(framed)))

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(c.Name()), framed)
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", c.Name(), err)
	}
	s.logger.DebugContext(ctx, "component saved",
		slog.String("state_component", c.Name()),
		slog.Uint64("version", uint64(c.CurrentVersion())),
		slog.Int("bytes", len(framed)))
	return nil
}

// Load restores c from its snapshot and returns the post-load repairs.
//
// Outputs:
//   - []string: Repairs made while validating the restored payload.
//   - error: ErrNotFound, ErrCorrupted, ErrStoreClosed, or a decode error.
func (s *Store) Load(ctx context.Context, c Persistable) (repairs []string, err error) {
	ctx, span, done := s.begin(ctx, "load", c.Name())
	defer span.End()
	defer func() { done(err) }()

	data, err := s.read(c.Name())
	if err != nil {
		return nil, err
	}
	repairs, err = Deserialize(data, c)
	if err != nil {
		return nil, err
	}
	for _, r := range repairs {
		storeRepairsTotal.WithLabelValues(c.Name()).Inc()
		s.logger.WarnContext(ctx, "component repaired after load",
			slog.String("state_component", c.Name()),
			slog.String("repair", r))
	}
	span.SetAttributes(attribute.Int("repairs", len(repairs)))
	return repairs, nil
}

// Delete removes the snapshot for name. Deleting a missing snapshot is not
// an error.
func (s *Store) Delete(ctx context.Context, name string) (err error) {
	_, span, done := s.begin(ctx, "delete", name)
	defer span.End()
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(name))
	})
}

// Names lists the components with a snapshot, in key order.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), keyPrefix))
		}
		return nil
	})
	return names, err
}

// SaveAll saves every persistable component of st.
func (s *Store) SaveAll(ctx context.Context, st *state.State) error {
	for _, c := range st.Components() {
		p, ok := c.(Persistable)
		if !ok {
			continue
		}
		if err := s.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll restores every persistable component of st that has a snapshot.
// Missing snapshots are skipped. Repairs are returned by component name.
func (s *Store) LoadAll(ctx context.Context, st *state.State) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, c := range st.Components() {
		p, ok := c.(Persistable)
		if !ok {
			continue
		}
		repairs, err := s.Load(ctx, p)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return out, err
		}
		if len(repairs) > 0 {
			out[c.Name()] = repairs
		}
	}
	return out, nil
}

func (s *Store) read(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err != nil {
			return err
		}
		framed, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		data, err = unframe(framed)
		return err
	})
	return data, err
}

// begin starts the span and returns a completion func recording metrics.
func (s *Store) begin(ctx context.Context, op, name string) (context.Context, trace.Span, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "persistence.Store."+op, trace.WithAttributes(
		attribute.String("state_component", name),
	))
	return ctx, span, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
			telemetry.RecordError(span, err)
		}
		storeOperationsTotal.WithLabelValues(op, status).Inc()
		storeOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("value log GC failed", slog.String("error", err.Error()))
			}
		}
	}
}

func key(name string) []byte {
	return []byte(keyPrefix + name)
}

// frame prefixes data with its CRC32.
func frame(data []byte) []byte {
	out := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(out[:4], crc32.ChecksumIEEE(data))
	copy(out[4:], data)
	return out
}

func unframe(framed []byte) ([]byte, error) {
	if len(framed) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupted, len(framed))
	}
	data := framed[4:]
	if binary.BigEndian.Uint32(framed[:4]) != crc32.ChecksumIEEE(data) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupted)
	}
	return data, nil
}
