// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/overdrive/pkg/logging"
	"github.com/AleutianAI/overdrive/pkg/ux"
	"github.com/AleutianAI/overdrive/services/cso/config"
	"github.com/AleutianAI/overdrive/services/cso/persistence"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/session"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	prefsPath  string
	storePath  string
	logLevel   string
	logJSON    bool
	outputMode string
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "overdrive",
	Short: "Headless graph editor session",
	Long: `Overdrive applies editor commands to a versioned graph state and keeps
incremental views in sync with it.

Subcommands:
  run    - Replay a YAML command script and print a report
  serve  - Expose a session over HTTP
  watch  - Replay a script whenever it or its graph files change`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&prefsPath, "prefs", "", "Preferences YAML file (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "BadgerDB directory for saving and restoring the session")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&outputMode, "output", "rich", "Report style: rich, plain, machine")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// env holds what every subcommand builds from the persistent flags.
type env struct {
	logger  *logging.Logger
	prefs   config.Preferences
	store   *persistence.Store
	printer *ux.Printer
}

func newEnv() (*env, error) {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	mode, err := ux.ParseMode(outputMode)
	if err != nil {
		return nil, err
	}
	prefs, err := config.Load(prefsPath)
	if err != nil {
		return nil, err
	}

	e := &env{
		logger:  logging.New(logging.Config{Level: level, Service: "overdrive", JSON: logJSON}),
		prefs:   prefs,
		printer: ux.NewPrinter(os.Stdout, mode),
	}
	if storePath != "" {
		cfg := persistence.DefaultConfig(storePath)
		cfg.Logger = e.logger.Slog()
		if e.store, err = persistence.Open(cfg); err != nil {
			_ = e.logger.Close()
			return nil, fmt.Errorf("open store: %w", err)
		}
	}
	return e, nil
}

// newSession builds a session over lib. Restores from the store when one
// is configured and restore is true.
func (e *env) newSession(ctx context.Context, lib *model.Library, restore bool, cfg session.Config) (*session.Session, error) {
	cfg.Preferences = e.prefs
	cfg.Library = lib
	cfg.Store = e.store
	cfg.Logger = e.logger.Slog()
	s, err := session.New(cfg)
	if err != nil {
		return nil, err
	}
	if restore && e.store != nil {
		repairs, err := s.Restore(ctx)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("restore session: %w", err)
		}
		for name, r := range repairs {
			cfg.Logger.Warn("restored component repaired",
				slog.String("component", name), slog.Any("repairs", r))
		}
	}
	return s, nil
}

func (e *env) close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Slog().Error("close store", slog.String("error", err.Error()))
		}
	}
	_ = e.logger.Close()
}
