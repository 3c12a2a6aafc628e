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
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/overdrive/pkg/ux"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/session"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch SCRIPT",
	Short: "Replay a script whenever it or its graph files change",
	Long: `Replay a script, then keep watching it. Editing the script replays it
against freshly loaded assets. Editing a graph file the script declares
reloads that asset in place and tells the session it changed on disk,
which forces a full resync of every view.`,
	Args: cobra.ExactArgs(1),
	RunE: watch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 100*time.Millisecond, "Wait this long for more changes before reacting")
}

func watch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	s, err := e.newSession(ctx, model.NewLibrary(), false, session.Config{})
	if err != nil {
		return err
	}
	defer s.Close()

	w := &scriptWatcher{
		session:  s,
		path:     path,
		printer:  e.printer,
		logger:   e.logger.Slog(),
		debounce: watchDebounce,
	}
	if err := w.replay(ctx); err != nil {
		return err
	}
	return w.run(ctx)
}

// scriptWatcher reacts to changes of a script and its asset files.
type scriptWatcher struct {
	session  *session.Session
	path     string
	script   *Script
	printer  *ux.Printer
	logger   *slog.Logger
	debounce time.Duration
}

// run blocks until ctx is done, reacting to debounced file changes.
func (w *scriptWatcher) run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Editors often replace files, so the directories are watched.
	for _, dir := range w.dirs() {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Clean(event.Name)
			if !w.tracked(name) {
				continue
			}
			pending[name] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		case <-timer.C:
			before := w.dirs()
			w.apply(ctx, pending)
			pending = make(map[string]struct{})
			for _, dir := range w.dirs() {
				if !contains(before, dir) {
					if err := fw.Add(dir); err != nil {
						w.logger.Warn("watch directory", slog.String("dir", dir), slog.String("error", err.Error()))
					}
				}
			}
		}
	}
}

// apply handles one debounced batch of changed paths.
func (w *scriptWatcher) apply(ctx context.Context, changed map[string]struct{}) {
	if _, ok := changed[w.path]; ok {
		if err := w.replay(ctx); err != nil {
			w.printer.Status(ux.IconError, "replay "+filepath.Base(w.path), err.Error())
		}
		return
	}
	for _, a := range w.script.Assets {
		p := w.script.AssetPath(a)
		if _, ok := changed[p]; !ok {
			continue
		}
		if err := ReloadAsset(ctx, w.session, w.script, a); err != nil {
			w.printer.Status(ux.IconError, "reload "+string(a.ID), err.Error())
			continue
		}
		w.printer.Status(ux.IconSuccess, "reload "+string(a.ID), filepath.Base(p))
	}
}

// replay re-reads the script, installs fresh assets and replays every step.
func (w *scriptWatcher) replay(ctx context.Context) error {
	script, err := LoadScript(w.path)
	if err != nil {
		return err
	}
	cmds, err := script.Commands()
	if err != nil {
		return err
	}
	if err := script.InstallAssets(w.session.Library()); err != nil {
		return err
	}
	w.script = script

	steps := Replay(ctx, w.session, cmds, true)
	report, err := buildReport(ctx, filepath.Base(w.path), w.session, steps)
	if err != nil {
		return err
	}
	printReport(w.printer, report)
	return nil
}

func (w *scriptWatcher) tracked(path string) bool {
	if path == w.path {
		return true
	}
	if w.script == nil {
		return false
	}
	for _, a := range w.script.Assets {
		if w.script.AssetPath(a) == path {
			return true
		}
	}
	return false
}

func (w *scriptWatcher) dirs() []string {
	out := []string{filepath.Dir(w.path)}
	if w.script == nil {
		return out
	}
	for _, a := range w.script.Assets {
		if p := w.script.AssetPath(a); p != "" && !contains(out, filepath.Dir(p)) {
			out = append(out, filepath.Dir(p))
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
