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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/session"
)

var (
	runRestore   bool
	runSave      bool
	runKeepGoing bool
)

var runCmd = &cobra.Command{
	Use:   "run SCRIPT",
	Short: "Replay a YAML command script",
	Long: `Replay every command of a script against a fresh session and print the
resulting state, validation problems and per-step outcome.

Examples:
  overdrive run chain.yaml
  overdrive run chain.yaml --keep-going --output machine
  overdrive run chain.yaml --store ./data --restore --save`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	runCmd.Flags().BoolVar(&runRestore, "restore", false, "Restore the session from --store before replaying")
	runCmd.Flags().BoolVar(&runSave, "save", false, "Save the session to --store after replaying")
	runCmd.Flags().BoolVar(&runKeepGoing, "keep-going", false, "Continue after a failed step")
}

func runScript(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	script, err := LoadScript(args[0])
	if err != nil {
		return err
	}
	cmds, err := script.Commands()
	if err != nil {
		return err
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()

	lib := model.NewLibrary()
	if err := script.InstallAssets(lib); err != nil {
		return err
	}
	s, err := e.newSession(ctx, lib, runRestore, session.Config{})
	if err != nil {
		return err
	}
	defer s.Close()

	steps := Replay(ctx, s, cmds, runKeepGoing)
	report, err := buildReport(ctx, args[0], s, steps)
	if err != nil {
		return err
	}
	printReport(e.printer, report)

	if runSave && e.store != nil {
		if err := s.Save(ctx); err != nil {
			return err
		}
	}
	if report.Failed() > 0 {
		return errStepsFailed
	}
	return nil
}
