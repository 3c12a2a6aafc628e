// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParse_KeepsDefaultsForMissingFields(t *testing.T) {
	prefs, err := Parse([]byte("history_size: 10\nsticky_note_theme: Dark\n"))
	require.NoError(t, err)

	assert.Equal(t, 10, prefs.HistorySize)
	assert.Equal(t, "Dark", prefs.StickyNoteTheme)
	assert.Equal(t, Default().MaxFollowUpCommands, prefs.MaxFollowUpCommands)
	assert.True(t, prefs.PurgeAfterNotify)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero follow ups", "max_follow_up_commands: 0"},
		{"bad theme", "sticky_note_theme: Plaid"},
		{"inverted scale", "min_scale: 2\nmax_scale: 1"},
		{"not yaml", "history_size: [1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_ValidationErrorIsWrapped(t *testing.T) {
	_, err := Parse([]byte("history_size: 0"))
	assert.ErrorIs(t, err, ErrInvalidPreferences)
}

func TestLoad(t *testing.T) {
	prefs, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), prefs)

	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, WriteDefault(path))
	prefs, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), prefs)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
