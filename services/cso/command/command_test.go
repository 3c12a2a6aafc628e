// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type rename struct {
	Labeled
	Name string
}

func (rename) CommandName() string { return "rename" }

type renamePtr struct{ Labeled }

func (*renamePtr) CommandName() string { return "rename" }

func TestTypeOf_DistinguishesConcreteTypes(t *testing.T) {
	a := rename{Labeled: Labeled{Label: "Rename"}, Name: "x"}
	b := &renamePtr{}

	assert.Equal(t, TypeOf(a), TypeOf(rename{}))
	assert.NotEqual(t, TypeOf(a), TypeOf(b))
	assert.Equal(t, "Rename", a.UndoLabel())
	assert.Equal(t, "", b.UndoLabel())
}
