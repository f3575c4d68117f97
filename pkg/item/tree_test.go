// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItemRejectsInvalidParent(t *testing.T) {
	tr := NewTree()
	_, err := tr.AddItem(42, 0, KindFile, FileTypeRaw, "x", "", "", nil, nil, nil, false)
	assert.Error(t, err)
}

func TestAddItemAppendsLastChild(t *testing.T) {
	tr := NewTree()
	a, err := tr.AddItem(tr.Root(), 0, KindVolume, 0, "a", "", "", nil, nil, nil, false)
	require.NoError(t, err)
	b, err := tr.AddItem(tr.Root(), 0x1000, KindVolume, 0, "b", "", "", nil, nil, nil, false)
	require.NoError(t, err)

	root := tr.Item(tr.Root())
	require.Equal(t, 2, root.RowCount())
	assert.Equal(t, a, root.ChildHandle(0))
	assert.Equal(t, b, root.ChildHandle(1))
}

func TestFixedPropagatesToNonCompressedAncestors(t *testing.T) {
	tr := NewTree()
	vol, err := tr.AddItem(tr.Root(), 0, KindVolume, 0, "v", "", "", nil, nil, nil, false)
	require.NoError(t, err)
	file, err := tr.AddItem(vol, 0, KindFile, FileTypeDriver, "f", "", "", nil, nil, nil, false)
	require.NoError(t, err)
	section, err := tr.AddItem(file, 0, KindSection, SectionTypeRaw, "s", "", "", nil, nil, nil, true)
	require.NoError(t, err)

	assert.True(t, tr.Item(section).Fixed)
	assert.True(t, tr.Item(file).Fixed)
	assert.True(t, tr.Item(vol).Fixed)
}

func TestFixedPropagationStopsAtCompressedBoundary(t *testing.T) {
	tr := NewTree()
	file, err := tr.AddItem(tr.Root(), 0, KindFile, FileTypeDriver, "f", "", "", nil, nil, nil, false)
	require.NoError(t, err)
	compSection, err := tr.AddItem(file, 0, KindSection, SectionTypeCompression, "c", "", "", nil, nil, nil, false)
	require.NoError(t, err)
	tr.SetCompressed(compSection, true)
	inner, err := tr.AddItem(compSection, 0, KindSection, SectionTypeRaw, "inner", "", "", nil, nil, nil, true)
	require.NoError(t, err)

	assert.True(t, tr.Item(inner).Fixed)
	// The compressed container's own position is independent of the
	// compressed payload's position, so propagation stops at it.
	assert.True(t, tr.Item(compSection).Fixed)
	assert.False(t, tr.Item(file).Fixed)
}

func TestFindParentOfType(t *testing.T) {
	tr := NewTree()
	vol, err := tr.AddItem(tr.Root(), 0, KindVolume, 0, "v", "", "", nil, nil, nil, false)
	require.NoError(t, err)
	file, err := tr.AddItem(vol, 0, KindFile, FileTypeDriver, "f", "", "", nil, nil, nil, false)
	require.NoError(t, err)
	section, err := tr.AddItem(file, 0, KindSection, SectionTypeRaw, "s", "", "", nil, nil, nil, false)
	require.NoError(t, err)

	assert.Equal(t, file, tr.FindParentOfType(section, KindFile))
	assert.Equal(t, vol, tr.FindParentOfType(section, KindVolume))
	assert.Equal(t, InvalidHandle, tr.FindParentOfType(section, KindImage))
}

func TestFindLastParentOfType(t *testing.T) {
	tr := NewTree()
	outer, err := tr.AddItem(tr.Root(), 0, KindVolume, 0, "outer", "", "", nil, nil, nil, false)
	require.NoError(t, err)
	outerFile, err := tr.AddItem(outer, 0, KindFile, FileTypeVolumeImage, "f", "", "", nil, nil, nil, false)
	require.NoError(t, err)
	inner, err := tr.AddItem(outerFile, 0, KindVolume, 0, "inner", "", "", nil, nil, nil, false)
	require.NoError(t, err)
	leaf, err := tr.AddItem(inner, 0, KindFile, FileTypeDriver, "leaf", "", "", nil, nil, nil, false)
	require.NoError(t, err)

	assert.Equal(t, inner, tr.FindParentOfType(leaf, KindVolume))
	assert.Equal(t, outer, tr.FindLastParentOfType(leaf, KindVolume))
}

func TestFindByOffset(t *testing.T) {
	tr := NewTree()
	h, err := tr.AddItem(tr.Root(), 0x2000, KindVolume, 0, "v", "", "", nil, nil, nil, false)
	require.NoError(t, err)

	assert.Equal(t, h, tr.FindByOffset(0x2000))
	assert.Equal(t, InvalidHandle, tr.FindByOffset(0x3000))
}

func TestWalkVisitsPreOrder(t *testing.T) {
	tr := NewTree()
	vol, _ := tr.AddItem(tr.Root(), 0, KindVolume, 0, "v", "", "", nil, nil, nil, false)
	file, _ := tr.AddItem(vol, 0, KindFile, FileTypeDriver, "f", "", "", nil, nil, nil, false)

	var visited []Handle
	err := tr.Walk(tr.Root(), func(h Handle) error {
		visited = append(visited, h)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []Handle{tr.Root(), vol, file}, visited)
}

func TestDiagnosticsOrderedAndAppendOnly(t *testing.T) {
	var d Diagnostics
	d.Add(InvalidHandle, "first")
	d.Add(InvalidHandle, "second: %d", 2)

	require.Equal(t, 2, d.Len())
	assert.Equal(t, "first", d.Entries()[0].Message)
	assert.Equal(t, "second: 2", d.Entries()[1].Message)
}
