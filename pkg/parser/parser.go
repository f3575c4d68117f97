// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parser

import (
	"bytes"
	"fmt"

	"github.com/uefitree/uefitree/pkg/guid"
	"github.com/uefitree/uefitree/pkg/item"
)

// Result is everything Parse produces: the tree, the diagnostic log, and a
// top-level status. A non-zero Status never means the tree is empty — it
// means the top-level operation hit a terminal condition for itself; the
// tree up to that point is still returned (spec.md §6: "the top-level parse
// may still return a usable partial tree").
type Result struct {
	Tree      *item.Tree
	Diag      *item.Diagnostics
	Status    Status
	LastVTF   item.Handle
	BGDXECore item.Handle
	FITTable  string
	BGInfo    string
}

// ctx carries the state threaded through the first pass: the tree under
// construction, the diagnostics log, the original input buffer (kept around
// unmodified so the second pass can validate Boot-Guard ranges over it
// directly, never over tree-derived slices that might be decompressed
// copies, per spec.md §4.6), and the first DXE Core file encountered.
type ctx struct {
	tree      *item.Tree
	diag      *item.Diagnostics
	original  []byte
	bgDXECore item.Handle
}

// minBufferLength is the smallest buffer Parse accepts (spec.md §6, §8: 28
// bytes is rejected, 29 is the smallest that succeeds — one byte more than
// the fixed EFI capsule header, since a zero-length capsule body is never
// useful input).
const minBufferLength = 29

// Parse implements the first-pass entry point of spec.md §4.3, followed by
// the second pass of §4.4 when a Volume Top File is found.
func Parse(buffer []byte) Result {
	tree := item.NewTree()
	diag := &item.Diagnostics{}

	if len(buffer) < minBufferLength {
		diag.Add(item.InvalidHandle, "input buffer is %d bytes, which is too small to be a valid image", len(buffer))
		return Result{Tree: tree, Diag: diag, Status: StatusInvalidParameter}
	}

	c := &ctx{tree: tree, diag: diag, original: buffer}
	root := tree.Root()

	body, bodyOffset, capsuleHandle := c.peelCapsule(root, buffer)

	var topHandle item.Handle
	if len(body) >= 20 && bytes.Equal(body[16:20], intelDescriptorSignature) {
		h, err := c.parseIntelImage(pickParent(capsuleHandle, root), bodyOffset, body)
		if err != nil {
			diag.Add(pickParent(capsuleHandle, root), "Intel image: %v", err)
		}
		topHandle = h
	} else {
		h, err := tree.AddItem(pickParent(capsuleHandle, root), bodyOffset, item.KindImage, item.ImageSubtypeUefiImage,
			"UEFI image", "", "", nil, body, nil, false)
		if err != nil {
			diag.Add(root, "unable to add image item: %v", err)
			return Result{Tree: tree, Diag: diag, Status: StatusInvalidParameter}
		}
		topHandle = h
		c.parseRawArea(h, bodyOffset, body)
	}

	addOffsetInfoLines(tree)

	lastVTF := findLastVTF(tree)
	var bgInfo string
	var fitStr string
	if lastVTF != item.InvalidHandle {
		bgInfo, fitStr = c.runSecondPass(lastVTF)
	} else {
		diag.Add(item.InvalidHandle, "no Volume Top File found; memory addresses and Boot Guard validation skipped")
	}

	_ = topHandle
	return Result{
		Tree:      tree,
		Diag:      diag,
		Status:    StatusSuccess,
		LastVTF:   lastVTF,
		BGDXECore: c.bgDXECore,
		FITTable:  fitStr,
		BGInfo:    bgInfo,
	}
}

func pickParent(capsule item.Handle, root item.Handle) item.Handle {
	if capsule != item.InvalidHandle {
		return capsule
	}
	return root
}

// peelCapsule implements spec.md §4.3 step 1. It returns the post-capsule
// body slice, that slice's absolute offset in the original buffer, and the
// Capsule item's handle (InvalidHandle if no recognised capsule header was
// found, in which case body is the whole input buffer).
func (c *ctx) peelCapsule(root item.Handle, buffer []byte) ([]byte, uint64, item.Handle) {
	if len(buffer) < 28 {
		return buffer, 0, item.InvalidHandle
	}
	var matched *guid.GUID
	for _, g := range guid.CapsuleGUIDs {
		if bytes.Equal(buffer[0:16], g[:]) {
			matched = g
			break
		}
	}
	if matched == nil {
		return buffer, 0, item.InvalidHandle
	}

	headerSize := leUint32(buffer[16:20])
	if headerSize < 28 || uint64(headerSize) > uint64(len(buffer)) {
		headerSize = 28
	}
	if matched == guid.AptioSignedCap {
		c.diag.Add(root, "Aptio signed capsule: any modification will invalidate the signature")
	}
	name := matched.String()
	h, err := c.tree.AddItem(root, 0, item.KindCapsule, 0, name, "Capsule", "",
		buffer[:headerSize], buffer[headerSize:], nil, false)
	if err != nil {
		c.diag.Add(root, "unable to add capsule item: %v", err)
		return buffer, 0, item.InvalidHandle
	}
	return buffer[headerSize:], uint64(headerSize), h
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// addOffsetInfoLines implements spec.md §4.3 step 4: prepend an "Offset:"
// line to every item's info block.
func addOffsetInfoLines(tree *item.Tree) {
	_ = tree.Walk(tree.Root(), func(h item.Handle) error {
		it := tree.Item(h)
		it.PrependInfo(fmt.Sprintf("Offset: 0x%X", it.Offset))
		return nil
	})
}

// findLastVTF returns the handle of the File whose GUID equals the
// Volume-Top-File GUID (spec.md §4.3 step 5). Per spec.md §3 the last VTF
// is unique across the tree when present; if more than one file happens to
// carry the GUID (malformed/duplicated images) the one encountered last in
// tree-walk (offset) order wins, matching "last" in the name.
func findLastVTF(tree *item.Tree) item.Handle {
	var found item.Handle
	_ = tree.Walk(tree.Root(), func(h item.Handle) error {
		it := tree.Item(h)
		if it.Kind == item.KindFile && it.ParsingData.File != nil && it.ParsingData.File.GUID == *guid.VolumeTopFile {
			found = h
		}
		return nil
	})
	return found
}
