// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package item

import "github.com/uefitree/uefitree/pkg/guid"

// VolumeData is the parsing-private state recorded for a Volume item.
type VolumeData struct {
	EmptyByte        byte
	FFSVersion       int // 0 = unknown/unsupported, 2, or 3
	Alignment        uint32
	Revision         uint8
	ExtHeaderGUID    *guid.GUID
	HasAppleCRC32    bool
	UsedSpaceOffset  uint64
	HasValidUsedSpace bool
	WeakAligned      bool // compressed, or sits under an Aptio capsule fixup
}

// FileData is the parsing-private state recorded for a File item.
type FileData struct {
	GUID       guid.GUID
	EmptyByte  byte
	IsLarge    bool
	HasTail    bool
	TailValue  uint16
}

// SectionCompressedData records compressed-section parsing state.
type SectionCompressedData struct {
	CompressionType    int // 0 NOT_COMPRESSED, 1 EFI_STANDARD, 2 CUSTOMIZED
	UncompressedLength uint32
	AlgorithmUsed      string
}

// SectionGuidedData records GUID-defined section parsing state.
type SectionGuidedData struct {
	GUID           guid.GUID
	DataOffset     uint16
	Attributes     uint16
	ProcessingDone bool
}

// SectionFreeformGuidedData records freeform-subtype-GUID section state.
type SectionFreeformGuidedData struct {
	SubtypeGUID guid.GUID
}

// TEImageData records a TE image's base-address triplet (§4.3.7, §4.4).
type TEImageData struct {
	ImageBase         uint64
	StrippedSize      uint64
	AdjustedImageBase uint64
	Classification    string // "Original", "Adjusted", "Other", or "" if unclassified
}

// ParsingData is a kind-tagged variant carrying parser-private state.
// Exactly one field (or none, for kinds that need no extra state) is set,
// matching the seven-case variant in spec.md §9: Volume, File,
// Section-Compressed, Section-Guided, Section-FreeformGuided,
// Section-TeImage, None.
type ParsingData struct {
	Volume               *VolumeData
	File                 *FileData
	SectionCompressed    *SectionCompressedData
	SectionGuided        *SectionGuidedData
	SectionFreeformGuided *SectionFreeformGuidedData
	SectionTEImage       *TEImageData
}

// ByteRange is a half-open [Offset, Offset+Length) span of image bytes. It
// exists to compare two differently-computed extents — a tree item's own
// span against a Boot-Guard protected range, say — without either side
// owning an Item.
type ByteRange struct {
	Offset uint64
	Length uint64
}

// Intersect reports whether r and other share at least one byte.
func (r ByteRange) Intersect(other ByteRange) bool {
	if r.Length == 0 || other.Length == 0 {
		return false
	}
	return r.Offset < other.Offset+other.Length && other.Offset < r.Offset+r.Length
}

// Handle is a stable arena index for an Item. The zero value is invalid;
// valid handles start at 1 (0 is reserved to mean "no parent"/"not found").
type Handle int

// InvalidHandle denotes the absence of an item (e.g. root's parent).
const InvalidHandle Handle = 0

// Item is a single node in the parse tree (spec.md §3).
type Item struct {
	handle   Handle
	parent   Handle
	children []Handle

	Kind    Kind
	Subtype Subtype

	Offset uint64

	Header []byte
	Body   []byte
	Tail   []byte

	Name string
	Text string
	Info string

	Fixed      bool
	Compressed bool
	Marking    Marking

	ParsingData ParsingData
}

// Handle returns this item's stable arena handle.
func (it *Item) Handle() Handle { return it.handle }

// Parent returns this item's parent handle, or InvalidHandle for the root.
func (it *Item) Parent() Handle { return it.parent }

// RowCount returns the number of direct children.
func (it *Item) RowCount() int { return len(it.children) }

// ChildHandle returns the handle of the i-th child.
func (it *Item) ChildHandle(i int) Handle { return it.children[i] }

// Size returns the total byte length (header+body+tail) of the item.
func (it *Item) Size() uint64 {
	return uint64(len(it.Header) + len(it.Body) + len(it.Tail))
}

// AppendInfo appends a line to the item's info block.
func (it *Item) AppendInfo(line string) {
	if it.Info == "" {
		it.Info = line
		return
	}
	it.Info += "\n" + line
}

// PrependInfo prepends a line to the item's info block.
func (it *Item) PrependInfo(line string) {
	if it.Info == "" {
		it.Info = line
		return
	}
	it.Info = line + "\n" + it.Info
}
