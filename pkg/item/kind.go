// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package item implements the ownership-rooted item tree that the parser
// builds: an arena of nodes addressed by stable indices, modeled after the
// teacher's Firmware/Visitor tree but restructured into the index-based
// arena the specification calls for (see DESIGN.md).
package item

// Kind is the top-level type of a tree item.
type Kind int

// Item kinds.
const (
	KindRoot Kind = iota
	KindCapsule
	KindImage
	KindRegion
	KindVolume
	KindPadding
	KindFile
	KindSection
	KindFreeSpace
	KindNVARVariable
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "Root"
	case KindCapsule:
		return "Capsule"
	case KindImage:
		return "Image"
	case KindRegion:
		return "Region"
	case KindVolume:
		return "Volume"
	case KindPadding:
		return "Padding"
	case KindFile:
		return "File"
	case KindSection:
		return "Section"
	case KindFreeSpace:
		return "FreeSpace"
	case KindNVARVariable:
		return "NVARVariable"
	default:
		return "Unknown"
	}
}

// Subtype is a kind-dependent small integer. Its meaning depends on Kind:
//   - Image:   ImageSubtype
//   - Region:  RegionSubtype
//   - Padding: PaddingSubtype
//   - File:    EFI FV file type (0..0xFF, see FileType* constants)
//   - Section: EFI section type (see SectionType* constants)
type Subtype int

// Image subtypes.
const (
	ImageSubtypeUefiImage Subtype = iota
	ImageSubtypeIntelImage
)

// Region subtypes. Values do not equal the index in the Intel flash
// descriptor region table: the parser maps table indices to subtypes
// through regionSubtypeByIndex in pkg/parser/intel.go.
const (
	RegionSubtypeDescriptor Subtype = iota
	RegionSubtypeBIOS
	RegionSubtypeME
	RegionSubtypeGbE
	RegionSubtypePDR
	RegionSubtypeReserved1
	RegionSubtypeReserved2
	RegionSubtypeReserved3
	RegionSubtypeEC
	RegionSubtypeReserved4
)

// Padding subtypes, derived by scanning the padding bytes.
const (
	PaddingSubtypeZero Subtype = iota
	PaddingSubtypeOne
	PaddingSubtypeData
	PaddingSubtypeDataPadding // fixed, non-UEFI suffix in a volume body
)

// EFI FV file types (PI spec §3.2.3, EFI_FV_FILETYPE_*).
const (
	FileTypeAll Subtype = iota
	FileTypeRaw
	FileTypeFreeForm
	FileTypeSECCore
	FileTypePEICore
	FileTypeDXECore
	FileTypePEIM
	FileTypeDriver
	FileTypeCombinedPEIMDriver
	FileTypeApplication
	FileTypeSMM
	FileTypeVolumeImage
	FileTypeCombinedSMMDXE
	FileTypeSMMCore
	FileTypeSMMStandalone
	FileTypeMMCoreStandalone
	FileTypePad Subtype = 0xF0
)

// EFI section types (PI spec §3.2.4, EFI_SECTION_*).
const (
	SectionTypeCompression         Subtype = 0x01
	SectionTypeGUIDDefined         Subtype = 0x02
	SectionTypeDisposable          Subtype = 0x03
	SectionTypePE32                Subtype = 0x10
	SectionTypePIC                 Subtype = 0x11
	SectionTypeTE                  Subtype = 0x12
	SectionTypeDXEDepex            Subtype = 0x13
	SectionTypeVersion             Subtype = 0x14
	SectionTypeUserInterface       Subtype = 0x15
	SectionTypeCompatibility16     Subtype = 0x16
	SectionTypeFirmwareVolumeImage Subtype = 0x17
	SectionTypeFreeformSubtypeGUID Subtype = 0x18
	SectionTypeRaw                 Subtype = 0x19
	SectionTypePEIDepex            Subtype = 0x1B
	SectionTypeMMDepex             Subtype = 0x1C
	SectionTypePostcode            Subtype = 0x20
)

// Marking colours used to visualise protected-range coverage (§4.6).
type Marking int

// Marking values.
const (
	MarkingNone Marking = iota
	MarkingBootGuardRed
	MarkingVendorCyan
	MarkingPartialYellow
)
