// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package parser implements the recursive-descent firmware image parser:
// the two-pass engine described in spec.md §4 that walks a flat byte buffer
// into pkg/item's tree, decompressing payloads through pkg/compression and
// resolving memory addresses and Boot-Guard ranges through pkg/fit.
//
// Grounded throughout on the teacher's pkg/uefi (region/volume handling) and
// top-level uefi/ (file/section header layouts), restructured around the
// item arena instead of the teacher's Firmware interface/Visitor pattern.
package parser

import "fmt"

// Status is a terminal outcome code for a parsing sub-operation (spec.md
// §6). A non-zero Status returned by an inner call never aborts the
// top-level Parse: the caller records a diagnostic and continues with the
// next sibling (spec.md §7's propagation rule).
type Status int

const (
	StatusSuccess Status = iota
	StatusInvalidParameter
	StatusInvalidCapsule
	StatusInvalidFlashDescriptor
	StatusInvalidVolume
	StatusInvalidFile
	StatusInvalidSection
	StatusInvalidFIT
	StatusInvalidMicrocode
	StatusInvalidACM
	StatusInvalidBGKeyManifest
	StatusInvalidBGBootPolicy
	StatusTruncatedImage
	StatusVolumesNotFound
	StatusEmptyRegion
	StatusDepexParseFailed
	StatusElementsNotFound
	StatusUnknownItemType
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidParameter:
		return "INVALID_PARAMETER"
	case StatusInvalidCapsule:
		return "INVALID_CAPSULE"
	case StatusInvalidFlashDescriptor:
		return "INVALID_FLASH_DESCRIPTOR"
	case StatusInvalidVolume:
		return "INVALID_VOLUME"
	case StatusInvalidFile:
		return "INVALID_FILE"
	case StatusInvalidSection:
		return "INVALID_SECTION"
	case StatusInvalidFIT:
		return "INVALID_FIT"
	case StatusInvalidMicrocode:
		return "INVALID_MICROCODE"
	case StatusInvalidACM:
		return "INVALID_ACM"
	case StatusInvalidBGKeyManifest:
		return "INVALID_BG_KEY_MANIFEST"
	case StatusInvalidBGBootPolicy:
		return "INVALID_BG_BOOT_POLICY"
	case StatusTruncatedImage:
		return "TRUNCATED_IMAGE"
	case StatusVolumesNotFound:
		return "VOLUMES_NOT_FOUND"
	case StatusEmptyRegion:
		return "EMPTY_REGION"
	case StatusDepexParseFailed:
		return "DEPEX_PARSE_FAILED"
	case StatusElementsNotFound:
		return "ELEMENTS_NOT_FOUND"
	case StatusUnknownItemType:
		return "UNKNOWN_ITEM_TYPE"
	default:
		return fmt.Sprintf("STATUS(%d)", int(s))
	}
}

// Error adapts a Status into an error for functions that return (value,
// error) rather than a bare Status.
func (s Status) Error() string { return s.String() }
