// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// ProtectedRangeOrigin distinguishes Boot Guard's own IBB measurement from
// the vendor-specific hash schemes (Phoenix, AMI, Microsoft/PMDA) that
// layer additional protected ranges on top of it; it drives the red/cyan
// marking split called for in protected-range validation.
type ProtectedRangeOrigin int

const (
	OriginBootGuard ProtectedRangeOrigin = iota
	OriginVendorHash
)

func (o ProtectedRangeOrigin) String() string {
	if o == OriginBootGuard {
		return "boot_guard"
	}
	return "vendor_hash"
}

// ProtectedRange is one measured byte range: a contiguous slice of the
// original input buffer that must hash to Digest.
type ProtectedRange struct {
	Origin ProtectedRangeOrigin
	Start  uint64
	Size   uint64
	Digest [32]byte
}

// ibbSegmentHeader mirrors the fixed-size IBB segment record inside a Boot
// Policy Manifest's IBBS element (Intel Boot Guard BPM, "IBB Segment"):
// a flags word (bit 0: "not measured"), a 32-bit physical base, and a
// 32-bit size, repeated IBBSEGCOUNT times.
type ibbSegmentHeader struct {
	Flags uint32
	Base  uint32
	Size  uint32
}

const ibbSegmentNotMeasured = 1 << 0

// bpmIBBSHeader is the fixed prefix of a Boot Policy Manifest's IBBS
// (IBB Segments) element: a 2-byte structure ID, a version byte, a SHA-256
// digest of the segment list, then a count of ibbSegmentHeader records.
type bpmIBBSHeader struct {
	StructureID [2]byte
	Version     uint8
	_           uint8 // reserved/padding
	Digest      [32]byte
	SegmentCount uint16
}

// ParseBootPolicyManifestIBBSegments extracts the protected IBB ranges from
// a Boot Policy Manifest's IBBS element, skipping segments flagged as not
// measured. This is a simplification of the full Boot Policy Manifest
// (which also carries TXT and PCR-usage elements out of scope here) down to
// the element protected-range validation actually needs.
func ParseBootPolicyManifestIBBSegments(bpm []byte) ([]ProtectedRange, error) {
	headerSize := binary.Size(bpmIBBSHeader{})
	if len(bpm) < headerSize {
		return nil, fmt.Errorf("boot policy manifest: IBBS element truncated")
	}
	var hdr bpmIBBSHeader
	if err := binary.Read(bytes.NewReader(bpm[:headerSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("boot policy manifest: %w", err)
	}
	segSize := binary.Size(ibbSegmentHeader{})
	want := headerSize + int(hdr.SegmentCount)*segSize
	if len(bpm) < want {
		return nil, fmt.Errorf("boot policy manifest: IBBS element claims %d segments but data is short", hdr.SegmentCount)
	}

	var ranges []ProtectedRange
	off := headerSize
	for i := 0; i < int(hdr.SegmentCount); i++ {
		var seg ibbSegmentHeader
		if err := binary.Read(bytes.NewReader(bpm[off:off+segSize]), binary.LittleEndian, &seg); err != nil {
			return nil, fmt.Errorf("boot policy manifest: segment %d: %w", i, err)
		}
		off += segSize
		if seg.Flags&ibbSegmentNotMeasured != 0 {
			continue
		}
		ranges = append(ranges, ProtectedRange{
			Origin: OriginBootGuard,
			Start:  uint64(seg.Base),
			Size:   uint64(seg.Size),
			Digest: hdr.Digest,
		})
	}
	if len(ranges) == 0 {
		return nil, fmt.Errorf("boot policy manifest: no measured IBB segments found")
	}
	return ranges, nil
}

// vendorHashEntry is the common shape of the Phoenix and AMI (new and old)
// vendor hash tables: a repeated array of (offset, size, SHA-256) records
// describing additional ranges the vendor firmware wants measured, beyond
// what Boot Guard itself covers.
type vendorHashEntry struct {
	Offset uint32
	Size   uint32
	Digest [32]byte
}

// ParseVendorHashFile extracts protected ranges from a Phoenix or AMI
// vendor-hash file body: a flat array of vendorHashEntry records with no
// additional header, one record per protected range.
func ParseVendorHashFile(body []byte) ([]ProtectedRange, error) {
	entrySize := binary.Size(vendorHashEntry{})
	if len(body) == 0 || len(body)%entrySize != 0 {
		return nil, fmt.Errorf("vendor hash file: body length %d is not a multiple of entry size %d", len(body), entrySize)
	}
	var ranges []ProtectedRange
	for off := 0; off < len(body); off += entrySize {
		var e vendorHashEntry
		if err := binary.Read(bytes.NewReader(body[off:off+entrySize]), binary.LittleEndian, &e); err != nil {
			return nil, fmt.Errorf("vendor hash file: entry at 0x%x: %w", off, err)
		}
		ranges = append(ranges, ProtectedRange{
			Origin: OriginVendorHash,
			Start:  uint64(e.Offset),
			Size:   uint64(e.Size),
			Digest: e.Digest,
		})
	}
	return ranges, nil
}

// ParseMicrosoftPMDARanges extracts protected ranges from a Microsoft PMDA
// (Protected Measured Data Area) file, which uses the same flat
// (offset, size, digest) record shape as the Phoenix/AMI vendor hash files.
func ParseMicrosoftPMDARanges(body []byte) ([]ProtectedRange, error) {
	return ParseVendorHashFile(body)
}

// RangeViolation describes a protected range whose computed digest did not
// match the stored one.
type RangeViolation struct {
	Range    ProtectedRange
	Computed [32]byte
}

// ValidateProtectedRanges computes SHA-256 over each range's bytes taken
// from the original input buffer (never from tree-derived, possibly
// decompressed, slices) and reports every mismatch.
func ValidateProtectedRanges(original []byte, ranges []ProtectedRange) ([]RangeViolation, error) {
	var violations []RangeViolation
	for _, r := range ranges {
		end := r.Start + r.Size
		if end > uint64(len(original)) || end < r.Start {
			return nil, fmt.Errorf("protected range [0x%x, 0x%x) extends past buffer end", r.Start, end)
		}
		sum := sha256.Sum256(original[r.Start:end])
		if sum != r.Digest {
			violations = append(violations, RangeViolation{Range: r, Computed: sum})
		}
	}
	return violations, nil
}
