// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// KeyManifest is the parsed fixed-size prefix of an Intel Boot Guard Key
// Manifest (FIT entry type EntryTypeKeyManifest): the structure that signs
// off on the public key used to verify the Boot Policy Manifest.
type KeyManifest struct {
	StructureID [2]byte
	Version     uint8
	KMVersion   uint8
	KMSVN       uint8
	KMID        uint8
	_           [2]byte // reserved
	BPKeyHash   [32]byte
}

// ParseKeyManifest parses a Key Manifest's fixed header. The variable-length
// signature block that follows is outside the protected-range validation
// path and is not parsed here.
func ParseKeyManifest(data []byte) (*KeyManifest, error) {
	size := binary.Size(KeyManifest{})
	if len(data) < size {
		return nil, fmt.Errorf("key manifest: truncated, have %d bytes, want at least %d", len(data), size)
	}
	var km KeyManifest
	if err := binary.Read(bytes.NewReader(data[:size]), binary.LittleEndian, &km); err != nil {
		return nil, fmt.Errorf("key manifest: %w", err)
	}
	return &km, nil
}

// DispatchedEntry is one FIT entry paired with whatever dedicated parse
// result was produced for it, if its type is recognised.
type DispatchedEntry struct {
	Headers EntryHeaders
	// At most one of the following is non-nil, and only for a recognised
	// type with a dedicated parser; all are nil for a BIOS Policy entry and
	// for an unrecognised (tabulated-only) entry.
	Microcode           *Microcode
	ACM                 *ACM
	KeyManifest         *KeyManifest
	BootPolicyIBBRanges []ProtectedRange
	ParseError          error
}

// Dispatch parses every recognised entry in the table, handing unrecognised
// types back with all fields nil so they still show up in the table
// rendering. data is used to resolve each entry's Address to a byte slice
// via toOffset, which maps a physical address to an offset into the buffer
// that produced data (the same address_diff used by the second parse pass).
func Dispatch(t Table, data []byte, toOffset func(physAddr uint64) (int, bool)) []DispatchedEntry {
	out := make([]DispatchedEntry, 0, len(t))
	for _, hdr := range t {
		de := DispatchedEntry{Headers: hdr}
		if !hdr.Type().Recognized() {
			out = append(out, de)
			continue
		}
		off, ok := toOffset(hdr.Address)
		if !ok {
			de.ParseError = fmt.Errorf("entry at 0x%x: address does not map into the image", hdr.Address)
			out = append(out, de)
			continue
		}
		size := int(hdr.SizeBytes())
		switch hdr.Type() {
		case EntryTypeMicrocode:
			r := bytes.NewReader(data[off:])
			mc, err := ParseMicrocode(r)
			de.Microcode, de.ParseError = mc, err
		case EntryTypeStartupACM, EntryTypeDiagnosticACM:
			end := off + size
			if size == 0 || end > len(data) {
				end = len(data)
			}
			acm, err := ParseACM(data[off:end])
			de.ACM, de.ParseError = acm, err
		case EntryTypeKeyManifest:
			end := off + size
			if size == 0 || end > len(data) {
				end = len(data)
			}
			km, err := ParseKeyManifest(data[off:end])
			de.KeyManifest, de.ParseError = km, err
		case EntryTypeBootPolicyManifest:
			end := off + size
			if size == 0 || end > len(data) {
				end = len(data)
			}
			ranges, err := ParseBootPolicyManifestIBBSegments(data[off:end])
			de.BootPolicyIBBRanges, de.ParseError = ranges, err
		case EntryTypeBIOSPolicy:
			// BIOS policy records are tabulated; no protected-range content.
		}
		out = append(out, de)
	}
	return out
}
