// Copyright 2017-2021 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"encoding/binary"
	"fmt"
)

// entryHeadersSize is the on-disk size of EntryHeaders: 8 (address) + 3
// (size) + 1 (reserved) + 2 (version) + 1 (type/checksum-valid) + 1
// (checksum) = 16 bytes, per "Table 1-1" of the FIT specification.
const entryHeadersSize = 16

// EntryHeaders is the fixed 16-byte "FIT Entry Format" record. One of these
// precedes every component referenced from the Firmware Interface Table.
type EntryHeaders struct {
	// Address is the component's base physical address (not an offset into
	// the image), aligned to 16 bytes. For the header entry itself this
	// field instead holds the "_FIT_   " magic.
	Address uint64
	// Size is the component size in units of 16 bytes, except for entry
	// types whose size must instead be parsed from the component itself
	// (microcode, ACMs).
	Size24 [3]byte
	_      byte // reserved, must be zero
	// Version is a binary-coded-decimal component version.
	Version uint16
	// TypeAndChecksumValid packs the 7-bit EntryType in bits 0-6 and the
	// "checksum valid" flag in bit 7.
	TypeAndChecksumValid uint8
	Checksum             uint8
}

// Type returns the entry's type code.
func (h *EntryHeaders) Type() EntryType { return EntryType(h.TypeAndChecksumValid & 0x7f) }

// IsChecksumValid reports whether the C_V bit is set; when unset, Checksum
// must be ignored by consumers.
func (h *EntryHeaders) IsChecksumValid() bool { return h.TypeAndChecksumValid&0x80 != 0 }

// SizeBytes returns the component size in bytes: the Size24 field counts
// 16-byte units, so its value is multiplied by 16. For entry types whose size must be derived from the
// component's own header (microcode, startup ACM), callers must not rely on
// this value.
func (h *EntryHeaders) SizeBytes() uint32 {
	b := []byte{h.Size24[0], h.Size24[1], h.Size24[2], 0}
	return binary.LittleEndian.Uint32(b) << 4
}

// CalculateChecksum recomputes the entry's checksum per point 4.0 of the
// FIT specification: it returns the value the checksum byte must hold so
// that all 16 bytes of the entry, checksum included, sum to zero modulo 256.
func (h *EntryHeaders) CalculateChecksum() uint8 {
	buf := h.marshal()
	buf[15] = 0
	var sum uint8
	for _, b := range buf {
		sum += b
	}
	return -sum
}

func (h *EntryHeaders) marshal() []byte {
	buf := make([]byte, entryHeadersSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Address)
	copy(buf[8:11], h.Size24[:])
	buf[11] = 0
	binary.LittleEndian.PutUint16(buf[12:14], h.Version)
	buf[14] = h.TypeAndChecksumValid
	buf[15] = h.Checksum
	return buf
}

func parseEntryHeaders(b []byte) (*EntryHeaders, error) {
	if len(b) < entryHeadersSize {
		return nil, fmt.Errorf("FIT entry headers truncated: %d bytes, want %d", len(b), entryHeadersSize)
	}
	h := &EntryHeaders{
		Address: binary.LittleEndian.Uint64(b[0:8]),
		Version: binary.LittleEndian.Uint16(b[12:14]),
	}
	copy(h.Size24[:], b[8:11])
	h.TypeAndChecksumValid = b[14]
	h.Checksum = b[15]
	return h, nil
}
