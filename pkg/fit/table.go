// Copyright 2017-2021 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fit locates and parses the Firmware Interface Table: the
// component registry Intel platforms place near the top of flash so the
// CPU's microcode/ACM loader can find startup modules without walking the
// volume tree.
package fit

import (
	"bytes"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
)

// fitHeaderMagic is the literal bytes the FIT header entry's Address field
// holds instead of a real address: "_FIT_   " (with three trailing spaces),
// per point 1.2.2 of the FIT specification.
var fitHeaderMagic = []byte("_FIT_   ")

// Table is the parsed sequence of FIT entry headers, index 0 always being
// the header entry itself.
type Table []EntryHeaders

// Region is a candidate byte range a caller offers up for the "_FIT_   "
// signature scan: PhysBase is the physical address Region.Data[0] would be
// mapped to once the image's VTF-derived address_diff has been applied.
type Region struct {
	PhysBase uint64
	Data     []byte
}

// Locate scans regions for the FIT header entry whose computed physical
// address matches fitPointer (the value stored in the four bytes at
// physical address 0xFFFFFFC0), and returns the raw bytes of the
// full table plus the physical address it was found at.
//
// Firmware images may contain look-alike "_FIT_   " strings that are not
// the real table (padding, string literals); only the candidate whose own
// address matches the stored pointer is accepted, matching the approach
// GetHeadersTableRangeFrom uses against a flat image, generalized here to
// work over the tree's disjoint item bodies instead of one contiguous
// buffer.
func Locate(regions []Region, fitPointer uint64) (Table, uint64, error) {
	for _, region := range regions {
		for off := 0; off+entryHeadersSize <= len(region.Data); off++ {
			if !bytes.Equal(region.Data[off:off+8], fitHeaderMagic) {
				continue
			}
			physAddr := region.PhysBase + uint64(off)
			if physAddr != fitPointer {
				continue
			}
			hdr, err := parseEntryHeaders(region.Data[off : off+entryHeadersSize])
			if err != nil {
				return nil, 0, err
			}
			tableSize := int(hdr.SizeBytes())
			if tableSize == 0 || off+tableSize > len(region.Data) {
				return nil, 0, fmt.Errorf("FIT header entry at 0x%x claims a table of %d bytes, which does not fit in its region", physAddr, tableSize)
			}
			tbl, err := ParseTable(region.Data[off : off+tableSize])
			if err != nil {
				return nil, 0, err
			}
			return tbl, physAddr, nil
		}
	}
	return nil, 0, fmt.Errorf("no FIT header entry found matching pointer 0x%x", fitPointer)
}

// ParseTable parses a flat run of 16-byte FIT entry headers.
func ParseTable(b []byte) (Table, error) {
	if len(b)%entryHeadersSize != 0 {
		return nil, fmt.Errorf("FIT table length %d is not a multiple of %d", len(b), entryHeadersSize)
	}
	var result Table
	for off := 0; off < len(b); off += entryHeadersSize {
		hdr, err := parseEntryHeaders(b[off : off+entryHeadersSize])
		if err != nil {
			return nil, err
		}
		result = append(result, *hdr)
	}
	return result, nil
}

// First returns the first entry of the given type, or nil.
func (t Table) First(entryType EntryType) *EntryHeaders {
	for i := range t {
		if t[i].Type() == entryType {
			return &t[i]
		}
	}
	return nil
}

// All returns every entry of the given type.
func (t Table) All(entryType EntryType) []EntryHeaders {
	var out []EntryHeaders
	for _, e := range t {
		if e.Type() == entryType {
			out = append(out, e)
		}
	}
	return out
}

// VerifyChecksums returns, for every entry whose C_V bit is set, an error
// if its stored checksum does not match CalculateChecksum.
func (t Table) VerifyChecksums() []error {
	var errs []error
	for i, e := range t {
		if !e.IsChecksumValid() {
			continue
		}
		if want := e.CalculateChecksum(); want != e.Checksum {
			errs = append(errs, fmt.Errorf("FIT entry #%d (%s at 0x%x): stored checksum 0x%02x does not match computed 0x%02x", i, e.Type(), e.Address, e.Checksum, want))
		}
	}
	return errs
}

// String renders the table in the tabular form used throughout the
// module's reporting surface.
func (t Table) String() string {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"#", "Type", "Address", "Size", "Version", "Checksum OK", "Checksum"})
	for i, e := range t {
		tw.AppendRow(table.Row{
			i,
			fmt.Sprintf("%s (0x%02x)", e.Type(), uint8(e.Type())),
			fmt.Sprintf("0x%x", e.Address),
			e.SizeBytes(),
			fmt.Sprintf("0x%04x", e.Version),
			e.IsChecksumValid(),
			e.Checksum,
		})
	}
	return tw.Render()
}
