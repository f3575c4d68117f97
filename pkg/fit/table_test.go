// Copyright 2017-2021 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEntry(addr uint64, sizeUnits uint32, typ EntryType, checksumValid bool) []byte {
	h := EntryHeaders{Address: addr, Version: 0x0100}
	h.Size24 = [3]byte{byte(sizeUnits), byte(sizeUnits >> 8), byte(sizeUnits >> 16)}
	tc := uint8(typ)
	if checksumValid {
		tc |= 0x80
	}
	h.TypeAndChecksumValid = tc
	if checksumValid {
		h.Checksum = 0 // left zero; callers that need a matching checksum set it themselves
	}
	return h.marshal()
}

func TestLocateFindsHeaderEntryAtMatchingAddress(t *testing.T) {
	const headerPhys = 0xFFFFF000
	header := makeEntry(headerPhys, 1, EntryTypeHeader, false) // one 16-byte unit: header entry only
	copy(header[0:8], fitHeaderMagic)

	region := Region{PhysBase: headerPhys, Data: header}
	tbl, physAddr, err := Locate([]Region{region}, headerPhys)
	require.NoError(t, err)
	assert.Equal(t, uint64(headerPhys), physAddr)
	require.Len(t, tbl, 1)
	assert.Equal(t, EntryTypeHeader, tbl[0].Type())
}

func TestLocateRejectsLookAlikeAtWrongAddress(t *testing.T) {
	header := makeEntry(0x1000, 1, EntryTypeHeader, false)
	copy(header[0:8], fitHeaderMagic)
	region := Region{PhysBase: 0x1000, Data: header}

	_, _, err := Locate([]Region{region}, 0xDEADBEEF)
	assert.Error(t, err)
}

func TestParseTableRejectsMisalignedLength(t *testing.T) {
	_, err := ParseTable(make([]byte, 17))
	assert.Error(t, err)
}

func TestVerifyChecksumsCatchesBadResidue(t *testing.T) {
	e := EntryHeaders{Address: 0x2000, TypeAndChecksumValid: uint8(EntryTypeMicrocode) | 0x80, Checksum: 0x01}
	tbl := Table{e}
	errs := tbl.VerifyChecksums()
	assert.Len(t, errs, 1)
}

func TestVerifyChecksumsSkipsEntriesWithoutCV(t *testing.T) {
	e := EntryHeaders{Address: 0x2000, TypeAndChecksumValid: uint8(EntryTypeMicrocode), Checksum: 0xFF}
	tbl := Table{e}
	assert.Empty(t, tbl.VerifyChecksums())
}

func TestFirstAndAll(t *testing.T) {
	tbl := Table{
		{TypeAndChecksumValid: uint8(EntryTypeMicrocode)},
		{TypeAndChecksumValid: uint8(EntryTypeMicrocode)},
		{TypeAndChecksumValid: uint8(EntryTypeBootPolicyManifest)},
	}
	assert.NotNil(t, tbl.First(EntryTypeMicrocode))
	assert.Len(t, tbl.All(EntryTypeMicrocode), 2)
	assert.Nil(t, tbl.First(EntryTypeKeyManifest))
}
