// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildACM(keyAndSig []byte) []byte {
	headerSize := binary.Size(ACMHeader{})
	total := headerSize + len(keyAndSig)
	h := ACMHeader{
		ChipsetID:    0x0601,
		ModuleVendor: 0x8086,
		Date:         0x20230401,
		Size:         uint32(total / 4),
	}
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, h)
	buf.Write(keyAndSig)
	return buf.Bytes()
}

func TestParseACM(t *testing.T) {
	keyAndSig := bytes.Repeat([]byte{0xAB}, 64)
	data := buildACM(keyAndSig)

	acm, err := ParseACM(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0601), acm.ChipsetID)
	assert.Equal(t, uint32(0x8086), acm.ModuleVendor)
	assert.Equal(t, keyAndSig, acm.KeyAndSignature)
}

func TestParseACMRejectsTruncatedHeader(t *testing.T) {
	_, err := ParseACM(make([]byte, 8))
	assert.Error(t, err)
}

func TestParseACMRejectsWrongModuleType(t *testing.T) {
	data := buildACM(nil)
	data[0] = 1 // ModuleType, low byte
	_, err := ParseACM(data)
	assert.Error(t, err)
}

func TestDispatchRecognizesACMEntries(t *testing.T) {
	acmData := buildACM(bytes.Repeat([]byte{0xCD}, 32))
	e := EntryHeaders{Address: 0x1000, TypeAndChecksumValid: uint8(EntryTypeStartupACM)}
	e.Size24 = [3]byte{byte(len(acmData) / 16), 0, 0}

	tbl := Table{e}
	entries := Dispatch(tbl, acmData, func(addr uint64) (int, bool) {
		if addr == 0x1000 {
			return 0, true
		}
		return 0, false
	})
	require.Len(t, entries, 1)
	require.NoError(t, entries[0].ParseError)
	require.NotNil(t, entries[0].ACM)
	assert.Equal(t, uint16(0x0601), entries[0].ACM.ChipsetID)
}
