// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parser

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uefitree/uefitree/pkg/guid"
	"github.com/uefitree/uefitree/pkg/item"
)

func TestParseRejectsTooSmallBuffer(t *testing.T) {
	res := Parse(make([]byte, 28))
	assert.Equal(t, StatusInvalidParameter, res.Status)
	assert.Equal(t, 1, res.Diag.Len())
}

func TestParseAcceptsMinimalBuffer(t *testing.T) {
	res := Parse(make([]byte, minBufferLength))
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 1, res.Tree.Item(res.Tree.Root()).RowCount())
}

// ffsHeaderChecksum computes the CheckHdr byte so that the stored 24-byte
// FFS header (State and CheckFile zeroed) sums to zero, matching the
// verification rule in parseFile.
func ffsHeaderChecksum(header []byte) byte {
	cp := append([]byte(nil), header...)
	cp[16] = 0 // CheckHdr
	cp[17] = 0 // CheckFile
	cp[23] = 0 // State
	var sum uint8
	for _, b := range cp {
		sum += b
	}
	return uint8(-int8(sum))
}

// buildFFSFile assembles a minimal revision-2 FFS file: a freeform-type file
// with a single Raw section wrapping body.
func buildFFSFile(name guid.GUID, sectionBody []byte) []byte {
	section := make([]byte, 4+len(sectionBody))
	total := len(section)
	section[0] = byte(total)
	section[1] = byte(total >> 8)
	section[2] = byte(total >> 16)
	section[3] = byte(item.SectionTypeRaw)
	copy(section[4:], sectionBody)

	fileLen := 24 + len(section)
	header := make([]byte, 24)
	copy(header[0:16], name[:])
	header[18] = byte(item.FileTypeFreeForm)
	header[19] = 0 // Attributes: no large-file, no body checksum
	header[20] = byte(fileLen)
	header[21] = byte(fileLen >> 8)
	header[22] = byte(fileLen >> 16)
	header[23] = 0 // State
	header[17] = ffsFixedChecksum2
	header[16] = ffsHeaderChecksum(header)

	return append(header, section...)
}

// buildVolume wraps a single FFS file in a minimal revision-2 FFSv2 volume.
func buildVolume(file []byte) []byte {
	const headerLen = volumeFixedHeaderSize + 16 // one block-map entry + terminator
	total := headerLen + len(file)

	hdr := make([]byte, headerLen)
	copy(hdr[16:32], guid.FFS2[:])
	binary.LittleEndian.PutUint64(hdr[32:40], uint64(total))
	copy(hdr[40:44], fvSignature)
	binary.LittleEndian.PutUint32(hdr[44:48], volumeErasePolarityBit)
	binary.LittleEndian.PutUint16(hdr[48:50], uint16(headerLen))
	hdr[54] = 0
	hdr[55] = 2 // revision

	binary.LittleEndian.PutUint32(hdr[56:60], 1)              // block count
	binary.LittleEndian.PutUint32(hdr[60:64], 0x1000)         // block size
	// bytes 64:72 are the all-zero terminating block-map entry

	var sum16 uint16
	for i := 0; i+1 < len(hdr); i += 2 {
		sum16 += uint16(hdr[i]) | uint16(hdr[i+1])<<8
	}
	checksum := uint16(-int16(sum16))
	binary.LittleEndian.PutUint16(hdr[50:52], checksum)

	return append(hdr, file...)
}

func TestParseBuildsVolumeFileSectionTree(t *testing.T) {
	name := *guid.MustParse("12345678-1234-1234-1234-123456789ABC")
	volume := buildVolume(buildFFSFile(name, []byte("hello section")))

	res := Parse(volume)
	require.Equal(t, StatusSuccess, res.Status)

	for _, d := range res.Diag.Entries() {
		t.Logf("diag: %s", d.Message)
	}

	root := res.Tree.Root()
	require.Equal(t, 1, res.Tree.Item(root).RowCount())
	image := res.Tree.Item(root).ChildHandle(0)
	require.Equal(t, item.KindImage, res.Tree.Item(image).Kind)
	require.Equal(t, 1, res.Tree.Item(image).RowCount())

	vol := res.Tree.Item(image).ChildHandle(0)
	require.Equal(t, item.KindVolume, res.Tree.Item(vol).Kind)
	require.Equal(t, 1, res.Tree.Item(vol).RowCount())

	file := res.Tree.Item(vol).ChildHandle(0)
	require.Equal(t, item.KindFile, res.Tree.Item(file).Kind)
	require.Equal(t, item.FileTypeFreeForm, res.Tree.Item(file).Subtype)
	assert.Equal(t, name, res.Tree.Item(file).ParsingData.File.GUID)
	require.Equal(t, 1, res.Tree.Item(file).RowCount())

	section := res.Tree.Item(file).ChildHandle(0)
	assert.Equal(t, item.KindSection, res.Tree.Item(section).Kind)
	assert.Equal(t, item.SectionTypeRaw, res.Tree.Item(section).Subtype)
	assert.Equal(t, []byte("hello section"), res.Tree.Item(section).Body)

	for _, d := range res.Diag.Entries() {
		assert.NotContains(t, d.Message, "checksum mismatch")
	}
}

func TestParseDuplicateFileGUIDDiagnostic(t *testing.T) {
	name := *guid.MustParse("12345678-1234-1234-1234-123456789ABC")
	f1 := buildFFSFile(name, []byte("one"))
	for len(f1)%8 != 0 {
		f1 = append(f1, 0)
	}
	f2 := buildFFSFile(name, []byte("two!"))
	volume := buildVolume(append(f1, f2...))

	res := Parse(volume)
	var sawDup bool
	for _, d := range res.Diag.Entries() {
		if strings.Contains(d.Message, "duplicate GUID") {
			sawDup = true
		}
	}
	assert.True(t, sawDup, "expected a duplicate-GUID diagnostic, got: %v", res.Diag.Entries())
}
