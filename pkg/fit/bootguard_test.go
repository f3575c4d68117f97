// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildVendorHashFile(entries []vendorHashEntry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		_ = binary.Write(&buf, binary.LittleEndian, e)
	}
	return buf.Bytes()
}

func TestParseVendorHashFile(t *testing.T) {
	digest := sha256.Sum256([]byte("range-one"))
	body := buildVendorHashFile([]vendorHashEntry{
		{Offset: 0x1000, Size: 0x20, Digest: digest},
	})
	ranges, err := ParseVendorHashFile(body)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, OriginVendorHash, ranges[0].Origin)
	assert.Equal(t, uint64(0x1000), ranges[0].Start)
	assert.Equal(t, uint64(0x20), ranges[0].Size)
}

func TestParseVendorHashFileRejectsUnalignedBody(t *testing.T) {
	_, err := ParseVendorHashFile(make([]byte, 7))
	assert.Error(t, err)
}

func TestParseMicrosoftPMDARangesDelegatesToVendorHash(t *testing.T) {
	digest := sha256.Sum256([]byte("pmda"))
	body := buildVendorHashFile([]vendorHashEntry{{Offset: 0x4000, Size: 0x10, Digest: digest}})
	ranges, err := ParseMicrosoftPMDARanges(body)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, uint64(0x4000), ranges[0].Start)
}

func TestValidateProtectedRangesReportsMismatch(t *testing.T) {
	original := make([]byte, 0x40)
	for i := range original {
		original[i] = byte(i)
	}
	goodDigest := sha256.Sum256(original[0x10:0x20])

	ranges := []ProtectedRange{
		{Origin: OriginBootGuard, Start: 0x10, Size: 0x10, Digest: goodDigest},
		{Origin: OriginBootGuard, Start: 0x20, Size: 0x10, Digest: [32]byte{0xFF}},
	}
	violations, err := ValidateProtectedRanges(original, ranges)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, uint64(0x20), violations[0].Range.Start)
}

func TestValidateProtectedRangesRejectsOutOfBoundsRange(t *testing.T) {
	original := make([]byte, 0x10)
	ranges := []ProtectedRange{{Start: 0, Size: 0x20}}
	_, err := ValidateProtectedRanges(original, ranges)
	assert.Error(t, err)
}

func TestParseBootPolicyManifestIBBSegmentsSkipsUnmeasured(t *testing.T) {
	digest := sha256.Sum256([]byte("bpm"))
	var buf bytes.Buffer
	hdr := bpmIBBSHeader{StructureID: [2]byte{'I', 'B'}, Version: 1, Digest: digest, SegmentCount: 2}
	_ = binary.Write(&buf, binary.LittleEndian, hdr)
	_ = binary.Write(&buf, binary.LittleEndian, ibbSegmentHeader{Flags: ibbSegmentNotMeasured, Base: 0x1000, Size: 0x10})
	_ = binary.Write(&buf, binary.LittleEndian, ibbSegmentHeader{Flags: 0, Base: 0x2000, Size: 0x20})

	ranges, err := ParseBootPolicyManifestIBBSegments(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, uint64(0x2000), ranges[0].Start)
	assert.Equal(t, digest, ranges[0].Digest)
}
