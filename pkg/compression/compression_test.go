// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompressNotCompressedPassesThrough(t *testing.T) {
	in := []byte{1, 2, 3, 4}
	res, err := Decompress(in, NotCompressed)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmNone, res.Algorithm)
	assert.Equal(t, in, res.Primary)
}

func TestDecompressCustomizedFailsOnGarbage(t *testing.T) {
	_, err := Decompress([]byte{0, 1, 2, 3}, Customized)
	assert.ErrorIs(t, err, ErrDecompFailed)
}

func TestDecompressEFIStandardFailsOnGarbage(t *testing.T) {
	_, err := Decompress([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0}, EFIStandard)
	assert.Error(t, err)
}

func TestLooksLikeLZ4(t *testing.T) {
	assert.True(t, LooksLikeLZ4([]byte{0x04, 0x22, 0x4D, 0x18, 0}))
	assert.False(t, LooksLikeLZ4([]byte{0, 0, 0, 0}))
}

func TestLooksLikeZstd(t *testing.T) {
	assert.True(t, LooksLikeZstd([]byte{0x28, 0xB5, 0x2F, 0xFD}))
	assert.False(t, LooksLikeZstd([]byte{0, 0, 0, 0}))
}

func TestX86BCJFilterRoundTripShape(t *testing.T) {
	// A synthetic buffer containing an E8 (CALL rel32) opcode followed by a
	// 4-byte little-endian relative displacement with a valid MSB (0x00 or
	// 0xFF), one of the two shapes (E8 CALL, E9 JMP) the filter transforms.
	data := []byte{0xE8, 0x10, 0x00, 0x00, 0x00, 0x90, 0x90, 0x90}
	out := applyX86BCJDecodeFilter(append([]byte(nil), data...))
	require.Len(t, out, len(data))
}
