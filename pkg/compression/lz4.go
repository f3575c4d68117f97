// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compression

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4"
)

// decodeLZ4 decodes a byte slice of LZ4 data. Some vendor BIOS images embed
// an LZ4-compressed blob ahead of an inner firmware volume under a Raw or
// Firmware-Volume-Image section, with no dedicated GUID for it in the PI
// spec. Neither Decompress nor the parser calls decodeLZ4 or LooksLikeLZ4,
// so such blobs are not decoded.
func decodeLZ4(encodedData []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewBuffer(encodedData)))
}

// lz4FrameMagic is the little-endian LZ4 frame format magic number.
var lz4FrameMagic = []byte{0x04, 0x22, 0x4D, 0x18}

// LooksLikeLZ4 reports whether buf begins with the LZ4 frame magic.
func LooksLikeLZ4(buf []byte) bool {
	return len(buf) >= 4 && bytes.Equal(buf[:4], lz4FrameMagic)
}
