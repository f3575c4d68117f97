// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compression

import "github.com/klauspost/compress/zstd"

// zstdMagic is the little-endian zstd frame magic number.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// LooksLikeZstd reports whether buf begins with the zstd frame magic. Some
// Intel ME firmware partitions (FPT entries under the ME region) are zstd
// compressed on newer chipsets.
func LooksLikeZstd(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}
	for i, b := range zstdMagic {
		if buf[i] != b {
			return false
		}
	}
	return true
}

// DecodeZstd decodes a zstd frame. The parser does not call it; ME
// partitions are not decoded.
func DecodeZstd(encodedData []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(encodedData, nil)
}
