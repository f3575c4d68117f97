// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compression

// applyX86BCJDecodeFilter reverses the x86 branch/call/jump address
// converter EDK2's LzmaF86Compress applies before LZMA-compressing PE/TE
// code, so that CALL/JMP rel32 targets are restored to their original
// relative form after LZMA decompression. This is the decode side of the
// well-known x86 BCJ filter (7-Zip Bra86.c); no package in the retrieved
// corpus exposes it for a raw byte buffer (ulikunitz/xz only applies BCJ
// filters internally for its own .xz container format), so it is
// implemented directly — see DESIGN.md.
func applyX86BCJDecodeFilter(data []byte) []byte {
	const ip uint32 = 0
	size := len(data)
	if size < 5 {
		return data
	}
	var maskToAllowedStatus = [8]bool{true, true, true, false, true, false, false, false}
	var maskToBitNumber = [8]uint32{0, 1, 2, 2, 3, 3, 3, 3}

	test86MSByte := func(b byte) bool { return b == 0x00 || b == 0xFF }

	prevMask := uint32(0)
	prevPos := -1
	pos := 0
	limit := size - 5
	for pos <= limit {
		if data[pos]&0xFE != 0xE8 {
			pos++
			continue
		}
		d := pos - prevPos
		prevPos = pos
		if d > 3 {
			prevMask = 0
		} else {
			prevMask = (prevMask << uint(d-1)) & 0x7
			if prevMask != 0 {
				b := data[pos+4-int(maskToBitNumber[prevMask])]
				if !maskToAllowedStatus[prevMask] || test86MSByte(b) {
					prevMask = ((prevMask << 1) & 0x7) | 1
					pos++
					continue
				}
			}
		}
		if test86MSByte(data[pos+4]) {
			src := uint32(data[pos+1]) | uint32(data[pos+2])<<8 |
				uint32(data[pos+3])<<16 | uint32(data[pos+4])<<24
			var dest uint32
			for {
				dest = src - (ip + uint32(pos))
				if prevMask == 0 {
					break
				}
				idx := maskToBitNumber[prevMask] * 8
				b := byte(dest >> (24 - idx))
				if !test86MSByte(b) {
					break
				}
				src = dest ^ ((uint32(1) << (32 - idx)) - 1)
			}
			data[pos+4] = byte(0 - ((dest >> 24) & 1))
			data[pos+3] = byte(dest >> 16)
			data[pos+2] = byte(dest >> 8)
			data[pos+1] = byte(dest)
			pos += 5
		} else {
			prevMask = ((prevMask << 1) & 0x7) | 1
			pos++
		}
	}
	return data
}
