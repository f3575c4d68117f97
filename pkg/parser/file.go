// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parser

import (
	"encoding/binary"

	"github.com/uefitree/uefitree/pkg/guid"
	"github.com/uefitree/uefitree/pkg/item"
)

const (
	ffsHeaderMinSize    = 24 // EFI_FFS_FILE_HEADER
	ffsHeaderExtMinSize = 32 // EFI_FFS_FILE_HEADER2

	// ffsAttribLarge and ffsAttribTailPresent share bit 0: revision-1
	// volumes (no large-file support) read it as TAIL_PRESENT, revision-2+
	// volumes read it as LARGE_FILE. Never both on the same volume.
	ffsAttribLarge       = 0x01
	ffsAttribChecksum    = 0x40
	ffsAttribTailPresent = 0x01

	ffsFixedChecksum  = 0x55
	ffsFixedChecksum2 = 0xAA
)

// ffsAlignmentTable maps the 3-bit DATA_ALIGNMENT field to a power-of-two
// byte alignment (spec.md §4.3.5).
var ffsAlignmentTable = [8]uint{0, 4, 7, 9, 10, 12, 15, 16}

// ffsFileHeader mirrors the teacher's FirmwareFileHeader
// (uefi/firmwarefile.go), minus the field tags this project doesn't use.
type ffsFileHeader struct {
	Name       guid.GUID
	CheckHdr   uint8
	CheckFile  uint8
	Type       uint8
	Attributes uint8
	Size       [3]uint8
	State      uint8
}

func (h ffsFileHeader) isLarge() bool    { return h.Attributes&ffsAttribLarge != 0 }
func (h ffsFileHeader) hasChecksum() bool { return h.Attributes&ffsAttribChecksum != 0 }
func (h ffsFileHeader) alignmentExp() uint {
	return ffsAlignmentTable[(h.Attributes&0x38)>>3]
}
func (h ffsFileHeader) smallSize() uint64 {
	return uint64(h.Size[0]) | uint64(h.Size[1])<<8 | uint64(h.Size[2])<<16
}

// ffsFileSize reads enough of a candidate file header to determine its total
// size (small or extended), without committing to a full parse. Returns
// ok=false if there isn't even enough data for the minimal header.
func ffsFileSize(data []byte) (size uint64, extended bool, ok bool) {
	if len(data) < ffsHeaderMinSize {
		return 0, false, false
	}
	hdr := readFFSHeader(data)
	if hdr.Size == [3]uint8{0xFF, 0xFF, 0xFF} {
		if len(data) < ffsHeaderExtMinSize {
			return 0, true, false
		}
		ext := binary.LittleEndian.Uint64(data[ffsHeaderMinSize : ffsHeaderMinSize+8])
		if ext == 0xFFFFFFFFFFFFFFFF {
			return 0, true, false
		}
		return ext, true, true
	}
	return hdr.smallSize(), false, true
}

func readFFSHeader(data []byte) ffsFileHeader {
	var h ffsFileHeader
	copy(h.Name[:], data[0:16])
	h.CheckHdr = data[16]
	h.CheckFile = data[17]
	h.Type = data[18]
	h.Attributes = data[19]
	h.Size = [3]uint8{data[20], data[21], data[22]}
	h.State = data[23]
	return h
}

// parseFile implements spec.md §4.3.5. fileData is already sliced to the
// file's total extended size. Returns the new File item's handle, or
// InvalidHandle if the header was rejected outright.
func (c *ctx) parseFile(parent item.Handle, offset uint64, fileData []byte, vd *item.VolumeData, extended bool) item.Handle {
	hdr := readFFSHeader(fileData)
	headerSize := ffsHeaderMinSize
	if extended {
		headerSize = ffsHeaderExtMinSize
	}

	// Header checksum: the stored CheckHdr byte is produced so that the
	// header sums to zero once State and CheckFile (computed afterwards,
	// and so not yet known) are zeroed out. Verification zeroes those same
	// two bytes but keeps the real CheckHdr byte in the sum.
	headerCopy := append([]byte(nil), fileData[:headerSize]...)
	headerCopy[17] = 0
	headerCopy[23] = 0
	var sum uint8
	for _, b := range headerCopy {
		sum += b
	}

	name := hdr.Name.String()
	fileType := item.Subtype(hdr.Type)

	header := fileData[:headerSize]
	body := fileData[headerSize:]

	hasTail := vd.Revision == 1 && hdr.Attributes&ffsAttribTailPresent != 0 && fileType != item.FileTypePad
	var tail []byte
	if hasTail && len(body) >= 2 {
		tail = body[len(body)-2:]
		body = body[:len(body)-2]
	}

	h, err := c.tree.AddItem(parent, offset, item.KindFile, fileType, name, "", "", header, body, tail, false)
	if err != nil {
		c.diag.Add(parent, "unable to add file item: %v", err)
		return item.InvalidHandle
	}

	fd := &item.FileData{GUID: hdr.Name, EmptyByte: vd.EmptyByte, IsLarge: hdr.isLarge(), HasTail: hasTail}
	if hasTail {
		fd.TailValue = uint16(tail[0]) | uint16(tail[1])<<8
	}
	c.tree.Item(h).ParsingData.File = fd

	if sum != 0 {
		c.diag.Add(h, "file %s header checksum mismatch", name)
	}

	if hdr.hasChecksum() {
		var bodySum uint8
		for _, b := range body {
			bodySum += b
		}
		if bodySum+hdr.CheckFile != 0 {
			c.diag.Add(h, "file %s body checksum mismatch", name)
		}
	} else {
		want := uint8(ffsFixedChecksum2)
		if vd.Revision == 1 {
			want = ffsFixedChecksum
		}
		if hdr.CheckFile != want {
			c.diag.Add(h, "file %s has checksumming disabled but checksum byte 0x%02X does not match the fixed value 0x%02X", name, hdr.CheckFile, want)
		}
	}

	alignExp := hdr.alignmentExp()
	if alignExp > 0 {
		align := uint64(1) << alignExp
		if offset%align != 0 {
			c.diag.Add(h, "file %s is misaligned for its declared data alignment 0x%X", name, align)
		} else if vd.Alignment != 0 && align > uint64(vd.Alignment) && !vd.WeakAligned {
			c.diag.Add(h, "file %s alignment 0x%X exceeds enclosing volume alignment 0x%X", name, align, vd.Alignment)
		}
	}

	if fileType > item.FileTypeMMCoreStandalone && fileType != item.FileTypePad {
		c.diag.Add(h, "file %s has unknown type 0x%02X", name, hdr.Type)
	}

	if hdr.Name == *guid.VolumeTopFile {
		c.tree.SetText(h, "Volume Top File")
	}
	if hdr.Name == *guid.DXECore {
		c.tree.Item(h).AppendInfo("DXE Core")
		if c.bgDXECore == item.InvalidHandle {
			c.bgDXECore = h
		}
	}

	c.dispatchFileBody(h, offset+uint64(headerSize), body, fileType, hdr.Name)
	return h
}

func (c *ctx) dispatchFileBody(fh item.Handle, bodyOffset uint64, body []byte, fileType item.Subtype, fileGUID guid.GUID) {
	switch fileType {
	case item.FileTypePad:
		c.parsePadFileBody(fh, bodyOffset, body)
	case item.FileTypeRaw, item.FileTypeAll:
		switch fileGUID {
		case *guid.NVAR:
			c.tree.SetText(fh, "NVRAM_NVAR")
			c.parseNVARStore(fh, bodyOffset, body)
		case *guid.PhoenixHashFile, *guid.AMIHashFile, *guid.AMIExternalDefault:
			c.tree.SetText(fh, "Vendor hash file")
		default:
			if fileGUID == *guid.PEIApriori || fileGUID == *guid.DXEApriori {
				c.parseAprioriBody(fh, body)
			} else {
				c.parseRawArea(fh, bodyOffset, body)
			}
		}
	default:
		c.parseSections(fh, bodyOffset, body)
	}
}

// parsePadFileBody implements spec.md §4.3.5's PAD dispatch: split into an
// 8-byte-aligned FreeSpace prefix and a Padding tail.
func (c *ctx) parsePadFileBody(fh item.Handle, offset uint64, body []byte) {
	if len(body) == 0 {
		return
	}
	firstNonEmpty := len(body)
	fi := c.tree.Item(fh).ParsingData.File
	empty := byte(0xFF)
	if fi != nil {
		empty = fi.EmptyByte
	}
	for i, b := range body {
		if b != empty {
			firstNonEmpty = i
			break
		}
	}
	freeEnd := (firstNonEmpty / 8) * 8
	if freeEnd > 0 {
		c.tree.AddItem(fh, offset, item.KindFreeSpace, 0, "Free space", "", "", nil, body[:freeEnd], nil, false)
	}
	if freeEnd < len(body) {
		c.addPadding(fh, offset+uint64(freeEnd), body[freeEnd:])
	}
}

// parseAprioriBody implements spec.md §4.3.7's apriori handler: a raw
// sequence of 16-byte GUIDs, no further structure.
func (c *ctx) parseAprioriBody(fh item.Handle, body []byte) {
	count := len(body) / 16
	if count == 0 {
		return
	}
	c.tree.SetText(fh, "PEI/DXE apriori file")
	for i := 0; i < count; i++ {
		var g guid.GUID
		copy(g[:], body[i*16:i*16+16])
		c.tree.Item(fh).AppendInfo(g.String())
	}
}
