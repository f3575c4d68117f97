// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parser

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"

	"github.com/uefitree/uefitree/pkg/compression"
	"github.com/uefitree/uefitree/pkg/guid"
	"github.com/uefitree/uefitree/pkg/item"
)

const (
	sectionHeaderMinSize = 4 // EFI_COMMON_SECTION_HEADER: Size[3] + Type
	sectionHeaderExtSize = 8 // + ExtendedSize uint32 when Size == 0xFFFFFF

	// appleSectionUsedMarker is stored at offset 3 of the common header on
	// the Apple-variant layout this project does not fully decode (see
	// DESIGN.md); recognising it lets the scanner skip past it instead of
	// misreading a bogus section type.
	appleSectionUsedMarker = 0xFB
)

type sectionHeaderInfo struct {
	totalSize  uint64
	headerSize int
	sectionType item.Subtype
	appleUsed  bool
}

func readSectionHeader(data []byte) (sectionHeaderInfo, bool) {
	if len(data) < sectionHeaderMinSize {
		return sectionHeaderInfo{}, false
	}
	size3 := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
	typeByte := data[3]

	if typeByte == appleSectionUsedMarker {
		if len(data) < sectionHeaderMinSize+1 {
			return sectionHeaderInfo{}, false
		}
		return sectionHeaderInfo{
			totalSize:   uint64(size3),
			headerSize:  sectionHeaderMinSize + 1,
			sectionType: item.Subtype(data[4]),
			appleUsed:   true,
		}, size3 != 0 && size3 != 0xFFFFFF
	}

	if size3 == 0xFFFFFF {
		if len(data) < sectionHeaderExtSize {
			return sectionHeaderInfo{}, false
		}
		ext := binary.LittleEndian.Uint32(data[4:8])
		if ext <= uint32(sectionHeaderExtSize) {
			return sectionHeaderInfo{}, false
		}
		return sectionHeaderInfo{totalSize: uint64(ext), headerSize: sectionHeaderExtSize, sectionType: item.Subtype(typeByte)}, true
	}
	if size3 < sectionHeaderMinSize {
		return sectionHeaderInfo{}, false
	}
	return sectionHeaderInfo{totalSize: uint64(size3), headerSize: sectionHeaderMinSize, sectionType: item.Subtype(typeByte)}, true
}

// parseSections implements spec.md §4.3.6/4.3.7's normal (non-dry-run) loop
// over a file or encapsulating section's body.
func (c *ctx) parseSections(parent item.Handle, baseOffset uint64, data []byte) Status {
	var cursor uint64
	for cursor+sectionHeaderMinSize <= uint64(len(data)) {
		offset := align4(cursor)
		if offset != cursor && offset+sectionHeaderMinSize > uint64(len(data)) {
			break
		}
		remaining := data[offset:]
		hi, ok := readSectionHeader(remaining)
		if !ok || hi.totalSize > uint64(len(remaining)) {
			break
		}
		if offset > cursor {
			c.addPadding(parent, baseOffset+cursor, data[cursor:offset])
		}
		sectionData := remaining[:hi.totalSize]
		c.parseOneSection(parent, baseOffset+offset, sectionData, hi)
		cursor = offset + hi.totalSize
	}
	if cursor < uint64(len(data)) {
		if isAllByte(data[cursor:], 0xFF) || isAllByte(data[cursor:], 0x00) {
			c.addPadding(parent, baseOffset+cursor, data[cursor:])
		} else {
			c.diag.Add(parent, "trailing non-section, non-padding bytes at offset 0x%X", baseOffset+cursor)
		}
	}
	return StatusSuccess
}

func align4(v uint64) uint64 { return (v + 3) &^ 3 }

// sectionsParseCleanly is the dry-run counterpart used to resolve
// ambiguous-algorithm decompression (spec.md §4.3.6, §9): walk the header
// chain without mutating the tree and report whether it covers the buffer
// with syntactically valid section headers.
func sectionsParseCleanly(data []byte) bool {
	var cursor uint64
	if len(data) == 0 {
		return false
	}
	for cursor+sectionHeaderMinSize <= uint64(len(data)) {
		offset := align4(cursor)
		if offset+sectionHeaderMinSize > uint64(len(data)) {
			return offset >= uint64(len(data)) || isAllByte(data[offset:], 0xFF) || isAllByte(data[offset:], 0x00)
		}
		hi, ok := readSectionHeader(data[offset:])
		if !ok || hi.totalSize > uint64(len(data))-offset {
			return false
		}
		cursor = offset + hi.totalSize
	}
	return cursor >= uint64(len(data)) || isAllByte(data[cursor:], 0xFF) || isAllByte(data[cursor:], 0x00)
}

func (c *ctx) parseOneSection(parent item.Handle, offset uint64, sectionData []byte, hi sectionHeaderInfo) {
	header := sectionData[:hi.headerSize]
	body := sectionData[hi.headerSize:]
	name := fmt.Sprintf("0x%02X", int(hi.sectionType))
	if n, ok := sectionTypeNames[hi.sectionType]; ok {
		name = n
	}

	switch hi.sectionType {
	case item.SectionTypeCompression:
		c.parseCompressedSection(parent, offset, header, body, name)
	case item.SectionTypeGUIDDefined:
		c.parseGUIDDefinedSection(parent, offset, header, body, name)
	case item.SectionTypeFreeformSubtypeGUID:
		c.parseFreeformGUIDSection(parent, offset, header, body, name)
	default:
		h, err := c.tree.AddItem(parent, offset, item.KindSection, hi.sectionType, name, "", "", header, body, nil, false)
		if err != nil {
			c.diag.Add(parent, "unable to add section: %v", err)
			return
		}
		c.handleSectionBody(h, offset+uint64(hi.headerSize), body, hi.sectionType)
	}
}

var sectionTypeNames = map[item.Subtype]string{
	item.SectionTypeCompression:         "EFI_SECTION_COMPRESSION",
	item.SectionTypeGUIDDefined:         "EFI_SECTION_GUID_DEFINED",
	item.SectionTypeDisposable:          "EFI_SECTION_DISPOSABLE",
	item.SectionTypePE32:                "EFI_SECTION_PE32",
	item.SectionTypePIC:                 "EFI_SECTION_PIC",
	item.SectionTypeTE:                  "EFI_SECTION_TE",
	item.SectionTypeDXEDepex:            "EFI_SECTION_DXE_DEPEX",
	item.SectionTypeVersion:             "EFI_SECTION_VERSION",
	item.SectionTypeUserInterface:       "EFI_SECTION_USER_INTERFACE",
	item.SectionTypeCompatibility16:     "EFI_SECTION_COMPATIBILITY16",
	item.SectionTypeFirmwareVolumeImage: "EFI_SECTION_FIRMWARE_VOLUME_IMAGE",
	item.SectionTypeFreeformSubtypeGUID: "EFI_SECTION_FREEFORM_SUBTYPE_GUID",
	item.SectionTypeRaw:                 "EFI_SECTION_RAW",
	item.SectionTypePEIDepex:            "EFI_SECTION_PEI_DEPEX",
	item.SectionTypeMMDepex:             "EFI_SECTION_MM_DEPEX",
	item.SectionTypePostcode:            "EFI_SECTION_POSTCODE",
}

type compressionSectionHeader struct {
	UncompressedLength uint32
	CompressionType    uint8
}

// parseCompressedSection implements spec.md §4.3.6's Compressed-section
// rule, including the Undecided-algorithm dry-run resolution.
func (c *ctx) parseCompressedSection(parent item.Handle, offset uint64, header, body []byte, name string) {
	if len(body) < 5 {
		c.diag.Add(parent, "compression section body too short for its own header")
		return
	}
	var csh compressionSectionHeader
	csh.UncompressedLength = binary.LittleEndian.Uint32(body[0:4])
	csh.CompressionType = body[4]
	payload := body[5:]

	sh, err := c.tree.AddItem(parent, offset, item.KindSection, item.SectionTypeCompression, name, "", "",
		header, body, nil, false)
	if err != nil {
		c.diag.Add(parent, "unable to add compression section: %v", err)
		return
	}

	var declared compression.DeclaredType
	switch csh.CompressionType {
	case 0:
		declared = compression.NotCompressed
	case 1:
		declared = compression.EFIStandard
	case 2:
		declared = compression.Customized
	default:
		c.diag.Add(sh, "unknown compression type %d", csh.CompressionType)
		return
	}

	result, err := compression.Decompress(payload, declared)
	if err != nil {
		c.diag.Add(sh, "decompression failed: %v", err)
		return
	}

	chosen := result.Primary
	algo := result.Algorithm
	if result.Algorithm == compression.AlgorithmUndecided || result.AlternateAlgorithm != compression.AlgorithmNone {
		primaryOK := sectionsParseCleanly(result.Primary)
		switch {
		case primaryOK:
			chosen, algo = result.Primary, result.Algorithm
			if algo == compression.AlgorithmUndecided {
				// Primary holds the Tiano decode of an undecided payload.
				algo = compression.AlgorithmTiano
			}
		case sectionsParseCleanly(result.Alternate):
			chosen, algo = result.Alternate, result.AlternateAlgorithm
		default:
			c.diag.Add(sh, "could not resolve ambiguous compression algorithm; neither candidate parses as a valid section list")
			chosen, algo = result.Primary, result.Algorithm
		}
	}

	if csh.UncompressedLength != 0 && uint64(csh.UncompressedLength) != uint64(len(chosen)) {
		c.diag.Add(sh, "decompressed size %d does not match declared uncompressed length %d", len(chosen), csh.UncompressedLength)
	}

	c.tree.Item(sh).ParsingData.SectionCompressed = &item.SectionCompressedData{
		CompressionType:    int(declared),
		UncompressedLength: csh.UncompressedLength,
		AlgorithmUsed:      algo.String(),
	}
	c.tree.Item(sh).AppendInfo(fmt.Sprintf("Compression algorithm: %s", algo.String()))

	if declared == compression.NotCompressed {
		c.parseSections(sh, offset+uint64(len(header)), chosen)
		return
	}
	c.tree.SetCompressed(sh, true)
	// The decompressed payload has no natural offset in the original
	// buffer; it is addressed relative to its compressed container, which
	// is itself marked compressed so the second pass skips memory-address
	// assignment for everything beneath sh (spec.md §4.4 precondition).
	c.parseSections(sh, offset+uint64(len(header)), chosen)
}

// parseGUIDDefinedSection implements spec.md §4.3.6's GUID-defined dispatch.
func (c *ctx) parseGUIDDefinedSection(parent item.Handle, offset uint64, header, body []byte, name string) {
	if len(body) < 20 {
		c.diag.Add(parent, "GUID-defined section body too short for its own header")
		return
	}
	var g guid.GUID
	copy(g[:], body[0:16])
	dataOffset := binary.LittleEndian.Uint16(body[16:18])
	attributes := binary.LittleEndian.Uint16(body[18:20])

	displayName := g.String()
	if dataOffset_ := int(dataOffset); dataOffset_ >= len(header)+len(body) {
		dataOffset = uint16(len(header) + len(body))
	}

	sh, err := c.tree.AddItem(parent, offset, item.KindSection, item.SectionTypeGUIDDefined, displayName, "", "",
		header, body, nil, false)
	if err != nil {
		c.diag.Add(parent, "unable to add GUID-defined section: %v", err)
		return
	}
	c.tree.Item(sh).ParsingData.SectionGuided = &item.SectionGuidedData{GUID: g, DataOffset: dataOffset, Attributes: attributes}

	payloadStart := int(dataOffset) - len(header)
	if payloadStart < 0 || payloadStart > len(body) {
		c.diag.Add(sh, "GUID-defined section data offset 0x%X falls outside the section", dataOffset)
		return
	}
	payload := body[payloadStart:]
	payloadOffset := offset + uint64(dataOffset)

	const processingRequired = 0x01
	const authStatusValid = 0x02

	switch g {
	case *guid.CRC32GUID:
		if attributes&authStatusValid != 0 {
			if len(payload) < 4 {
				c.diag.Add(sh, "CRC32 guided section too short for its stored checksum")
				break
			}
			stored := binary.LittleEndian.Uint32(payload[0:4])
			computed := crc32IEEE(payload[4:])
			if stored != computed {
				c.diag.Add(sh, "GUID defined section with invalid CRC32")
			}
			payload = payload[4:]
			payloadOffset += 4
		}
		c.parseSections(sh, payloadOffset, payload)
	case *guid.LZMAGUID, *guid.LZMAF86GUID, *guid.TianoCompressGUID:
		if attributes&processingRequired == 0 {
			c.parseSections(sh, payloadOffset, payload)
			break
		}
		result, err := compression.Decompress(payload, compression.Customized)
		if err != nil {
			c.diag.Add(sh, "LZMA decode failed: %v", err)
			break
		}
		chosen := result.Primary
		if sectionsParseCleanly(result.Alternate) && !sectionsParseCleanly(result.Primary) {
			chosen = result.Alternate
		}
		c.tree.SetCompressed(sh, true)
		c.tree.Item(sh).ParsingData.SectionGuided.ProcessingDone = true
		c.parseSections(sh, payloadOffset, chosen)
	case *guid.RSA2048SHA256GUID, *guid.FirmwareContentsSignedGUID:
		c.tree.Item(sh).AppendInfo("Certificate-type guided section: signature content not further decoded")
	default:
		c.parseRawArea(sh, payloadOffset, payload)
	}
}

// parseFreeformGUIDSection implements spec.md §4.3.6's Freeform-subtype-GUID
// rule: rename the item to the subtype GUID and keep parsing its body as
// sections.
func (c *ctx) parseFreeformGUIDSection(parent item.Handle, offset uint64, header, body []byte, name string) {
	if len(body) < 16 {
		c.diag.Add(parent, "freeform GUID section body too short for its subtype GUID")
		return
	}
	var g guid.GUID
	copy(g[:], body[0:16])
	sh, err := c.tree.AddItem(parent, offset, item.KindSection, item.SectionTypeFreeformSubtypeGUID, g.String(), "", "",
		header, body, nil, false)
	if err != nil {
		c.diag.Add(parent, "unable to add freeform GUID section: %v", err)
		return
	}
	c.tree.Item(sh).ParsingData.SectionFreeformGuided = &item.SectionFreeformGuidedData{SubtypeGUID: g}
	c.parseSections(sh, offset+uint64(len(header))+16, body[16:])
}

// handleSectionBody implements spec.md §4.3.7's remaining type-specific
// post-parse handlers (Depex, UI, Version, TE, PE32/PIC, Raw, Firmware
// Volume Image); other section types get no post-parse handling.
func (c *ctx) handleSectionBody(h item.Handle, bodyOffset uint64, body []byte, sectionType item.Subtype) {
	switch sectionType {
	case item.SectionTypeDXEDepex, item.SectionTypePEIDepex, item.SectionTypeMMDepex:
		c.parseDepex(h, body)
	case item.SectionTypeUserInterface:
		if s, ok := decodeUTF16LE(body); ok {
			c.tree.SetText(c.tree.Item(h).Parent(), s)
		}
	case item.SectionTypeVersion:
		if len(body) >= 2 {
			if s, ok := decodeUTF16LE(body[2:]); ok {
				c.tree.Item(h).AppendInfo(fmt.Sprintf("Version string: %s", s))
			}
		}
	case item.SectionTypePE32, item.SectionTypePIC:
		c.parsePE32(h, body)
	case item.SectionTypeTE:
		c.parseTE(h, bodyOffset, body)
	case item.SectionTypeRaw:
		c.parseRawSectionBody(h, body)
	case item.SectionTypeFirmwareVolumeImage:
		c.parseRawArea(h, bodyOffset, body)
	}
}

func decodeUTF16LE(data []byte) (string, bool) {
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := decoder.Bytes(data)
	if err != nil {
		return "", false
	}
	s := string(out)
	for i, r := range s {
		if r == 0 {
			s = s[:i]
			break
		}
	}
	return s, true
}

// parseDepex implements spec.md §4.3.7's Depex opcode-stream handler.
func (c *ctx) parseDepex(h item.Handle, body []byte) {
	const (
		opBefore = 0x03
		opAfter  = 0x04
		opPush   = 0x02
		opAnd    = 0x05
		opOr     = 0x06
		opNot    = 0x07
		opTrue   = 0x08
		opFalse  = 0x09
		opSOR    = 0x0A
		opEnd    = 0x00
	)
	if len(body) == 0 {
		c.diag.Add(h, "depex section is empty")
		return
	}
	i := 0
	restricted := false
	pushes := 0
	for i < len(body) {
		op := body[i]
		switch op {
		case opBefore, opAfter, opSOR:
			if i != 0 {
				c.diag.Add(h, "depex BEFORE/AFTER/SOR opcode not at start of stream")
				return
			}
			restricted = op != opSOR
			i++
		case opPush:
			if i+16 > len(body) {
				c.diag.Add(h, "depex PUSH opcode truncated")
				return
			}
			pushes++
			i += 17
		case opAnd, opOr, opNot, opTrue, opFalse:
			i++
		case opEnd:
			i++
			if restricted && pushes != 1 {
				c.diag.Add(h, "depex BEFORE/AFTER stream must contain exactly one PUSH")
			}
			return
		default:
			c.diag.Add(h, "depex stream contains unknown opcode 0x%02X", op)
			return
		}
	}
	c.diag.Add(h, "depex stream does not end in END")
}

// parsePE32 implements a best-effort DOS->PE->optional-header walk,
// diagnosing each structural mismatch without aborting.
func (c *ctx) parsePE32(h item.Handle, body []byte) {
	if len(body) < 64 || body[0] != 'M' || body[1] != 'Z' {
		c.diag.Add(h, "PE32 section does not start with a valid DOS header")
		return
	}
	peOffset := binary.LittleEndian.Uint32(body[60:64])
	if uint64(peOffset)+24 > uint64(len(body)) {
		c.diag.Add(h, "PE32 section: PE header offset out of range")
		return
	}
	if body[peOffset] != 'P' || body[peOffset+1] != 'E' || body[peOffset+2] != 0 || body[peOffset+3] != 0 {
		c.diag.Add(h, "PE32 section: missing PE signature")
		return
	}
	c.tree.Item(h).AppendInfo("PE32 image")
}

const teHeaderSize = 40

// parseTE implements spec.md §4.3.7's TE handler: store imageBase and
// adjustedImageBase for the second pass's relocation classification.
func (c *ctx) parseTE(h item.Handle, bodyOffset uint64, body []byte) {
	if len(body) < teHeaderSize || body[0] != 'V' || body[1] != 'Z' {
		c.diag.Add(h, "TE section does not start with a valid TE header")
		return
	}
	strippedSize := binary.LittleEndian.Uint32(body[4:8])
	imageBase := binary.LittleEndian.Uint64(body[16:24])

	c.tree.Item(h).ParsingData.SectionTEImage = &item.TEImageData{
		ImageBase:         imageBase,
		StrippedSize:      uint64(strippedSize),
		AdjustedImageBase: imageBase + uint64(strippedSize) - teHeaderSize,
	}
}

// parseRawSectionBody leaves every Raw section body opaque. Apriori GUID
// lists and vendor-hash/NVAR bodies are decoded only when they form the
// whole body of a RAW or ALL file (see dispatchFileBody); a Raw section
// inside a file with one of those GUIDs is not decoded.
func (c *ctx) parseRawSectionBody(h item.Handle, body []byte) {
	_ = body
}

