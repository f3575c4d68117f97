// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	defaultMicrocodeDataSize  = 2000
	defaultMicrocodeTotalSize = 2048
)

// MicrocodeHeader is the fixed-size header of an Intel microcode update, as
// referenced by a FIT entry of type EntryTypeMicrocode.
type MicrocodeHeader struct {
	HeaderVersion            uint32 // must be 0x1
	HeaderRevision           uint32
	HeaderDate               uint32 // packed BCD, MMDDYYYY
	HeaderProcessorSignature uint32
	HeaderChecksum           uint32
	HeaderLoaderRevision     uint32
	HeaderProcessorFlags     uint32
	HeaderDataSize           uint32 // 0 means defaultMicrocodeDataSize
	HeaderTotalSize          uint32 // ignored (defaultMicrocodeTotalSize used) when HeaderDataSize is 0
	Reserved1                [3]uint32
}

func (h MicrocodeHeader) dataSize() uint32 {
	if h.HeaderDataSize > 0 {
		return h.HeaderDataSize
	}
	return defaultMicrocodeDataSize
}

func (h MicrocodeHeader) totalSize() uint32 {
	if h.HeaderDataSize > 0 {
		return h.HeaderTotalSize
	}
	return defaultMicrocodeTotalSize
}

// MicrocodeExtendedSignature is one entry of a microcode update's optional
// extended signature table, used when the same update applies to several
// processor signature/flags combinations.
type MicrocodeExtendedSignature struct {
	Signature      uint32
	ProcessorFlags uint32
	Checksum       uint32
}

type microcodeExtSigTableHeader struct {
	Count    uint32
	Checksum uint32
	Reserved [3]uint32
}

// Microcode is a fully parsed Intel microcode update.
type Microcode struct {
	MicrocodeHeader
	Data               []byte
	ExtendedSignatures []MicrocodeExtendedSignature
}

func (m *Microcode) String() string {
	s := fmt.Sprintf("sig=0x%x, pf=0x%x, rev=0x%x, total size=0x%x, date=%04x-%02x-%02x",
		m.HeaderProcessorSignature, m.HeaderProcessorFlags, m.HeaderRevision,
		m.totalSize(), m.HeaderDate&0xffff, m.HeaderDate>>24, (m.HeaderDate>>16)&0xff)
	for i, sig := range m.ExtendedSignatures {
		s += fmt.Sprintf("\nextended signature[%d]: sig=0x%x, pf=0x%x", i, sig.Signature, sig.ProcessorFlags)
	}
	return s
}

// ParseMicrocode parses an Intel microcode update, validating the header
// checksum and, if present, the extended signature table's checksum.
// Grounded on the teacher's pkg/intel/microcode.ParseIntelMicrocode.
func ParseMicrocode(r io.Reader) (*Microcode, error) {
	var m Microcode
	if err := binary.Read(r, binary.LittleEndian, &m.MicrocodeHeader); err != nil {
		return nil, fmt.Errorf("microcode: failed to read header: %w", err)
	}

	headerSize := uint32(binary.Size(MicrocodeHeader{}))
	if m.totalSize() < m.dataSize()+headerSize {
		return nil, fmt.Errorf("microcode: bad data file size")
	}
	if m.HeaderLoaderRevision != 1 || m.HeaderVersion != 1 {
		return nil, fmt.Errorf("microcode: invalid version or loader revision")
	}
	if m.dataSize()%4 != 0 || m.totalSize()%4 != 0 {
		return nil, fmt.Errorf("microcode: data/total size not 32-bit aligned")
	}

	m.Data = make([]byte, m.dataSize())
	if err := binary.Read(r, binary.LittleEndian, &m.Data); err != nil {
		return nil, fmt.Errorf("microcode: failed to read data: %w", err)
	}
	if sum := sumUint32LE(&m.MicrocodeHeader, m.Data); sum != 0 {
		return nil, fmt.Errorf("microcode: header checksum is not null: 0x%x", sum)
	}

	if m.totalSize() <= m.dataSize()+headerSize {
		return &m, nil
	}

	var extHeader microcodeExtSigTableHeader
	if err := binary.Read(r, binary.LittleEndian, &extHeader); err != nil {
		return nil, fmt.Errorf("microcode: failed to read extended signature table: %w", err)
	}
	for i := uint32(0); i < extHeader.Count; i++ {
		var sig MicrocodeExtendedSignature
		if err := binary.Read(r, binary.LittleEndian, &sig); err != nil {
			return nil, fmt.Errorf("microcode: failed to read extended signature %d: %w", i, err)
		}
		m.ExtendedSignatures = append(m.ExtendedSignatures, sig)
	}
	if sum := sumUint32LE(&extHeader, m.ExtendedSignatures); sum != 0 {
		return nil, fmt.Errorf("microcode: extended signature table checksum is not null: 0x%x", sum)
	}

	return &m, nil
}

// sumUint32LE serializes its arguments in order and sums the result as
// little-endian uint32 words, per the DWORD-checksum scheme used throughout
// Intel microcode and FIT structures (the sum, including the stored
// checksum field, must be zero modulo 2^32).
func sumUint32LE(parts ...interface{}) uint32 {
	var buf bytes.Buffer
	for _, p := range parts {
		_ = binary.Write(&buf, binary.LittleEndian, p)
	}
	var checksum uint32
	for {
		var word uint32
		if err := binary.Read(&buf, binary.LittleEndian, &word); err != nil {
			break
		}
		checksum += word
	}
	return checksum
}
