// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ACMHeader is the fixed-size common header shared by Intel Authenticated
// Code Modules (Startup ACM and Diagnostic ACM, FIT entry types
// EntryTypeStartupACM/EntryTypeDiagnosticACM). The variable-length RSA
// public key, exponent, signature, and scratch space that follow are sized
// by KeySize/ScratchSize but are not validated here, mirroring
// ParseMicrocode's treatment of the data it does not cryptographically
// verify.
type ACMHeader struct {
	ModuleType    uint16
	ModuleSubType uint16
	HeaderLen     uint32 // in DWORDs
	HeaderVersion uint32
	ChipsetID     uint16
	Flags         uint16
	ModuleVendor  uint32
	Date          uint32 // packed BCD, MMDDYYYY
	Size          uint32 // in DWORDs, whole module including key/sig/scratch
	TXTSVN        uint16
	SEVersion     uint16
	CodeControl   uint32
	ErrorEntry    uint32
	GDTLimit      uint32
	GDTBasePtr    uint32
	SegSel        uint32
	EntryPoint    uint32
	Reserved2     [64]byte
	KeySize       uint32 // in DWORDs
	ScratchSize   uint32 // in DWORDs
}

// ACM is a parsed Intel Authenticated Code Module: the common header plus
// the raw variable-length key/signature/scratch region that follows it.
type ACM struct {
	ACMHeader
	KeyAndSignature []byte
}

func (a *ACM) String() string {
	return fmt.Sprintf("type=0x%x subtype=0x%x chipset=0x%x vendor=0x%x size=0x%x dwords date=%04x-%02x-%02x",
		a.ModuleType, a.ModuleSubType, a.ChipsetID, a.ModuleVendor, a.Size,
		a.Date&0xffff, a.Date>>24, (a.Date>>16)&0xff)
}

// ParseACM parses an Intel ACM's common header and captures the
// variable-length key/signature/scratch region that follows it as raw
// bytes, per the Size field (in DWORDs). Grounded on the layout documented
// for ParseMicrocode's sibling structure in the same FIT entry family.
func ParseACM(data []byte) (*ACM, error) {
	headerSize := binary.Size(ACMHeader{})
	if len(data) < headerSize {
		return nil, fmt.Errorf("acm: truncated, have %d bytes, want at least %d", len(data), headerSize)
	}
	var a ACM
	if err := binary.Read(bytes.NewReader(data[:headerSize]), binary.LittleEndian, &a.ACMHeader); err != nil {
		return nil, fmt.Errorf("acm: %w", err)
	}
	if a.ModuleType != 0 {
		return nil, fmt.Errorf("acm: unexpected module type 0x%x, want 0", a.ModuleType)
	}

	total := int(a.Size) * 4
	if total < headerSize {
		return nil, fmt.Errorf("acm: declared size 0x%x smaller than header", total)
	}
	if total > len(data) {
		total = len(data)
	}
	a.KeyAndSignature = append([]byte(nil), data[headerSize:total]...)
	return &a, nil
}
