// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package guid

// Well-known GUIDs referenced throughout the parser. Names follow the
// conventions used by UEFITool/EDK2 so they read the same in diagnostics.
var (
	// Capsule GUIDs (spec.md §4.3 step 1).
	EFICapsule        = MustParse("3B6686BD-0D76-4030-B70E-B5519E2FC5A0")
	IntelCapsule      = MustParse("BD86663B-760D-3040-B70E-B5519E2FC5A0")
	LenovoCapsule     = MustParse("E5A2BBD1-0F24-4F1A-BAC1-B4A35C3AA1C4")
	LenovoCapsule2    = MustParse("3BB5C071-FC45-4539-A6F3-140CFDCD1D61")
	ToshibaCapsule    = MustParse("389CC6F2-1EA8-467B-AB8A-78E769AE2A15")
	AptioSignedCap    = MustParse("4A3CA68B-7723-48FB-803D-578CC1FEC44D")
	AptioUnsignedCap  = MustParse("D9B99178-FC0D-41D1-A6E4-25492CFA53A6")

	// Firmware volume filesystem GUIDs.
	FFS1  = MustParse("7A9354D9-0468-444A-81CE-0BF617D890DF")
	FFS2  = MustParse("8C8CE578-8A3D-4F1C-9935-896185C32DD3")
	FFS3  = MustParse("5473C07A-3DCB-4DCA-BD6F-1E9689E7349A")
	EVSA  = MustParse("FFF12B8D-7696-4C8B-A985-2747075B4F50")
	NVAR  = MustParse("CEF5B9A3-476D-497F-9FDC-E98143E0422C")
	EVSA2 = MustParse("00504624-8A59-4EEB-BD0F-6B36E96128E0")

	// Special files.
	VolumeTopFile = MustParse("1BA0062E-C779-4582-8566-336AE8F78F09")
	DXECore       = MustParse("D6A2CB7F-6A18-4E2F-B43B-9920A733700A")
	PEIApriori    = MustParse("1B45CC0A-156A-428A-AF62-49864DA0E6E6")
	DXEApriori    = MustParse("FC510EE7-FFDC-11D4-BD41-0080C73C8881")

	// Vendor protected-hash / NVRAM-adjacent files consumed by type tag only.
	PhoenixHashFile    = MustParse("9BA47665-A296-4C1A-A877-7D7587524B3A")
	AMIHashFile        = MustParse("8DF6F766-1357-4C29-A567-06AF65374D86")
	AMIExternalDefault = MustParse("70CA7B05-FF7A-4DF9-B7DD-A6D800DEBAB2")
	MicrosoftPMDAFile  = MustParse("A7119423-5EED-4EB8-A5D6-8D33D1A1B432")

	// GUIDed-section schemes (§4.3.6).
	CRC32GUID        = MustParse("FC1BCDB0-7D31-49AA-936A-A4600D9DD083")
	LZMAGUID         = MustParse("EE4E5898-3914-4259-9D6E-DC7BD79403CF")
	LZMAF86GUID      = MustParse("D42AE6BD-1352-4BFB-909A-CA72A6EAE889")
	TianoCompressGUID = MustParse("A31280AD-481E-41B6-95E8-127F4C984779")
	RSA2048SHA256GUID = MustParse("67CDF910-A5D3-11D4-9A06-0090273FC14D")
	FirmwareContentsSignedGUID = MustParse("0F9D89E8-9259-4F76-A5AF-0C89E34023DF")

	// NVRAM store GUIDs.
	VSSStoreMain       = MustParse("FFF12B8D-7696-4C8B-A985-2747075B4F50")
	VSSStoreAdditional = MustParse("00504624-8A59-4EEB-BD0F-6B36E96128E0")
)

// CapsuleGUIDs lists the recognised capsule signatures in the order the
// first pass probes them (spec.md §4.3 step 1).
var CapsuleGUIDs = []*GUID{
	EFICapsule, IntelCapsule, LenovoCapsule, LenovoCapsule2,
	ToshibaCapsule, AptioSignedCap, AptioUnsignedCap,
}

// FVGUIDNames maps a firmware volume filesystem GUID to a display name.
var FVGUIDNames = map[GUID]string{
	*FFS1:  "FFS1",
	*FFS2:  "FFS2",
	*FFS3:  "FFS3",
	*EVSA:  "NVRAM_EVSA",
	*NVAR:  "NVRAM_NVAR",
	*EVSA2: "NVRAM_EVSA2",
}
