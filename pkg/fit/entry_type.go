// Copyright 2017-2021 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

// EntryType is the 7-bit type code of a FIT entry (bits 0-6 of the
// "type and checksum valid" byte).
type EntryType uint8

const (
	EntryTypeHeader             = EntryType(0x00)
	EntryTypeMicrocode          = EntryType(0x01)
	EntryTypeStartupACM         = EntryType(0x02)
	EntryTypeDiagnosticACM      = EntryType(0x03)
	EntryTypeBIOSStartupModule  = EntryType(0x07)
	EntryTypeTPMPolicy          = EntryType(0x08)
	EntryTypeBIOSPolicy         = EntryType(0x09)
	EntryTypeTXTPolicy          = EntryType(0x0A)
	EntryTypeKeyManifest        = EntryType(0x0B)
	EntryTypeBootPolicyManifest = EntryType(0x0C)
	EntryTypeCSESecureBoot      = EntryType(0x10)
	EntryTypeFeaturePolicy      = EntryType(0x2D)
	EntryTypeJMPDebugPolicy     = EntryType(0x2F)
	EntryTypeSkip               = EntryType(0x7F)
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeHeader:
		return "fit_header"
	case EntryTypeMicrocode:
		return "microcode_update"
	case EntryTypeStartupACM:
		return "startup_acm"
	case EntryTypeDiagnosticACM:
		return "diagnostic_acm"
	case EntryTypeBIOSStartupModule:
		return "bios_startup_module"
	case EntryTypeTPMPolicy:
		return "tpm_policy"
	case EntryTypeBIOSPolicy:
		return "bios_policy"
	case EntryTypeTXTPolicy:
		return "txt_policy"
	case EntryTypeKeyManifest:
		return "key_manifest"
	case EntryTypeBootPolicyManifest:
		return "boot_policy_manifest"
	case EntryTypeCSESecureBoot:
		return "cse_secure_boot"
	case EntryTypeFeaturePolicy:
		return "feature_policy"
	case EntryTypeJMPDebugPolicy:
		return "jmp_debug_policy"
	case EntryTypeSkip:
		return "skip"
	}
	return "unknown"
}

// Recognized reports whether this entry type is one Dispatch knows. Every
// recognised type except BIOS Policy has a dedicated body parser; BIOS
// Policy entries are tabulated only. Unrecognised types are still tabulated in the table,
// per the "unrecognised types are accepted and tabulated without further
// parsing" rule.
func (t EntryType) Recognized() bool {
	switch t {
	case EntryTypeMicrocode, EntryTypeStartupACM, EntryTypeDiagnosticACM,
		EntryTypeBIOSPolicy, EntryTypeKeyManifest, EntryTypeBootPolicyManifest:
		return true
	}
	return false
}
