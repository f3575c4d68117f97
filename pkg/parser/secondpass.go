// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parser

import (
	"fmt"
	"math/bits"

	"github.com/uefitree/uefitree/pkg/fit"
	"github.com/uefitree/uefitree/pkg/guid"
	"github.com/uefitree/uefitree/pkg/item"
)

// fitPointerPhysAddr is the well-known physical address (0xFFFFFFC0) whose
// stored value is the physical address of the FIT header entry (spec.md
// §4.5).
const fitPointerPhysAddr = 0xFFFFFFC0

// runSecondPass implements spec.md §4.4: compute address_diff, locate and
// validate the FIT/Boot-Guard structures, then annotate every non-compressed
// item with its memory address, TE relocation classification, and
// compressed/fixed status.
func (c *ctx) runSecondPass(lastVTF item.Handle) (bgInfo string, fitStr string) {
	vtf := c.tree.Item(lastVTF)
	addressDiff := uint64(0xFFFFFFFF) - vtf.Offset - vtf.Size() + 1

	toPhys := func(offset uint64) uint64 { return offset + addressDiff }
	toOffset := func(physAddr uint64) (int, bool) {
		off := physAddr - addressDiff
		if off > uint64(len(c.original)) {
			return 0, false
		}
		return int(off), true
	}

	fitTable, bgText := c.resolveFITAndBootGuard(toPhys, toOffset)

	_ = c.tree.Walk(c.tree.Root(), func(h item.Handle) error {
		it := c.tree.Item(h)
		if h == c.tree.Root() {
			return nil
		}
		if !it.Compressed {
			headerAddr := toPhys(it.Offset)
			dataAddr := toPhys(it.Offset + uint64(len(it.Header)))
			it.AppendInfo(fmt.Sprintf("Header memory address: 0x%X", headerAddr))
			it.AppendInfo(fmt.Sprintf("Data memory address: 0x%X", dataAddr))

			if it.Kind == item.KindSection && it.ParsingData.SectionTEImage != nil {
				classifyTE(it, dataAddr)
			}
		}
		if it.Compressed {
			it.AppendInfo("Compressed: yes")
		} else {
			it.AppendInfo("Compressed: no")
		}
		if it.Fixed {
			it.AppendInfo("Fixed: yes")
		} else {
			it.AppendInfo("Fixed: no")
		}
		return nil
	})

	return bgText, fitTable
}

// classifyTE implements spec.md §4.4 step 4: compare the TE section's
// recorded image bases against its own data memory address, tolerating a
// one-bit (power-of-two) difference to catch top-swapped-volume cases.
func classifyTE(it *item.Item, dataAddr uint64) {
	te := it.ParsingData.SectionTEImage
	switch {
	case closeEnough(te.ImageBase, dataAddr):
		te.Classification = "Original"
	case closeEnough(te.AdjustedImageBase, dataAddr):
		te.Classification = "Adjusted"
	default:
		te.Classification = "Other"
	}
	it.AppendInfo(fmt.Sprintf("TE image base classification: %s", te.Classification))
}

func closeEnough(a, b uint64) bool {
	diff := a ^ b
	return diff == 0 || bits.OnesCount64(diff) == 1
}

// resolveFITAndBootGuard implements spec.md §4.5 and §4.6.
func (c *ctx) resolveFITAndBootGuard(toPhys func(uint64) uint64, toOffset func(uint64) (int, bool)) (table string, bgInfo string) {
	off, ok := toOffset(fitPointerPhysAddr)
	if !ok || off+4 > len(c.original) {
		c.diag.Add(item.InvalidHandle, "FIT pointer location does not map into the buffer, skipping FIT discovery")
		return "", ""
	}
	fitPointer := uint64(leUint32(c.original[off : off+4]))

	var regions []fit.Region
	_ = c.tree.Walk(c.tree.Root(), func(h item.Handle) error {
		it := c.tree.Item(h)
		if h != c.tree.Root() && !it.Compressed && len(it.Header)+len(it.Body) > 0 {
			regions = append(regions, fit.Region{PhysBase: toPhys(it.Offset), Data: append(it.Header, it.Body...)})
		}
		return nil
	})

	fitTable, fitPhys, err := fit.Locate(regions, fitPointer)
	if err != nil {
		c.diag.Add(item.InvalidHandle, "FIT discovery: %v", err)
		return "", ""
	}
	_ = fitPhys

	for _, verr := range fitTable.VerifyChecksums() {
		c.diag.Add(item.InvalidHandle, "%v", verr)
	}

	entries := fit.Dispatch(fitTable, c.original, toOffset)
	var protected []fit.ProtectedRange
	var bgLines []string
	for _, e := range entries {
		if e.ParseError != nil {
			c.diag.Add(item.InvalidHandle, "FIT entry type %s: %v", e.Headers.Type(), e.ParseError)
			continue
		}
		if e.BootPolicyIBBRanges != nil {
			protected = append(protected, e.BootPolicyIBBRanges...)
			bgLines = append(bgLines, fmt.Sprintf("Boot Policy Manifest at 0x%X: %d measured IBB segments", e.Headers.Address, len(e.BootPolicyIBBRanges)))
		}
	}

	protected = append(protected, c.vendorHashRanges()...)

	if len(protected) > 0 {
		violations, verr := fit.ValidateProtectedRanges(c.original, protected)
		if verr != nil {
			c.diag.Add(item.InvalidHandle, "Boot Guard range validation: %v", verr)
		} else {
			violationSet := make(map[int]bool, len(violations))
			for _, v := range violations {
				c.diag.Add(item.InvalidHandle, "BG-protected ranges hash mismatch: range [0x%X, 0x%X) computed 0x%X", v.Range.Start, v.Range.Start+v.Range.Size, v.Computed)
				for j, r := range protected {
					if r == v.Range {
						violationSet[j] = true
					}
				}
			}
			c.markProtectedRanges(protected, violationSet)
			bgLines = append(bgLines, fmt.Sprintf("%d protected ranges checked, %d mismatches", len(protected), len(violations)))
		}
	}

	return fitTable.String(), joinLines(bgLines)
}

// vendorHashRanges scans the tree for files tagged as vendor-hash files by
// their GUID and parses their bodies for additional protected ranges
// (spec.md §4.6).
func (c *ctx) vendorHashRanges() []fit.ProtectedRange {
	var ranges []fit.ProtectedRange
	_ = c.tree.Walk(c.tree.Root(), func(h item.Handle) error {
		it := c.tree.Item(h)
		if it.Kind != item.KindFile || it.ParsingData.File == nil {
			return nil
		}
		g := it.ParsingData.File.GUID
		switch g {
		case *guid.PhoenixHashFile, *guid.AMIHashFile, *guid.AMIExternalDefault:
			if r, err := fit.ParseVendorHashFile(it.Body); err == nil {
				ranges = append(ranges, r...)
			}
		case *guid.MicrosoftPMDAFile:
			if r, err := fit.ParseMicrosoftPMDARanges(it.Body); err == nil {
				ranges = append(ranges, r...)
			}
		}
		return nil
	})
	return ranges
}

// markProtectedRanges implements the colouring half of spec.md §4.6: items
// fully inside a (matching) range are marked red (Boot Guard) or cyan
// (vendor), items partially overlapping are marked yellow.
func (c *ctx) markProtectedRanges(ranges []fit.ProtectedRange, violations map[int]bool) {
	for i, r := range ranges {
		if violations[i] {
			continue
		}
		marking := item.MarkingBootGuardRed
		if r.Origin == fit.OriginVendorHash {
			marking = item.MarkingVendorCyan
		}
		protected := item.ByteRange{Offset: r.Start, Length: r.Size}
		_ = c.tree.Walk(c.tree.Root(), func(h item.Handle) error {
			it := c.tree.Item(h)
			if h == c.tree.Root() || it.Compressed {
				return nil
			}
			itemRange := item.ByteRange{Offset: it.Offset, Length: it.Size()}
			if !itemRange.Intersect(protected) {
				return nil
			}
			if itemRange.Offset >= protected.Offset && itemRange.Offset+itemRange.Length <= protected.Offset+protected.Length {
				c.tree.SetMarking(h, marking)
			} else {
				c.tree.SetMarking(h, item.MarkingPartialYellow)
			}
			return nil
		})
	}
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
