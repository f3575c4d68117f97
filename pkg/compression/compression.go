// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compression implements the decompression service described in
// spec.md §4.2: a pure function that, given a compressed byte slice and a
// declared compression type, returns the decompressed bytes plus the
// algorithm actually used. Modeled on the teacher's Compressor interface in
// this same file, but restructured as a single Decompress entry point since
// the spec's contract is a function of (bytes, declared type), not a
// pluggable per-GUID codec registry — GUID dispatch still happens, but one
// level up in the GUID-defined section parser (pkg/parser/section.go).
package compression

import "fmt"

// DeclaredType is the compression type a section header declares
// (EFI_COMPRESSION_SECTION.CompressionType).
type DeclaredType int

// Declared compression types (spec.md §4.2).
const (
	NotCompressed DeclaredType = iota
	EFIStandard
	Customized
)

// Algorithm identifies the codec that actually produced a given output.
type Algorithm int

// Algorithms (spec.md §4.2: "Supports four algorithms").
const (
	AlgorithmNone Algorithm = iota
	AlgorithmEFI11
	AlgorithmTiano
	AlgorithmLZMA
	AlgorithmLZMAF86
	AlgorithmUndecided
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "None"
	case AlgorithmEFI11:
		return "EFI 1.1"
	case AlgorithmTiano:
		return "Tiano"
	case AlgorithmLZMA:
		return "LZMA"
	case AlgorithmLZMAF86:
		return "LZMA (x86 filter)"
	case AlgorithmUndecided:
		return "Undecided"
	default:
		return "Unknown"
	}
}

// ErrDecompFailed is returned when no decoder yields valid output
// (spec.md §4.2, status code DECOMP_FAILED).
var ErrDecompFailed = fmt.Errorf("DECOMP_FAILED: no decoder produced valid output")

// Result is the outcome of a Decompress call. Primary is always populated on
// success. Alternate is populated only when the input is ambiguous between
// two candidate decodings: Algorithm == AlgorithmUndecided for the EFI
// 1.1/Tiano ambiguity, or Algorithm == AlgorithmLZMA with
// AlternateAlgorithm == AlgorithmLZMAF86 for the CUSTOMIZED LZMA/LZMA-F86
// ambiguity. Callers that can try parsing each candidate (compressed
// sections, spec.md §4.3.6) pick whichever parses; see pkg/parser/section.go.
type Result struct {
	Algorithm          Algorithm
	Primary            []byte
	Alternate          []byte
	AlternateAlgorithm Algorithm
}

// Decompress implements the contract in spec.md §4.2.
func Decompress(input []byte, declared DeclaredType) (Result, error) {
	switch declared {
	case NotCompressed:
		return Result{Algorithm: AlgorithmNone, Primary: input}, nil

	case EFIStandard:
		efi11Out, efi11Err := decodeEFI11(input)
		tianoOut, tianoErr := decodeTiano(input)
		switch {
		case efi11Err == nil && tianoErr == nil:
			return Result{
				Algorithm:          AlgorithmUndecided,
				Primary:            tianoOut,
				Alternate:          efi11Out,
				AlternateAlgorithm: AlgorithmEFI11,
			}, nil
		case tianoErr == nil:
			return Result{Algorithm: AlgorithmTiano, Primary: tianoOut}, nil
		case efi11Err == nil:
			return Result{Algorithm: AlgorithmEFI11, Primary: efi11Out}, nil
		default:
			return Result{}, ErrDecompFailed
		}

	case Customized:
		plain, err := decodeLZMA(input)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrDecompFailed, err)
		}
		filtered := applyX86BCJDecodeFilter(append([]byte(nil), plain...))
		return Result{
			Algorithm:          AlgorithmLZMA,
			Primary:            plain,
			Alternate:          filtered,
			AlternateAlgorithm: AlgorithmLZMAF86,
		}, nil

	default:
		return Result{}, fmt.Errorf("unknown declared compression type %d", declared)
	}
}
