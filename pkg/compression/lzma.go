// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compression

import (
	"bytes"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// decodeLZMA decodes a raw LZMA1 stream as emitted by EDK2's LzmaCompress,
// matching the teacher's SystemLZMA.Decode, which also falls back to a pure
// Go decoder rather than shelling out (the encoder side, irrelevant here
// since there is no write path, is the only place the teacher shells out to
// xz).
func decodeLZMA(encodedData []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(encodedData))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
