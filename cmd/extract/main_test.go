// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempImage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRunUsageErrorOnMissingImage(t *testing.T) {
	assert.Equal(t, 1, run(nil))
}

func TestRunPrintsTreeWithNoGUIDs(t *testing.T) {
	path := writeTempImage(t, make([]byte, 64))
	assert.Equal(t, 0, run([]string{path}))
}

func TestRunReturnsBitmaskForMissingGUIDs(t *testing.T) {
	path := writeTempImage(t, make([]byte, 64))
	rc := run([]string{path, "1BA0062E-C779-4582-8566-336AE8F78F09"})
	assert.Equal(t, 1, rc) // bit 0 set: the VTF GUID is not present in an empty image
}

func TestRunRejectsTooManyGUIDs(t *testing.T) {
	path := writeTempImage(t, make([]byte, 64))
	args := []string{path}
	for i := 0; i < maxTrackedGUIDs+1; i++ {
		args = append(args, "1BA0062E-C779-4582-8566-336AE8F78F09")
	}
	assert.Equal(t, 1, run(args))
}
