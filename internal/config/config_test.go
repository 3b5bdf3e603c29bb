// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// NOR chip, small geometry for quick attaches
		"peb_count": 64,
		"enable_fastmap": true,
	}`), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 64, p.PEBCount)
	require.True(t, p.EnableFastmap)
	require.Equal(t, Default().PEBSize, p.PEBSize)
}

func TestLoadRejectsBadGeometry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"peb_size": 0}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.jsonc"))
	require.Error(t, err)
}
