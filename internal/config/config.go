// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the device profile cmd/ubiattach needs to open a
// medium.Medium and configure an attach.Config: PEB geometry and the
// optional-feature flags spec.md §9 names. Profiles are JSONC
// (JSON-with-comments) files, parsed with github.com/tailscale/hujson the
// same way the calvinalkan-agent-task corpus loads its own JSONC config.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/tailscale/hujson"
)

// Profile is the on-disk shape of a device profile.
type Profile struct {
	PEBSize  int `json:"peb_size"`
	PEBCount int `json:"peb_count"`

	// DataOffset is the data_offset field every EC header on this medium
	// agrees on (spec.md §6); vid_hdr_offset is always right after the EC
	// header, so only data_offset needs to be configurable.
	DataOffset int `json:"data_offset"`

	EnableTLCTracking   bool `json:"enable_tlc_tracking"`
	EnableLowPageBackup bool `json:"enable_low_page_backup"`
	EnableFastmap       bool `json:"enable_fastmap"`

	// DevicePath names the raw block device or regular file
	// cmd/ubiattach should open. Empty means scan and fsck attach a fresh,
	// fully erased in-memory medium of this geometry instead.
	DevicePath string `json:"device_path,omitempty"`
}

// Default returns the geometry cmd/ubiattach uses when no profile is
// given: 128 PEBs of 128 KiB, data immediately following a 64-byte EC
// header and a 64-byte VID header.
func Default() Profile {
	return Profile{
		PEBSize:    128 * 1024,
		PEBCount:   128,
		DataOffset: 128,
	}
}

// Load reads and parses a JSONC device profile from path, merging onto
// Default() so a profile only needs to override what differs from it.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "config: read %s", path)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "config: %s: invalid JSONC", path)
	}

	p := Default()
	if err := json.Unmarshal(standardized, &p); err != nil {
		return Profile{}, errors.Wrapf(err, "config: %s: invalid JSON", path)
	}

	return p, p.validate(path)
}

func (p Profile) validate(path string) error {
	switch {
	case p.PEBSize <= 0:
		return errors.Errorf("config: %s: peb_size must be positive", path)
	case p.PEBCount <= 0:
		return errors.Errorf("config: %s: peb_count must be positive", path)
	case p.DataOffset <= 0 || p.DataOffset >= p.PEBSize:
		return errors.Errorf("config: %s: data_offset must lie within one PEB", path)
	}

	return nil
}
