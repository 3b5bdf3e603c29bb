// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package attach

import "github.com/charmbracelet/log"

// Volume id ranges, spec.md §6.
const (
	// MaxVolumes is the exclusive upper bound of the user volume id range
	// [0, MaxVolumes).
	MaxVolumes = 128

	// InternalVolStart is the first volume id reserved for internal
	// volumes (layout volume, fastmap super-block volume, fastmap data
	// volume, backup volume).
	InternalVolStart = 0x7FFFEFFF
)

// Internal volume ids, offsets from InternalVolStart.
const (
	LayoutVolID = InternalVolStart + iota
	FastmapSBVolID
	FastmapDataVolID
	BackupVolID
)

// FastMaxStart bounds how many leading PEBs scan_fast (§4.F) probes for a
// fastmap anchor before giving up.
const FastMaxStart = 64

// IORetries is the retry budget for a recovery-pass write failure (§4.I)
// before the device is switched to read-only.
const IORetries = 3

// Config selects the optional features spec.md §9 describes and carries
// the logger the scanner writes its warnings to.
type Config struct {
	// EnableTLCTracking splits erase-count statistics into SLC and TLC
	// pools (spec.md §9's SLC_BUFFER_SUPPORT).
	EnableTLCTracking bool

	// EnableLowPageBackup adds the waiting queue and runs the §4.I
	// recovery pass after the main scan (spec.md §9's LOWPAGE_BACKUP).
	EnableLowPageBackup bool

	// EnableFastmap turns on the §4.F fast-attach dispatch (spec.md §9's
	// FASTMAP). When false, Attach always runs a full scan from PEB 0.
	EnableFastmap bool

	// TLCPEB reports whether a given PEB belongs to the TLC region, used
	// only when EnableTLCTracking is set. A nil TLCPEB treats every PEB
	// as SLC.
	TLCPEB func(pnum int) bool

	// Fastmap supplies the fast-attach reader used when EnableFastmap is
	// set. A nil Fastmap falls back to DefaultFastmapReader, which always
	// reports FastmapNotPresent.
	Fastmap FastmapReader

	// BackupReader decodes the low-page backup volume's rolling log, used
	// only when EnableLowPageBackup is set. A nil BackupReader makes the
	// recovery pass a no-op.
	BackupReader BackupVolumeReader

	// PagePairer reports a source page's paired high page, used only when
	// EnableLowPageBackup is set. A nil PagePairer treats every page as
	// its own pair, which disables the high-page-empty heuristic but
	// keeps the rest of the recovery pass functional.
	PagePairer PagePairer

	// Logger receives the scanner's warnings. A nil Logger means silent
	// operation: Config.logger substitutes a logger that discards its
	// output.
	Logger *log.Logger
}

func (c Config) logger() *log.Logger {
	if c.Logger == nil {
		return log.New(discard{})
	}

	return c.Logger
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
