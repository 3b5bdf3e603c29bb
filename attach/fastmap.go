// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Component F (spec.md §4.F): the fast-attach dispatcher. attach probes
// for a fastmap anchor among the first FastMaxStart PEBs and falls back to
// a full scan when it is missing or invalid.

package attach

import "github.com/cznic/ubi/medium"

// FastmapOutcome tags the result of probing for a fastmap anchor.
type FastmapOutcome int

const (
	// FastmapFound means scan_fast located a valid anchor and fully
	// populated snap itself; scanAll must not run.
	FastmapFound FastmapOutcome = iota
	// FastmapNotPresent means no anchor was found in the probed range;
	// the caller should fall back to scan_all(start=FastMaxStart).
	FastmapNotPresent
	// FastmapBad means an anchor was found but failed validation; the
	// caller must discard snap and fall back to scan_all(start=0).
	FastmapBad
)

// FastmapReader is spec.md §4.F's scan_fast contract: given a medium and an
// empty snapshot to populate, probe the first FastMaxStart PEBs for a
// fastmap anchor (identified by FastmapSBVolID) and, if found and valid,
// reconstruct the full attach state into snap without a linear scan.
//
// Implementations out of scope for this package (spec.md §1 names the fast
// -attach reader as an external collaborator); DefaultFastmapReader below
// always reports FastmapNotPresent so Attach degrades gracefully when no
// real implementation is wired in via Config.
type FastmapReader interface {
	ScanFast(m medium.Medium, snap *Snapshot) (FastmapOutcome, error)
}

// DefaultFastmapReader is the zero-cost FastmapReader used when
// Config.EnableFastmap is true but Config.Fastmap is nil: it always
// reports FastmapNotPresent, which is indistinguishable from "this medium
// genuinely has no fastmap" from the dispatcher's point of view.
type DefaultFastmapReader struct{}

// ScanFast implements FastmapReader.
func (DefaultFastmapReader) ScanFast(medium.Medium, *Snapshot) (FastmapOutcome, error) {
	return FastmapNotPresent, nil
}

// Attach implements spec.md §4.F's attach(force_scan): the top-level entry
// point wiring the fast-attach dispatcher to the full scanner (§4.E).
// dataOffset is the data_offset value this medium's EC headers agree on;
// callers typically obtain it by reading PEB 0's EC
// header before calling Attach, or by hardcoding a known on-flash layout.
func Attach(m medium.Medium, dataOffset int, forceScan bool, cfg Config) (*Snapshot, error) {
	snap := NewSnapshot(cfg.EnableLowPageBackup, cfg.EnableTLCTracking)

	smallMedium := m.PEBCount() <= FastMaxStart

	switch {
	case forceScan || smallMedium || !cfg.EnableFastmap:
		if err := scanAll(m, snap, 0, dataOffset, cfg); err != nil {
			return nil, err
		}

	default:
		reader := cfg.Fastmap
		if reader == nil {
			reader = DefaultFastmapReader{}
		}

		outcome, err := reader.ScanFast(m, snap)
		if err != nil {
			return nil, err
		}

		switch outcome {
		case FastmapFound:
			// snap was fully populated by ScanFast; nothing more to do.
		case FastmapNotPresent:
			if err := scanAll(m, snap, FastMaxStart, dataOffset, cfg); err != nil {
				return nil, err
			}
		case FastmapBad:
			snap = NewSnapshot(cfg.EnableLowPageBackup, cfg.EnableTLCTracking)
			if err := scanAll(m, snap, 0, dataOffset, cfg); err != nil {
				return nil, err
			}
		}
	}

	if cfg.EnableLowPageBackup {
		if err := recoverLowPageBackup(m, snap, dataOffset, cfg); err != nil {
			return nil, err
		}
	}

	if err := SelfCheck(m, snap); err != nil {
		return nil, err
	}

	return snap, nil
}
