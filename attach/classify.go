// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Component B (spec.md §4.B): the PEB classifier. classifyPEB runs the
// header decoder (§4.A) on one PEB, then routes the result to the correct
// disposition per spec.md's decision table, forwarding good (ec, vid_hdr)
// pairs on to the attach snapshot store (§4.D) and the reconciler (§4.C).

package attach

import (
	"github.com/charmbracelet/log"

	"github.com/cznic/ubi/medium"
)

// scanContext bundles the inputs classifyPEB and discriminateCorruption
// need beyond the medium and snapshot.
type scanContext struct {
	dataOffset int
	tlcPEB     func(pnum int) bool
	logger     *log.Logger
}

// classifyPEB implements spec.md §4.B for one PEB.
func classifyPEB(m medium.Medium, s *Snapshot, pnum int, sc scanContext) error {
	ec := ReadEC(m, pnum)
	if isIOErr(ec.Outcome) {
		return &medium.IOError{PNum: pnum, Op: "read_ec", Err: ec.Err}
	}

	switch ec.Outcome {
	case medium.AllFF:
		s.AddToList(&PEB{PNum: pnum, EC: ecUnknown}, ListErase, false)
		s.EmptyCount++
		return nil
	case medium.AllFFBitflips:
		p := &PEB{PNum: pnum, EC: ecUnknown, ScrubNeeded: true}
		s.AddToList(p, ListErase, false)
		s.EmptyCount++
		return nil
	}

	vid := ReadVID(m, pnum)
	if isIOErr(vid.Outcome) {
		return &medium.IOError{PNum: pnum, Op: "read_vid", Err: vid.Err}
	}

	ecGood := ec.Outcome == medium.OK || ec.Outcome == medium.Bitflips
	ecBad := ec.Outcome == medium.BadHeader || ec.Outcome == medium.BadHeaderECC
	ecScrub := ec.Outcome == medium.Bitflips
	isTLC := s.SLC != nil && sc.tlcPEB != nil && sc.tlcPEB(pnum)

	switch {
	case ecGood && (vid.Outcome == medium.OK || vid.Outcome == medium.Bitflips):
		s.noteEC(ec.Header.EraseCounter, isTLC)
		bitflips := ecScrub || vid.Outcome == medium.Bitflips
		return s.AddToAV(m, pnum, ec.Header.EraseCounter, vid.Header, bitflips)

	case ecGood && vid.Outcome == medium.AllFF:
		p := &PEB{PNum: pnum, EC: ec.Header.EraseCounter, ScrubNeeded: ecScrub}
		s.noteEC(ec.Header.EraseCounter, isTLC)
		if ecScrub {
			s.AddToList(p, ListErase, false)
		} else {
			s.AddToList(p, ListFree, false)
		}
		return nil

	case ecGood && vid.Outcome == medium.AllFFBitflips:
		p := &PEB{PNum: pnum, EC: ec.Header.EraseCounter, ScrubNeeded: true}
		s.noteEC(ec.Header.EraseCounter, isTLC)
		s.AddToList(p, ListErase, false)
		return nil

	case ecGood && (vid.Outcome == medium.BadHeader || vid.Outcome == medium.BadHeaderECC):
		return discriminateCorruption(m, s, pnum, ec.Header.EraseCounter, sc)

	case ecBad && (vid.Outcome == medium.OK || vid.Outcome == medium.Bitflips):
		if err := s.AddToAV(m, pnum, ecUnknown, vid.Header, true); err != nil {
			return err
		}
		sc.logger.Warnf("attach: PEB %d: EC header unreadable (%s), LEB accepted with unknown erase counter", pnum, ec.Outcome)
		return nil

	case ec.Outcome == medium.BadHeaderECC && vid.Outcome == medium.BadHeaderECC:
		s.MaybeBadCount++
		s.AddToList(&PEB{PNum: pnum, EC: ecUnknown}, ListErase, false)
		return nil

	case ecBad && (vid.Outcome == medium.BadHeader || vid.Outcome == medium.BadHeaderECC):
		s.AddToList(&PEB{PNum: pnum, EC: ecUnknown}, ListErase, false)
		return nil

	default:
		return &FormatError{PNum: pnum, Reason: "unreachable header-outcome combination"}
	}
}

// discriminateCorruption implements spec.md §4.B.1: EC is good but the VID
// header is corrupt. Read the data area and decide between type-1
// (power-cut remnant, goes to erase) and type-2 (unexpected, goes to
// corrupt and counts against the corruption budget).
func discriminateCorruption(m medium.Medium, s *Snapshot, pnum int, ec int64, sc scanContext) error {
	buf := make([]byte, m.PEBSize()-sc.dataOffset)
	rr := m.ReadData(buf, pnum, 0, len(buf))
	if rr.Err != nil {
		return &medium.IOError{PNum: pnum, Op: "read_data", Err: rr.Err}
	}

	switch rr.Outcome {
	case medium.Bitflips, medium.AllFFBitflips, medium.BadHeader, medium.BadHeaderECC:
		s.AddToList(&PEB{PNum: pnum, EC: ec}, ListErase, false)
		return nil
	}

	if m.CheckPattern(rr.Data, 0xFF) {
		s.AddToList(&PEB{PNum: pnum, EC: ec}, ListErase, false)
		return nil
	}

	s.AddCorrupt(&PEB{PNum: pnum, EC: ec})
	max := corruptionBudget(m.PEBCount())
	if s.CorruptCount > max {
		return &CorruptionBudgetError{Corrupt: s.CorruptCount, Budget: max}
	}

	return nil
}

// corruptionBudget implements spec.md §4.E.1's max(PEB_count/20, 8).
func corruptionBudget(pebCount int) int {
	b := pebCount / 20
	if b < 8 {
		b = 8
	}

	return b
}
