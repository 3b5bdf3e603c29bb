// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Component D (spec.md §4.D): the attach snapshot store. Snapshot owns
// every PEB and Volume record it contains (spec.md §9's ownership note);
// a PEB is, at any instant, either a value in some volume's lebMap or an
// element of exactly one of the five plain queues below - never both,
// per spec.md §3 invariant 1.

package attach

import (
	"container/list"

	"github.com/cznic/ubi/medium"
	"github.com/cznic/ubi/wire"
)

// ecStats accumulates the running sum/count/min/max erase-count statistics
// spec.md §3 names ("running sums and extrema for erase counts"). Kept
// separate from Snapshot so enable_tlc_tracking (spec.md §9) can maintain
// one instance for the whole medium and one each for the SLC/TLC pools
// without duplicating the arithmetic.
type ecStats struct {
	sum   int64
	count int64
	min   int64
	max   int64
}

func newECStats() *ecStats { return &ecStats{min: -1, max: -1} }

func (s *ecStats) note(ec int64) {
	s.sum += ec
	s.count++
	if s.min < 0 || ec < s.min {
		s.min = ec
	}
	if ec > s.max {
		s.max = ec
	}
}

func (s *ecStats) mean() int64 {
	if s.count == 0 {
		return 0
	}

	return s.sum / s.count
}

// Snapshot is spec.md §3's attach_info.
type Snapshot struct {
	Volumes volumeMap

	Free    *list.List
	Erase   *list.List
	Corrupt *list.List
	Alien   *list.List
	Waiting *list.List // only used when low-page backup is enabled

	BadCount      int
	AlienCount    int
	CorruptCount  int
	EmptyCount    int
	MaybeBadCount int

	All *ecStats
	SLC *ecStats // nil unless Config.EnableTLCTracking
	TLC *ecStats // nil unless Config.EnableTLCTracking

	HighestVolID    uint32
	HaveHighestVol  bool
	MaxSqNum        uint64
	ImageSeq        uint32
	IsEmpty         bool
}

// NewSnapshot returns an empty snapshot. lowPageBackup selects whether the
// waiting queue is allocated (spec.md §3: "waiting (last one only when
// low-page-backup is enabled)").
func NewSnapshot(lowPageBackup, tlcTracking bool) *Snapshot {
	s := &Snapshot{
		Free:    list.New(),
		Erase:   list.New(),
		Corrupt: list.New(),
		Alien:   list.New(),
		All:     newECStats(),
	}

	if lowPageBackup {
		s.Waiting = list.New()
	}

	if tlcTracking {
		s.SLC = newECStats()
		s.TLC = newECStats()
	}

	return s
}

// noteEC folds ec into the aggregate statistics and, when TLC tracking is
// on (s.SLC non-nil), into the TLC or SLC pool that isTLC selects.
func (s *Snapshot) noteEC(ec int64, isTLC bool) {
	s.All.note(ec)
	if s.SLC == nil {
		return
	}

	if isTLC {
		s.TLC.note(ec)
	} else {
		s.SLC.note(ec)
	}
}

func (s *Snapshot) noteSqNum(sq uint64) {
	if sq > s.MaxSqNum {
		s.MaxSqNum = sq
	}
}

// detachFromList removes p from whichever plain queue currently holds it,
// using the owning list.List recorded on p itself. It is a no-op if p is
// not presently in any queue (e.g. it was just decoded and has not been
// placed anywhere yet, or it currently lives in a volume's lebMap instead).
func detachFromList(p *PEB) {
	if p.elem == nil {
		return
	}

	p.owner.Remove(p.elem)
	p.elem = nil
	p.owner = nil
}

// pushList appends or prepends p to dst, first detaching it from wherever
// it used to live. This is the "ownership moves explicitly between
// containers" mechanism spec.md §9 asks for in place of the source's
// intrusive union node.
func pushList(dst *list.List, p *PEB, toHead bool) {
	detachFromList(p)
	if toHead {
		p.elem = dst.PushFront(p)
	} else {
		p.elem = dst.PushBack(p)
	}
	p.owner = dst
}

// AddVolume implements spec.md §4.D's add_volume: create the volume record
// if absent, otherwise return the existing one. highest_vol_id is kept up
// to date either way.
func (s *Snapshot) AddVolume(volID uint32, h wire.VIDHeader) *Volume {
	if v := s.Volumes.get(volID); v != nil {
		return v
	}

	v := newVolume(volID, h)
	s.Volumes.put(v)
	if !s.HaveHighestVol || volID > s.HighestVolID {
		s.HighestVolID = volID
		s.HaveHighestVol = true
	}

	return v
}

// FindVolume implements spec.md §4.D's find_volume.
func (s *Snapshot) FindVolume(volID uint32) *Volume { return s.Volumes.get(volID) }

// VolumeCount reports how many volumes the snapshot currently holds.
func (s *Snapshot) VolumeCount() int { return s.Volumes.len() }

// EachVolume calls f for every volume in ascending volume-id order,
// stopping early if f returns false.
func (s *Snapshot) EachVolume(f func(v *Volume) bool) { s.Volumes.do(f) }

// MeanEC returns the medium-wide mean erase count computed during the last
// scan.
func (s *Snapshot) MeanEC() int64 { return s.All.mean() }

// RemoveVolume implements spec.md §4.D's remove_volume: every PEB the
// volume owns is detached into Erase, and the volume record itself is
// dropped from the snapshot.
func (s *Snapshot) RemoveVolume(v *Volume) {
	var pebs []*PEB
	v.LEBs.do(func(_ uint32, p *PEB) bool {
		pebs = append(pebs, p)
		return true
	})

	for _, p := range pebs {
		v.LEBs.delete(p.LNum)
		pushList(s.Erase, p, false)
	}

	s.Volumes.delete(v.VolID)
}

// AddToAV implements spec.md §4.D's add_to_av: insert a used PEB into its
// volume's LEB map, creating the volume record if this is the first LEB
// seen for it, validating against the volume's accumulated invariants
// first, and otherwise invoking the LEB reconciler (§4.C) to settle a
// collision. bitflips reports whether the read that produced h itself
// reported correctable bit-flips. m is only touched when the reconciler
// needs a CRC-verification read of a copy-flagged copy.
func (s *Snapshot) AddToAV(m medium.Medium, pnum int, ec int64, h wire.VIDHeader, bitflips bool) error {
	vol := s.AddVolume(h.VolID, h)

	existing := vol.LEBs.get(h.LNum)
	if existing == nil {
		if vol.LEBCount > 0 {
			if err := vol.validateVIDHdr(pnum, h); err != nil {
				return err
			}
		}

		p := &PEB{PNum: pnum, EC: ec, VolID: h.VolID, LNum: h.LNum, SqNum: h.SqNum, CopyFlag: h.CopyFlag, ScrubNeeded: bitflips, DataSize: h.DataSize, DataCRC: h.DataCRC}
		vol.LEBs.put(h.LNum, p)
		vol.noteLNum(h.LNum, h.DataSize)
		s.noteSqNum(h.SqNum)
		return nil
	}

	if err := vol.validateVIDHdr(pnum, h); err != nil {
		return err
	}

	newP := &PEB{PNum: pnum, EC: ec, VolID: h.VolID, LNum: h.LNum, SqNum: h.SqNum, CopyFlag: h.CopyFlag, ScrubNeeded: bitflips, DataSize: h.DataSize, DataCRC: h.DataCRC}
	cmp, err := compare(existing, newP)
	if err != nil {
		return err
	}

	if cmp&cmpNeedsCRCVerify != 0 {
		cmp, err = compareVerifyCRC(m, cmp, existing, newP)
		if err != nil {
			return err
		}
	}

	newerIsSecond := cmp&cmpNewerIsSecond != 0
	scrub := cmp&cmpScrubNewer != 0
	olderCorrupted := cmp&cmpOlderCorrupted != 0

	var winner, loser *PEB
	if newerIsSecond {
		winner, loser = newP, existing
	} else {
		winner, loser = existing, newP
	}

	if scrub {
		winner.ScrubNeeded = true
	}

	vol.LEBs.put(h.LNum, winner)
	vol.noteLNum(h.LNum, h.DataSize)
	s.noteSqNum(winner.SqNum)
	pushList(s.Erase, loser, olderCorrupted)
	return nil
}

// listKind selects which of Snapshot's plain queues AddToList targets.
type listKind int

const (
	ListFree listKind = iota
	ListErase
	ListAlien
	ListWaiting
)

// AddToList implements spec.md §4.D's add_to_list: push a PEB onto one of
// free/erase/alien/waiting. toHead is used for corrupt-origin entries so
// they are erased before everything else queued behind them.
func (s *Snapshot) AddToList(p *PEB, kind listKind, toHead bool) {
	var dst *list.List
	switch kind {
	case ListFree:
		dst = s.Free
	case ListErase:
		dst = s.Erase
	case ListAlien:
		dst = s.Alien
		s.AlienCount++
	case ListWaiting:
		dst = s.Waiting
	default:
		panic("attach: invalid listKind")
	}

	pushList(dst, p, toHead)
}

// AddCorrupt implements spec.md §4.D's add_corrupt: push to corrupt,
// increment the counter.
func (s *Snapshot) AddCorrupt(p *PEB) {
	pushList(s.Corrupt, p, false)
	s.CorruptCount++
}

// popFront removes and returns the PEB at the front of l, or nil if empty.
func popFront(l *list.List) *PEB {
	e := l.Front()
	if e == nil {
		return nil
	}

	p := e.Value.(*PEB)
	l.Remove(e)
	p.elem = nil
	p.owner = nil
	return p
}
