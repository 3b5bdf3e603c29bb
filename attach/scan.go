// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Component E (spec.md §4.E): the full scanner. scanAll drives the header
// decoder, classifier and reconciler across every PEB from start to
// PEBCount-1, then fills in unknown erase counts and runs the late
// analysis (§4.E.1).

package attach

import (
	"container/list"
	"crypto/rand"
	"encoding/binary"

	"github.com/cznic/ubi/medium"
)

// scanAll implements spec.md §4.E's scan_all(start). dataOffset is the
// data_offset field every EC header on this medium agrees on (spec.md §6
// names it per-header, but a single medium carries one value for its
// lifetime).
func scanAll(m medium.Medium, s *Snapshot, start int, dataOffset int, cfg Config) error {
	sc := scanContext{dataOffset: dataOffset, tlcPEB: cfg.TLCPEB, logger: cfg.logger()}

	for pnum := start; pnum < m.PEBCount(); pnum++ {
		if m.IsBad(pnum) {
			s.BadCount++
			continue
		}

		if err := classifyPEB(m, s, pnum, sc); err != nil {
			return err
		}
	}

	fillUnknownEC(s)

	return lateAnalysis(s, m.PEBCount())
}

// fillUnknownEC implements spec.md §4.E step 2: back-fill every PEB whose
// erase counter is still ecUnknown with the medium's mean erase count.
func fillUnknownEC(s *Snapshot) {
	mean := s.All.mean()

	s.Volumes.do(func(v *Volume) bool {
		v.LEBs.do(func(_ uint32, p *PEB) bool {
			if p.EC == ecUnknown {
				p.EC = mean
			}
			return true
		})
		return true
	})

	fillUnknownECInList(s.Free, mean)
	fillUnknownECInList(s.Erase, mean)
	fillUnknownECInList(s.Corrupt, mean)
	fillUnknownECInList(s.Alien, mean)
	fillUnknownECInList(s.Waiting, mean)
}

func fillUnknownECInList(l *list.List, mean int64) {
	if l == nil {
		return
	}

	for e := l.Front(); e != nil; e = e.Next() {
		p := e.Value.(*PEB)
		if p.EC == ecUnknown {
			p.EC = mean
		}
	}
}

// lateAnalysis implements spec.md §4.E.1. The empty-medium check compares
// EmptyCount+MaybeBadCount against every non-bad PEB of the medium.
func lateAnalysis(s *Snapshot, pebCount int) error {
	budget := corruptionBudget(pebCount)
	if s.CorruptCount >= budget {
		return &CorruptionBudgetError{Corrupt: s.CorruptCount, Budget: budget}
	}

	total := pebCount - s.BadCount

	if s.EmptyCount+s.MaybeBadCount == total {
		if s.MaybeBadCount <= 2 {
			s.IsEmpty = true
			s.ImageSeq = newImageSeq()
			return nil
		}

		return &NotUBIError{MaybeBad: s.MaybeBadCount}
	}

	return nil
}

// newImageSeq draws a random non-zero image-sequence number for a freshly
// declared empty medium (spec.md §4.E.1).
func newImageSeq() uint32 {
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 1
		}

		if seq := binary.BigEndian.Uint32(buf[:]); seq != 0 {
			return seq
		}
	}
}
