// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Component H (spec.md §4.H): self-check. SelfCheck walks every volume and
// queue, verifies the spec.md §3 invariants hold, and - grounded on the
// teacher's lldb.Allocator.Verify bitmap-marking idiom - allocates a
// PEBCount-sized bitmap to catch any PEB that belongs to zero or more than
// one container.

package attach

import (
	"container/list"

	"github.com/cznic/ubi/medium"
	"github.com/cznic/ubi/wire"
)

// SelfCheck implements spec.md §4.H.
func SelfCheck(m medium.Medium, s *Snapshot) error {
	seen := make([]bool, m.PEBCount())

	mark := func(pnum int, where string) error {
		if pnum < 0 || pnum >= len(seen) {
			return &FormatError{PNum: pnum, Reason: "self-check: " + where + ": PEB index out of range"}
		}

		if seen[pnum] {
			return &FormatError{PNum: pnum, Reason: "self-check: " + where + ": PEB referenced by more than one container"}
		}

		seen[pnum] = true
		return nil
	}

	var walkErr error
	s.Volumes.do(func(v *Volume) bool {
		maxLNum := int32(-1)
		count := 0
		v.LEBs.do(func(lnum uint32, p *PEB) bool {
			count++
			if int32(lnum) > maxLNum {
				maxLNum = int32(lnum)
			}

			if p.EC < s.All.min || p.EC > s.All.max {
				walkErr = &FormatError{PNum: p.PNum, Reason: "self-check: erase counter outside [min_ec, max_ec]"}
				return false
			}

			if v.VolType == wire.VolStatic && lnum >= v.UsedEBs {
				walkErr = &FormatError{PNum: p.PNum, Reason: "self-check: STATIC volume LEB number >= used_ebs"}
				return false
			}

			if err := mark(p.PNum, "volume LEB map"); err != nil {
				walkErr = err
				return false
			}

			if err := verifyStoredVID(m, p, v); err != nil {
				walkErr = err
				return false
			}

			return true
		})

		if walkErr != nil {
			return false
		}

		if v.VolType == wire.VolDynamic && v.UsedEBs != 0 {
			walkErr = &FormatError{PNum: -1, Reason: "self-check: DYNAMIC volume has nonzero used_ebs"}
			return false
		}

		if count != v.LEBCount {
			walkErr = &FormatError{PNum: -1, Reason: "self-check: leb_count disagrees with LEB map size"}
			return false
		}

		if v.HighestLNum != maxLNum {
			walkErr = &FormatError{PNum: -1, Reason: "self-check: highest_lnum disagrees with LEB map contents"}
			return false
		}

		return true
	})

	if walkErr != nil {
		return walkErr
	}

	for _, l := range []struct {
		name string
		l    *list.List
	}{
		{"free", s.Free},
		{"erase", s.Erase},
		{"corrupt", s.Corrupt},
		{"alien", s.Alien},
		{"waiting", s.Waiting},
	} {
		if l.l == nil {
			continue
		}

		for e := l.l.Front(); e != nil; e = e.Next() {
			p := e.Value.(*PEB)
			if err := mark(p.PNum, l.name); err != nil {
				return err
			}
		}
	}

	for pnum, marked := range seen {
		if !marked && !m.IsBad(pnum) {
			return &FormatError{PNum: pnum, Reason: "self-check: PEB not referenced by any container"}
		}
	}

	return nil
}

// verifyStoredVID re-reads pnum's VID header and checks it still agrees,
// field by field, with the record SelfCheck is walking - spec.md §4.H's
// "also re-reads the VID header of each kept PEB".
func verifyStoredVID(m medium.Medium, p *PEB, v *Volume) error {
	vid := ReadVID(m, p.PNum)
	if isIOErr(vid.Outcome) {
		return &medium.IOError{PNum: p.PNum, Op: "self_check_read_vid", Err: vid.Err}
	}

	if vid.Outcome != medium.OK && vid.Outcome != medium.Bitflips {
		return &FormatError{PNum: p.PNum, Reason: "self-check: VID header no longer readable"}
	}

	h := vid.Header
	switch {
	case h.VolID != p.VolID:
		return &FormatError{PNum: p.PNum, Reason: "self-check: vol_id changed under us"}
	case h.LNum != p.LNum:
		return &FormatError{PNum: p.PNum, Reason: "self-check: lnum changed under us"}
	case h.SqNum != p.SqNum:
		return &FormatError{PNum: p.PNum, Reason: "self-check: sqnum changed under us"}
	}

	return nil
}
