// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Component G (spec.md §4.G): the early allocator. EarlyAlloc hands out a
// PEB during attach, before the wear-leveler exists to do it properly.

package attach

import "github.com/cznic/ubi/medium"

// EarlyAlloc implements spec.md §4.G: prefer a PEB already sitting in
// free; otherwise walk erase from its head and take the first PEB that
// erases and accepts a fresh EC header, with its erase counter bumped.
// Returns *NoSpaceError when free is empty and no PEB on erase could be
// prepared that way.
func EarlyAlloc(m medium.Medium, s *Snapshot, ecHdrRaw func(ec int64) []byte) (*PEB, error) {
	if p := popFront(s.Free); p != nil {
		return p, nil
	}

	for e := s.Erase.Front(); e != nil; e = e.Next() {
		p := e.Value.(*PEB)
		if p.EC == ecUnknown {
			p.EC = s.All.mean()
		}

		if err := m.SyncErase(p.PNum); err != nil {
			continue
		}

		p.EC++
		if err := m.WriteECHeader(p.PNum, ecHdrRaw(p.EC)); err != nil {
			continue
		}

		detachFromList(p)
		return p, nil
	}

	return nil, &NoSpaceError{}
}
