// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package attach

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cznic/ubi/medium"
	"github.com/cznic/ubi/wire"
)

// genLayout draws a random single-volume layout: pebCount PEBs, the first
// lebCount of which hold one dynamic volume's LEBs in a shuffled PEB order
// with strictly increasing sqnums, the rest left ALL_FF.
func genLayout(t *rapid.T) (pebCount int, lebCount int, order []int, ec []int64) {
	pebCount = rapid.IntRange(3, 24).Draw(t, "pebCount")
	lebCount = rapid.IntRange(1, pebCount-1).Draw(t, "lebCount")

	order = rapid.Permutation(indices(pebCount)).Draw(t, "order")[:lebCount]

	ec = make([]int64, lebCount)
	for i := range ec {
		ec[i] = rapid.Int64Range(0, 1000).Draw(t, "ec")
	}

	return pebCount, lebCount, order, ec
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// TestInvariantLEBCountAndHighestLNum is property 2 from spec.md §8: for
// every volume, the LEB map's size and maximum key agree with the
// bookkeeping counters maintained incrementally during the scan.
func TestInvariantLEBCountAndHighestLNum(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pebCount, lebCount, order, ec := genLayout(t)

		m := medium.NewMemMedium(testPEBSize, pebCount)
		data := []byte("v")
		for lnum := 0; lnum < lebCount; lnum++ {
			h := wire.VIDHeader{
				Version: wire.FormatVersion, VolType: wire.VolDynamic,
				VolID: 9, LNum: uint32(lnum), DataSize: uint32(len(data)),
				DataCRC: wire.DataCRC32(data), SqNum: uint64(lnum + 1),
			}
			writePEB(m, order[lnum], ec[lnum], h, data)
		}
		for pnum := 0; pnum < pebCount; pnum++ {
			used := false
			for _, o := range order {
				if o == pnum {
					used = true
				}
			}
			if !used {
				fillFF(m, pnum)
			}
		}

		snap, err := Attach(m, testDataOffset, true, Config{})
		if err != nil {
			t.Fatalf("attach: %v", err)
		}

		vol := snap.FindVolume(9)
		if vol == nil {
			t.Fatalf("volume 9 missing")
		}

		if vol.LEBCount != lebCount {
			t.Fatalf("leb_count=%d want %d", vol.LEBCount, lebCount)
		}
		if int(vol.HighestLNum) != lebCount-1 {
			t.Fatalf("highest_lnum=%d want %d", vol.HighestLNum, lebCount-1)
		}

		if err := SelfCheck(m, snap); err != nil {
			t.Fatalf("self-check: %v", err)
		}
	})
}

// TestInvariantECWithinRange is property 3 from spec.md §8: every PEB's
// erase counter lies within [min_ec, max_ec] as recorded on the snapshot.
func TestInvariantECWithinRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pebCount, lebCount, order, ec := genLayout(t)

		m := medium.NewMemMedium(testPEBSize, pebCount)
		data := []byte("v")
		for lnum := 0; lnum < lebCount; lnum++ {
			h := wire.VIDHeader{
				Version: wire.FormatVersion, VolType: wire.VolDynamic,
				VolID: 3, LNum: uint32(lnum), DataSize: uint32(len(data)),
				DataCRC: wire.DataCRC32(data), SqNum: uint64(lnum + 1),
			}
			writePEB(m, order[lnum], ec[lnum], h, data)
		}
		for pnum := 0; pnum < pebCount; pnum++ {
			used := false
			for _, o := range order {
				if o == pnum {
					used = true
				}
			}
			if !used {
				fillFF(m, pnum)
			}
		}

		snap, err := Attach(m, testDataOffset, true, Config{})
		if err != nil {
			t.Fatalf("attach: %v", err)
		}

		vol := snap.FindVolume(3)
		if vol == nil {
			t.Fatalf("volume 3 missing")
		}

		vol.LEBs.do(func(_ uint32, p *PEB) bool {
			if p.EC < snap.All.min || p.EC > snap.All.max {
				t.Fatalf("PEB %d ec=%d outside [%d,%d]", p.PNum, p.EC, snap.All.min, snap.All.max)
			}
			return true
		})
	})
}

// attachSummary projects the parts of a Snapshot that property 5
// (idempotency) asks to match "up to ordering of equal-key lists":
// volume/LEB structure, EC statistics, and queue sizes, but not the
// queues' internal element order.
type attachSummary struct {
	Volumes  map[uint32]map[uint32]int64 // volID -> lnum -> ec
	MaxSqNum uint64
	MeanEC   int64
	Free     int
	Erase    int
	Corrupt  int
	Alien    int
	IsEmpty  bool
}

func summarize(snap *Snapshot) attachSummary {
	s := attachSummary{
		Volumes:  map[uint32]map[uint32]int64{},
		MaxSqNum: snap.MaxSqNum,
		MeanEC:   snap.MeanEC(),
		Free:     snap.Free.Len(),
		Erase:    snap.Erase.Len(),
		Corrupt:  snap.Corrupt.Len(),
		Alien:    snap.Alien.Len(),
		IsEmpty:  snap.IsEmpty,
	}

	snap.Volumes.do(func(v *Volume) bool {
		lebs := map[uint32]int64{}
		v.LEBs.do(func(lnum uint32, p *PEB) bool {
			lebs[lnum] = p.EC
			return true
		})
		s.Volumes[v.VolID] = lebs
		return true
	})

	return s
}

// TestAttachIdempotentProperty is property 5 from spec.md §8, exercised
// over randomized layouts rather than one fixed scenario: running attach
// twice on an unchanged medium yields identical snapshots up to queue
// ordering.
func TestAttachIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pebCount, lebCount, order, ec := genLayout(t)

		m := medium.NewMemMedium(testPEBSize, pebCount)
		data := []byte("v")
		for lnum := 0; lnum < lebCount; lnum++ {
			h := wire.VIDHeader{
				Version: wire.FormatVersion, VolType: wire.VolDynamic,
				VolID: 7, LNum: uint32(lnum), DataSize: uint32(len(data)),
				DataCRC: wire.DataCRC32(data), SqNum: uint64(lnum + 1),
			}
			writePEB(m, order[lnum], ec[lnum], h, data)
		}
		for pnum := 0; pnum < pebCount; pnum++ {
			used := false
			for _, o := range order {
				if o == pnum {
					used = true
				}
			}
			if !used {
				fillFF(m, pnum)
			}
		}

		first, err := Attach(m, testDataOffset, true, Config{})
		if err != nil {
			t.Fatalf("attach 1: %v", err)
		}
		second, err := Attach(m, testDataOffset, true, Config{})
		if err != nil {
			t.Fatalf("attach 2: %v", err)
		}

		if diff := cmp.Diff(summarize(first), summarize(second)); diff != "" {
			t.Fatalf("attach not idempotent (-first +second):\n%s", diff)
		}
	})
}

// TestAttachIdempotentSingleVolume keeps a go-cmp-based, non-randomized
// exercise of property 5 alongside the rapid property above for a quick,
// deterministic regression signal.
func TestAttachIdempotentSingleVolume(t *testing.T) {
	m := medium.NewMemMedium(testPEBSize, 16)
	data := []byte("fixed")
	for lnum := uint32(0); lnum < 3; lnum++ {
		h := wire.VIDHeader{
			Version: wire.FormatVersion, VolType: wire.VolDynamic,
			VolID: 4, LNum: lnum, DataSize: uint32(len(data)),
			DataCRC: wire.DataCRC32(data), SqNum: uint64(lnum + 1),
		}
		writePEB(m, int(lnum), 2, h, data)
	}
	for pnum := 3; pnum < 16; pnum++ {
		fillFF(m, pnum)
	}

	first, err := Attach(m, testDataOffset, true, Config{})
	require.NoError(t, err)
	second, err := Attach(m, testDataOffset, true, Config{})
	require.NoError(t, err)

	require.Empty(t, cmp.Diff(summarize(first), summarize(second)))
}
