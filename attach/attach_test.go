// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package attach

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cznic/ubi/medium"
	"github.com/cznic/ubi/wire"
)

const (
	testPEBSize    = 512
	testDataOffset = 128 // MemMedium's fixed ecHeaderSize(64) + vidHeaderSize(64)
)

func newTestMedium(pebCount int) *medium.MemMedium {
	return medium.NewMemMedium(testPEBSize, pebCount)
}

func writePEB(m *medium.MemMedium, pnum int, ec int64, h wire.VIDHeader, data []byte) {
	buf := make([]byte, m.PEBSize())
	copy(buf, wire.EncodeEC(wire.ECHeader{
		Version:      wire.FormatVersion,
		EraseCounter: ec,
		VIDHdrOffset: wire.ECHeaderSize,
		DataOffset:   testDataOffset,
		ImageSeq:     1,
	}))
	copy(buf[64:], wire.EncodeVID(h))
	copy(buf[testDataOffset:], data)
	m.WriteRaw(pnum, buf)
}

// TestScanAllEmptyMedium is scenario S1: every PEB reads ALL_FF.
func TestScanAllEmptyMedium(t *testing.T) {
	m := newTestMedium(64)

	snap, err := Attach(m, testDataOffset, true, Config{})
	require.NoError(t, err)
	require.True(t, snap.IsEmpty)
	require.NotZero(t, snap.ImageSeq)
	require.Equal(t, 64, snap.Erase.Len())
	require.Equal(t, 0, snap.Volumes.len())
}

// TestScanAllSingleStaticVolume is scenario S2.
func TestScanAllSingleStaticVolume(t *testing.T) {
	m := newTestMedium(16)

	data := make([]byte, 64)
	for lnum := uint32(0); lnum < 4; lnum++ {
		h := wire.VIDHeader{
			Version:  wire.FormatVersion,
			VolType:  wire.VolStatic,
			VolID:    1,
			LNum:     lnum,
			DataSize: uint32(len(data)),
			DataCRC:  wire.DataCRC32(data),
			UsedEBs:  4,
			SqNum:    uint64(10 + lnum),
		}
		writePEB(m, int(lnum), 5, h, data)
	}

	// PEBs 4-15 carry a valid EC header and an all-0xFF VID header, the
	// combination the classifier files under free.
	for pnum := 4; pnum < 16; pnum++ {
		buf := make([]byte, m.PEBSize())
		for i := range buf {
			buf[i] = 0xFF
		}
		copy(buf, wire.EncodeEC(wire.ECHeader{
			Version:      wire.FormatVersion,
			EraseCounter: 5,
			VIDHdrOffset: wire.ECHeaderSize,
			DataOffset:   testDataOffset,
			ImageSeq:     1,
		}))
		m.WriteRaw(pnum, buf)
	}

	snap, err := Attach(m, testDataOffset, true, Config{})
	require.NoError(t, err)
	require.False(t, snap.IsEmpty)

	vol := snap.FindVolume(1)
	require.NotNil(t, vol)
	require.Equal(t, 4, vol.LEBCount)
	require.EqualValues(t, 3, vol.HighestLNum)
	require.Equal(t, 12, snap.Free.Len())
	require.EqualValues(t, 13, snap.MaxSqNum)
}

// TestDuplicateLEBResolution is scenario S3: the copy-flagged newer copy
// with a good CRC wins; with a bad CRC the older copy wins instead.
func TestDuplicateLEBResolution(t *testing.T) {
	for _, goodCRC := range []bool{true, false} {
		t.Run("", func(t *testing.T) {
			m := newTestMedium(4)

			dataA := []byte("aaaaaaaa")
			hA := wire.VIDHeader{
				Version: wire.FormatVersion, VolType: wire.VolDynamic,
				VolID: 1, LNum: 2, DataSize: uint32(len(dataA)),
				DataCRC: wire.DataCRC32(dataA), SqNum: 50,
			}
			writePEB(m, 0, 1, hA, dataA)

			dataB := []byte("bbbbbbbb")
			crc := wire.DataCRC32(dataB)
			if !goodCRC {
				crc ^= 0xFF
			}
			hB := wire.VIDHeader{
				Version: wire.FormatVersion, VolType: wire.VolDynamic,
				VolID: 1, LNum: 2, DataSize: uint32(len(dataB)),
				DataCRC: crc, SqNum: 51, CopyFlag: true,
			}
			writePEB(m, 1, 1, hB, dataB)

			fillFF(m, 2)
			fillFF(m, 3)

			snap, err := Attach(m, testDataOffset, true, Config{})
			require.NoError(t, err)

			vol := snap.FindVolume(1)
			require.NotNil(t, vol)
			winner := vol.LEBs.get(2)
			require.NotNil(t, winner)

			if goodCRC {
				require.Equal(t, 1, winner.PNum)
				require.Equal(t, 0, loserPNum(snap, 0))
			} else {
				require.Equal(t, 0, winner.PNum)
				require.Equal(t, 1, loserPNum(snap, 1))
			}
		})
	}
}

// TestDuplicateLEBResolutionNewerScannedFirst is scenario S3 again, but
// with the copy-flagged newer PEB occupying the lower PEB number so it is
// scanned - and becomes the reconciler's "existing" record - before its
// older duplicate. The CRC verification must still check the newer copy's
// own stored checksum, not whatever VID header happens to have just been
// decoded for the older one.
func TestDuplicateLEBResolutionNewerScannedFirst(t *testing.T) {
	for _, goodCRC := range []bool{true, false} {
		t.Run("", func(t *testing.T) {
			m := newTestMedium(4)

			dataB := []byte("bbbbbbbb")
			crc := wire.DataCRC32(dataB)
			if !goodCRC {
				crc ^= 0xFF
			}
			hB := wire.VIDHeader{
				Version: wire.FormatVersion, VolType: wire.VolDynamic,
				VolID: 1, LNum: 2, DataSize: uint32(len(dataB)),
				DataCRC: crc, SqNum: 51, CopyFlag: true,
			}
			writePEB(m, 0, 1, hB, dataB) // newer, copy-flagged, scanned first

			dataA := []byte("aaaaaaaa")
			hA := wire.VIDHeader{
				Version: wire.FormatVersion, VolType: wire.VolDynamic,
				VolID: 1, LNum: 2, DataSize: uint32(len(dataA)),
				DataCRC: wire.DataCRC32(dataA), SqNum: 50,
			}
			writePEB(m, 1, 1, hA, dataA) // older, scanned second

			fillFF(m, 2)
			fillFF(m, 3)

			snap, err := Attach(m, testDataOffset, true, Config{})
			require.NoError(t, err)

			vol := snap.FindVolume(1)
			require.NotNil(t, vol)
			winner := vol.LEBs.get(2)
			require.NotNil(t, winner)

			if goodCRC {
				require.Equal(t, 0, winner.PNum)
				require.Equal(t, 1, loserPNum(snap, 1))
			} else {
				require.Equal(t, 1, winner.PNum)
				require.Equal(t, 0, loserPNum(snap, 0))
			}
		})
	}
}

func fillFF(m *medium.MemMedium, pnum int) {
	buf := make([]byte, m.PEBSize())
	for i := range buf {
		buf[i] = 0xFF
	}
	m.WriteRaw(pnum, buf)
}

// loserPNum returns pnum if it currently sits in snap.Erase, else -1; used
// by TestDuplicateLEBResolution to confirm the losing copy was queued for
// erasure rather than simply discarded.
func loserPNum(snap *Snapshot, pnum int) int {
	for e := snap.Erase.Front(); e != nil; e = e.Next() {
		if e.Value.(*PEB).PNum == pnum {
			return pnum
		}
	}
	return -1
}

// TestDuplicateNonZeroSqNum is scenario S4: two PEBs sharing a non-zero
// sqnum for the same LEB make the scan fail with a FormatError.
func TestDuplicateNonZeroSqNum(t *testing.T) {
	m := newTestMedium(4)

	data := []byte("xxxx")
	h := wire.VIDHeader{
		Version: wire.FormatVersion, VolType: wire.VolDynamic,
		VolID: 1, LNum: 0, DataSize: uint32(len(data)),
		DataCRC: wire.DataCRC32(data), SqNum: 42,
	}
	writePEB(m, 0, 1, h, data)
	writePEB(m, 1, 1, h, data)
	fillFF(m, 2)
	fillFF(m, 3)

	_, err := Attach(m, testDataOffset, true, Config{})
	require.Error(t, err)

	var fe *FormatError
	require.ErrorAs(t, err, &fe)
}

// TestCorruptionBudgetExceeded is scenario S5.
func TestCorruptionBudgetExceeded(t *testing.T) {
	m := newTestMedium(100)

	for pnum := 0; pnum < 10; pnum++ {
		buf := make([]byte, m.PEBSize())
		copy(buf, wire.EncodeEC(wire.ECHeader{Version: wire.FormatVersion, EraseCounter: 1, DataOffset: testDataOffset}))
		// VID header area left zeroed: bad magic, non-FF data beyond it.
		for i := testDataOffset; i < len(buf); i++ {
			buf[i] = byte(i)
		}
		m.WriteRaw(pnum, buf)
	}

	for pnum := 10; pnum < 100; pnum++ {
		fillFF(m, pnum)
	}

	_, err := Attach(m, testDataOffset, true, Config{})
	require.Error(t, err)

	var cbe *CorruptionBudgetError
	require.ErrorAs(t, err, &cbe)
	require.Equal(t, 9, cbe.Corrupt)
	require.Equal(t, 8, cbe.Budget)
}

// fakeFastmapReader drives scenario S6: an anchor is "present" but
// deliberately reports FastmapBad, exercising the discard-and-rescan path.
type fakeFastmapReader struct {
	outcome FastmapOutcome
}

func (f fakeFastmapReader) ScanFast(medium.Medium, *Snapshot) (FastmapOutcome, error) {
	return f.outcome, nil
}

// TestFastmapFallback is scenario S6: a bad fastmap anchor must produce a
// result identical to a forced full scan.
func TestFastmapFallback(t *testing.T) {
	m := newTestMedium(96)

	data := []byte("payload")
	h := wire.VIDHeader{
		Version: wire.FormatVersion, VolType: wire.VolDynamic,
		VolID: 5, LNum: 0, DataSize: uint32(len(data)),
		DataCRC: wire.DataCRC32(data), SqNum: 1,
	}
	writePEB(m, 70, 1, h, data)
	for pnum := 0; pnum < 96; pnum++ {
		if pnum == 70 {
			continue
		}
		fillFF(m, pnum)
	}

	forced, err := Attach(m, testDataOffset, true, Config{})
	require.NoError(t, err)

	dispatched, err := Attach(m, testDataOffset, false, Config{
		EnableFastmap: true,
		Fastmap:       fakeFastmapReader{outcome: FastmapBad},
	})
	require.NoError(t, err)

	require.Equal(t, forced.Volumes.len(), dispatched.Volumes.len())
	require.Equal(t, forced.MaxSqNum, dispatched.MaxSqNum)
	require.Equal(t, forced.Free.Len(), dispatched.Free.Len())
}

// TestAttachIdempotent is property 5: running attach twice on an unchanged
// medium yields identical volume/LEB structure and EC statistics.
func TestAttachIdempotent(t *testing.T) {
	m := newTestMedium(32)

	data := []byte("stable")
	for lnum := uint32(0); lnum < 3; lnum++ {
		h := wire.VIDHeader{
			Version: wire.FormatVersion, VolType: wire.VolDynamic,
			VolID: 2, LNum: lnum, DataSize: uint32(len(data)),
			DataCRC: wire.DataCRC32(data), SqNum: uint64(lnum + 1),
		}
		writePEB(m, int(lnum), 3, h, data)
	}
	for pnum := 3; pnum < 32; pnum++ {
		fillFF(m, pnum)
	}

	first, err := Attach(m, testDataOffset, true, Config{})
	require.NoError(t, err)
	second, err := Attach(m, testDataOffset, true, Config{})
	require.NoError(t, err)

	require.Equal(t, first.MaxSqNum, second.MaxSqNum)
	require.Equal(t, first.All.mean(), second.All.mean())
	require.Equal(t, first.FindVolume(2).LEBCount, second.FindVolume(2).LEBCount)
}

// TestSelfCheckCatchesDoubleOwnership is a direct exercise of invariant 1:
// a PEB wired into two containers at once must be caught.
func TestSelfCheckCatchesDoubleOwnership(t *testing.T) {
	m := newTestMedium(4)
	snap := NewSnapshot(false, false)

	p := &PEB{PNum: 0, EC: 1}
	pushList(snap.Free, p, false)
	pushList(snap.Erase, &PEB{PNum: 0, EC: 1}, false)

	err := SelfCheck(m, snap)
	require.Error(t, err)
}
