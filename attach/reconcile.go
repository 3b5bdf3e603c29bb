// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Component C (spec.md §4.C): the LEB reconciler. compare decides which of
// two physical copies of the same LEB is newer, and verifies the CRC of a
// mid-write copy when its copy-flag is set.

package attach

import (
	"github.com/cznic/ubi/medium"
	"github.com/cznic/ubi/wire"
)

// compareResult is spec.md §4.C's CompareResult, a 3-bit word:
//
//	bit 0 (cmpNewerIsSecond) - the second (new) PEB is the newer copy
//	bit 1 (cmpScrubNewer)    - the newer copy has bit-flips, needs scrub
//	bit 2 (cmpOlderCorrupted) - the loser is corrupted, erase it head-first
type compareResult int

const (
	cmpNewerIsSecond compareResult = 1 << iota
	cmpScrubNewer
	cmpOlderCorrupted
)

// compare implements spec.md §4.C's compare(existing_peb, new_pnum,
// new_vid_hdr). The medium is touched only by the caller's follow-up
// compareVerifyCRC, when the candidate newer copy's copy-flag requires a
// CRC verification read of its own data area.
func compare(existing *PEB, newP *PEB) (compareResult, error) {
	// Step 1: equal non-zero sqnums can never legitimately coexist.
	if existing.SqNum == newP.SqNum && existing.SqNum != 0 {
		return 0, &FormatError{PNum: newP.PNum, Reason: "duplicate non-zero sqnum for the same LEB"}
	}

	newerIsSecond := newP.SqNum > existing.SqNum

	var candidate *PEB
	if newerIsSecond {
		candidate = newP
	} else {
		candidate = existing
	}

	result := compareResult(0)
	if newerIsSecond {
		result |= cmpNewerIsSecond
	}

	// Step 2: an unset copy-flag makes the sqnum comparison final.
	if !candidate.CopyFlag {
		return result, nil
	}

	// Step 3 is performed by the caller, which has the medium, via
	// compareVerifyCRC; compare itself does no I/O.
	return result | cmpNeedsCRCVerify, nil
}

// cmpNeedsCRCVerify is an internal-only bit (outside spec.md's documented
// 3-bit CompareResult) signalling the caller must still perform step 3.
const cmpNeedsCRCVerify compareResult = 1 << 3

// compareVerifyCRC performs spec.md §4.C step 3: read the candidate's own
// data area and compare its CRC-32 against the candidate's own stored
// data_crc. Using the candidate's own PEB record (not whichever VID header
// the caller happened to have just decoded) matters because the candidate
// can be either existing or newP depending on which copy is newer - when
// it is existing, the freshly-read header belongs to the other copy
// entirely. On a CRC mismatch the decision is inverted and
// cmpOlderCorrupted is set.
func compareVerifyCRC(m medium.Medium, result compareResult, existing, newP *PEB) (compareResult, error) {
	result &^= cmpNeedsCRCVerify

	newerIsSecond := result&cmpNewerIsSecond != 0
	var candidate *PEB
	if newerIsSecond {
		candidate = newP
	} else {
		candidate = existing
	}

	buf := make([]byte, candidate.DataSize)
	rr := m.ReadData(buf, candidate.PNum, 0, int(candidate.DataSize))
	if rr.Err != nil {
		return 0, &IOError{candidate.PNum, rr.Err}
	}

	if rr.Outcome == medium.Bitflips || rr.Outcome == medium.AllFFBitflips {
		result |= cmpScrubNewer
	}

	if wire.DataCRC32(buf[:len(rr.Data)]) == candidate.DataCRC {
		return result, nil
	}

	// CRC bad: the candidate copy is corrupt. Invert the decision and
	// flag the (now loser) candidate as corrupted so it is erased head
	// first.
	result ^= cmpNewerIsSecond
	result |= cmpOlderCorrupted
	return result, nil
}

// IOError is a thin local wrapper compareVerifyCRC uses to report which
// PEB a hard I/O failure occurred on; the classifier, the self-check and
// the recovery pass report theirs as medium.IOError.
type IOError struct {
	PNum int
	Err  error
}

func (e *IOError) Error() string { return e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }
