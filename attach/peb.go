// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package attach

import "container/list"

// PEB is spec.md §3's peb_info: the physical block number, its erase
// counter (capped at 2^31-1, but kept as int64 so "unknown yet" can be
// represented out of band by the scanner before mean-EC fill-in), its
// last-known volume id and LEB number, its sequence number, and the
// copy-flag/scrub-needed flags carried over from its VID header.
//
// A PEB is owned by exactly one container at any time - a volume's lebMap
// or one of the plain queues in a Snapshot (free/erase/corrupt/alien/
// waiting), per spec.md §3's invariant 1. elem records which list.Element,
// if any, currently holds this PEB, so moving it between containers is an
// O(1) operation rather than a linear search.
type PEB struct {
	PNum        int
	EC          int64 // -1 means "unknown, fill in with mean_ec"
	VolID       uint32
	LNum        uint32
	SqNum       uint64
	CopyFlag    bool
	ScrubNeeded bool

	// DataSize and DataCRC are this PEB's own VID header's data_size/
	// data_crc, carried on the record so the reconciler's copy-flag CRC
	// verification (§4.C step 3) always checks a candidate's own data
	// against its own checksum, never another PEB's.
	DataSize uint32
	DataCRC  uint32

	elem  *list.Element
	owner *list.List
}

// ecUnknown is the sentinel EC value meaning "not yet known" - read off an
// EC header that itself came back BAD_HDR/BAD_HDR_ECC while the paired VID
// header was fine (spec.md §4.B's "EC unknown, mark scrub" row).
const ecUnknown = -1
