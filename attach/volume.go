// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package attach

import "github.com/cznic/ubi/wire"

// Volume is spec.md §3's volume_info.
type Volume struct {
	VolID        uint32
	VolType      uint8 // wire.VolDynamic or wire.VolStatic
	Compat       uint8
	DataPad      uint32
	UsedEBs      uint32 // STATIC only; 0 for DYNAMIC (invariant 5)
	HighestLNum  int32  // -1 until the first LEB is seen
	LastDataSize uint32 // last-known data_size of HighestLNum
	LEBCount     int    // kept in lockstep with LEBs.len()

	LEBs lebMap
}

func newVolume(volID uint32, h wire.VIDHeader) *Volume {
	return &Volume{
		VolID:       volID,
		VolType:     h.VolType,
		Compat:      h.Compat,
		DataPad:     h.DataPad,
		UsedEBs:     h.UsedEBs,
		HighestLNum: -1,
	}
}

// validateVIDHdr is spec.md §4.D's validate_vid_hdr: for any non-first LEB
// of a volume, vol_id, vol_type, used_ebs and data_pad must all agree with
// what the volume record already recorded. Any mismatch is a FORMAT error.
func (v *Volume) validateVIDHdr(pnum int, h wire.VIDHeader) error {
	switch {
	case h.VolID != v.VolID:
		return &FormatError{PNum: pnum, Reason: "vol_id mismatch within volume"}
	case h.VolType != v.VolType:
		return &FormatError{PNum: pnum, Reason: "vol_type mismatch within volume"}
	case h.UsedEBs != v.UsedEBs:
		return &FormatError{PNum: pnum, Reason: "used_ebs mismatch within volume"}
	case h.DataPad != v.DataPad:
		return &FormatError{PNum: pnum, Reason: "data_pad mismatch within volume"}
	}

	return nil
}

// noteLNum updates HighestLNum/LastDataSize/LEBCount after lnum has been
// inserted into v.LEBs - spec.md §3 invariant 4. LastDataSize is refreshed
// whenever lnum is at least the current HighestLNum, not only when it
// advances it, so a reconciler win that replaces the record at the
// existing highest lnum (§4.C) is reflected too.
func (v *Volume) noteLNum(lnum uint32, dataSize uint32) {
	if int32(lnum) >= v.HighestLNum {
		v.HighestLNum = int32(lnum)
		v.LastDataSize = dataSize
	}

	v.LEBCount = v.LEBs.len()
}
