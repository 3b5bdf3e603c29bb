// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Component A (spec.md §4.A): the header decoder. ReadEC and ReadVID each
// combine a medium.Medium header read with wire package validation and
// produce the single tagged outcome the classifier (§4.B) switches on.

package attach

import (
	"github.com/cznic/ubi/medium"
	"github.com/cznic/ubi/wire"
)

// ECResult is the outcome of reading and validating one PEB's EC header.
type ECResult struct {
	Outcome medium.Outcome
	Header  wire.ECHeader
	Err     error // non-nil only when Outcome is ioErrOutcome (IO_ERR)
}

// VIDResult is the outcome of reading and validating one PEB's VID header.
type VIDResult struct {
	Outcome medium.Outcome
	Header  wire.VIDHeader
	Err     error
}

// ioErrOutcome is a sentinel Outcome value (distinct from every exported
// medium.Outcome constant) that flags an IO_ERR result: ReadEC and ReadVID
// return it with Err set, and isIOErr tests for it.
const ioErrOutcome medium.Outcome = -1

// ReadEC implements spec.md §4.A's read_ec(pnum).
func ReadEC(m medium.Medium, pnum int) ECResult {
	rr := m.ReadECHeader(pnum)
	if rr.Err != nil {
		return ECResult{Outcome: ioErrOutcome, Err: rr.Err}
	}

	switch rr.Outcome {
	case medium.AllFF, medium.AllFFBitflips, medium.BadHeader, medium.BadHeaderECC:
		return ECResult{Outcome: rr.Outcome}
	case medium.OK, medium.Bitflips:
		h, err := wire.DecodeEC(rr.Data)
		if err != nil {
			return ECResult{Outcome: medium.BadHeader}
		}

		return ECResult{Outcome: rr.Outcome, Header: h}
	default:
		return ECResult{Outcome: medium.BadHeader}
	}
}

// ReadVID implements spec.md §4.A's read_vid(pnum).
func ReadVID(m medium.Medium, pnum int) VIDResult {
	rr := m.ReadVIDHeader(pnum)
	if rr.Err != nil {
		return VIDResult{Outcome: ioErrOutcome, Err: rr.Err}
	}

	switch rr.Outcome {
	case medium.AllFF, medium.AllFFBitflips, medium.BadHeader, medium.BadHeaderECC:
		return VIDResult{Outcome: rr.Outcome}
	case medium.OK, medium.Bitflips:
		h, err := wire.DecodeVID(rr.Data)
		if err != nil {
			return VIDResult{Outcome: medium.BadHeader}
		}

		return VIDResult{Outcome: rr.Outcome, Header: h}
	default:
		return VIDResult{Outcome: medium.BadHeader}
	}
}

func isIOErr(outcome medium.Outcome) bool { return outcome == ioErrOutcome }
