// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package attach

import "fmt"

// The error taxonomy of spec.md §7. Each type carries the fields needed to
// reconstruct what was rejected, following the same shape as the teacher's
// own lldb.ErrINVAL ("a short message plus the offending value") rather
// than a single opaque string.

// FormatError is spec.md §7's FORMAT case. It is returned for a duplicate
// non-zero sqnum, a VID header that disagrees with the other LEBs of its
// volume, and a failed self-check. A header with the wrong on-flash format
// version or an erase counter above wire.MaxEraseCounter is not reported
// as a FormatError: ReadEC/ReadVID classify it as BAD_HDR. The image_seq
// fields of the EC headers are not compared with each other.
type FormatError struct {
	PNum   int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("attach: FORMAT: PEB %d: %s", e.PNum, e.Reason)
}

// CorruptionBudgetError is spec.md §7's CORRUPTION_BUDGET case: too many
// type-2 corruptions (§4.B.1) to safely continue.
type CorruptionBudgetError struct {
	Corrupt int
	Budget  int
}

func (e *CorruptionBudgetError) Error() string {
	return fmt.Sprintf("attach: CORRUPTION_BUDGET: %d corrupt PEBs exceeds budget %d", e.Corrupt, e.Budget)
}

// NotUBIError is spec.md §7's NOT_UBI case: too many maybe-bad PEBs in an
// apparently empty medium.
type NotUBIError struct {
	MaybeBad int
}

func (e *NotUBIError) Error() string {
	return fmt.Sprintf("attach: NOT_UBI: %d maybe-bad PEBs, image does not look like UBI", e.MaybeBad)
}

// NoSpaceError is spec.md §7's NO_SPACE case: the early allocator (§4.G)
// has nothing left to give.
type NoSpaceError struct{}

func (e *NoSpaceError) Error() string { return "attach: NO_SPACE: no free or erasable PEB available" }

// TransientError is spec.md §7's TRANSIENT case: a write failure during
// low-page backup recovery (§4.I) that was retried IORetries times and
// still failed.
type TransientError struct {
	PNum    int
	Attempt int
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("attach: TRANSIENT: PEB %d: attempt %d: %s", e.PNum, e.Attempt, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }
