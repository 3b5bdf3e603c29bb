// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package medium

import (
	"sync"

	"github.com/cznic/mathutil"
)

// fault describes an injected defect at a given PEB, used by tests to drive
// the classifier's six-way disposition table (spec.md §4.B) without needing
// real flash.
type fault struct {
	ecOutcome  Outcome // zero value means "no override"
	vidOutcome Outcome
	dataOutcome Outcome
	ioErr      error
	bad        bool
}

// MemMedium is a memory backed Medium, the PEB-granular analogue of the
// teacher's lldb.MemFiler: one []byte page per PEB rather than one page per
// pgSize-aligned file offset, because here the natural unit of storage
// already is the PEB. It implements no persistence beyond the process, but
// exists so the attach core can be driven deterministically in tests and so
// cmd/ubiattach can hold a synthetic device image in memory before
// serializing it to disk.
//
// MemMedium is safe for concurrent use: every access is guarded by a single
// mutex, matching the "shared reusable read/erase buffer... guarded by a
// mutex" resource described in spec.md §5.
type MemMedium struct {
	mu       sync.Mutex
	pebSize  int
	pebs     [][]byte // nil entry == fully erased (all 0xFF, lazily materialized)
	faults   map[int]*fault
	readOnly bool
}

// NewMemMedium returns a MemMedium of pebCount PEBs, each pebSize bytes,
// initially fully erased.
func NewMemMedium(pebSize, pebCount int) *MemMedium {
	return &MemMedium{
		pebSize: pebSize,
		pebs:    make([][]byte, pebCount),
		faults:  map[int]*fault{},
	}
}

// PEBSize implements Medium.
func (m *MemMedium) PEBSize() int { return m.pebSize }

// PEBCount implements Medium.
func (m *MemMedium) PEBCount() int { return len(m.pebs) }

func (m *MemMedium) page(pnum int) []byte {
	if m.pebs[pnum] == nil {
		p := make([]byte, m.pebSize)
		for i := range p {
			p[i] = 0xFF
		}
		m.pebs[pnum] = p
	}

	return m.pebs[pnum]
}

// WriteRaw installs the exact byte content of a PEB, for test setup and for
// cmd/ubiattach's mkimage subcommand. It bypasses fault injection.
func (m *MemMedium) WriteRaw(pnum int, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := make([]byte, m.pebSize)
	copy(p, content)
	m.pebs[pnum] = p
}

// SetFaultECOutcome forces ReadECHeader(pnum) to report outcome regardless
// of the bytes actually stored there.
func (m *MemMedium) SetFaultECOutcome(pnum int, outcome Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault(pnum).ecOutcome = outcome
}

// SetFaultVIDOutcome forces ReadVIDHeader(pnum) to report outcome.
func (m *MemMedium) SetFaultVIDOutcome(pnum int, outcome Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault(pnum).vidOutcome = outcome
}

// SetFaultDataOutcome forces ReadData against pnum to report outcome
// alongside whatever bytes are actually stored.
func (m *MemMedium) SetFaultDataOutcome(pnum int, outcome Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault(pnum).dataOutcome = outcome
}

// SetFaultIOError makes every read/write against pnum fail with err, the
// IO_ERR(e) case of spec.md §4.A.
func (m *MemMedium) SetFaultIOError(pnum int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault(pnum).ioErr = err
}

// SetBad marks pnum as a bad block, the IsBad contract of spec.md §6.
func (m *MemMedium) SetBad(pnum int, bad bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault(pnum).bad = bad
}

func (m *MemMedium) fault(pnum int) *fault {
	f, ok := m.faults[pnum]
	if !ok {
		f = &fault{}
		m.faults[pnum] = f
	}

	return f
}

const (
	ecHeaderSize  = 64
	vidHeaderSize = 64
)

func (m *MemMedium) read(pnum, off, length int) ([]byte, error) {
	if pnum < 0 || pnum >= len(m.pebs) {
		return nil, &IOError{PNum: pnum, Op: "read", Err: errOutOfRange}
	}

	p := m.page(pnum)
	end := off + length
	if end > len(p) {
		end = len(p)
	}

	out := make([]byte, length)
	copy(out, p[off:mathutil.Max(off, end)])
	return out, nil
}

// ReadECHeader implements Medium.
func (m *MemMedium) ReadECHeader(pnum int) ReadResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.faults[pnum]; ok && f.ioErr != nil {
		return ReadResult{Err: &IOError{PNum: pnum, Op: "read_ec_hdr", Err: f.ioErr}}
	}

	data, err := m.read(pnum, 0, ecHeaderSize)
	if err != nil {
		return ReadResult{Err: err}
	}

	rr := ReadResult{Data: data}
	if f, ok := m.faults[pnum]; ok && f.ecOutcome != 0 {
		rr.Outcome = f.ecOutcome
		return rr
	}

	switch {
	case checkPattern(data, 0xFF):
		rr.Outcome = AllFF
	default:
		rr.Outcome = OK
	}

	return rr
}

// ReadVIDHeader implements Medium.
func (m *MemMedium) ReadVIDHeader(pnum int) ReadResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.faults[pnum]; ok && f.ioErr != nil {
		return ReadResult{Err: &IOError{PNum: pnum, Op: "read_vid_hdr", Err: f.ioErr}}
	}

	data, err := m.read(pnum, ecHeaderSize, vidHeaderSize)
	if err != nil {
		return ReadResult{Err: err}
	}

	rr := ReadResult{Data: data}
	if f, ok := m.faults[pnum]; ok && f.vidOutcome != 0 {
		rr.Outcome = f.vidOutcome
		return rr
	}

	switch {
	case checkPattern(data, 0xFF):
		rr.Outcome = AllFF
	default:
		rr.Outcome = OK
	}

	return rr
}

// ReadData implements Medium.
func (m *MemMedium) ReadData(buf []byte, pnum, off, length int) ReadResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.faults[pnum]; ok && f.ioErr != nil {
		return ReadResult{Err: &IOError{PNum: pnum, Op: "read_data", Err: f.ioErr}}
	}

	data, err := m.read(pnum, ecHeaderSize+vidHeaderSize+off, length)
	if err != nil {
		return ReadResult{Err: err}
	}

	n := copy(buf, data)
	rr := ReadResult{Data: buf[:n]}
	if f, ok := m.faults[pnum]; ok && f.dataOutcome != 0 {
		rr.Outcome = f.dataOutcome
		return rr
	}

	switch {
	case checkPattern(data, 0xFF):
		rr.Outcome = AllFF
	default:
		rr.Outcome = OK
	}

	return rr
}

// SyncErase implements Medium.
func (m *MemMedium) SyncErase(pnum int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readOnly {
		return &IOError{PNum: pnum, Op: "sync_erase", Err: errReadOnly}
	}

	if pnum < 0 || pnum >= len(m.pebs) {
		return &IOError{PNum: pnum, Op: "sync_erase", Err: errOutOfRange}
	}

	if f, ok := m.faults[pnum]; ok && f.ioErr != nil {
		return &IOError{PNum: pnum, Op: "sync_erase", Err: f.ioErr}
	}

	m.pebs[pnum] = nil
	return nil
}

// WriteECHeader implements Medium.
func (m *MemMedium) WriteECHeader(pnum int, raw []byte) error {
	return m.write(pnum, 0, raw, "write_ec_hdr")
}

// WriteVIDHeader implements Medium.
func (m *MemMedium) WriteVIDHeader(pnum int, raw []byte) error {
	return m.write(pnum, ecHeaderSize, raw, "write_vid_hdr")
}

// WriteData implements Medium.
func (m *MemMedium) WriteData(pnum, off int, buf []byte) error {
	return m.write(pnum, ecHeaderSize+vidHeaderSize+off, buf, "write_data")
}

func (m *MemMedium) write(pnum, off int, buf []byte, op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.readOnly {
		return &IOError{PNum: pnum, Op: op, Err: errReadOnly}
	}

	if pnum < 0 || pnum >= len(m.pebs) {
		return &IOError{PNum: pnum, Op: op, Err: errOutOfRange}
	}

	if f, ok := m.faults[pnum]; ok && f.ioErr != nil {
		return &IOError{PNum: pnum, Op: op, Err: f.ioErr}
	}

	p := m.page(pnum)
	if off+len(buf) > len(p) {
		return &IOError{PNum: pnum, Op: op, Err: errOutOfRange}
	}

	copy(p[off:], buf)
	return nil
}

// IsBad implements Medium.
func (m *MemMedium) IsBad(pnum int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.faults[pnum]
	return ok && f.bad
}

// CheckPattern implements Medium.
func (m *MemMedium) CheckPattern(b []byte, pattern byte) bool { return checkPattern(b, pattern) }

// SetReadOnly implements Medium.
func (m *MemMedium) SetReadOnly() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = true
}

// IsReadOnly implements Medium.
func (m *MemMedium) IsReadOnly() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readOnly
}

var errOutOfRange = outOfRangeError{}

type outOfRangeError struct{}

func (outOfRangeError) Error() string { return "medium: offset out of range" }

var errReadOnly = readOnlyError{}

type readOnlyError struct{}

func (readOnlyError) Error() string { return "medium: device is read-only" }
