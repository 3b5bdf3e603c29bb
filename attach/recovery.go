// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Component I (spec.md §4.I): optional low-page backup recovery. A
// dedicated two-LEB backup volume records a rolling log of writes to
// pages vulnerable to paired-page corruption on MLC/TLC media; after the
// main scan, recoverLowPageBackup replays that log and rebuilds any PEB it
// finds was left corrupted by a power cut mid-pair-write.
//
// The overlay that patches a rebuilt PEB's surviving data with its backed
// -up pages is a page-indexed map, the same "track only the pages that
// changed" idea as the teacher's lldb.bitFiler, simplified here to whole
// -page granularity (paired-page corruption is always page-granular) and
// with snappy-compressed payloads, since backup log entries are read back
// only once, at attach time, and are worth shrinking on the backup volume
// itself.
package attach

import (
	"hash/crc32"

	"github.com/golang/snappy"

	"github.com/cznic/ubi/medium"
	"github.com/cznic/ubi/wire"
)

// BackupRecord is one entry of the rolling low-page backup log (spec.md
// §4.I): a page written to a source PEB that downstream paired-page
// corruption could still undo.
type BackupRecord struct {
	SourcePNum int
	SourceLNum uint32
	SourcePage int
	SqNum      uint64
	CRC        uint32
	Payload    []byte // snappy-compressed copy of the backed-up page
}

// pageOverlay is the page-indexed "track only what changed" map this
// component patches a rebuilt PEB's surviving data with, grounded on
// lldb.bitFiler's paged copy-on-write idiom.
type pageOverlay struct {
	pages map[int][]byte
}

func newPageOverlay() *pageOverlay { return &pageOverlay{pages: map[int][]byte{}} }

func (o *pageOverlay) put(page int, data []byte) { o.pages[page] = append([]byte(nil), data...) }

// apply overlays o's pages onto base, a full PEB data image, at pageSize
// granularity.
func (o *pageOverlay) apply(base []byte, pageSize int) []byte {
	out := append([]byte(nil), base...)
	for page, data := range o.pages {
		start := page * pageSize
		if start >= len(out) {
			continue
		}

		end := start + len(data)
		if end > len(out) {
			end = len(out)
		}

		copy(out[start:end], data[:end-start])
	}

	return out
}

// PagePairer reports, for a given source page index, the index of its
// paired high page on the same PEB - the physical layout detail that makes
// MLC/TLC paired-page corruption possible. Left as a caller-supplied
// function because the pairing scheme is a property of the NAND geometry,
// not of this package.
type PagePairer func(sourcePage int) (highPage int)

// BackupVolumeReader is the contract recoverLowPageBackup needs from the
// two-LEB backup volume: decode its rolling log back into records, oldest
// first. Implementations live outside this package (spec.md §1 scopes the
// volume-table/backup-volume codec out as an external collaborator); this
// package provides no implementation of it.
type BackupVolumeReader interface {
	ReadBackupLog(m medium.Medium, snap *Snapshot) ([]BackupRecord, error)
}

// recoverLowPageBackup implements spec.md §4.I. pairer and reader come
// from cfg; a nil reader makes this a no-op, since a backup volume codec
// is only available once a concrete NAND geometry is wired in.
func recoverLowPageBackup(m medium.Medium, snap *Snapshot, dataOffset int, cfg Config) error {
	if cfg.BackupReader == nil {
		return nil
	}

	records, err := cfg.BackupReader.ReadBackupLog(m, snap)
	if err != nil {
		return err
	}

	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if crc32.ChecksumIEEE(rec.Payload) != rec.CRC {
			continue
		}

		if err := recoverOneRecord(m, snap, dataOffset, cfg, rec); err != nil {
			return err
		}
	}

	return nil
}

func recoverOneRecord(m medium.Medium, snap *Snapshot, dataOffset int, cfg Config, rec BackupRecord) error {
	pageSize := m.PEBSize() / 64
	if pageSize == 0 {
		pageSize = m.PEBSize()
	}

	highPage := rec.SourcePage
	if cfg.PagePairer != nil {
		highPage = cfg.PagePairer(rec.SourcePage)
	}

	lowRR := m.ReadData(make([]byte, pageSize), rec.SourcePNum, rec.SourcePage*pageSize, pageSize)
	highRR := m.ReadData(make([]byte, pageSize), rec.SourcePNum, highPage*pageSize, pageSize)

	corrupted := lowRR.Err == nil && (lowRR.Outcome == medium.BadHeader || lowRR.Outcome == medium.BadHeaderECC)
	corrupted = corrupted || (highRR.Err == nil && (highRR.Outcome == medium.BadHeader || highRR.Outcome == medium.BadHeaderECC))

	highEmpty := highRR.Err == nil && m.CheckPattern(highRR.Data, 0xFF)
	if highEmpty {
		if existing := findSourceSqNum(snap, rec.SourceLNum, rec.SourcePNum); existing < rec.SqNum {
			corrupted = true
		}
	}

	if !corrupted {
		return nil
	}

	return rebuildPEB(m, snap, dataOffset, cfg, rec, pageSize)
}

// findSourceSqNum returns the sqnum the snapshot currently has on record
// for pnum, or 0 if it cannot find one (treated as "older than anything").
func findSourceSqNum(snap *Snapshot, lnum uint32, pnum int) uint64 {
	var found uint64
	snap.Volumes.do(func(v *Volume) bool {
		if p := v.LEBs.get(lnum); p != nil && p.PNum == pnum {
			found = p.SqNum
			return false
		}
		return true
	})

	return found
}

// rebuildPEB implements spec.md §4.I step 3's rebuild: read surviving data,
// overlay the backed-up pages this record and any sibling records for the
// same source PEB contributed, write a fresh copy with copy_flag=1 and a
// bumped sqnum, and fold the result into the snapshot.
func rebuildPEB(m medium.Medium, snap *Snapshot, dataOffset int, cfg Config, rec BackupRecord, pageSize int) error {
	dataSize := m.PEBSize() - dataOffset
	surviving := make([]byte, dataSize)
	rr := m.ReadData(surviving, rec.SourcePNum, 0, dataSize)
	if rr.Err != nil {
		return &medium.IOError{PNum: rec.SourcePNum, Op: "recovery_read", Err: rr.Err}
	}

	payload, err := snappy.Decode(nil, rec.Payload)
	if err != nil {
		return err
	}

	overlay := newPageOverlay()
	overlay.put(rec.SourcePage, payload)
	rebuilt := overlay.apply(rr.Data, pageSize)

	dataCRC := wire.DataCRC32(rebuilt)

	newSqNum := rec.SqNum + 1
	if newSqNum <= snap.MaxSqNum {
		newSqNum = snap.MaxSqNum + 1
	}

	ecHdrRaw := func(ec int64) []byte {
		return wire.EncodeEC(wire.ECHeader{
			Version:      wire.FormatVersion,
			EraseCounter: ec,
			VIDHdrOffset: wire.ECHeaderSize,
			DataOffset:   uint32(dataOffset),
			ImageSeq:     snap.ImageSeq,
		})
	}

	var retryErr error
	for attempt := 1; attempt <= IORetries; attempt++ {
		dst, err := EarlyAlloc(m, snap, ecHdrRaw)
		if err != nil {
			return err
		}

		h := wire.VIDHeader{
			Version:  wire.FormatVersion,
			VolType:  wire.VolDynamic,
			CopyFlag: true,
			VolID:    rec.sourceVolID(snap),
			LNum:     rec.SourceLNum,
			DataSize: uint32(len(rebuilt)),
			DataCRC:  dataCRC,
			SqNum:    newSqNum,
		}

		if err := m.WriteVIDHeader(dst.PNum, wire.EncodeVID(h)); err != nil {
			retryErr = err
			continue
		}

		if err := m.WriteData(dst.PNum, 0, rebuilt); err != nil {
			retryErr = err
			continue
		}

		return snap.AddToAV(m, dst.PNum, dst.EC, h, false)
	}

	// Retry budget exhausted: spec.md §4.I step 4 and §7's TRANSIENT case
	// both call for switching the device to read-only rather than leaving
	// it writable in a state recovery could not repair.
	m.SetReadOnly()
	return &TransientError{PNum: rec.SourcePNum, Attempt: IORetries, Err: retryErr}
}

// sourceVolID recovers the volume id of the LEB this record describes by
// looking up its currently recorded PEB; recovery only ever runs after the
// main scan has already populated the snapshot, so this is always
// available for a record worth rebuilding.
func (rec BackupRecord) sourceVolID(snap *Snapshot) uint32 {
	var volID uint32
	snap.Volumes.do(func(v *Volume) bool {
		if p := v.LEBs.get(rec.SourceLNum); p != nil && p.PNum == rec.SourcePNum {
			volID = v.VolID
			return false
		}
		return true
	})

	return volID
}
