// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"hash/crc32"
)

// VIDMagic is the 4 byte magic number every VID header must begin with.
const VIDMagic = 0x55424921 // "UBI!"

// VIDHeaderSize is the encoded size, in bytes, of a VID header.
const VIDHeaderSize = 4 + 1 + 1 + 1 + 1 + 4 + 4 + 4 + 4 + 4 + 4 + 8 + 4

// Volume types, spec.md §6.
const (
	VolDynamic uint8 = 1
	VolStatic  uint8 = 2
)

// Compatibility codes for internal volumes, spec.md §6.
const (
	CompatDelete   uint8 = 1
	CompatRO       uint8 = 2
	CompatPreserve uint8 = 5
	CompatNone     uint8 = 0
)

// VIDHeader is the decoded form of spec.md §6's VID header:
//
//	magic (4) | version (1) | vol_type (1) | copy_flag (1) | compat (1) |
//	vol_id (4) | lnum (4) | data_size (4) | used_ebs (4) | data_pad (4) |
//	data_crc (4) | sqnum (8) | hdr_crc (4)
type VIDHeader struct {
	Version  uint8
	VolType  uint8
	CopyFlag bool
	Compat   uint8
	VolID    uint32
	LNum     uint32
	DataSize uint32
	UsedEBs  uint32
	DataPad  uint32
	DataCRC  uint32
	SqNum    uint64
}

// DecodeVID parses and validates a VID header. See DecodeEC's doc comment
// for the BAD_HDR vs. BAD_HDR_ECC split of responsibility.
func DecodeVID(b []byte) (VIDHeader, error) {
	var h VIDHeader
	if len(b) < VIDHeaderSize {
		return h, &DecodeError{"VID", "short read"}
	}

	if binary.BigEndian.Uint32(b[0:4]) != VIDMagic {
		return h, &DecodeError{"VID", "bad magic"}
	}

	h.Version = b[4]
	if h.Version != FormatVersion {
		return h, &DecodeError{"VID", "unsupported format version"}
	}

	h.VolType = b[5]
	if h.VolType != VolDynamic && h.VolType != VolStatic {
		return h, &DecodeError{"VID", "invalid vol_type"}
	}

	h.CopyFlag = b[6] != 0
	h.Compat = b[7]

	h.VolID = binary.BigEndian.Uint32(b[8:12])
	h.LNum = binary.BigEndian.Uint32(b[12:16])
	h.DataSize = binary.BigEndian.Uint32(b[16:20])
	h.UsedEBs = binary.BigEndian.Uint32(b[20:24])
	h.DataPad = binary.BigEndian.Uint32(b[24:28])
	h.DataCRC = binary.BigEndian.Uint32(b[28:32])
	h.SqNum = binary.BigEndian.Uint64(b[32:40])

	wantCRC := crc32.ChecksumIEEE(b[0:40])
	gotCRC := binary.BigEndian.Uint32(b[VIDHeaderSize-4 : VIDHeaderSize])
	if wantCRC != gotCRC {
		return h, &DecodeError{"VID", "CRC mismatch"}
	}

	return h, nil
}

// EncodeVID serializes h into a fresh VIDHeaderSize-byte buffer, computing
// the header CRC.
func EncodeVID(h VIDHeader) []byte {
	b := make([]byte, VIDHeaderSize)
	binary.BigEndian.PutUint32(b[0:4], VIDMagic)
	b[4] = h.Version
	b[5] = h.VolType
	if h.CopyFlag {
		b[6] = 1
	}
	b[7] = h.Compat
	binary.BigEndian.PutUint32(b[8:12], h.VolID)
	binary.BigEndian.PutUint32(b[12:16], h.LNum)
	binary.BigEndian.PutUint32(b[16:20], h.DataSize)
	binary.BigEndian.PutUint32(b[20:24], h.UsedEBs)
	binary.BigEndian.PutUint32(b[24:28], h.DataPad)
	binary.BigEndian.PutUint32(b[28:32], h.DataCRC)
	binary.BigEndian.PutUint64(b[32:40], h.SqNum)
	crc := crc32.ChecksumIEEE(b[0:40])
	binary.BigEndian.PutUint32(b[VIDHeaderSize-4:VIDHeaderSize], crc)
	return b
}

// DataCRC32 computes the CRC-32 of a data area, the value compared against
// VIDHeader.DataCRC during copy-flag verification (spec.md §4.C step 3).
func DataCRC32(b []byte) uint32 { return crc32.ChecksumIEEE(b) }
