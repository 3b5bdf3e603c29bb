// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire decodes and encodes the two fixed-size, big-endian on-flash
// headers named in spec.md §6: the EC header and the VID header. Nothing
// here reads or writes a medium - callers hand this package the raw bytes a
// medium.Medium returned, and get back either a validated struct or an
// error identifying exactly which field failed to validate.
package wire

import (
	"encoding/binary"
	"hash/crc32"
)

// ECMagic is the 4 byte magic number every EC header must begin with.
const ECMagic = 0x55424923 // "UBI#"

// FormatVersion is the on-flash format version this implementation
// produces and accepts; spec.md §4.A requires an exact match, not just
// "less than or equal".
const FormatVersion = 1

// MaxEraseCounter is the largest erase counter value a conforming EC header
// may carry (2^31 - 1, spec.md §3/§4.A).
const MaxEraseCounter = 1<<31 - 1

// ECHeaderSize is the encoded size, in bytes, of an EC header.
const ECHeaderSize = 4 + 1 + 3 + 8 + 4 + 4 + 4 + 4 + 4

// ECHeader is the decoded form of spec.md §6's EC header:
//
//	magic (4) | version (1) | padding (3) | erase_counter (8) |
//	vid_hdr_offset (4) | data_offset (4) | image_seq (4) | reserved (4) |
//	hdr_crc (4)
type ECHeader struct {
	Version      uint8
	EraseCounter int64
	VIDHdrOffset uint32
	DataOffset   uint32
	ImageSeq     uint32
}

// DecodeError reports exactly which validation in spec.md §4.A failed.
type DecodeError struct {
	Header string // "EC" or "VID"
	Reason string
}

func (e *DecodeError) Error() string { return "wire: " + e.Header + " header: " + e.Reason }

// DecodeEC parses and validates an EC header. A non-nil error here means
// the caller should treat this as a BAD_HDR outcome (spec.md §4.A) - this
// package never decides between BAD_HDR and BAD_HDR_ECC; that distinction
// depends on whether the underlying read reported an uncorrectable ECC
// error, which is a medium.Medium concern the classifier already has
// access to.
func DecodeEC(b []byte) (ECHeader, error) {
	var h ECHeader
	if len(b) < ECHeaderSize {
		return h, &DecodeError{"EC", "short read"}
	}

	if binary.BigEndian.Uint32(b[0:4]) != ECMagic {
		return h, &DecodeError{"EC", "bad magic"}
	}

	h.Version = b[4]
	if h.Version != FormatVersion {
		return h, &DecodeError{"EC", "unsupported format version"}
	}

	h.EraseCounter = int64(binary.BigEndian.Uint64(b[8:16]))
	if h.EraseCounter > MaxEraseCounter {
		return h, &DecodeError{"EC", "erase counter overflow"}
	}

	h.VIDHdrOffset = binary.BigEndian.Uint32(b[16:20])
	h.DataOffset = binary.BigEndian.Uint32(b[20:24])
	h.ImageSeq = binary.BigEndian.Uint32(b[24:28])

	wantCRC := crc32.ChecksumIEEE(b[0:28])
	gotCRC := binary.BigEndian.Uint32(b[ECHeaderSize-4 : ECHeaderSize])
	if wantCRC != gotCRC {
		return h, &DecodeError{"EC", "CRC mismatch"}
	}

	return h, nil
}

// EncodeEC serializes h into a fresh ECHeaderSize-byte buffer, computing
// the header CRC. Used by the early allocator (§4.G) when it writes a
// fresh EC header onto a newly erased PEB, and by the recovery pass (§4.I)
// when it rebuilds a PEB.
func EncodeEC(h ECHeader) []byte {
	b := make([]byte, ECHeaderSize)
	binary.BigEndian.PutUint32(b[0:4], ECMagic)
	b[4] = h.Version
	binary.BigEndian.PutUint64(b[8:16], uint64(h.EraseCounter))
	binary.BigEndian.PutUint32(b[16:20], h.VIDHdrOffset)
	binary.BigEndian.PutUint32(b[20:24], h.DataOffset)
	binary.BigEndian.PutUint32(b[24:28], h.ImageSeq)
	crc := crc32.ChecksumIEEE(b[0:28])
	binary.BigEndian.PutUint32(b[ECHeaderSize-4:ECHeaderSize], crc)
	return b
}
