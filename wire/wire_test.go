// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestECRoundTrip(t *testing.T) {
	h := ECHeader{
		Version:      FormatVersion,
		EraseCounter: 42,
		VIDHdrOffset: 64,
		DataOffset:   128,
		ImageSeq:     0xCAFEBABE,
	}

	raw := EncodeEC(h)
	got, err := DecodeEC(raw)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestECBadMagic(t *testing.T) {
	raw := EncodeEC(ECHeader{Version: FormatVersion})
	raw[0] ^= 0xFF

	_, err := DecodeEC(raw)
	require.Error(t, err)
}

func TestECCorruptedCRC(t *testing.T) {
	raw := EncodeEC(ECHeader{Version: FormatVersion, EraseCounter: 7})
	raw[15] ^= 0x01

	_, err := DecodeEC(raw)
	require.Error(t, err)
}

func TestECVersionMismatch(t *testing.T) {
	raw := EncodeEC(ECHeader{Version: FormatVersion + 1})
	_, err := DecodeEC(raw)
	require.Error(t, err)
}

func TestECEraseCounterOverflow(t *testing.T) {
	raw := EncodeEC(ECHeader{Version: FormatVersion, EraseCounter: MaxEraseCounter + 1})
	_, err := DecodeEC(raw)
	require.Error(t, err)
}

func TestVIDRoundTrip(t *testing.T) {
	h := VIDHeader{
		Version:  FormatVersion,
		VolType:  VolStatic,
		CopyFlag: true,
		Compat:   CompatPreserve,
		VolID:    3,
		LNum:     2,
		DataSize: 4096,
		UsedEBs:  4,
		DataPad:  0,
		DataCRC:  0xDEADBEEF,
		SqNum:    99,
	}

	raw := EncodeVID(h)
	got, err := DecodeVID(raw)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestVIDInvalidVolType(t *testing.T) {
	raw := EncodeVID(VIDHeader{Version: FormatVersion, VolType: 9})
	_, err := DecodeVID(raw)
	require.Error(t, err)
}

func TestDataCRC32(t *testing.T) {
	require.Equal(t, DataCRC32([]byte("hello")), DataCRC32([]byte("hello")))
	require.NotEqual(t, DataCRC32([]byte("hello")), DataCRC32([]byte("hellp")))
}
