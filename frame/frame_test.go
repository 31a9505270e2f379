// SPDX-License-Identifier: GPL-3.0-or-later

package frame_test

import (
	"testing"

	"github.com/rbmk-project/meshsim/frame"
	"github.com/rbmk-project/meshsim/macaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundtrip(t *testing.T) {
	h := frame.Header{
		TTL:      32,
		Cost:     7,
		SeqNum:   0xbeef,
		Protocol: frame.ProtoData,
		Orig:     macaddr.MustParseAddr("00:11:22:33:44:55"),
	}

	data, err := h.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, frame.HeaderSize)
	assert.Equal(t, uint8(frame.Version), data[0])

	var h2 frame.Header
	require.NoError(t, h2.UnmarshalBinary(data))
	assert.Equal(t, h, h2)
}

func TestHeaderUnmarshalErrors(t *testing.T) {
	t.Run("short buffer", func(t *testing.T) {
		var h frame.Header
		err := h.UnmarshalBinary(make([]byte, frame.HeaderSize-1))
		assert.ErrorIs(t, err, frame.ErrHeaderTooShort)
	})

	t.Run("bad version", func(t *testing.T) {
		good := frame.Header{TTL: 1, Protocol: frame.ProtoData}
		data, err := good.MarshalBinary()
		require.NoError(t, err)
		data[0] = 0x7f

		var h frame.Header
		assert.ErrorIs(t, h.UnmarshalBinary(data), frame.ErrBadVersion)
	})
}

func TestFrameRoundtrip(t *testing.T) {
	f := frame.Frame{
		Dst: macaddr.MustParseAddr("00:00:00:00:00:02"),
		Src: macaddr.MustParseAddr("00:00:00:00:00:01"),
		Hdr: frame.Header{
			TTL:      31,
			Cost:     1,
			SeqNum:   4,
			Protocol: frame.ProtoData,
			Orig:     macaddr.MustParseAddr("00:00:00:00:00:01"),
		},
		Payload: []byte("0xdeadbeef"),
	}

	data, err := f.MarshalBinary()
	require.NoError(t, err)

	var f2 frame.Frame
	require.NoError(t, f2.UnmarshalBinary(data))
	assert.Equal(t, f, f2)

	// The decoded payload must not alias the wire buffer.
	data[len(data)-1] ^= 0xff
	assert.Equal(t, f.Payload, f2.Payload)
}

func TestFrameUnmarshalTooShort(t *testing.T) {
	var f frame.Frame
	err := f.UnmarshalBinary(make([]byte, 12))
	assert.ErrorIs(t, err, frame.ErrHeaderTooShort)
}

func TestProtocolString(t *testing.T) {
	assert.Equal(t, "path-update", frame.ProtoPathUpdate.String())
	assert.Equal(t, "data", frame.ProtoData.String())
	assert.Equal(t, "unknown", frame.Protocol(0x7fff).String())
}

func TestFrameString(t *testing.T) {
	f := &frame.Frame{
		Dst: macaddr.Broadcast(),
		Src: macaddr.MustParseAddr("00:00:00:00:00:01"),
		Hdr: frame.Header{
			TTL:      16,
			Cost:     2,
			SeqNum:   9,
			Protocol: frame.ProtoPathUpdate,
			Orig:     macaddr.MustParseAddr("00:00:00:00:00:01"),
		},
	}
	assert.Equal(
		t,
		"00:00:00:00:00:01 -> ff:ff:ff:ff:ff:ff path-update "+
			"orig=00:00:00:00:00:01 ttl=16 cost=2 seq=9 length=0",
		f.String(),
	)
}
