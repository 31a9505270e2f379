// SPDX-License-Identifier: GPL-3.0-or-later

// Package frame contains [*Frame] and the mesh routing header codec.
//
// Every frame carries a fixed-size routing [Header] piggybacking the
// topology information (origin, cost, sequence number) that nodes use
// to populate their routing tables.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rbmk-project/meshsim/macaddr"
)

// Protocol identifies the kind of payload a frame carries.
type Protocol uint16

// String returns the string representation of the protocol.
func (p Protocol) String() string {
	switch p {
	case ProtoPathUpdate:
		return "path-update"

	case ProtoData:
		return "data"

	default:
		return "unknown"
	}
}

const (
	// ProtoPathUpdate is a control frame announcing reachability
	// of its origin; it has no payload.
	ProtoPathUpdate = Protocol(0x0001)

	// ProtoData is a data frame with an opaque payload.
	ProtoData = Protocol(0x0002)
)

// Fixed routing header layout (16 bytes). All integer
// fields are big-endian.
//
//	0        Version  u8
//	1        TTL      u8
//	2        Cost     u8
//	3        Reserved u8
//	4  ..5   SeqNum   u16
//	6  ..7   Protocol u16
//	8  ..13  Orig     [6]byte
//	14 ..15  Reserved u16
const (
	// HeaderSize is the encoded size of [Header].
	HeaderSize = 16

	// Version is the protocol version this package implements.
	Version = 1
)

// Header is the routing header present in every mesh frame.
type Header struct {
	// TTL is decremented at each hop; a frame whose TTL
	// reaches zero is not forwarded further.
	TTL uint8

	// Cost accumulates the path cost from Orig to here.
	Cost uint8

	// SeqNum is the sequence number assigned by Orig.
	SeqNum uint16

	// Protocol is the payload protocol.
	Protocol Protocol

	// Orig is the address that originated the frame.
	Orig macaddr.Addr
}

// Errors returned when decoding a [Header].
var (
	// ErrHeaderTooShort means the buffer cannot contain a header.
	ErrHeaderTooShort = errors.New("frame: header too short")

	// ErrBadVersion means the version field is unknown.
	ErrBadVersion = errors.New("frame: unknown header version")
)

// MarshalBinary encodes the header into a [HeaderSize] byte buffer.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	buf[0] = Version
	buf[1] = h.TTL
	buf[2] = h.Cost
	// buf[3] reserved
	binary.BigEndian.PutUint16(buf[4:6], h.SeqNum)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Protocol))
	copy(buf[8:14], h.Orig[:])
	// 14..15 reserved stays zero
	return buf, nil
}

// UnmarshalBinary decodes the header from the given buffer.
func (h *Header) UnmarshalBinary(buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrHeaderTooShort
	}
	if buf[0] != Version {
		return fmt.Errorf("%w: %d", ErrBadVersion, buf[0])
	}
	h.TTL = buf[1]
	h.Cost = buf[2]
	h.SeqNum = binary.BigEndian.Uint16(buf[4:6])
	h.Protocol = Protocol(binary.BigEndian.Uint16(buf[6:8]))
	copy(h.Orig[:], buf[8:14])
	return nil
}

// Frame is a link-layer mesh frame.
type Frame struct {
	// Dst is the link-layer destination, possibly broadcast.
	Dst macaddr.Addr

	// Src is the link-layer transmitter of this hop.
	Src macaddr.Addr

	// Hdr is the routing header.
	Hdr Header

	// Payload is the frame payload.
	Payload []byte
}

// String returns the string representation of the frame.
func (f *Frame) String() string {
	return fmt.Sprintf(
		"%s -> %s %s orig=%s ttl=%d cost=%d seq=%d length=%d",
		f.Src, f.Dst, f.Hdr.Protocol, f.Hdr.Orig,
		f.Hdr.TTL, f.Hdr.Cost, f.Hdr.SeqNum, len(f.Payload),
	)
}
