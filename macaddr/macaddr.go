// SPDX-License-Identifier: GPL-3.0-or-later

// Package macaddr contains a comparable EUI-48 hardware address type.
//
// The standard library [net.HardwareAddr] is a byte slice, which cannot
// be used as a map key and cannot be compared with `==`. The [Addr] type
// follows the [net/netip] value-type design instead.
package macaddr

import (
	"bytes"
	"fmt"
	"net"
)

// AddrLen is the length in bytes of an EUI-48 address.
const AddrLen = 6

// Addr is an EUI-48 hardware address.
//
// The zero value is the all-zero address, which [Addr.IsZero] reports
// and which is not a valid unicast address on a real network.
type Addr [AddrLen]byte

// Broadcast returns the broadcast address ff:ff:ff:ff:ff:ff.
func Broadcast() Addr {
	return Addr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
}

// ParseAddr parses a colon- or dash-separated EUI-48 address.
func ParseAddr(s string) (Addr, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return Addr{}, err
	}
	return AddrFromSlice(hw)
}

// MustParseAddr is like [ParseAddr] but panics on error. It is
// intended for use in tests with hard-coded addresses.
func MustParseAddr(s string) Addr {
	addr, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// AddrFromSlice converts a byte slice to an [Addr]. The slice
// must be exactly [AddrLen] bytes long.
func AddrFromSlice(raw []byte) (Addr, error) {
	if len(raw) != AddrLen {
		return Addr{}, fmt.Errorf("macaddr: invalid address length: %d", len(raw))
	}
	var addr Addr
	copy(addr[:], raw)
	return addr, nil
}

// HardwareAddr returns the [net.HardwareAddr] equivalent of addr.
func (addr Addr) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr(addr[:])
}

// String returns the canonical colon-separated representation.
func (addr Addr) String() string {
	return addr.HardwareAddr().String()
}

// IsZero reports whether addr is the all-zero address.
func (addr Addr) IsZero() bool {
	return addr == Addr{}
}

// IsBroadcast reports whether addr is the broadcast address.
func (addr Addr) IsBroadcast() bool {
	return addr == Broadcast()
}

// IsMulticast reports whether the group bit is set. Note that the
// broadcast address is also a multicast address.
func (addr Addr) IsMulticast() bool {
	return addr[0]&0x01 != 0
}

// Compare orders two addresses lexicographically, returning -1, 0,
// or +1 like [bytes.Compare].
func (addr Addr) Compare(other Addr) int {
	return bytes.Compare(addr[:], other[:])
}
