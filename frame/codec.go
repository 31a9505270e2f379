// SPDX-License-Identifier: GPL-3.0-or-later

package frame

// Encoded frame layout: link-layer destination and source
// addresses followed by the routing [Header] and the payload.
const frameOverhead = 2*6 + HeaderSize

// MarshalBinary encodes the whole frame.
func (f *Frame) MarshalBinary() ([]byte, error) {
	hdr, err := f.Hdr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, frameOverhead+len(f.Payload))
	buf = append(buf, f.Dst[:]...)
	buf = append(buf, f.Src[:]...)
	buf = append(buf, hdr...)
	buf = append(buf, f.Payload...)
	return buf, nil
}

// UnmarshalBinary decodes a whole frame. The payload is copied,
// so the frame does not alias the given buffer.
func (f *Frame) UnmarshalBinary(buf []byte) error {
	if len(buf) < frameOverhead {
		return ErrHeaderTooShort
	}
	copy(f.Dst[:], buf[0:6])
	copy(f.Src[:], buf[6:12])
	if err := f.Hdr.UnmarshalBinary(buf[12 : 12+HeaderSize]); err != nil {
		return err
	}
	f.Payload = append([]byte(nil), buf[frameOverhead:]...)
	return nil
}
