// SPDX-License-Identifier: GPL-3.0-or-later

//
// Point-to-point link.
//

package meshsim

import (
	"sync"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/meshsim/frame"
)

// Link models a point-to-point link between two [Device] instances.
//
// The zero value is not ready to use; construct using [NewLink].
type Link struct {
	// eof unblocks any blocking channel operation.
	eof chan struct{}

	// eofOnce ensures we close just once.
	eofOnce sync.Once
}

// NewLink creates a new [*Link] moving frames between the two
// given devices. Each frame crosses the link through its wire
// encoding, so the two ends never share memory. Use Close to
// shut down the background goroutines.
func NewLink(left, right Device) *Link {
	lnk := &Link{
		eof:     make(chan struct{}),
		eofOnce: sync.Once{},
	}
	go lnk.move(left, right)
	go lnk.move(right, left)
	return lnk
}

// Close stops the background goroutines moving traffic.
func (lnk *Link) Close() error {
	lnk.eofOnce.Do(func() { close(lnk.eof) })
	return nil
}

// move moves frames from the left device to the right device.
func (lnk *Link) move(left, right Device) {
	for {
		// Read from the left device.
		select {
		case <-lnk.eof:
			return
		case <-left.EOF():
			return
		case f := <-left.Output():

			// Write to the right device.
			select {
			case <-lnk.eof:
				return
			case <-right.EOF():
				return
			case right.Input() <- lnk.transfer(f):
				// success
			}
		}
	}
}

// transfer encodes and decodes a frame as it crosses the wire.
func (lnk *Link) transfer(f *frame.Frame) *frame.Frame {
	data := runtimex.Try1(f.MarshalBinary())
	copied := &frame.Frame{}
	runtimex.Try0(copied.UnmarshalBinary(data))
	return copied
}
