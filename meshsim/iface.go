// SPDX-License-Identifier: GPL-3.0-or-later

//
// Network interface device.
//

package meshsim

import (
	"sync"

	"github.com/rbmk-project/meshsim/frame"
	"github.com/rbmk-project/meshsim/macaddr"
)

// Device is a network device to read/write [*frame.Frame].
type Device interface {
	// Addr returns the device hardware address.
	Addr() macaddr.Addr

	// EOF returns a channel that is closed when the device is closed.
	EOF() <-chan struct{}

	// Input returns a channel to send [*frame.Frame] to the device.
	Input() chan<- *frame.Frame

	// Output returns a channel to receive [*frame.Frame] from the device.
	Output() <-chan *frame.Frame
}

// ifaceQueueSize is the depth of the per-interface frame queues.
const ifaceQueueSize = 128

// Iface is a simulated mesh network interface attached to a [*Node].
//
// Construct using [*Node.NewIface].
type Iface struct {
	// addr is the hardware address, shared with the owning node.
	addr macaddr.Addr

	// index is the interface index within the owning node.
	index uint32

	// eof unblocks any blocking channel operation.
	eof chan struct{}

	// eofOnce ensures we close just once.
	eofOnce sync.Once

	// input carries frames from the wire to the node.
	input chan *frame.Frame

	// output carries frames from the node to the wire.
	output chan *frame.Frame
}

// Addr returns the interface hardware address.
func (ifp *Iface) Addr() macaddr.Addr {
	return ifp.addr
}

// Index returns the interface index within the owning node.
func (ifp *Iface) Index() uint32 {
	return ifp.index
}

// EOF returns the channel to wait for the interface to close.
func (ifp *Iface) EOF() <-chan struct{} {
	return ifp.eof
}

// Input returns the channel carrying frames from the wire to the node.
func (ifp *Iface) Input() chan<- *frame.Frame {
	return ifp.input
}

// Output returns the channel carrying frames from the node to the wire.
func (ifp *Iface) Output() <-chan *frame.Frame {
	return ifp.output
}

// Close closes the interface, unblocking pending operations.
func (ifp *Iface) Close() error {
	ifp.eofOnce.Do(func() { close(ifp.eof) })
	return nil
}
