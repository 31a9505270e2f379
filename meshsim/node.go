// SPDX-License-Identifier: GPL-3.0-or-later

//
// Mesh node and forwarding engine.
//

package meshsim

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/meshsim/frame"
	"github.com/rbmk-project/meshsim/macaddr"
	"github.com/rbmk-project/meshsim/rtable"
)

// DefaultTTL is the initial TTL used when [Node.TTL] is zero.
const DefaultTTL = 32

// Node is a node of the simulated mesh.
//
// Construct using [NewNode]. The public fields are optional and
// must not be modified after the first call to [*Node.NewIface].
//
// A [*Node] processes each received frame on the goroutine serving
// the interface the frame arrived on, so the Deliver callback may
// be invoked concurrently with the caller's goroutines.
type Node struct {
	// Deliver is the optional callback receiving the origin
	// address and payload of data frames addressed to this
	// node. If this field is nil, such frames are dropped.
	Deliver func(orig macaddr.Addr, payload []byte)

	// LinkCost is the optional cost of traversing one link.
	// If this field is zero, we use a cost of one.
	LinkCost uint8

	// Logger is the optional structured logger for emitting
	// structured diagnostic events. If this field is nil, we
	// will not be emitting structured logs.
	Logger *slog.Logger

	// TTL is the optional initial TTL of originated frames.
	// If this field is zero, we use [DefaultTTL].
	TTL uint8

	// TimeNow is an optional function that returns the current
	// time. If this field is nil, the [time.Now] function
	// will be used.
	TimeNow func() time.Time

	// addr is the node hardware address.
	addr macaddr.Addr

	// eof unblocks any blocking channel operation.
	eof chan struct{}

	// eofOnce ensures we close just once.
	eofOnce sync.Once

	// ifaces contains the attached interfaces.
	ifaces []*Iface

	// mu protects ifaces and seqnum.
	mu sync.Mutex

	// rt is the routing table owned by this node.
	rt rtable.Table

	// seqnum is the last sequence number this node originated.
	seqnum uint16
}

// NewNode creates a new [*Node] with the given hardware address,
// which must be a valid unicast address.
func NewNode(addr macaddr.Addr) *Node {
	runtimex.Assert(
		!addr.IsBroadcast() && !addr.IsMulticast() && !addr.IsZero(),
		"meshsim: invalid node address",
	)
	return &Node{
		addr: addr,
		eof:  make(chan struct{}),
	}
}

// Addr returns the node hardware address.
func (n *Node) Addr() macaddr.Addr {
	return n.addr
}

// Table returns the routing table owned by this node, so that
// callers can configure its lifetime and policy before attaching
// interfaces and inspect learned routes afterwards. The node owns
// the table for its whole lifetime; callers must not retain it
// past the node's Close.
func (n *Node) Table() *rtable.Table {
	return &n.rt
}

// NewIface creates a new interface attached to this node and
// starts a goroutine processing the frames it receives.
func (n *Node) NewIface() *Iface {
	n.mu.Lock()
	ifp := &Iface{
		addr:    n.addr,
		index:   uint32(len(n.ifaces)),
		eof:     make(chan struct{}),
		eofOnce: sync.Once{},
		input:   make(chan *frame.Frame, ifaceQueueSize),
		output:  make(chan *frame.Frame, ifaceQueueSize),
	}
	n.ifaces = append(n.ifaces, ifp)
	n.mu.Unlock()
	go n.readLoop(ifp)
	return ifp
}

// Close closes the node and all its interfaces.
func (n *Node) Close() error {
	n.eofOnce.Do(func() { close(n.eof) })
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ifp := range n.ifaces {
		ifp.Close()
	}
	return nil
}

// timeNow is a function that returns the current time.
func (n *Node) timeNow() time.Time {
	if n.TimeNow != nil {
		return n.TimeNow()
	}
	return time.Now()
}

// linkCost returns the configured or default link cost.
func (n *Node) linkCost() uint8 {
	if n.LinkCost > 0 {
		return n.LinkCost
	}
	return 1
}

// initialTTL returns the configured or default initial TTL.
func (n *Node) initialTTL() uint8 {
	if n.TTL > 0 {
		return n.TTL
	}
	return DefaultTTL
}

// nextSeqNum returns the next sequence number to originate with.
func (n *Node) nextSeqNum() uint16 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seqnum++
	return n.seqnum
}

// SendTo originates a data frame addressed to dst carrying the
// given payload. When the routing table has a live route towards
// dst the frame is unicast along it, otherwise it is flooded on
// all the interfaces.
func (n *Node) SendTo(dst macaddr.Addr, payload []byte) {
	f := &frame.Frame{
		Dst: dst,
		Src: n.addr,
		Hdr: frame.Header{
			TTL:      n.initialTTL(),
			Cost:     0,
			SeqNum:   n.nextSeqNum(),
			Protocol: frame.ProtoData,
			Orig:     n.addr,
		},
		Payload: payload,
	}
	n.emit(f, nil)
}

// Announce originates a path-update frame flooding through the
// mesh and seeding routes towards this node on every node it
// traverses.
func (n *Node) Announce() {
	f := &frame.Frame{
		Dst: macaddr.Broadcast(),
		Src: n.addr,
		Hdr: frame.Header{
			TTL:      n.initialTTL(),
			Cost:     0,
			SeqNum:   n.nextSeqNum(),
			Protocol: frame.ProtoPathUpdate,
			Orig:     n.addr,
		},
	}
	n.flood(f, nil)
}

// readLoop processes frames received by an interface until
// the interface or the node is closed.
func (n *Node) readLoop(ifp *Iface) {
	for {
		select {
		case <-n.eof:
			return
		case <-ifp.eof:
			return
		case f := <-ifp.input:
			n.receive(ifp, f)
		}
	}
}

// receive handles a single received frame.
func (n *Node) receive(ifp *Iface, f *frame.Frame) {
	// Frames originated by this node looped back through a
	// flood: drop them to terminate the flood.
	if f.Hdr.Orig == n.addr {
		return
	}

	// A well-formed frame carries unicast origin and
	// transmitter addresses; discard anything else before
	// it can reach the routing table.
	if !validUnicast(f.Hdr.Orig) || !validUnicast(f.Src) {
		n.logDrop(f, ifp, "malformed addresses")
		return
	}

	now := n.timeNow()

	// Duplicate suppression: a frame whose origin we already
	// track with the same or a newer sequence number has been
	// seen through another path already.
	cur := n.rt.Lookup(f.Hdr.Orig, now)
	duplicate := cur.IsValid() && f.Hdr.SeqNum <= cur.SeqNum

	// Learn the reverse path towards the origin. The cost of
	// the last link is accounted here.
	cost := saturatingAdd(f.Hdr.Cost, n.linkCost())
	if cost < rtable.MaxCost {
		n.rt.AddPath(f.Hdr.Orig, f.Src, ifp.index, cost, f.Hdr.SeqNum, now)
		if n.Logger != nil {
			n.Logger.Debug(
				"meshsim: learned path",
				slog.String("node", n.addr.String()),
				slog.String("dest", f.Hdr.Orig.String()),
				slog.String("retransmitter", f.Src.String()),
				slog.Uint64("ifindex", uint64(ifp.index)),
				slog.Uint64("cost", uint64(cost)),
				slog.Uint64("seqnum", uint64(f.Hdr.SeqNum)),
				slog.Time("t", now),
			)
		}
	}

	switch f.Hdr.Protocol {
	case frame.ProtoData:
		if f.Dst == n.addr {
			if n.Deliver != nil {
				n.Deliver(f.Hdr.Orig, f.Payload)
			}
			return
		}
		if duplicate {
			n.logDrop(f, ifp, "duplicate")
			return
		}
		n.forward(ifp, f, now)

	case frame.ProtoPathUpdate:
		if duplicate {
			n.logDrop(f, ifp, "duplicate")
			return
		}
		if fwd, ok := n.nextHopFrame(f); ok {
			n.flood(fwd, ifp)
		}

	default:
		n.logDrop(f, ifp, "unknown protocol")
	}
}

// forward forwards a data frame addressed to another node, using
// the routing table when it has a live route and flooding as the
// flat-mesh fallback otherwise.
func (n *Node) forward(ifp *Iface, f *frame.Frame, now time.Time) {
	fwd, ok := n.nextHopFrame(f)
	if !ok {
		n.logDrop(f, ifp, "TTL exceeded")
		return
	}
	n.emitSkipping(fwd, ifp, now)
}

// emit transmits a frame originated by this node.
func (n *Node) emit(f *frame.Frame, skip *Iface) {
	n.emitSkipping(f, skip, n.timeNow())
}

// emitSkipping unicasts f along the stored route towards f.Dst
// when one is live, and floods it otherwise, never transmitting
// on the skip interface.
func (n *Node) emitSkipping(f *frame.Frame, skip *Iface, now time.Time) {
	if res := n.rt.Lookup(f.Dst, now); res.IsValid() {
		n.mu.Lock()
		runtimex.Assert(
			int(res.IfIndex) < len(n.ifaces),
			"meshsim: route through unknown interface",
		)
		out := n.ifaces[res.IfIndex]
		n.mu.Unlock()
		if n.Logger != nil {
			n.Logger.Debug(
				"meshsim: unicast",
				slog.String("node", n.addr.String()),
				slog.String("frame", f.String()),
				slog.String("retransmitter", res.Retransmitter.String()),
				slog.Uint64("ifindex", uint64(res.IfIndex)),
				slog.Time("t", now),
			)
		}
		n.transmit(out, f)
		return
	}
	n.flood(f, skip)
}

// flood transmits a frame on all the interfaces except skip.
func (n *Node) flood(f *frame.Frame, skip *Iface) {
	n.mu.Lock()
	ifaces := append([]*Iface{}, n.ifaces...)
	n.mu.Unlock()
	for _, out := range ifaces {
		if out != skip {
			n.transmit(out, f)
		}
	}
}

// transmit posts a frame on an interface output queue, dropping
// the frame when the queue is full.
func (n *Node) transmit(out *Iface, f *frame.Frame) {
	select {
	case <-n.eof:
	case <-out.eof:
	case out.output <- f:
	default:
		n.logDrop(f, out, "queue full")
	}
}

// nextHopFrame returns the copy of f to transmit towards the next
// hop, with the TTL decremented and the cost of this hop added, or
// false when the TTL is exhausted.
func (n *Node) nextHopFrame(f *frame.Frame) (*frame.Frame, bool) {
	if f.Hdr.TTL <= 1 {
		return nil, false
	}
	fwd := &frame.Frame{
		Dst:     f.Dst,
		Src:     n.addr,
		Hdr:     f.Hdr,
		Payload: f.Payload,
	}
	fwd.Hdr.TTL--
	fwd.Hdr.Cost = saturatingAdd(f.Hdr.Cost, n.linkCost())
	return fwd, true
}

// logDrop emits a structured event for a dropped frame.
func (n *Node) logDrop(f *frame.Frame, ifp *Iface, reason string) {
	if n.Logger != nil {
		n.Logger.Debug(
			"meshsim: frame dropped",
			slog.String("node", n.addr.String()),
			slog.String("frame", f.String()),
			slog.Uint64("ifindex", uint64(ifp.index)),
			slog.String("reason", reason),
		)
	}
}

// validUnicast reports whether addr can appear as the origin or
// transmitter address of a well-formed frame.
func validUnicast(addr macaddr.Addr) bool {
	return !addr.IsZero() && !addr.IsMulticast()
}

// saturatingAdd adds two costs saturating at [rtable.MaxCost].
func saturatingAdd(a, b uint8) uint8 {
	if sum := uint16(a) + uint16(b); sum < uint16(rtable.MaxCost) {
		return uint8(sum)
	}
	return rtable.MaxCost
}
