// SPDX-License-Identifier: GPL-3.0-or-later

package meshsim_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rbmk-project/meshsim/macaddr"
	"github.com/rbmk-project/meshsim/meshsim"
	"github.com/rbmk-project/meshsim/rtable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	addrA = macaddr.MustParseAddr("02:00:00:00:00:0a")
	addrB = macaddr.MustParseAddr("02:00:00:00:00:0b")
	addrC = macaddr.MustParseAddr("02:00:00:00:00:0c")
)

// clock is a synthetic clock shared by the nodes under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, time.November, 10, 15, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// delivery is a data frame handed to a node's Deliver callback.
type delivery struct {
	orig    macaddr.Addr
	payload string
}

// newTestNode creates a node using the given synthetic clock and
// returns it along with the channel its deliveries are posted on.
func newTestNode(t *testing.T, addr macaddr.Addr, clk *clock) (*meshsim.Node, chan delivery) {
	node := meshsim.NewNode(addr)
	node.TimeNow = clk.Now
	ch := make(chan delivery, 16)
	node.Deliver = func(orig macaddr.Addr, payload []byte) {
		ch <- delivery{orig: orig, payload: string(payload)}
	}
	t.Cleanup(func() { node.Close() })
	return node, ch
}

// chain wires the given nodes in a linear topology.
func chain(t *testing.T, nodes ...*meshsim.Node) {
	for idx := 1; idx < len(nodes); idx++ {
		lnk := meshsim.NewLink(nodes[idx-1].NewIface(), nodes[idx].NewIface())
		t.Cleanup(func() { lnk.Close() })
	}
}

// waitForRoute waits until node has a live route towards dest.
func waitForRoute(t *testing.T, node *meshsim.Node, dest macaddr.Addr, clk *clock) rtable.LookupResult {
	require.Eventually(t, func() bool {
		return node.Table().Lookup(dest, clk.Now()).IsValid()
	}, 5*time.Second, 5*time.Millisecond)
	return node.Table().Lookup(dest, clk.Now())
}

func TestAnnounceFloodsThroughChain(t *testing.T) {
	clk := newClock()
	nodeA, _ := newTestNode(t, addrA, clk)
	nodeB, _ := newTestNode(t, addrB, clk)
	nodeC, _ := newTestNode(t, addrC, clk)
	chain(t, nodeA, nodeB, nodeC)

	nodeA.Announce()

	// The middle node reaches A directly.
	resB := waitForRoute(t, nodeB, addrA, clk)
	assert.Equal(t, addrA, resB.Retransmitter)
	assert.Equal(t, uint8(1), resB.Cost)

	// The far node reaches A through B.
	resC := waitForRoute(t, nodeC, addrA, clk)
	assert.Equal(t, addrB, resC.Retransmitter)
	assert.Equal(t, uint8(2), resC.Cost)
}

func TestDataDeliveryAndReversePathLearning(t *testing.T) {
	clk := newClock()
	nodeA, chA := newTestNode(t, addrA, clk)
	nodeB, _ := newTestNode(t, addrB, clk)
	nodeC, _ := newTestNode(t, addrC, clk)
	chain(t, nodeA, nodeB, nodeC)

	nodeA.Announce()
	waitForRoute(t, nodeC, addrA, clk)

	nodeC.SendTo(addrA, []byte("bonsoir"))

	select {
	case d := <-chA:
		assert.Equal(t, addrC, d.orig)
		assert.Equal(t, "bonsoir", d.payload)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	// The data frame taught every hop the path back to C.
	resB := waitForRoute(t, nodeB, addrC, clk)
	assert.Equal(t, addrC, resB.Retransmitter)
	resA := waitForRoute(t, nodeA, addrC, clk)
	assert.Equal(t, addrB, resA.Retransmitter)
}

func TestTTLBoundsFlooding(t *testing.T) {
	clk := newClock()
	nodeA, _ := newTestNode(t, addrA, clk)
	nodeA.TTL = 1
	nodeB, _ := newTestNode(t, addrB, clk)
	nodeC, _ := newTestNode(t, addrC, clk)
	chain(t, nodeA, nodeB, nodeC)

	nodeA.Announce()

	// One hop away the route is learned.
	waitForRoute(t, nodeB, addrA, clk)

	// Two hops away the announcement must never arrive.
	assert.Never(t, func() bool {
		return nodeC.Table().Lookup(addrA, clk.Now()).IsValid()
	}, 250*time.Millisecond, 25*time.Millisecond)
}

func TestExpiredRouteFallsBackToFlooding(t *testing.T) {
	clk := newClock()
	nodeA, chA := newTestNode(t, addrA, clk)
	nodeB, _ := newTestNode(t, addrB, clk)
	nodeC, _ := newTestNode(t, addrC, clk)
	nodeC.Table().Lifetime = 10 * time.Second
	chain(t, nodeA, nodeB, nodeC)

	nodeA.Announce()
	waitForRoute(t, nodeC, addrA, clk)

	clk.Advance(time.Minute)
	assert.False(t, nodeC.Table().Lookup(addrA, clk.Now()).IsValid())

	// Without a live route the frame floods and still arrives.
	nodeC.SendTo(addrA, []byte("flooded"))
	select {
	case d := <-chA:
		assert.Equal(t, addrC, d.orig)
		assert.Equal(t, "flooded", d.payload)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestTriangleConvergesOnCheaperPath(t *testing.T) {
	clk := newClock()
	nodeA, _ := newTestNode(t, addrA, clk)
	nodeB, _ := newTestNode(t, addrB, clk)
	nodeC, _ := newTestNode(t, addrC, clk)

	// Full mesh: A-B, B-C, and the direct A-C link.
	for _, pair := range [][2]*meshsim.Node{
		{nodeA, nodeB}, {nodeB, nodeC}, {nodeA, nodeC},
	} {
		lnk := meshsim.NewLink(pair[0].NewIface(), pair[1].NewIface())
		t.Cleanup(func() { lnk.Close() })
	}

	nodeA.Announce()

	// Whatever order the flood arrives in, C must settle on the
	// direct path: equal sequence number, strictly lower cost.
	require.Eventually(t, func() bool {
		res := nodeC.Table().Lookup(addrA, clk.Now())
		return res.IsValid() && res.Cost == 1 && res.Retransmitter == addrA
	}, 5*time.Second, 5*time.Millisecond)
}

func TestNewNodeRejectsInvalidAddresses(t *testing.T) {
	tests := []struct {
		name string
		addr macaddr.Addr
	}{
		{"broadcast", macaddr.Broadcast()},
		{"multicast", macaddr.MustParseAddr("01:00:5e:00:00:01")},
		{"zero", macaddr.Addr{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() { meshsim.NewNode(tt.addr) })
		})
	}
}

func TestCloseUnblocksInterfaces(t *testing.T) {
	node := meshsim.NewNode(addrA)
	ifp := node.NewIface()
	require.NoError(t, node.Close())
	select {
	case <-ifp.EOF():
	case <-time.After(time.Second):
		t.Fatal("interface not closed with the node")
	}
}
