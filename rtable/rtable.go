// SPDX-License-Identifier: GPL-3.0-or-later

// Package rtable implements the routing table used by flat
// (non-hierarchical) mesh routing protocols.
//
// The [*Table] records, for each destination, the best currently
// known next hop along with its cost and freshness, and ages out
// entries that have not been refreshed within the configured
// lifetime. It is a passive data structure: it never reads the
// wall clock and is instead driven by the "now" value supplied
// by the caller at each operation, which keeps it trivially
// testable with synthetic clocks.
package rtable

import (
	"sync"
	"time"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/meshsim/macaddr"
)

// InterfaceAny means all local interfaces.
const InterfaceAny = uint32(0xffffffff)

// MaxCost is the maximum path cost, meaning unreachable or unknown.
const MaxCost = uint8(0xff)

// DefaultLifetime is the lifetime used when [Table.Lifetime] is zero.
const DefaultLifetime = 120 * time.Second

// LookupResult is the result of looking up a destination.
type LookupResult struct {
	// Retransmitter is the next-hop address.
	Retransmitter macaddr.Addr

	// IfIndex is the local interface index to use.
	IfIndex uint32

	// Cost is the path cost.
	Cost uint8

	// SeqNum is the sequence number of the topology
	// information the route was learned from.
	SeqNum uint16
}

// Invalid returns the [LookupResult] meaning "no usable route":
// broadcast retransmitter, [InterfaceAny], [MaxCost], sequence zero.
func Invalid() LookupResult {
	return LookupResult{
		Retransmitter: macaddr.Broadcast(),
		IfIndex:       InterfaceAny,
		Cost:          MaxCost,
		SeqNum:        0,
	}
}

// IsValid reports whether res describes a usable route.
func (res LookupResult) IsValid() bool {
	return res != Invalid()
}

// Decision is the outcome of comparing a candidate route
// against the currently stored one.
type Decision int

const (
	// Ignore discards the candidate and does not touch the
	// stored entry, not even its expiration.
	Ignore = Decision(iota)

	// Refresh keeps the stored path but extends its expiration.
	Refresh

	// Replace overwrites the stored path with the candidate.
	Replace
)

// PolicyFunc decides whether a candidate route should replace the
// stored route for the same destination.
type PolicyFunc func(cand, cur LookupResult) Decision

// DefaultPolicy prefers fresher topology information over cheaper
// paths: a strictly higher sequence number always wins, regardless
// of cost; for equal sequence numbers a strictly lower cost wins,
// while an equal or worse cost keeps the stored path but extends
// its life, since equally fresh information proves the destination
// is still reachable and replacing would invite path flapping; only
// a strictly lower sequence number is stale and ignored entirely.
func DefaultPolicy(cand, cur LookupResult) Decision {
	switch {
	case cand.SeqNum > cur.SeqNum:
		return Replace
	case cand.SeqNum < cur.SeqNum:
		return Ignore
	case cand.Cost < cur.Cost:
		return Replace
	default:
		return Refresh
	}
}

// route is a routing table entry.
type route struct {
	// retransmitter is the next-hop address.
	retransmitter macaddr.Addr

	// ifIndex is the local interface index.
	ifIndex uint32

	// cost is the path cost.
	cost uint8

	// seqNum is the sequence number the route was learned from.
	seqNum uint16

	// whenExpire is the time after which the route is dead.
	whenExpire time.Time
}

// lookupResult converts the stored entry to a [LookupResult].
func (r *route) lookupResult() LookupResult {
	return LookupResult{
		Retransmitter: r.retransmitter,
		IfIndex:       r.ifIndex,
		Cost:          r.cost,
		SeqNum:        r.seqNum,
	}
}

// Table is a mesh routing table keeping at most one route per
// destination.
//
// The zero value is ready to use. A [*Table] is safe for concurrent
// use by multiple goroutines as long as you don't modify its public
// fields after construction.
type Table struct {
	// Lifetime is the optional duration after which an
	// unrefreshed route becomes stale. If this field is zero,
	// we use [DefaultLifetime].
	Lifetime time.Duration

	// Policy is the optional policy deciding whether a candidate
	// route replaces the stored one. If this field is nil, we
	// use [DefaultPolicy].
	Policy PolicyFunc

	// mu protects routes.
	mu sync.Mutex

	// routes maps each destination to its route.
	routes map[macaddr.Addr]*route
}

// lifetime returns the configured or default lifetime.
func (rt *Table) lifetime() time.Duration {
	if rt.Lifetime > 0 {
		return rt.Lifetime
	}
	return DefaultLifetime
}

// policy returns the configured or default policy.
func (rt *Table) policy() PolicyFunc {
	if rt.Policy != nil {
		return rt.Policy
	}
	return DefaultPolicy
}

// AddPath records that destination is reachable by forwarding
// frames to retransmitter over the local interface with the given
// ifIndex, at the given cost, according to topology information
// carrying the given seqNum.
//
// Whether the new path replaces an already stored one is decided
// by the table policy. The stored entry expires at now plus the
// table lifetime unless the candidate is stale.
//
// Passing a broadcast or zero destination or retransmitter is a
// caller contract violation and causes a panic.
func (rt *Table) AddPath(
	destination, retransmitter macaddr.Addr,
	ifIndex uint32, cost uint8, seqNum uint16, now time.Time) {
	runtimex.Assert(
		!destination.IsBroadcast() && !destination.IsZero(),
		"rtable: invalid destination address",
	)
	runtimex.Assert(
		!retransmitter.IsBroadcast() && !retransmitter.IsZero(),
		"rtable: invalid retransmitter address",
	)

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.routes == nil {
		rt.routes = make(map[macaddr.Addr]*route)
	}

	cand := &route{
		retransmitter: retransmitter,
		ifIndex:       ifIndex,
		cost:          cost,
		seqNum:        seqNum,
		whenExpire:    now.Add(rt.lifetime()),
	}

	cur, found := rt.routes[destination]
	if !found || now.After(cur.whenExpire) {
		rt.routes[destination] = cand
		return
	}

	switch rt.policy()(cand.lookupResult(), cur.lookupResult()) {
	case Replace:
		rt.routes[destination] = cand
	case Refresh:
		cur.whenExpire = cand.whenExpire
	case Ignore:
		// stale information, leave the entry alone
	}
}

// Lookup returns the stored route towards destination, or the
// [Invalid] result when there is no stored route or the stored
// route has expired. An expired route discovered here is evicted.
func (rt *Table) Lookup(destination macaddr.Addr, now time.Time) LookupResult {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	cur, found := rt.routes[destination]
	if !found {
		return Invalid()
	}
	if now.After(cur.whenExpire) {
		delete(rt.routes, destination)
		return Invalid()
	}
	return cur.lookupResult()
}

// Purge eagerly drops all the routes that have expired as of now,
// bounding memory usage under high destination churn. Purging is
// never required for correctness: [Table.Lookup] already treats
// expired routes as absent.
func (rt *Table) Purge(now time.Time) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for destination, cur := range rt.routes {
		if now.After(cur.whenExpire) {
			delete(rt.routes, destination)
		}
	}
}

// Len returns the number of live routes as of now.
func (rt *Table) Len(now time.Time) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	count := 0
	for _, cur := range rt.routes {
		if !now.After(cur.whenExpire) {
			count++
		}
	}
	return count
}

// Flush removes all the routes, live or expired.
func (rt *Table) Flush() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.routes = nil
}
