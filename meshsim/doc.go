// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package meshsim simulates small layer-2 mesh networks so that
developers can exercise flat mesh routing logic in tests.

# Usage and Features

The [NewNode] function creates a mesh [*Node] with a given hardware
address. Each node owns a [rtable.Table] for its whole lifetime and
zero or more [*Iface] created with [*Node.NewIface]. The [*Link]
type connects two [*Iface] so frames flow between them, re-encoding
each frame through its wire format so the two ends never share
memory.

A node learns a path towards the origin of every frame it receives
and records it into its routing table. Data frames addressed to the
node are handed to the optional Deliver callback; other data frames
are forwarded: towards the recorded next hop when the routing table
has a live entry, flooded on the remaining interfaces otherwise.
Path-update frames originated with [*Node.Announce] flood through
the mesh and seed the routing tables of every node they traverse.

Nodes never read the wall clock directly: the optional TimeNow field
supplies the current time, which makes route expiry testable with
synthetic clocks.

# Design Documents

This package is experimental and has no design documents for now.
*/
package meshsim
