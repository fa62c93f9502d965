// Package routing implements the two routing-algorithm strategies that sit
// at the heart of the control plane: flooding (broadcast-typed delivery with
// dedup + TTL) and link-state routing (HELLO/LSA protocol, LSDB, and
// deterministic shortest-path forwarding-table computation).
//
// Both strategies are pure state machines: they perform no I/O, never
// block, and never sleep. The owning node/orchestrator (core/node) is
// responsible for every send, receive, and timer tick.
package routing

import "github.com/lsrlab/meshrouter/core/packet"

// UnknownNeighbor is the sentinel passed as fromNeighbor when the transport
// cannot identify the sending link (spec §6 Transport.Receive).
const UnknownNeighbor = "unknown"

// Kind identifies the disposition the orchestrator should give a processed
// packet (spec §2, §4.5): deliver upward only, flood to every neighbor but
// the inbound one, flood an accepted LSA, or unicast to a specific next hop.
type Kind uint8

const (
	// None means the packet was consumed (or dropped) and needs no forwarding.
	None Kind = iota
	// Flood means forward to every neighbor except the inbound one.
	Flood
	// FloodLSA is Flood for an accepted link-state advertisement.
	FloodLSA
	// Unicast means forward to exactly one named neighbor.
	Unicast
)

// Action is the forwarding decision returned by Strategy.ProcessPacket.
type Action struct {
	Kind    Kind
	NextHop string // populated only when Kind == Unicast
}

// NoopAction is the zero-value "nothing to do" action.
var NoopAction = Action{Kind: None}

// UnicastTo builds a Unicast action toward the given neighbor.
func UnicastTo(neighbor string) Action {
	return Action{Kind: Unicast, NextHop: neighbor}
}

// NeighborInfo describes a direct link update supplied to UpdateNeighbor.
// Cost defaults to 1 when zero.
type NeighborInfo struct {
	Cost int
}

// Strategy is the capability shared by Flooding and LSR (spec §9): a small
// interface rather than a deep inheritance hierarchy. Strategies that don't
// send HELLO/LSA or don't run maintenance sweeps simply don't implement the
// optional interfaces below.
type Strategy interface {
	// Name identifies the strategy ("flooding" or "lsr").
	Name() string
	// UpdateNeighbor upserts a direct neighbor's link info.
	UpdateNeighbor(id string, info NeighborInfo)
	// ProcessPacket handles one inbound packet and returns the forwarding
	// decision. fromNeighbor is UnknownNeighbor when the transport could
	// not identify the sending link.
	ProcessPacket(pkt *packet.Packet, fromNeighbor string) Action
	// GetNextHop returns the first-hop neighbor for dst, if a route exists.
	GetNextHop(dst string) (string, bool)
}

// HelloSender is implemented by strategies that emit periodic HELLO packets.
type HelloSender interface {
	ShouldSendHello() bool
	CreateHelloPacket() *packet.Packet
}

// LSASender is implemented by strategies that emit periodic LSAs.
type LSASender interface {
	ShouldSendLSA() bool
	CreateLSAPacket() *packet.Packet
}

// Maintainer is implemented by strategies with periodic aging/liveness
// sweeps driven by the orchestrator's tick loop.
type Maintainer interface {
	CheckNeighborTimeouts()
	AgeLSADatabase()
}

// Inspectable is implemented by strategies that expose their internal
// state for diagnostic reads (the "neighbors" and "routes" CLI commands
// of spec §6). Flooding does not implement it, since it tracks neither.
type Inspectable interface {
	Neighbors() map[string]NeighborState
	RoutingTable() map[string]string
	LSDBSize() int
}
