// Package controller implements an OpenFlow 1.3-style routing controller
// over a VL2/Clos fabric: topology learning, ECMP and VLB path computation,
// DSCP-derived queue selection, and flow-rule installation driven by a
// single-goroutine event loop.
package controller

import "errors"

// ErrNoPath is returned when no path exists between two switches in the
// controller's current topology snapshot.
var ErrNoPath = errors.New("controller: no path between switches")

// Role mirrors pkg/topology.Role without importing it directly, so the
// controller's graph vocabulary stays protocol-shaped (DPIDs, ports) rather
// than coupled to the fabric builder's types.
type Role int

const (
	RoleIntermediate Role = iota
	RoleAggregate
	RoleToR
)

// MatchField and ActionKind name the OpenFlow 1.3 vocabulary this
// controller exercises (§11.3): a small, fixed subset sufficient for
// destination-MAC routing with DSCP-based queue selection.
type MatchField struct {
	EthDst  string // "" means wildcard
	EthType uint16 // 0 means wildcard
	IPDSCP  int    // -1 means wildcard
	InPort  int    // -1 means wildcard
}

// ActionKind enumerates the action verbs this controller emits.
type ActionKind int

const (
	ActionOutput ActionKind = iota
	ActionSetQueue
	ActionOutputToController
)

// Action is one OpenFlow action, e.g. output(port) or set_queue(q).
type Action struct {
	Kind ActionKind
	Arg  int // port number for ActionOutput, queue id for ActionSetQueue
}

// FlowMod is a rule the controller wants a driver to install on one switch.
type FlowMod struct {
	DPID     int
	Match    MatchField
	Actions  []Action
	Priority int
}

// Priority levels, per §4.6.
const (
	PriorityTableMiss = 0
	PriorityDefault   = 10
	PriorityDSCP      = 20
)

// Queue IDs selected from DSCP, per §4.6.
const (
	QueueLow  = 0
	QueueHigh = 1
)

// DSCPHighPriority is the DSCP value routed to the high-priority queue.
const DSCPHighPriority = 8

// QueueForDSCP implements the fixed DSCP -> queue mapping.
func QueueForDSCP(dscp int) int {
	if dscp == DSCPHighPriority {
		return QueueHigh
	}
	return QueueLow
}

// LLDPEtherType is ignored by PacketIn dispatch; reserved for topology
// discovery traffic the controller does not originate.
const LLDPEtherType = 0x88cc

// BroadcastMAC is the flood-to-all-ToRs destination.
const BroadcastMAC = "ff:ff:ff:ff:ff:ff"

// PacketOut instructs the driver to re-inject the in-flight frame that
// triggered a PacketIn, using the same actions just installed on that
// switch, so the packet isn't lost while FlowMods propagate downstream.
type PacketOut struct {
	DPID    int
	InPort  int
	Actions []Action
}
