package controller

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/netfabric/fabricsim/internal/logging"
)

// Event is the sum type of topology/packet events the controller consumes.
// Exactly one field is non-nil per event; which one says what kind it is.
type Event struct {
	SwitchFeatures *SwitchFeaturesEvent
	SwitchEnter    *SwitchEnterEvent
	SwitchLeave    *SwitchLeaveEvent
	LinkAdd        *LinkAddEvent
	LinkDelete     *LinkDeleteEvent
	PacketIn       *PacketInEvent
}

type SwitchFeaturesEvent struct{ DPID int }
type SwitchEnterEvent struct{ DPID int }
type SwitchLeaveEvent struct{ DPID int }
type LinkAddEvent struct{ SrcDPID, SrcPort, DstDPID, DstPort int }
type LinkDeleteEvent struct{ SrcDPID, DstDPID int }

// PacketInEvent models an OpenFlow PacketIn arriving on a switch port.
// IPDSCP is -1 when the frame is not IPv4 (no DSCP to key on).
type PacketInEvent struct {
	DPID    int
	InPort  int
	EthSrc  string
	EthDst  string
	EthType uint16
	IPDSCP  int
}

// Decision is the controller's response to one PacketIn: the FlowMods to
// install (in the order they must reach their switches), an optional
// PacketOut to replay the in-flight frame on its origin switch, and/or a
// flood instruction.
type Decision struct {
	FlowMods  []FlowMod
	PacketOut *PacketOut
	Flood     bool
	Ignored   bool // LLDP or a PacketIn on a non-ToR switch: no action taken
}

// Driver is implemented by whatever owns the actual switches (an
// ovsflow-backed emulator, a test double) and receives the controller's
// decisions as concrete commands.
type Driver interface {
	InstallFlowMod(ctx context.Context, fm FlowMod) error
	SendPacketOut(ctx context.Context, po PacketOut) error
	FloodHostFacingPorts(ctx context.Context, exceptTorDPID, exceptPort int) error
}

// Controller owns the topology graph and serializes all mutation and
// path-computation through a single goroutine reading from events, per the
// controller concurrency model (§5): no locks are needed because handlers
// never execute concurrently with each other.
type Controller struct {
	t      *topo
	rng    *rand.Rand
	log    *logging.Logger
	events chan Event
	driver Driver
}

// New constructs a Controller. rngSeed makes path selection reproducible
// across runs of the same scenario.
func New(driver Driver, log *logging.Logger, rngSeed int64) *Controller {
	return &Controller{
		t:      newTopo(),
		rng:    rand.New(rand.NewSource(rngSeed)),
		log:    log,
		events: make(chan Event, 1024),
		driver: driver,
	}
}

// Submit enqueues an event for the controller's loop. Safe to call from
// any goroutine; the loop itself is the only graph mutator.
func (c *Controller) Submit(ev Event) {
	c.events <- ev
}

// Run processes events until ctx is canceled or the channel is closed.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			c.dispatch(ctx, ev)
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, ev Event) {
	switch {
	case ev.SwitchFeatures != nil:
		c.onSwitchFeatures(ev.SwitchFeatures.DPID)
	case ev.SwitchEnter != nil:
		c.onSwitchEnter(ctx, ev.SwitchEnter.DPID)
	case ev.SwitchLeave != nil:
		c.t.removeSwitch(ev.SwitchLeave.DPID)
	case ev.LinkAdd != nil:
		l := ev.LinkAdd
		c.t.addLink(l.SrcDPID, l.SrcPort, l.DstDPID, l.DstPort)
	case ev.LinkDelete != nil:
		c.t.removeLink(ev.LinkDelete.SrcDPID, ev.LinkDelete.DstDPID)
	case ev.PacketIn != nil:
		d := c.HandlePacketIn(*ev.PacketIn)
		c.apply(ctx, ev.PacketIn.DPID, ev.PacketIn.InPort, d)
	}
}

func (c *Controller) onSwitchFeatures(dpid int) {
	c.t.addSwitch(dpid)
}

// onSwitchEnter installs the table-miss rule: match-any, send-to-controller,
// lowest priority.
func (c *Controller) onSwitchEnter(ctx context.Context, dpid int) {
	c.t.addSwitch(dpid)
	fm := FlowMod{
		DPID:     dpid,
		Match:    MatchField{EthDst: "", EthType: 0, IPDSCP: -1, InPort: -1},
		Actions:  []Action{{Kind: ActionOutputToController}},
		Priority: PriorityTableMiss,
	}
	if err := c.driver.InstallFlowMod(ctx, fm); err != nil && c.log != nil {
		c.log.Warn("table-miss install failed", "dpid", dpid, "err", err)
	}
}

// HandlePacketIn implements the PacketIn dispatch state machine (§4.6). It
// is pure over the current graph snapshot (aside from host-learning
// mutation, which always happens) so it is trivially unit-testable without
// a driver.
func (c *Controller) HandlePacketIn(ev PacketInEvent) Decision {
	if ev.EthType == LLDPEtherType {
		return Decision{Ignored: true}
	}

	role := classifyDPID(ev.DPID)
	if role != RoleToR {
		if c.log != nil {
			c.log.Warn("unexpected PacketIn on non-ToR switch", "dpid", ev.DPID)
		}
		return Decision{Ignored: true}
	}

	if ev.InPort >= 1 && ev.InPort <= 20 {
		if !c.t.isHostLearnedOnPort(ev.DPID, ev.EthSrc, ev.InPort) {
			c.t.learnHost(ev.DPID, ev.EthSrc, ev.InPort)
		}
	}

	if ev.EthDst == BroadcastMAC {
		return Decision{Flood: true}
	}

	dstTor, known := c.t.torOf(ev.EthDst)
	if !known {
		return Decision{Flood: true}
	}

	hasDSCP := ev.EthType == 0x0800 && ev.IPDSCP >= 0
	if dstTor == ev.DPID {
		outPort, ok := c.t.outPort(switchVertexID(ev.DPID), macVertexID(ev.EthDst))
		if !ok {
			return Decision{Flood: true}
		}
		fm := localSwitchRule(ev.DPID, ev.EthDst, outPort, ev.IPDSCP, hasDSCP)
		return Decision{
			FlowMods:  []FlowMod{fm},
			PacketOut: &PacketOut{DPID: ev.DPID, InPort: ev.InPort, Actions: fm.Actions},
		}
	}

	srcID, dstID := switchVertexID(ev.DPID), switchVertexID(dstTor)
	path, err := c.t.vlbPath(c.rng, srcID, dstID)
	if err != nil {
		return Decision{Flood: true}
	}
	finalOutPort, ok := c.t.outPort(dstID, macVertexID(ev.EthDst))
	if !ok {
		return Decision{Flood: true}
	}

	fms := pathToFlowMods(c.t, path, finalOutPort, ev.EthDst, ev.IPDSCP, hasDSCP)
	if len(fms) == 0 {
		return Decision{Flood: true}
	}
	return Decision{
		FlowMods:  fms,
		PacketOut: &PacketOut{DPID: ev.DPID, InPort: ev.InPort, Actions: fms[0].Actions},
	}
}

func localSwitchRule(dpid int, dstMAC string, outPort, dscp int, hasDSCP bool) FlowMod {
	match := MatchField{EthDst: dstMAC, IPDSCP: -1, InPort: -1}
	priority := PriorityDefault
	actions := []Action{{Kind: ActionOutput, Arg: outPort}}
	if hasDSCP {
		match.EthType = 0x0800
		match.IPDSCP = dscp
		priority = PriorityDSCP
		actions = append([]Action{{Kind: ActionSetQueue, Arg: QueueForDSCP(dscp)}}, actions...)
	}
	return FlowMod{DPID: dpid, Match: match, Actions: actions, Priority: priority}
}

// pathToFlowMods builds one FlowMod per switch hop along path (a chain of
// switch vertex IDs), with the final switch's rule targeting finalOutPort
// (the ToR's learned host-facing port for dstMAC) instead of a next switch.
func pathToFlowMods(t *topo, path []string, finalOutPort int, dstMAC string, dscp int, hasDSCP bool) []FlowMod {
	fms := make([]FlowMod, 0, len(path))
	for i, v := range path {
		var dpid int
		if _, err := fmt.Sscanf(v, "sw:%d", &dpid); err != nil {
			return nil
		}

		var outPort int
		if i == len(path)-1 {
			outPort = finalOutPort
		} else {
			p, ok := t.outPort(v, path[i+1])
			if !ok {
				return nil
			}
			outPort = p
		}
		fms = append(fms, localSwitchRule(dpid, dstMAC, outPort, dscp, hasDSCP))
	}
	return fms
}

// apply sends a decision's FlowMods to downstream switches before any
// PacketOut on the triggering switch, per the ordering guarantee in §5:
// installations must reach downstream switches before the replayed packet
// would arrive there.
func (c *Controller) apply(ctx context.Context, dpid, inPort int, d Decision) {
	if d.Ignored {
		return
	}
	if d.Flood {
		if err := c.driver.FloodHostFacingPorts(ctx, dpid, inPort); err != nil && c.log != nil {
			c.log.Warn("flood failed", "dpid", dpid, "err", err)
		}
		return
	}
	for _, fm := range d.FlowMods {
		if err := c.driver.InstallFlowMod(ctx, fm); err != nil && c.log != nil {
			c.log.Warn("flow-mod install failed", "dpid", fm.DPID, "err", err)
		}
	}
	if d.PacketOut != nil {
		if err := c.driver.SendPacketOut(ctx, *d.PacketOut); err != nil && c.log != nil {
			c.log.Warn("packet-out failed", "dpid", d.PacketOut.DPID, "err", err)
		}
	}
}
