package controller

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-openvswitch/ovs"

	"github.com/netfabric/fabricsim/pkg/ovsflow"
)

// OVSDriver implements Driver by programming one Open vSwitch bridge per
// switch DPID through pkg/ovsflow, the controller's real flow-programming
// transport (§6A). Bridges are named "fabricsim-sw-<dpid>".
type OVSDriver struct {
	client    *ovsflow.Client
	bridges   map[int]ovsflow.Bridge
	hostPorts map[int][]int // DPID -> host-facing ports, for FloodHostFacingPorts
}

// NewOVSDriver returns a Driver backed by client.
func NewOVSDriver(client *ovsflow.Client) *OVSDriver {
	return &OVSDriver{
		client:    client,
		bridges:   make(map[int]ovsflow.Bridge),
		hostPorts: make(map[int][]int),
	}
}

func bridgeName(dpid int) ovsflow.Bridge {
	return ovsflow.Bridge(fmt.Sprintf("fabricsim-sw-%d", dpid))
}

// EnsureSwitch creates the bridge backing dpid (idempotent) and records its
// host-facing ports, needed later for FloodHostFacingPorts. Call once per
// switch before the controller starts dispatching events for it.
func (d *OVSDriver) EnsureSwitch(ctx context.Context, dpid int, hostFacingPorts []int) error {
	br := bridgeName(dpid)
	d.bridges[dpid] = br
	d.hostPorts[dpid] = hostFacingPorts
	return d.client.EnsureBridge(ctx, br, ovs.FailModeSecure)
}

func (d *OVSDriver) bridgeFor(dpid int) ovsflow.Bridge {
	if br, ok := d.bridges[dpid]; ok {
		return br
	}
	return bridgeName(dpid)
}

func (d *OVSDriver) InstallFlowMod(ctx context.Context, fm FlowMod) error {
	return d.client.AddFlow(ctx, d.bridgeFor(fm.DPID), toFlowSpec(fm))
}

func (d *OVSDriver) SendPacketOut(ctx context.Context, po PacketOut) error {
	return d.client.PacketOut(ctx, d.bridgeFor(po.DPID), po.InPort, toActionStrings(po.Actions))
}

// FloodHostFacingPorts replays the triggering frame out every host-facing
// port of exceptTorDPID other than exceptPort (the port it arrived on).
func (d *OVSDriver) FloodHostFacingPorts(ctx context.Context, exceptTorDPID, exceptPort int) error {
	br := d.bridgeFor(exceptTorDPID)
	var lastErr error
	for _, p := range d.hostPorts[exceptTorDPID] {
		if p == exceptPort {
			continue
		}
		if err := d.client.PacketOut(ctx, br, exceptPort, []string{fmt.Sprintf("output:%d", p)}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// toFlowSpec translates the controller's protocol-shaped FlowMod into an
// ovs-ofctl flow spec. dscp<<2 converts DSCP to the IP TOS byte ovs-ofctl
// matches on (nw_tos), the standard 6-bit-DSCP-in-top-bits-of-TOS encoding.
func toFlowSpec(fm FlowMod) ovsflow.FlowSpec {
	match := map[string]string{}
	if fm.Match.EthDst != "" {
		match["dl_dst"] = fm.Match.EthDst
	}
	if fm.Match.EthType != 0 {
		match["dl_type"] = fmt.Sprintf("0x%04x", fm.Match.EthType)
	}
	if fm.Match.IPDSCP >= 0 {
		match["nw_tos"] = fmt.Sprintf("%d", fm.Match.IPDSCP<<2)
	}
	if fm.Match.InPort >= 0 {
		match["in_port"] = fmt.Sprintf("%d", fm.Match.InPort)
	}
	return ovsflow.FlowSpec{
		Priority: fm.Priority,
		Match:    match,
		Actions:  toActionStrings(fm.Actions),
	}
}

func toActionStrings(actions []Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		switch a.Kind {
		case ActionOutput:
			out = append(out, fmt.Sprintf("output:%d", a.Arg))
		case ActionSetQueue:
			out = append(out, fmt.Sprintf("set_queue:%d", a.Arg))
		case ActionOutputToController:
			out = append(out, "controller")
		}
	}
	return out
}
