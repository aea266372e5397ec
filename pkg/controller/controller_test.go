package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	installed []FlowMod
	outs      []PacketOut
	floods    int
}

func (f *fakeDriver) InstallFlowMod(ctx context.Context, fm FlowMod) error {
	f.installed = append(f.installed, fm)
	return nil
}
func (f *fakeDriver) SendPacketOut(ctx context.Context, po PacketOut) error {
	f.outs = append(f.outs, po)
	return nil
}
func (f *fakeDriver) FloodHostFacingPorts(ctx context.Context, exceptTorDPID, exceptPort int) error {
	f.floods++
	return nil
}

// smallFabric wires 2 ToRs (3000, 3001) to 1 aggregate (2000) to 1
// intermediate (1000), mirroring the minimal VL2 skeleton.
func smallFabric(c *Controller) {
	for _, dpid := range []int{1000, 2000, 3000, 3001} {
		c.t.addSwitch(dpid)
	}
	c.t.addLink(3000, 21, 2000, 1)
	c.t.addLink(3001, 21, 2000, 2)
	c.t.addLink(2000, 3, 1000, 1)
}

func TestClassifyDPIDRoles(t *testing.T) {
	assert.Equal(t, RoleIntermediate, classifyDPID(1500))
	assert.Equal(t, RoleAggregate, classifyDPID(2500))
	assert.Equal(t, RoleToR, classifyDPID(3500))
}

func TestHandlePacketInLLDPIsIgnored(t *testing.T) {
	c := New(&fakeDriver{}, nil, 1)
	smallFabric(c)

	d := c.HandlePacketIn(PacketInEvent{DPID: 3000, InPort: 1, EthType: LLDPEtherType})
	assert.True(t, d.Ignored)
}

func TestHandlePacketInBroadcastFloods(t *testing.T) {
	c := New(&fakeDriver{}, nil, 1)
	smallFabric(c)

	d := c.HandlePacketIn(PacketInEvent{DPID: 3000, InPort: 1, EthDst: BroadcastMAC, IPDSCP: -1})
	assert.True(t, d.Flood)
}

func TestHandlePacketInUnknownDestinationFloods(t *testing.T) {
	c := New(&fakeDriver{}, nil, 1)
	smallFabric(c)

	d := c.HandlePacketIn(PacketInEvent{DPID: 3000, InPort: 1, EthSrc: "aa:00", EthDst: "bb:99", IPDSCP: -1})
	assert.True(t, d.Flood)
}

func TestHandlePacketInSameTorInstallsLocalRule(t *testing.T) {
	c := New(&fakeDriver{}, nil, 1)
	smallFabric(c)

	// Learn bb on tor 3000, port 5.
	c.t.learnHost(3000, "bb:99", 5)

	d := c.HandlePacketIn(PacketInEvent{DPID: 3000, InPort: 1, EthSrc: "aa:00", EthDst: "bb:99", IPDSCP: -1})
	require.Len(t, d.FlowMods, 1)
	assert.Equal(t, 3000, d.FlowMods[0].DPID)
	assert.Equal(t, PriorityDefault, d.FlowMods[0].Priority)
	require.NotNil(t, d.PacketOut)
}

func TestHandlePacketInCrossTorInstallsPathAndUsesDSCPPriority(t *testing.T) {
	c := New(&fakeDriver{}, nil, 1)
	smallFabric(c)

	c.t.learnHost(3001, "cc:01", 7)

	d := c.HandlePacketIn(PacketInEvent{
		DPID: 3000, InPort: 1, EthSrc: "aa:00", EthDst: "cc:01",
		EthType: 0x0800, IPDSCP: DSCPHighPriority,
	})
	require.NotEmpty(t, d.FlowMods)
	for _, fm := range d.FlowMods {
		assert.Equal(t, PriorityDSCP, fm.Priority)
	}
	assert.Equal(t, 3000, d.FlowMods[0].DPID)
	assert.Equal(t, 3001, d.FlowMods[len(d.FlowMods)-1].DPID)
}

func TestQueueForDSCP(t *testing.T) {
	assert.Equal(t, QueueHigh, QueueForDSCP(DSCPHighPriority))
	assert.Equal(t, QueueLow, QueueForDSCP(0))
	assert.Equal(t, QueueLow, QueueForDSCP(46))
}
