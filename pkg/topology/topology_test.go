package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyDPID(t *testing.T) {
	assert.Equal(t, RoleIntermediate, ClassifyDPID(1000))
	assert.Equal(t, RoleIntermediate, ClassifyDPID(1999))
	assert.Equal(t, RoleAggregate, ClassifyDPID(2000))
	assert.Equal(t, RoleAggregate, ClassifyDPID(2999))
	assert.Equal(t, RoleToR, ClassifyDPID(3000))
	assert.Equal(t, RoleToR, ClassifyDPID(3999))
}

func TestIsHostFacingPort(t *testing.T) {
	assert.True(t, IsHostFacingPort(1))
	assert.True(t, IsHostFacingPort(20))
	assert.False(t, IsHostFacingPort(0))
	assert.False(t, IsHostFacingPort(21))
}

func TestBuildVL2Sizes(t *testing.T) {
	f, err := BuildVL2(VL2Params{AggregatePorts: 4, IntermediatePorts: 4})
	require.NoError(t, err)

	numInter := 4 / 2
	numAggr := 4
	numTor := 4 * 4 / 4
	numHost := 20 * numTor

	var inter, aggr, tor int
	for _, sw := range f.Switches {
		switch ClassifyDPID(sw.DPID) {
		case RoleIntermediate:
			inter++
		case RoleAggregate:
			aggr++
		case RoleToR:
			tor++
		}
	}
	assert.Equal(t, numInter, inter)
	assert.Equal(t, numAggr, aggr)
	assert.Equal(t, numTor, tor)
	assert.Len(t, f.Hosts, numHost)
}

func TestBuildVL2RejectsBadParams(t *testing.T) {
	_, err := BuildVL2(VL2Params{AggregatePorts: 3, IntermediatePorts: 4})
	assert.Error(t, err, "odd aggregate_ports must be rejected")

	_, err = BuildVL2(VL2Params{AggregatePorts: 4, IntermediatePorts: 0})
	assert.Error(t, err)
}

func TestCanonicalHostsOrderIsStableByDPIDAndPort(t *testing.T) {
	f, err := BuildVL2(VL2Params{AggregatePorts: 4, IntermediatePorts: 4})
	require.NoError(t, err)

	ordered := f.CanonicalHosts()
	require.NotEmpty(t, ordered)
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if prev.TorDPID == cur.TorDPID {
			assert.Less(t, prev.Port, cur.Port)
		} else {
			assert.Less(t, prev.TorDPID, cur.TorDPID)
		}
	}

	// Calling it twice must yield an identical order — no insertion-order leakage.
	again := f.CanonicalHosts()
	assert.Equal(t, ordered, again)
}

func TestEveryToRHasTwoUplinksToDistinctAggregates(t *testing.T) {
	f, err := BuildVL2(VL2Params{AggregatePorts: 4, IntermediatePorts: 4})
	require.NoError(t, err)

	uplinksByTor := map[int]map[int]bool{}
	for _, l := range f.Links {
		if ClassifyDPID(l.SrcDPID) == RoleToR && ClassifyDPID(l.DstDPID) == RoleAggregate {
			if uplinksByTor[l.SrcDPID] == nil {
				uplinksByTor[l.SrcDPID] = map[int]bool{}
			}
			uplinksByTor[l.SrcDPID][l.DstDPID] = true
		}
	}
	for tor, aggrs := range uplinksByTor {
		assert.Lenf(t, aggrs, 2, "ToR %d must uplink to exactly 2 distinct aggregates", tor)
	}
}

func TestBuildClos(t *testing.T) {
	f, err := BuildClos(ClosParams{Spines: 2, Leaves: 3, HostsPerLeaf: 2})
	require.NoError(t, err)
	assert.Len(t, f.Hosts, 6)

	linkCount := 0
	for _, l := range f.Links {
		if ClassifyDPID(l.SrcDPID) == RoleToR && ClassifyDPID(l.DstDPID) == RoleIntermediate {
			linkCount++
		}
	}
	assert.Equal(t, 2*3, linkCount, "every leaf must connect to every spine")
}
