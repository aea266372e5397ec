package placement

import (
	"testing"

	"github.com/netfabric/fabricsim/pkg/synth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoAgentDescriptor() synth.ProcessDescriptor {
	return synth.ProcessDescriptor{
		"0-1": {
			{ID: "0-1.0", GPUCost: 1}, {ID: "0-1.1", GPUCost: 1}, {ID: "0-1.2", GPUCost: 1}, {ID: "0-1.3", GPUCost: 1},
		},
		"0-2": {
			{ID: "0-2.0", GPUCost: 1}, {ID: "0-2.1", GPUCost: 1},
		},
	}
}

func TestPhysicalPoolClampsToAtLeastOne(t *testing.T) {
	hosts := []string{"h1", "h2", "h3"}
	assert.Equal(t, []string{"h1"}, PhysicalPool(hosts, 0))
	assert.Equal(t, []string{"h1", "h2"}, PhysicalPool(hosts, 0.5))
	assert.Equal(t, hosts, PhysicalPool(hosts, 1.0))
}

func TestPlaceStridedSpreadsGroupAcrossHosts(t *testing.T) {
	pool := []string{"h1", "h2", "h3", "h4"}
	m, err := Place(twoAgentDescriptor(), pool, StrategyStrided, 0)
	require.NoError(t, err)

	assert.Equal(t, "h1", m["0-1.0"])
	assert.Equal(t, "h2", m["0-1.1"])
	assert.Equal(t, "h3", m["0-1.2"])
	assert.Equal(t, "h4", m["0-1.3"])
	assert.NotEqual(t, m["0-1.0"], m["0-1.1"])
}

func TestPlaceConsecutiveFillsOneHostFirst(t *testing.T) {
	pool := []string{"h1", "h2", "h3", "h4"}
	m, err := Place(twoAgentDescriptor(), pool, StrategyConsecutive, 4)
	require.NoError(t, err)

	assert.Equal(t, "h1", m["0-1.0"])
	assert.Equal(t, "h1", m["0-1.1"])
	assert.Equal(t, "h1", m["0-1.2"])
	assert.Equal(t, "h1", m["0-1.3"])
	assert.Equal(t, "h2", m["0-2.0"])
}

func TestGroupKey(t *testing.T) {
	assert.Equal(t, "0-3", GroupKey("0-3.2"))
	assert.Equal(t, "-1", GroupKey("-1"))
}

func TestCheckCapacityDetectsExhaustionAndRollsBack(t *testing.T) {
	desc := synth.ProcessDescriptor{
		"0-1": {
			{ID: "0-1.0", GPUCost: 6}, {ID: "0-1.1", GPUCost: 6},
		},
	}
	m := Map{"0-1.0": "h1", "0-1.1": "h1"}

	err := CheckCapacity(desc, m, MaxGPUPerHost)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResourceExhausted)
}

func TestCheckCapacitySucceedsWithinBudget(t *testing.T) {
	m, err := Place(twoAgentDescriptor(), []string{"h1", "h2", "h3", "h4"}, StrategyStrided, 0)
	require.NoError(t, err)

	err = CheckCapacity(twoAgentDescriptor(), m, MaxGPUPerHost)
	assert.NoError(t, err)
}
