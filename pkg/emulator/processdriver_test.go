package emulator

import (
	"context"
	"testing"

	"github.com/netfabric/fabricsim/pkg/topology"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessDriverExecRunsAndWaits(t *testing.T) {
	fabric := &topology.Fabric{}
	d := NewProcessDriver(fabric)
	host := topology.Host{Name: "h1"}

	handle, err := d.Exec(context.Background(), host, []string{"true"})
	require.NoError(t, err)
	assert.NoError(t, handle.Wait())
}

func TestProcessDriverExecRejectsEmptyArgv(t *testing.T) {
	d := NewProcessDriver(&topology.Fabric{})
	_, err := d.Exec(context.Background(), topology.Host{Name: "h1"}, nil)
	assert.Error(t, err)
}

func TestProcessDriverTopologyReturnsFabric(t *testing.T) {
	fabric := &topology.Fabric{}
	d := NewProcessDriver(fabric)
	got, err := d.Topology()
	require.NoError(t, err)
	assert.Same(t, fabric, got)
}
