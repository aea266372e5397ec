package replay

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/netfabric/fabricsim/internal/reporting"
	"github.com/netfabric/fabricsim/pkg/emulator"
	"github.com/netfabric/fabricsim/pkg/placement"
	"github.com/netfabric/fabricsim/pkg/synth"
	"github.com/netfabric/fabricsim/pkg/topology"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	execCount int
	argvs     [][]string
}

func (f *fakeDriver) StartHost(ctx context.Context, host topology.Host) error { return nil }
func (f *fakeDriver) StopHost(ctx context.Context, host topology.Host) error  { return nil }
func (f *fakeDriver) Topology() (*topology.Fabric, error)                    { return nil, nil }
func (f *fakeDriver) Close() error                                           { return nil }

func (f *fakeDriver) Exec(ctx context.Context, host topology.Host, argv []string) (*emulator.ProcessHandle, error) {
	f.execCount++
	f.argvs = append(f.argvs, argv)
	out := []byte(`{"event":"flow_complete","target_ip":"10.0.0.2","bytes":1024,"duration_sec":0.1,"throughput_mbps":80}`)
	return &emulator.ProcessHandle{
		Host:   host.Name,
		Wait:   func() error { return nil },
		Kill:   func() error { return nil },
		Output: func() []byte { return out },
	}, nil
}

func twoHostFabric() *topology.Fabric {
	return &topology.Fabric{
		Hosts: []topology.Host{
			{Name: "h1", IP: "10.0.0.1"},
			{Name: "h2", IP: "10.0.0.2"},
		},
	}
}

func TestReplayerSkipsUnplacedSender(t *testing.T) {
	dir := t.TempDir()
	fabric := twoHostFabric()
	pm := placement.Map{"0-1.0": "h2"}
	drv := &fakeDriver{}
	opts := DefaultOptions()
	opts.MetricsDir = dir
	opts.NumPorts = 1
	opts.CongestionCtrl = ""

	r := New(drv, fabric, pm, opts, nil)
	summary, err := r.Run(context.Background(), []synth.Event{
		{Sender: "0-2.0", Receiver: []string{"0-1.0"}, Time: 0, Size: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped[SkipSenderNotPlaced])
	assert.Equal(t, 0, summary.Launched)
}

func TestReplayerSkipsSameHost(t *testing.T) {
	dir := t.TempDir()
	fabric := twoHostFabric()
	pm := placement.Map{"0-1.0": "h1", "0-1.1": "h1"}
	drv := &fakeDriver{}
	opts := DefaultOptions()
	opts.MetricsDir = dir
	opts.TimeScale = 0
	opts.NumPorts = 1
	opts.CongestionCtrl = ""

	r := New(drv, fabric, pm, opts, nil)
	summary, err := r.Run(context.Background(), []synth.Event{
		{Sender: "0-1.0", Receiver: []string{"0-1.1"}, Time: 0, Size: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped[SkipSameHost])
}

func TestReplayerLaunchesAndWritesLog(t *testing.T) {
	dir := t.TempDir()
	fabric := twoHostFabric()
	pm := placement.Map{"0-1.0": "h1", "0-2.0": "h2"}
	drv := &fakeDriver{}
	opts := DefaultOptions()
	opts.MetricsDir = dir
	opts.TimeScale = 0
	opts.NumPorts = 1
	opts.CongestionCtrl = ""

	r := New(drv, fabric, pm, opts, reporting.New(reporting.FormatText, os.Stderr, nil))
	summary, err := r.Run(context.Background(), []synth.Event{
		{Sender: "0-1.0", Receiver: []string{"0-2.0"}, Time: 0, Size: 2048},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Launched)
	// one server listener per host (NumPorts=1, 2 hosts) plus the one send.
	assert.Equal(t, 3, drv.execCount)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, filepath.Base(entries[0].Name()), "0-1.0_to_0-2.0")
}

func TestReplayerStartsServersOnEveryPhysicalHost(t *testing.T) {
	dir := t.TempDir()
	fabric := twoHostFabric()
	pm := placement.Map{"0-1.0": "h1", "0-2.0": "h2"}
	drv := &fakeDriver{}
	opts := DefaultOptions()
	opts.MetricsDir = dir
	opts.TimeScale = 0
	opts.NumPorts = 2
	opts.CongestionCtrl = ""

	r := New(drv, fabric, pm, opts, nil)
	_, err := r.Run(context.Background(), []synth.Event{
		{Sender: "0-1.0", Receiver: []string{"0-2.0"}, Time: 0, Size: 2048},
	})
	require.NoError(t, err)

	var serveArgs int
	for _, argv := range drv.argvs {
		if len(argv) >= 2 && argv[0] == "flowgen" && argv[1] == "serve" {
			serveArgs++
		}
	}
	assert.Equal(t, 4, serveArgs) // 2 hosts * NumPorts=2
}

func TestReplayerAppliesCongestionControl(t *testing.T) {
	dir := t.TempDir()
	fabric := twoHostFabric()
	pm := placement.Map{"0-1.0": "h1"}
	drv := &fakeDriver{}
	opts := DefaultOptions()
	opts.MetricsDir = dir
	opts.NumPorts = 1
	opts.CongestionCtrl = CCDCTCP

	r := New(drv, fabric, pm, opts, nil)
	_, err := r.Run(context.Background(), []synth.Event{
		{Sender: "0-1.0", Receiver: []string{"0-9.0"}, Time: 0, Size: 100},
	})
	require.NoError(t, err)

	var sawCC, sawECN bool
	for _, argv := range drv.argvs {
		joined := strings.Join(argv, " ")
		if len(argv) > 0 && argv[0] == "sysctl" {
			if strings.Contains(joined, "tcp_congestion_control=dctcp") {
				sawCC = true
			}
			if strings.Contains(joined, "tcp_ecn=1") {
				sawECN = true
			}
		}
	}
	assert.True(t, sawCC, "expected a congestion-control sysctl call")
	assert.True(t, sawECN, "expected dctcp to enable ecn")
}

func TestReplayerMarksDSCPWhenPriorityQueuesEnabled(t *testing.T) {
	dir := t.TempDir()
	fabric := twoHostFabric()
	pm := placement.Map{"0-1.0": "h1", "0-2.0": "h2"}
	drv := &fakeDriver{}
	opts := DefaultOptions()
	opts.MetricsDir = dir
	opts.TimeScale = 0
	opts.NumPorts = 1
	opts.CongestionCtrl = ""
	opts.PriorityQueues = true

	r := New(drv, fabric, pm, opts, nil)
	summary, err := r.Run(context.Background(), []synth.Event{
		{Sender: "0-1.0", Receiver: []string{"0-2.0"}, Time: 0, Size: 2048},
	})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Launched)

	var sawDSCP bool
	for _, argv := range drv.argvs {
		for i, a := range argv {
			if a == "--dscp" && i+1 < len(argv) {
				sawDSCP = true
				assert.Equal(t, "8", argv[i+1]) // agent_to_agent, cross-group
			}
		}
	}
	assert.True(t, sawDSCP, "expected --dscp on the send argv")
}

func TestDrainWindowBounds(t *testing.T) {
	assert.Equal(t, 10*time.Second, drainWindow(0))
	assert.Equal(t, 60*time.Second, drainWindow(100000))
	assert.Equal(t, 20*time.Second, drainWindow(20000))
}
