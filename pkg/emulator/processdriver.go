package emulator

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/netfabric/fabricsim/pkg/topology"
)

// ProcessDriver realizes every emulated host as plain OS processes on the
// local box: no network namespaces, no per-host isolation. Appropriate for
// unit/integration tests and single-box smoke runs where fabric isolation
// does not matter, only the scheduling and protocol logic above it.
type ProcessDriver struct {
	fabric *topology.Fabric
}

// NewProcessDriver wraps an already-built fabric; StartHost/StopHost are
// no-ops since there is nothing to instantiate per host.
func NewProcessDriver(fabric *topology.Fabric) *ProcessDriver {
	return &ProcessDriver{fabric: fabric}
}

func (d *ProcessDriver) StartHost(ctx context.Context, host topology.Host) error { return nil }
func (d *ProcessDriver) StopHost(ctx context.Context, host topology.Host) error  { return nil }
func (d *ProcessDriver) Topology() (*topology.Fabric, error)                    { return d.fabric, nil }
func (d *ProcessDriver) Close() error                                           { return nil }

// Exec runs argv as a local child process. host is accepted for interface
// symmetry with DockerDriver but otherwise unused: every host shares the
// same process namespace here.
func (d *ProcessDriver) Exec(ctx context.Context, host topology.Host, argv []string) (*ProcessHandle, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("emulator: empty argv")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("emulator: start %s on %s: %w", argv[0], host.Name, err)
	}

	return &ProcessHandle{
		Host:      host.Name,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
		Wait:      cmd.Wait,
		Kill:      func() error { return cmd.Process.Kill() },
		Output:    out.Bytes,
	}, nil
}
