package emulator

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/netfabric/fabricsim/pkg/topology"
)

// DockerDriver realizes each emulated physical host as its own Docker
// container, so per-host network namespaces actually isolate traffic the
// way a real fleet would. Generalized from the teacher's discovery client
// (find-an-existing-container) to create/start/stop/exec a per-host
// container; it never needs image inspection, so it composes only the
// client subset the teacher's image-spec-backed discovery path does not.
type DockerDriver struct {
	cli    *client.Client
	image  string
	fabric *topology.Fabric

	containerIDs map[string]string // host name -> container id
}

// NewDockerDriver connects to the local Docker daemon the same way the
// teacher's discovery client does, negotiating the API version rather
// than pinning one.
func NewDockerDriver(fabric *topology.Fabric, image string) (*DockerDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("emulator: docker client: %w", err)
	}
	return &DockerDriver{
		cli:          cli,
		image:        image,
		fabric:       fabric,
		containerIDs: make(map[string]string),
	}, nil
}

func (d *DockerDriver) Topology() (*topology.Fabric, error) { return d.fabric, nil }

func (d *DockerDriver) Close() error {
	if d.cli == nil {
		return nil
	}
	return d.cli.Close()
}

// StartHost creates and starts a container for host, named deterministically
// so a rerun against an already-running fleet can find it again.
func (d *DockerDriver) StartHost(ctx context.Context, host topology.Host) error {
	name := containerName(host)

	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image: d.image,
		Cmd:   []string{"sleep", "infinity"},
		Labels: map[string]string{
			"fabricsim.host": host.Name,
			"fabricsim.tor":  fmt.Sprintf("%d", host.TorDPID),
		},
	}, &container.HostConfig{
		NetworkMode: "bridge",
	}, nil, nil, name)
	if err != nil {
		return fmt.Errorf("emulator: create container for %s: %w", host.Name, err)
	}
	d.containerIDs[host.Name] = resp.ID

	if err := d.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("emulator: start container for %s: %w", host.Name, err)
	}
	return nil
}

// StopHost stops and removes host's container.
func (d *DockerDriver) StopHost(ctx context.Context, host topology.Host) error {
	id, ok := d.containerIDs[host.Name]
	if !ok {
		return nil
	}
	timeout := 5
	if err := d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("emulator: stop container for %s: %w", host.Name, err)
	}
	if err := d.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("emulator: remove container for %s: %w", host.Name, err)
	}
	delete(d.containerIDs, host.Name)
	return nil
}

// Exec runs argv inside host's container, following the teacher's
// exec-create/attach/inspect sequence, but non-blocking: a background
// goroutine drains the output and inspects the exit code, and the returned
// ProcessHandle's Wait returns that result.
func (d *DockerDriver) Exec(ctx context.Context, host topology.Host, argv []string) (*ProcessHandle, error) {
	id, ok := d.containerIDs[host.Name]
	if !ok {
		return nil, fmt.Errorf("emulator: host %s has no running container", host.Name)
	}

	execID, err := d.cli.ContainerExecCreate(ctx, id, types.ExecConfig{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("emulator: exec create on %s: %w", host.Name, err)
	}

	resp, err := d.cli.ContainerExecAttach(ctx, execID.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, fmt.Errorf("emulator: exec attach on %s: %w", host.Name, err)
	}

	waitErr := make(chan error, 1)
	var captured []byte
	go func() {
		defer resp.Close()
		captured, _ = io.ReadAll(resp.Reader)
		inspect, err := d.cli.ContainerExecInspect(ctx, execID.ID)
		if err != nil {
			waitErr <- err
			return
		}
		if inspect.ExitCode != 0 {
			waitErr <- fmt.Errorf("emulator: %v exited %d on %s", argv, inspect.ExitCode, host.Name)
			return
		}
		waitErr <- nil
	}()

	return &ProcessHandle{
		Host:      host.Name,
		StartedAt: time.Now(),
		Wait:      func() error { return <-waitErr },
		Kill: func() error {
			return d.cli.ContainerKill(ctx, id, "KILL")
		},
		Output: func() []byte { return captured },
	}, nil
}

func containerName(host topology.Host) string {
	return "fabricsim-" + host.Name
}

// NewDriver selects DockerDriver when a daemon is reachable, else falls
// back to ProcessDriver, logging the degradation as a warning rather than
// failing the run outright (mirroring the teacher's Prometheus-discovery
// degraded-mode pattern).
func NewDriver(ctx context.Context, fabric *topology.Fabric, image string, preferDocker bool, warn func(string)) Driver {
	if !preferDocker {
		return NewProcessDriver(fabric)
	}

	drv, err := NewDockerDriver(fabric, image)
	if err != nil {
		if warn != nil {
			warn(fmt.Sprintf("docker driver unavailable (%v), falling back to process driver", err))
		}
		return NewProcessDriver(fabric)
	}

	if _, err := drv.cli.Ping(ctx); err != nil {
		if warn != nil {
			warn(fmt.Sprintf("docker daemon unreachable (%v), falling back to process driver", err))
		}
		_ = drv.Close()
		return NewProcessDriver(fabric)
	}
	return drv
}
