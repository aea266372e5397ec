// Package emulator adapts the replayer and controller to the systems that
// actually carry traffic: local OS processes for fast single-box runs, or
// one Docker container per emulated physical host for closer-to-production
// network-namespace isolation.
package emulator

import (
	"context"
	"time"

	"github.com/netfabric/fabricsim/pkg/topology"
)

// ProcessHandle is a running command on an emulated host.
type ProcessHandle struct {
	Host      string
	PID       int
	StartedAt time.Time
	Wait      func() error // blocks until the process exits
	Kill      func() error
	// Output returns the command's captured stdout+stderr. Only valid
	// after Wait has returned; flowgen writes its flowproto record here.
	Output func() []byte
}

// Driver is the emulator-side surface the replayer and controller drive.
// It never needs to know which concrete backend (local process, Docker
// container) realizes a host.
type Driver interface {
	// StartHost brings up whatever backs an emulated host (a network
	// namespace, a container) before any traffic is scheduled against it.
	StartHost(ctx context.Context, host topology.Host) error
	// StopHost tears a host down at the end of a run.
	StopHost(ctx context.Context, host topology.Host) error
	// Exec runs argv on host, non-blocking; the caller observes
	// completion via ProcessHandle.Wait or the process's own output
	// files, never via a return value here.
	Exec(ctx context.Context, host topology.Host, argv []string) (*ProcessHandle, error)
	// Topology returns the fabric this driver instantiated, so callers
	// that only constructed a Driver (not a topology.Fabric directly)
	// can still learn host/switch layout.
	Topology() (*topology.Fabric, error)
	// Close releases any driver-held resources (client connections,
	// process groups).
	Close() error
}
