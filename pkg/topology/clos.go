package topology

import "fmt"

// ClosParams parameterises a two-layer Clos fabric, used for sanity-check
// topologies rather than the default VL2 fabric.
type ClosParams struct {
	Spines       int
	Leaves       int
	HostsPerLeaf int
}

// Leaf switch DPIDs reuse the ToR range; spine switches reuse the
// intermediate range, since a Clos fabric is structurally a two-layer VL2
// fabric with no separate aggregate layer.
const closLeafBase = ToRBase

// BuildClos constructs a full-bipartite leaf/spine fabric: every leaf
// connects to every spine, and each leaf carries hosts_per_leaf hosts.
func BuildClos(p ClosParams) (*Fabric, error) {
	if p.Spines <= 0 || p.Leaves <= 0 || p.HostsPerLeaf <= 0 {
		return nil, fmt.Errorf("topology: clos spines/leaves/hosts_per_leaf must all be positive")
	}
	if p.HostsPerLeaf > HostFacingPortMax {
		return nil, fmt.Errorf("topology: clos hosts_per_leaf=%d exceeds host-facing port budget %d", p.HostsPerLeaf, HostFacingPortMax)
	}

	f := &Fabric{}
	nextPort := map[int]int{}

	for s := 0; s < p.Spines; s++ {
		f.Switches = append(f.Switches, Switch{DPID: IntermediateBase + s, Role: RoleIntermediate})
		nextPort[IntermediateBase+s] = 1
	}
	for l := 0; l < p.Leaves; l++ {
		leafDPID := closLeafBase + l
		f.Switches = append(f.Switches, Switch{DPID: leafDPID, Role: RoleToR})

		for h := 0; h < p.HostsPerLeaf; h++ {
			port := h + 1
			idx := l*p.HostsPerLeaf + h
			f.Hosts = append(f.Hosts, Host{
				Name:    HostName(leafDPID, port),
				IP:      fmt.Sprintf("10.1.%d.%d", idx/254, idx%254+1),
				MAC:     macFor(idx),
				TorDPID: leafDPID,
				Port:    port,
			})
		}
		nextPort[leafDPID] = p.HostsPerLeaf + 1
	}

	for l := 0; l < p.Leaves; l++ {
		leafDPID := closLeafBase + l
		for s := 0; s < p.Spines; s++ {
			spineDPID := IntermediateBase + s

			leafPort := nextPort[leafDPID]
			nextPort[leafDPID]++
			spinePort := nextPort[spineDPID]
			nextPort[spineDPID]++

			f.Links = append(f.Links,
				Link{SrcDPID: leafDPID, SrcPort: leafPort, DstDPID: spineDPID, DstPort: spinePort},
				Link{SrcDPID: spineDPID, SrcPort: spinePort, DstDPID: leafDPID, DstPort: leafPort},
			)
		}
	}

	return f, nil
}
