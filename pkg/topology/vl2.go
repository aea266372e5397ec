package topology

import "fmt"

// VL2Params parameterises a VL2 fat-tree build.
type VL2Params struct {
	AggregatePorts    int // D_A: ports on aggregate switches
	IntermediatePorts int // D_I: ports on intermediate switches
}

// BuildVL2 constructs a VL2 fabric from p, following the derivation and
// wiring pattern of the reference Mininet topology builder:
//
//	num_inter = D_A / 2
//	num_aggr  = D_I
//	num_tor   = D_A * D_I / 4
//	num_host  = 20 * num_tor
//
// ToR t connects to hosts t*20..t*20+19 on ports 1..20. Each ToR connects to
// two aggregates chosen so aggregate load is balanced; each aggregate
// connects to D_A/2 intermediates, cycling through the intermediate set.
func BuildVL2(p VL2Params) (*Fabric, error) {
	if p.AggregatePorts <= 0 || p.AggregatePorts%2 != 0 {
		return nil, fmt.Errorf("topology: aggregate_ports must be a positive even number, got %d", p.AggregatePorts)
	}
	if p.IntermediatePorts <= 0 {
		return nil, fmt.Errorf("topology: intermediate_ports must be positive, got %d", p.IntermediatePorts)
	}

	numInter := p.AggregatePorts / 2
	numAggr := p.IntermediatePorts
	numTor := p.AggregatePorts * p.IntermediatePorts / 4
	if numTor == 0 {
		return nil, fmt.Errorf("topology: aggregate_ports=%d intermediate_ports=%d yields zero ToR switches", p.AggregatePorts, p.IntermediatePorts)
	}

	f := &Fabric{}
	nextPort := map[int]int{} // per-DPID next free port counter

	for i := 0; i < numInter; i++ {
		f.Switches = append(f.Switches, Switch{DPID: IntermediateBase + i, Role: RoleIntermediate})
	}
	for a := 0; a < numAggr; a++ {
		f.Switches = append(f.Switches, Switch{DPID: AggregateBase + a, Role: RoleAggregate})
		nextPort[AggregateBase+a] = 1
	}
	for t := 0; t < numTor; t++ {
		f.Switches = append(f.Switches, Switch{DPID: ToRBase + t, Role: RoleToR})
	}

	// Hosts, 20 per ToR on ports 1..20.
	for t := 0; t < numTor; t++ {
		torDPID := ToRBase + t
		for h := 0; h < HostFacingPortMax; h++ {
			port := h + 1
			idx := t*HostFacingPortMax + h
			host := Host{
				Name:    HostName(torDPID, port),
				IP:      fmt.Sprintf("10.0.%d.%d", idx/254, idx%254+1),
				MAC:     macFor(idx),
				TorDPID: torDPID,
				Port:    port,
			}
			f.Hosts = append(f.Hosts, host)
		}
		nextPort[torDPID] = HostFacingPortMax + 1
	}

	// ToR <-> aggregate: 2 links per ToR.
	for t := 0; t < 2*numTor; t++ {
		torDPID := ToRBase + t/2
		aggrDPID := AggregateBase + t%numAggr

		torPort := nextPort[torDPID]
		nextPort[torDPID]++
		aggrPort := nextPort[aggrDPID]
		nextPort[aggrDPID]++

		f.Links = append(f.Links,
			Link{SrcDPID: torDPID, SrcPort: torPort, DstDPID: aggrDPID, DstPort: aggrPort},
			Link{SrcDPID: aggrDPID, SrcPort: aggrPort, DstDPID: torDPID, DstPort: torPort},
		)
	}

	// Aggregate <-> intermediate: D_A/2 links per aggregate.
	for a := 0; a < (p.AggregatePorts/2)*numAggr; a++ {
		aggrDPID := AggregateBase + a/(p.AggregatePorts/2)
		interDPID := IntermediateBase + a%numInter

		aggrPort := nextPort[aggrDPID]
		nextPort[aggrDPID]++
		interPort := nextPort[interDPID]
		nextPort[interDPID]++

		f.Links = append(f.Links,
			Link{SrcDPID: aggrDPID, SrcPort: aggrPort, DstDPID: interDPID, DstPort: interPort},
			Link{SrcDPID: interDPID, SrcPort: interPort, DstDPID: aggrDPID, DstPort: aggrPort},
		)
	}

	return f, nil
}

func macFor(hostIdx int) string {
	return fmt.Sprintf("02:00:00:%02x:%02x:%02x", (hostIdx>>16)&0xff, (hostIdx>>8)&0xff, hostIdx&0xff)
}
