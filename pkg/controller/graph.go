package controller

import (
	"fmt"
	"sort"

	"github.com/katalvlaran/lvlath/bfs"
	"github.com/katalvlaran/lvlath/core"
)

// switchVertexID and macVertexID keep the two vertex namespaces (switch
// DPIDs, learned host MACs) from colliding inside the shared graph.
func switchVertexID(dpid int) string { return fmt.Sprintf("sw:%d", dpid) }
func macVertexID(mac string) string  { return "mac:" + mac }

// portKey addresses the controller's own out-port side table. core.Edge
// carries no metadata slot and bfs.BFS rejects weighted graphs outright
// (bfs.ErrWeightedGraph), so out_port is tracked here rather than as an
// edge weight.
type portKey struct{ from, to string }

// topo wraps an unweighted directed lvlath graph plus the side information
// the OpenFlow model needs that the graph itself has no room for: each
// edge's outbound port, and which DPIDs are registered in each role.
type topo struct {
	g          *core.Graph
	portOf     map[portKey]int
	switchRole map[int]Role
}

func newTopo() *topo {
	return &topo{
		g:          core.NewGraph(core.WithDirected(true)),
		portOf:     make(map[portKey]int),
		switchRole: make(map[int]Role),
	}
}

func classifyDPID(dpid int) Role {
	switch {
	case dpid >= 1000 && dpid < 2000:
		return RoleIntermediate
	case dpid >= 2000 && dpid < 3000:
		return RoleAggregate
	default:
		return RoleToR
	}
}

func (t *topo) addSwitch(dpid int) {
	id := switchVertexID(dpid)
	if !t.g.HasVertex(id) {
		_ = t.g.AddVertex(id)
	}
	t.switchRole[dpid] = classifyDPID(dpid)
}

func (t *topo) removeSwitch(dpid int) {
	id := switchVertexID(dpid)
	_ = t.g.RemoveVertex(id) // swallow "not found": leave races are expected
	delete(t.switchRole, dpid)
	for k := range t.portOf {
		if k.from == id || k.to == id {
			delete(t.portOf, k)
		}
	}
}

// addLink installs both directions of a physical link, each with its own
// out-port, since a link is bidirectional but the two ends' port numbers
// usually differ.
func (t *topo) addLink(srcDPID, srcPort, dstDPID, dstPort int) {
	src, dst := switchVertexID(srcDPID), switchVertexID(dstDPID)
	t.ensureEdge(src, dst, srcPort)
	t.ensureEdge(dst, src, dstPort)
}

func (t *topo) removeLink(srcDPID, dstDPID int) {
	src, dst := switchVertexID(srcDPID), switchVertexID(dstDPID)
	t.removeEdge(src, dst)
	t.removeEdge(dst, src)
}

func (t *topo) ensureEdge(from, to string, outPort int) {
	if !t.g.HasEdge(from, to) {
		_, _ = t.g.AddEdge(from, to, 0)
	}
	t.portOf[portKey{from, to}] = outPort
}

func (t *topo) removeEdge(from, to string) {
	for _, e := range t.g.Edges() {
		if e.From == from && e.To == to {
			_ = t.g.RemoveEdge(e.ID)
		}
	}
	delete(t.portOf, portKey{from, to})
}

// learnHost records a bidirectional edge between a ToR and a host MAC seen
// on one of its host-facing ports, overwriting any prior port if the host
// moved.
func (t *topo) learnHost(torDPID int, mac string, port int) {
	torID, macID := switchVertexID(torDPID), macVertexID(mac)
	if !t.g.HasVertex(macID) {
		_ = t.g.AddVertex(macID)
	}

	// A host seen on a different ToR (or a different port on the same
	// ToR) replaces its prior attachment rather than adding a second one.
	for _, e := range t.g.Edges() {
		if e.From == macID && e.To != torID {
			t.removeEdge(macID, e.To)
			t.removeEdge(e.To, macID)
		}
	}

	t.ensureEdge(torID, macID, port)
	t.ensureEdge(macID, torID, port)
}

// torOf returns the ToR DPID a host MAC is currently learned on.
func (t *topo) torOf(mac string) (int, bool) {
	macID := macVertexID(mac)
	for _, e := range t.g.Edges() {
		if e.From == macID {
			var dpid int
			if _, err := fmt.Sscanf(e.To, "sw:%d", &dpid); err == nil {
				return dpid, true
			}
		}
	}
	return 0, false
}

// isHostLearnedOnPort reports whether mac is currently learned on torDPID
// at exactly port (used to detect "moved" hosts that require relearning).
func (t *topo) isHostLearnedOnPort(torDPID int, mac string, port int) bool {
	torID, macID := switchVertexID(torDPID), macVertexID(mac)
	p, ok := t.portOf[portKey{torID, macID}]
	return ok && p == port
}

func (t *topo) hasHost(mac string) bool {
	return t.g.HasVertex(macVertexID(mac))
}

func (t *topo) outPort(from, to string) (int, bool) {
	p, ok := t.portOf[portKey{from, to}]
	return p, ok
}

// dpidsWithRole returns every registered DPID of the given role, sorted for
// deterministic iteration (e.g. random intermediate selection draws from a
// stable-ordered slice so the same seed reproduces the same choice).
func (t *topo) dpidsWithRole(r Role) []int {
	var out []int
	for dpid, role := range t.switchRole {
		if role == r {
			out = append(out, dpid)
		}
	}
	sort.Ints(out)
	return out
}

// bfsFrom runs an unweighted BFS from start over the current graph
// snapshot, for connectivity and shortest-path distance only; out_port and
// ECMP path enumeration are layered on top in paths.go.
func (t *topo) bfsFrom(start string) (*bfs.BFSResult, error) {
	return bfs.BFS(t.g, start)
}
