// Package placement maps namespaced logical processes onto physical
// emulated hosts, per two selectable disciplines, and offers a separate
// off-line GPU capacity check.
package placement

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/netfabric/fabricsim/pkg/synth"
)

// Strategy selects a placement discipline.
type Strategy int

const (
	// StrategyStrided is the default: same-group sub-nodes are spread
	// across distinct hosts so intra-group traffic crosses the fabric.
	StrategyStrided Strategy = iota
	// StrategyConsecutive bin-packs processes onto hosts in load order.
	// Kept only for comparison runs; it leaves intra-agent traffic on a
	// single host so it never measures fabric behavior.
	StrategyConsecutive
)

func (s Strategy) String() string {
	if s == StrategyConsecutive {
		return "consecutive"
	}
	return "strided"
}

// ParseStrategy parses a CLI/config strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "strided", "":
		return StrategyStrided, nil
	case "consecutive":
		return StrategyConsecutive, nil
	default:
		return StrategyStrided, fmt.Errorf("placement: unknown strategy %q", s)
	}
}

// MaxGPUPerHost is the default per-host GPU capacity used by the offline
// feasibility check.
const MaxGPUPerHost = 10

// ErrResourceExhausted is returned by CheckCapacity when a sub-node's
// assigned host has too little remaining GPU budget for it; other hosts are
// not tried.
var ErrResourceExhausted = errors.New("placement: resource exhausted")

// Map is a namespaced-id -> physical host name assignment.
type Map map[string]string

// PhysicalPool returns the first ceil(percentage*len(hosts)) host names, in
// the order given, clamped to at least one host. hosts must already be in
// the topology's canonical order (pkg/topology.Fabric.CanonicalHosts),
// never map iteration, so placement is reproducible for a fixed topology.
func PhysicalPool(hosts []string, percentage float64) []string {
	active := int(math.Ceil(float64(len(hosts)) * percentage))
	if active < 1 {
		active = 1
	}
	if active > len(hosts) {
		active = len(hosts)
	}
	return hosts[:active]
}

// Place assigns every agent's sub-nodes from desc onto the physical pool
// using strategy. procsPerHost only applies to StrategyConsecutive.
func Place(desc synth.ProcessDescriptor, pool []string, strategy Strategy, procsPerHost int) (Map, error) {
	if len(pool) == 0 {
		return nil, errors.New("placement: empty physical pool")
	}

	switch strategy {
	case StrategyConsecutive:
		return placeConsecutive(desc, pool, procsPerHost)
	default:
		return placeStrided(desc, pool)
	}
}

// placeConsecutive iterates agents in sorted-key order (for determinism),
// and within each agent its sub-nodes in order, filling the current host
// until procsPerHost is reached before advancing, wrapping around the pool.
func placeConsecutive(desc synth.ProcessDescriptor, pool []string, procsPerHost int) (Map, error) {
	if procsPerHost < 1 {
		procsPerHost = 1
	}
	m := make(Map)
	physIdx := 0
	onCurrent := 0

	for _, agentID := range sortedKeys(desc) {
		for _, sub := range desc[agentID] {
			m[sub.ID] = pool[physIdx]
			onCurrent++
			if onCurrent >= procsPerHost {
				physIdx++
				onCurrent = 0
				if physIdx >= len(pool) {
					physIdx = 0
				}
			}
		}
	}
	return m, nil
}

// placeStrided groups sub-nodes by group key (agent id, everything before
// the final '.') and assigns the i-th sub-node of a group to
// pool[i % len(pool)], so co-located work spreads across hosts.
func placeStrided(desc synth.ProcessDescriptor, pool []string) (Map, error) {
	m := make(Map)
	for _, agentID := range sortedKeys(desc) {
		subnodes := desc[agentID]
		for i, sub := range subnodes {
			m[sub.ID] = pool[i%len(pool)]
		}
	}
	return m, nil
}

// GroupKey returns everything before the final '.' in a namespaced
// sub-node id, e.g. "0-3.2" -> "0-3".
func GroupKey(subNodeID string) string {
	idx := strings.LastIndex(subNodeID, ".")
	if idx < 0 {
		return subNodeID
	}
	return subNodeID[:idx]
}

func sortedKeys(desc synth.ProcessDescriptor) []string {
	keys := make([]string, 0, len(desc))
	for k := range desc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CheckCapacity performs the off-line feasibility check: iterating m's
// sub-nodes in deterministic order, deducting each sub-node's GPU cost from
// its assigned host's remaining budget. If any host goes negative, the
// entire allocation is rolled back and ErrResourceExhausted is returned.
func CheckCapacity(desc synth.ProcessDescriptor, m Map, maxGPUPerHost int) error {
	if maxGPUPerHost <= 0 {
		maxGPUPerHost = MaxGPUPerHost
	}
	remaining := make(map[string]int)

	for _, agentID := range sortedKeys(desc) {
		for _, sub := range desc[agentID] {
			host, ok := m[sub.ID]
			if !ok {
				continue
			}
			if _, seen := remaining[host]; !seen {
				remaining[host] = maxGPUPerHost
			}
			remaining[host] -= sub.GPUCost
			if remaining[host] < 0 {
				return fmt.Errorf("%w: host %s short by %d GPU(s) placing %s",
					ErrResourceExhausted, host, -remaining[host], sub.ID)
			}
		}
	}
	return nil
}
