package synth

// subFlow is one emitted message before cumulative-time offsetting.
type subFlow struct {
	fromIdx, toIdx int
	localTime      float64
	size           float64
}

// emitter produces the sub-flow shape for one parallelism strategy.
//
// prefill returns the sub-flows of a single prefill sweep and the local
// time reached at its end. decodeTick returns the sub-flows of one decode
// tick (spaced SecPerToken apart) and the new local time.
type emitter interface {
	subNodeIDs(agentPrefix string) []string
	prefill(prefillInterval, prefillSize float64) (flows []subFlow, localTimeAfter float64)
	decodeTick(localTimeBefore, decodeInterval, decodeSize float64) (flows []subFlow, localTimeAfter float64)
}

func emitterFor(s Strategy) emitter {
	switch s {
	case StrategyTensor:
		return tensorEmitter{}
	case StrategyHybrid:
		return hybridEmitter{}
	default:
		return pipelineEmitter{}
	}
}

func subNodeID(agentPrefix string, i int) string {
	return agentPrefix + "." + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := [20]byte{}
	pos := len(digits)
	n := i
	for n > 0 {
		pos--
		digits[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[pos:])
}

// pipelineEmitter chains 8 sub-nodes 0->1->...->7. Prefill is a single
// pipeline-fill sweep: n-1 messages, each at a successively later local
// time (one hop = one prefill_interval). Decode repeats the same chain
// every decode tick.
type pipelineEmitter struct{}

func (pipelineEmitter) subNodeIDs(prefix string) []string {
	ids := make([]string, NodesPerAgent)
	for i := range ids {
		ids[i] = subNodeID(prefix, i)
	}
	return ids
}

func (pipelineEmitter) prefill(prefillInterval, prefillSize float64) ([]subFlow, float64) {
	localTime := 0.0
	flows := make([]subFlow, 0, NodesPerAgent-1)
	for i := 0; i < NodesPerAgent-1; i++ {
		localTime += prefillInterval
		flows = append(flows, subFlow{fromIdx: i, toIdx: i + 1, localTime: localTime, size: prefillSize})
	}
	return flows, localTime
}

func (pipelineEmitter) decodeTick(localTimeBefore, decodeInterval, decodeSize float64) ([]subFlow, float64) {
	localTime := localTimeBefore + decodeInterval
	flows := make([]subFlow, 0, NodesPerAgent-1)
	for i := 0; i < NodesPerAgent-1; i++ {
		flows = append(flows, subFlow{fromIdx: i, toIdx: i + 1, localTime: localTime, size: decodeSize})
	}
	return flows, localTime
}

// tensorEmitter has all 8 sub-nodes exchange all-to-all every tick
// (n*(n-1) messages), row-major over (i, j). Prefill is a single
// synchronized tick at local_time = prefill_interval.
type tensorEmitter struct{}

func (tensorEmitter) subNodeIDs(prefix string) []string {
	return pipelineEmitter{}.subNodeIDs(prefix)
}

func (tensorEmitter) prefill(prefillInterval, prefillSize float64) ([]subFlow, float64) {
	return allToAll(prefillInterval, prefillSize), prefillInterval
}

func (tensorEmitter) decodeTick(localTimeBefore, decodeInterval, decodeSize float64) ([]subFlow, float64) {
	localTime := localTimeBefore + decodeInterval
	return allToAll(localTime, decodeSize), localTime
}

func allToAll(localTime, size float64) []subFlow {
	flows := make([]subFlow, 0, NodesPerAgent*(NodesPerAgent-1))
	for i := 0; i < NodesPerAgent; i++ {
		for j := 0; j < NodesPerAgent; j++ {
			if i == j {
				continue
			}
			flows = append(flows, subFlow{fromIdx: i, toIdx: j, localTime: localTime, size: size})
		}
	}
	return flows
}

// hybridEmitter partitions 8 sub-nodes into 4 fixed pairs and exchanges
// both directions within each pair every tick (8 messages/tick).
type hybridEmitter struct{}

var hybridPairs = [4][2]int{{0, 1}, {2, 3}, {4, 5}, {6, 7}}

func (hybridEmitter) subNodeIDs(prefix string) []string {
	return pipelineEmitter{}.subNodeIDs(prefix)
}

func (hybridEmitter) prefill(prefillInterval, prefillSize float64) ([]subFlow, float64) {
	return pairwise(prefillInterval, prefillSize), prefillInterval
}

func (hybridEmitter) decodeTick(localTimeBefore, decodeInterval, decodeSize float64) ([]subFlow, float64) {
	localTime := localTimeBefore + decodeInterval
	return pairwise(localTime, decodeSize), localTime
}

func pairwise(localTime, size float64) []subFlow {
	flows := make([]subFlow, 0, len(hybridPairs)*2)
	for _, pair := range hybridPairs {
		flows = append(flows,
			subFlow{fromIdx: pair[0], toIdx: pair[1], localTime: localTime, size: size},
			subFlow{fromIdx: pair[1], toIdx: pair[0], localTime: localTime, size: size},
		)
	}
	return flows
}
