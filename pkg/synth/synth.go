package synth

import (
	"math/rand"

	"github.com/netfabric/fabricsim/pkg/trace"
)

// Synthesize expands a globally time-ordered logical trace into a
// process descriptor plus a wire-level event stream, per §4.3. rng controls
// the per-sender strategy draw and must be supplied by the caller so a run
// can be made exactly reproducible by fixing a seed.
//
// Entries that do not produce wire flows (external sender/receiver, or
// llm_gen_time == 0) still carry forward their data_size_kb as the next
// real entry's input size, matching the reference timing model.
func Synthesize(entries []trace.Entry, rng *rand.Rand) (ProcessDescriptor, []Event) {
	desc := ProcessDescriptor{}
	emitters := make(map[string]emitter)
	nodeIDsBySender := make(map[string][]string)

	var events []Event
	inputSizeKB := 0.0
	cumulativeTime := 0.0

	for _, e := range entries {
		if !e.ProducesWireFlows() {
			inputSizeKB = e.DataSizeKB
			continue
		}

		em, ok := emitters[e.Sender]
		if !ok {
			strat := PickStrategy(rng)
			em = emitterFor(strat)
			emitters[e.Sender] = em

			ids := em.subNodeIDs(e.Sender)
			nodeIDsBySender[e.Sender] = ids
			subnodes := make([]SubNode, len(ids))
			for i, id := range ids {
				subnodes[i] = SubNode{ID: id, GPUCost: 1}
			}
			desc[e.Sender] = subnodes
		}
		nodeIDs := nodeIDsBySender[e.Sender]

		outputSizeKB := e.DataSizeKB
		tokensOut := outputSizeKB * 1000 / 4
		decodeTime := tokensOut * SecPerToken
		prefillTime := e.LLMGenTime - decodeTime
		if prefillTime < 0 {
			prefillTime = 0
		}
		prefillInterval := prefillTime / NodesPerAgent
		decodeInterval := SecPerToken
		prefillSize := float64(MsgBytes) * (inputSizeKB * 1000 / 4) * 2
		decodeSize := float64(MsgBytes)

		flows, localTime := em.prefill(prefillInterval, prefillSize)
		events = appendFlows(events, nodeIDs, cumulativeTime, flows)

		for localTime+decodeInterval < e.LLMGenTime {
			var tick []subFlow
			tick, localTime = em.decodeTick(localTime, decodeInterval, decodeSize)
			events = appendFlows(events, nodeIDs, cumulativeTime, tick)
		}

		finalReceivers := make([]string, len(e.Receiver))
		for i, r := range e.Receiver {
			finalReceivers[i] = r + ".0"
		}
		finalSize := outputSizeKB * 1000
		if finalSize > 0 {
			events = append(events, Event{
				Sender:   nodeIDs[NodesPerAgent-1],
				Receiver: finalReceivers,
				Time:     cumulativeTime + e.LLMGenTime,
				Size:     int(finalSize),
			})
		}

		cumulativeTime += e.LLMGenTime
		inputSizeKB = outputSizeKB
	}

	return desc, events
}

// appendFlows converts subFlow index pairs into namespaced Events, dropping
// zero-size flows: invariant 1 (§8) forbids size <= 0 events, and a zero
// input size (prefill_size == 0) legitimately produces no prefill traffic.
func appendFlows(events []Event, nodeIDs []string, cumulativeTime float64, flows []subFlow) []Event {
	for _, f := range flows {
		if f.size <= 0 {
			continue
		}
		events = append(events, Event{
			Sender:   nodeIDs[f.fromIdx],
			Receiver: []string{nodeIDs[f.toIdx]},
			Time:     cumulativeTime + f.localTime,
			Size:     int(f.size),
		})
	}
	return events
}
