// Package trace loads logical multi-agent LLM traces, namespaces their
// identifiers per source file, and merges them into one globally
// time-ordered stream for the synthesizer (C3) to expand.
package trace

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrTraceFormat is returned when a trace file's shape cannot be recognized.
// Policy: the loader skips the offending file and continues; only when every
// file fails does the caller treat the run as fatal.
var ErrTraceFormat = errors.New("trace: unrecognized trace file format")

// Entry is one logical agent trace entry: a single LLM-generation event
// from sender to one or more receivers.
type Entry struct {
	Sender      string  // namespaced logical id; "-1" denotes the external user
	Receiver    []string
	TimeSent    float64 // normalized float seconds from file start
	LLMGenTime  float64 // seconds, >= 0
	DataSizeKB  float64 // >= 0
}

// IsExternalSender reports whether sender denotes the external user.
func (e Entry) IsExternalSender() bool { return e.Sender == "-1" }

// HasExternalReceiver reports whether any receiver denotes the final sink.
func (e Entry) HasExternalReceiver() bool {
	for _, r := range e.Receiver {
		if r == "-1" {
			return true
		}
	}
	return false
}

// ProducesWireFlows reports whether the synthesizer expands this entry into
// wire-level sub-flows (true) or the entry only seeds context (false).
// Per the data model invariant: sender==-1, any receiver==-1, or
// llm_gen_time==0 all mean "no wire flows".
func (e Entry) ProducesWireFlows() bool {
	return !e.IsExternalSender() && !e.HasExternalReceiver() && e.LLMGenTime != 0
}

// rawEntry is the on-wire JSON shape of one logical trace element, before
// namespacing and time normalization.
type rawEntry struct {
	Sender     json.Number   `json:"sender"`
	Receiver   []json.Number `json:"receiver"`
	TimeSent   json.RawMessage `json:"time_sent"`
	LLMGenTime float64       `json:"llm_gen_time"`
	DataSizeKB float64       `json:"data_size(kb)"`
}

func (r rawEntry) String() string {
	return fmt.Sprintf("sender=%s receiver=%v gen=%v size=%v", r.Sender, r.Receiver, r.LLMGenTime, r.DataSizeKB)
}
