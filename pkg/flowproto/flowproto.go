// Package flowproto defines the bulk-transfer wire protocol and the JSON
// completion/error record the replayer's logs and the metrics analyzer
// both speak, plus a reader for the iperf3 -J schema emitted by the
// external tool this module's own flowgen binary stands in for.
package flowproto

import (
	"encoding/json"
	"fmt"
)

// DefaultAckByte is the value of the single acknowledgement byte a flowgen
// server writes once it has read the client's payload to EOF.
const DefaultAckByte = 0x06

// AckSize is the size, in bytes, of the single acknowledgement the server
// writes once it has read the client's full payload to EOF.
const AckSize = 1

// CompletionRecord is the JSON object a flowgen client emits on stdout
// after a successful transfer.
type CompletionRecord struct {
	Event          string  `json:"event"`
	TargetIP       string  `json:"target_ip"`
	Bytes          int64   `json:"bytes"`
	DurationSec    float64 `json:"duration_sec"`
	ThroughputMbps float64 `json:"throughput_mbps"`
}

// ErrorRecord is the JSON object emitted on stdout when a transfer fails.
type ErrorRecord struct {
	Event string `json:"event"`
	Error string `json:"error"`
}

// NewCompletionRecord computes throughput from size and duration.
func NewCompletionRecord(targetIP string, bytesSent int64, duration float64) CompletionRecord {
	var mbps float64
	if duration > 0 {
		mbps = (float64(bytesSent) * 8) / duration / 1e6
	}
	return CompletionRecord{
		Event:          "flow_complete",
		TargetIP:       targetIP,
		Bytes:          bytesSent,
		DurationSec:    duration,
		ThroughputMbps: mbps,
	}
}

// NewErrorRecord wraps err into the error record shape.
func NewErrorRecord(err error) ErrorRecord {
	return ErrorRecord{Event: "error", Error: err.Error()}
}

// Encode writes v (a CompletionRecord or ErrorRecord) as one line of JSON.
func Encode(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("flowproto: encode: %w", err)
	}
	return append(b, '\n'), nil
}

// iperf3SumSent mirrors the subset of iperf3 -J's "end.sum_sent" object
// the analyzer reads.
type iperf3SumSent struct {
	Seconds float64 `json:"seconds"`
	Bytes   int64   `json:"bytes"`
}

type iperf3End struct {
	SumSent *iperf3SumSent `json:"sum_sent"`
}

// iperf3Report is the minimal shape of an `iperf3 -J` report this module
// can also parse, so the analyzer is not locked to its own flowgen format.
type iperf3Report struct {
	End   *iperf3End `json:"end"`
	Error string     `json:"error"`
}

// ErrIncompleteReport is returned when a parsed report has neither a flowgen
// completion/error event nor a usable iperf3 end.sum_sent block.
var ErrIncompleteReport = fmt.Errorf("flowproto: incomplete report (no end.sum_sent)")

// ParseReport accepts either this module's own flowgen JSON line or an
// iperf3 -J report, returning a normalized CompletionRecord. An iperf3
// top-level "error" field, or an empty report body, maps to an error.
func ParseReport(data []byte) (*CompletionRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("flowproto: empty report")
	}

	var probe struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && probe.Event != "" {
		switch probe.Event {
		case "flow_complete":
			var cr CompletionRecord
			if err := json.Unmarshal(data, &cr); err != nil {
				return nil, fmt.Errorf("flowproto: parse completion record: %w", err)
			}
			return &cr, nil
		case "error":
			var er ErrorRecord
			if err := json.Unmarshal(data, &er); err != nil {
				return nil, fmt.Errorf("flowproto: parse error record: %w", err)
			}
			return nil, fmt.Errorf("flowproto: tool error: %s", er.Error)
		}
	}

	var rep iperf3Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("flowproto: parse iperf3 report: %w", err)
	}
	if rep.Error != "" {
		return nil, fmt.Errorf("flowproto: tool error: %s", rep.Error)
	}
	if rep.End == nil || rep.End.SumSent == nil {
		return nil, ErrIncompleteReport
	}

	sent := rep.End.SumSent
	cr := NewCompletionRecord("", sent.Bytes, sent.Seconds)
	return &cr, nil
}
