// Package metrics implements the flow-completion analyzer: it parses the
// per-flow JSON records the replayer wrote, classifies each flow as
// distributed-inference (same group) or agent-to-agent (different group),
// and computes per-class and aggregate statistics. It also exposes a live
// Prometheus side channel the replayer updates as flows complete.
package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/netfabric/fabricsim/pkg/flowproto"
	"github.com/netfabric/fabricsim/pkg/placement"
)

// Class distinguishes intra-group (distributed inference) flows from
// inter-group (agent-to-agent) ones.
type Class string

const (
	ClassDistributedInference Class = "distributed_inference"
	ClassAgentToAgent         Class = "agent_to_agent"
)

// ErrorKind names one of the taxonomy buckets reported verbatim (§4.7).
type ErrorKind string

const (
	ErrorEmptyFile         ErrorKind = "empty_file"
	ErrorJSONParse         ErrorKind = "json_parse_error"
	ErrorIncompleteJSON    ErrorKind = "incomplete_json"
	ErrorServerBusy        ErrorKind = "server_busy"
	ErrorConnectionRefused ErrorKind = "connection_refused"
	ErrorOther             ErrorKind = "other_tool_error"
)

// FlowResult is one parsed per-flow log file.
type FlowResult struct {
	Idx        int
	Sender     string
	Receiver   string
	Class      Class
	Completion *flowproto.CompletionRecord
	Error      ErrorKind
	ErrorMsg   string
}

// ClassStats is the set of statistics computed for one class (or the
// aggregate across all classes).
type ClassStats struct {
	Count            int
	MeanSizeBytes    float64
	MeanFCTSec       float64
	P50FCTSec        float64
	P99FCTSec        float64
	MaxFCTSec        float64
	MeanThroughputMb float64
	TotalBytes       int64
}

// Report is the complete analyzer output.
type Report struct {
	Aggregate    ClassStats
	ByClass      map[Class]ClassStats
	ErrorCounts  map[ErrorKind]int
	SuccessCount int
	FailureCount int
}

// parseFilename parses "<idx>_<src>_to_<dst>.json".
func parseFilename(name string) (idx int, src, dst string, ok bool) {
	name = strings.TrimSuffix(filepath.Base(name), ".json")
	firstUnderscore := strings.Index(name, "_")
	if firstUnderscore < 0 {
		return 0, "", "", false
	}
	idxStr := name[:firstUnderscore]
	rest := name[firstUnderscore+1:]

	sep := strings.Index(rest, "_to_")
	if sep < 0 {
		return 0, "", "", false
	}
	src = rest[:sep]
	dst = rest[sep+len("_to_"):]
	if src == "" || dst == "" {
		return 0, "", "", false
	}

	var n int
	if _, err := fmt.Sscanf(idxStr, "%d", &n); err != nil {
		return 0, "", "", false
	}
	return n, src, dst, true
}

// Analyze reads every *.json file in dir and produces a Report.
func Analyze(dir string) (*Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("metrics: read dir %s: %w", dir, err)
	}

	var results []FlowResult
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		idx, src, dst, ok := parseFilename(e.Name())
		if !ok {
			continue
		}

		r := FlowResult{Idx: idx, Sender: src, Receiver: dst}
		if placement.GroupKey(src) == placement.GroupKey(dst) {
			r.Class = ClassDistributedInference
		} else {
			r.Class = ClassAgentToAgent
		}

		data, readErr := os.ReadFile(filepath.Join(dir, e.Name()))
		switch {
		case readErr != nil || len(data) == 0:
			r.Error = ErrorEmptyFile
			r.ErrorMsg = "empty file"
		default:
			cr, parseErr := flowproto.ParseReport(data)
			if parseErr != nil {
				r.Error, r.ErrorMsg = classifyError(parseErr)
			} else {
				r.Completion = cr
			}
		}
		results = append(results, r)
	}

	return buildReport(results), nil
}

func classifyError(err error) (ErrorKind, string) {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "incomplete"):
		return ErrorIncompleteJSON, msg
	case strings.Contains(lower, "busy"):
		return ErrorServerBusy, msg
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection-refused"):
		return ErrorConnectionRefused, msg
	case strings.Contains(lower, "parse") || strings.Contains(lower, "unmarshal") || strings.Contains(lower, "invalid character"):
		return ErrorJSONParse, msg
	default:
		return ErrorOther, msg
	}
}

func buildReport(results []FlowResult) *Report {
	rep := &Report{
		ByClass:     make(map[Class]ClassStats),
		ErrorCounts: make(map[ErrorKind]int),
	}

	byClass := map[Class][]FlowResult{}
	var all []FlowResult

	for _, r := range results {
		if r.Completion == nil {
			rep.FailureCount++
			rep.ErrorCounts[r.Error]++
			continue
		}
		rep.SuccessCount++
		byClass[r.Class] = append(byClass[r.Class], r)
		all = append(all, r)
	}

	for class, rs := range byClass {
		rep.ByClass[class] = computeStats(rs)
	}
	rep.Aggregate = computeStats(all)
	return rep
}

func computeStats(rs []FlowResult) ClassStats {
	if len(rs) == 0 {
		return ClassStats{}
	}

	sizes := make([]float64, 0, len(rs))
	fcts := make([]float64, 0, len(rs))
	var totalBytes int64

	for _, r := range rs {
		sizes = append(sizes, float64(r.Completion.Bytes))
		fcts = append(fcts, r.Completion.DurationSec)
		totalBytes += r.Completion.Bytes
	}
	sort.Float64s(fcts)

	meanSize := mean(sizes)
	meanFCT := mean(fcts)
	var throughput float64
	if meanFCT > 0 {
		throughput = (meanSize * 8) / meanFCT / 1e6
	}

	return ClassStats{
		Count:            len(rs),
		MeanSizeBytes:    meanSize,
		MeanFCTSec:       meanFCT,
		P50FCTSec:        percentile(fcts, 0.50),
		P99FCTSec:        percentile(fcts, 0.99),
		MaxFCTSec:        fcts[len(fcts)-1],
		MeanThroughputMb: throughput,
		TotalBytes:       totalBytes,
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// percentile assumes xs is already sorted ascending.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(xs)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(xs) {
		idx = len(xs) - 1
	}
	return xs[idx]
}

// MarshalJSON-friendly accessor, kept separate from Report so callers can
// choose YAML or JSON encoding of the same value without a format-specific
// struct tag set.
func (r *Report) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"aggregate":     r.Aggregate,
		"by_class":      r.ByClass,
		"error_counts":  r.ErrorCounts,
		"success_count": r.SuccessCount,
		"failure_count": r.FailureCount,
	}
}

var _ = json.Marshal // keep encoding/json imported for ToMap callers that re-marshal
