// Package reporting prints run progress and summaries in a format switched
// between plain text (for a human at a terminal) and NDJSON (for an
// automated harness wrapper), mirroring how the rest of this tool reports.
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/netfabric/fabricsim/internal/logging"
)

// Format selects the reporter's output shape.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Reporter emits progress and summary lines for a running component.
type Reporter struct {
	format Format
	out    io.Writer
	logger *logging.Logger
}

// New builds a Reporter. logger may be nil; when non-nil, progress and phase
// reports are also logged at info level (skip and summary reports are not).
func New(format Format, out io.Writer, logger *logging.Logger) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	if format == "" {
		format = FormatText
	}
	return &Reporter{format: format, out: out, logger: logger}
}

// Progress is one point-in-time snapshot of a long-running loop.
type Progress struct {
	Phase      string  `json:"phase"`
	Index      int     `json:"index"`
	Total      int     `json:"total"`
	RatePerSec float64 `json:"rate_per_sec"`
	ETA        string  `json:"eta,omitempty"`
}

// ReportProgress prints one progress line.
func (r *Reporter) ReportProgress(p Progress) {
	switch r.format {
	case FormatJSON:
		r.writeJSON(struct {
			Type string `json:"type"`
			Progress
		}{Type: "progress", Progress: p})
	default:
		if p.Total > 0 {
			fmt.Fprintf(r.out, "[%s] %d/%d (%.1f/s) eta=%s\n", p.Phase, p.Index, p.Total, p.RatePerSec, p.ETA)
		} else {
			fmt.Fprintf(r.out, "[%s] %d events (%.1f/s)\n", p.Phase, p.Index, p.RatePerSec)
		}
	}
	if r.logger != nil {
		r.logger.Info("progress", "phase", p.Phase, "index", p.Index, "total", p.Total, "rate_per_sec", p.RatePerSec)
	}
}

// ReportPhase announces a phase transition (e.g. loading -> synthesizing -> replaying).
func (r *Reporter) ReportPhase(phase string) {
	switch r.format {
	case FormatJSON:
		r.writeJSON(struct {
			Type  string `json:"type"`
			Phase string `json:"phase"`
		}{Type: "phase", Phase: phase})
	default:
		fmt.Fprintf(r.out, "== %s ==\n", phase)
	}
	if r.logger != nil {
		r.logger.Info("phase transition", "phase", phase)
	}
}

// ReportFlowSkipped records one skipped flow launch and the reason.
func (r *Reporter) ReportFlowSkipped(eventIdx int, reason string) {
	switch r.format {
	case FormatJSON:
		r.writeJSON(struct {
			Type     string `json:"type"`
			EventIdx int    `json:"event_idx"`
			Reason   string `json:"reason"`
		}{Type: "flow_skipped", EventIdx: eventIdx, Reason: reason})
	default:
		fmt.Fprintf(r.out, "skip event %d: %s\n", eventIdx, reason)
	}
}

// RunSummary is the terminal report for a replay or analysis run.
type RunSummary struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Counters   map[string]int    `json:"counters"`
	Notes      []string          `json:"notes,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// ReportRunSummary prints the final summary of a run.
func (r *Reporter) ReportRunSummary(s RunSummary) {
	switch r.format {
	case FormatJSON:
		r.writeJSON(struct {
			Type string `json:"type"`
			RunSummary
		}{Type: "summary", RunSummary: s})
	default:
		fmt.Fprintf(r.out, "run summary: duration=%s\n", s.FinishedAt.Sub(s.StartedAt))
		for k, v := range s.Counters {
			fmt.Fprintf(r.out, "  %-20s %d\n", k, v)
		}
		for _, n := range s.Notes {
			fmt.Fprintf(r.out, "  note: %s\n", n)
		}
	}
}

func (r *Reporter) writeJSON(v interface{}) {
	enc := json.NewEncoder(r.out)
	_ = enc.Encode(v)
}
