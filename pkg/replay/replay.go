// Package replay deadline-schedules a synthesized event stream against
// physical hosts through an emulator.Driver, collecting one flowproto
// completion/error record per launched flow.
package replay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/netfabric/fabricsim/internal/reporting"
	"github.com/netfabric/fabricsim/pkg/emulator"
	"github.com/netfabric/fabricsim/pkg/flowproto"
	"github.com/netfabric/fabricsim/pkg/metrics"
	"github.com/netfabric/fabricsim/pkg/placement"
	"github.com/netfabric/fabricsim/pkg/synth"
	"github.com/netfabric/fabricsim/pkg/topology"
)

// basePort is the first of opts.NumPorts consecutive listener ports a
// destination host runs flowgen serve on, per §4.5's port load-balancing.
const basePort = 5201

// dscpAgentToAgent and dscpDistributedInference are the fixed DSCP markers
// applied to the send path when priority queuing is enabled (§4.6): agent-
// to-agent traffic is the high-priority class (Q1), distributed-inference
// traffic the low-priority class (Q0), per S4.
const (
	dscpAgentToAgent         = 8
	dscpDistributedInference = 4
)

// CongestionControl is a TCP congestion-control algorithm name accepted by
// the replayer's host tunables.
type CongestionControl string

const (
	CCCubic CongestionControl = "cubic"
	CCReno  CongestionControl = "reno"
	CCBBR   CongestionControl = "bbr"
	CCDCTCP CongestionControl = "dctcp"
)

// Options configures one replay run.
type Options struct {
	NumPorts       int // listeners per host; round-robin destination picks one
	TimeScale      float64
	MaxEvents      int // 0 means no cap
	CongestionCtrl CongestionControl
	PriorityQueues bool
	MetricsDir     string
}

// DefaultOptions mirrors the replayer's documented defaults (§4.5).
func DefaultOptions() Options {
	return Options{
		NumPorts:       32,
		TimeScale:      1.0,
		CongestionCtrl: CCCubic,
		MetricsDir:     "/tmp/mininet_metrics",
	}
}

// SkipReason names why an event was not launched, per the skip policy.
type SkipReason string

const (
	SkipSenderNotPlaced   SkipReason = "sender_not_placed"
	SkipReceiverNotPlaced SkipReason = "receiver_not_placed"
	SkipSameHost          SkipReason = "same_host"
)

// Summary is the outcome of one replay run.
type Summary struct {
	Launched int
	Skipped  map[SkipReason]int
	Duration time.Duration
	// Notes records best-effort setup steps (server listeners, TCP
	// tunables) that failed; these do not fail the run, since a host
	// missing its listener or tunable simply fails its own flows.
	Notes []string
}

// hostResolver maps a physical host name back to its topology.Host, needed
// to hand emulator.Driver the host it expects rather than a bare name.
type hostResolver map[string]topology.Host

func newHostResolver(fabric *topology.Fabric) hostResolver {
	hr := make(hostResolver, len(fabric.Hosts))
	for _, h := range fabric.Hosts {
		hr[h.Name] = h
	}
	return hr
}

// Replayer drives one event stream against a placement map.
type Replayer struct {
	driver    emulator.Driver
	placement placement.Map
	hosts     hostResolver
	opts      Options
	reporter  *reporting.Reporter
	exporter  *metrics.Exporter

	portRR map[string]int // destination host -> next round-robin port offset
	portMu sync.Mutex
}

// New constructs a Replayer. fabric supplies the physical host set that
// placement.Map's values index into. A live Prometheus exporter is attached
// separately with WithExporter; when set, launches, receiver-side skips and
// completions update it, while sender-not-placed skips are only counted in
// the Summary.
func New(driver emulator.Driver, fabric *topology.Fabric, pm placement.Map, opts Options, reporter *reporting.Reporter) *Replayer {
	if opts.NumPorts <= 0 {
		opts.NumPorts = 32
	}
	return &Replayer{
		driver:    driver,
		placement: pm,
		hosts:     newHostResolver(fabric),
		opts:      opts,
		reporter:  reporter,
		portRR:    make(map[string]int),
	}
}

// WithExporter attaches a live Prometheus exporter to an already-built
// Replayer; kept separate from New so existing callers are unaffected.
func (r *Replayer) WithExporter(ex *metrics.Exporter) *Replayer {
	r.exporter = ex
	return r
}

// nextPort returns the next round-robin listener port for destHost, out of
// opts.NumPorts consecutive ports starting at basePort.
func (r *Replayer) nextPort(destHost string, basePort int) int {
	r.portMu.Lock()
	defer r.portMu.Unlock()
	offset := r.portRR[destHost] % r.opts.NumPorts
	r.portRR[destHost] = r.portRR[destHost] + 1
	return basePort + offset
}

// drainWindow is min(60s, max(10s, flowsStarted/1000)) seconds, per §4.5.
func drainWindow(flowsStarted int) time.Duration {
	secs := flowsStarted / 1000
	if secs < 10 {
		secs = 10
	}
	if secs > 60 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

// Run schedules events against wall-clock deadlines derived from
// opts.TimeScale and launches non-blocking flowgen sends for each, writing
// one flowproto completion/error record per launched flow under
// opts.MetricsDir.
func (r *Replayer) Run(ctx context.Context, events []synth.Event) (Summary, error) {
	if r.opts.MaxEvents > 0 && len(events) > r.opts.MaxEvents {
		events = events[:r.opts.MaxEvents]
	}
	if len(events) == 0 {
		return Summary{Skipped: map[SkipReason]int{}}, nil
	}
	if err := os.MkdirAll(r.opts.MetricsDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("replay: create metrics dir: %w", err)
	}

	summary := Summary{Skipped: map[SkipReason]int{}}

	serverHandles, serverNotes := r.startServers(ctx)
	defer stopServers(serverHandles)
	summary.Notes = append(summary.Notes, serverNotes...)
	summary.Notes = append(summary.Notes, r.applyCongestionControl(ctx)...)

	firstTime := events[0].Time
	startWall := time.Now()

	var wg sync.WaitGroup
	lastReport := time.Now()

	for i, ev := range events {
		if r.opts.TimeScale > 0 {
			deadline := startWall.Add(time.Duration(r.opts.TimeScale*(ev.Time-firstTime)*1e9) * time.Nanosecond)
			if d := time.Until(deadline); d > 0 {
				select {
				case <-ctx.Done():
					wg.Wait()
					return summary, ctx.Err()
				case <-time.After(d):
				}
			}
		}

		srcHostName, ok := r.placement[ev.Sender]
		if !ok {
			summary.Skipped[SkipSenderNotPlaced]++
			continue
		}
		srcHost, ok := r.hosts[srcHostName]
		if !ok {
			summary.Skipped[SkipSenderNotPlaced]++
			continue
		}

		for _, recv := range ev.Receiver {
			class := metrics.ClassAgentToAgent
			if placement.GroupKey(ev.Sender) == placement.GroupKey(recv) {
				class = metrics.ClassDistributedInference
			}

			dstHostName, ok := r.placement[recv]
			if !ok {
				summary.Skipped[SkipReceiverNotPlaced]++
				if r.exporter != nil {
					r.exporter.ObserveSkipped(class)
				}
				continue
			}
			if dstHostName == srcHostName {
				summary.Skipped[SkipSameHost]++
				if r.exporter != nil {
					r.exporter.ObserveSkipped(class)
				}
				continue
			}

			size := ev.Size
			if size < 1 {
				size = 1024
			}

			if r.exporter != nil {
				r.exporter.ObserveLaunched(class)
			}
			wg.Add(1)
			go r.launchOne(ctx, &wg, i, srcHost, ev.Sender, dstHostName, recv, size, class)
			summary.Launched++
		}

		if i%1000 == 0 || time.Since(lastReport) >= 5*time.Second {
			if r.reporter != nil {
				var rate float64
				eta := ""
				if elapsed := time.Since(startWall).Seconds(); elapsed > 0 {
					rate = float64(i+1) / elapsed
					remaining := float64(len(events)-i-1) / rate
					eta = time.Duration(remaining * float64(time.Second)).Round(time.Second).String()
				}
				r.reporter.ReportProgress(reporting.Progress{
					Phase: "replay", Index: i, Total: len(events), RatePerSec: rate, ETA: eta,
				})
			}
			lastReport = time.Now()
		}
	}

	drainCtx, cancelDrain := context.WithTimeout(ctx, drainWindow(summary.Launched))
	defer cancelDrain()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-drainCtx.Done():
	}
	summary.Duration = time.Since(startWall)
	return summary, nil
}

// launchOne execs a single flowgen send on srcHost targeting the physical
// host dstHostName, writing the tool's completion/error record to a
// per-flow log file named after the logical sender/receiver IDs (not the
// physical host names), since the analyzer classifies flows by comparing
// their placement.GroupKey. Failures here are recorded in the log, never
// propagated: a skipped/failed flow is not a fatal replay error.
func (r *Replayer) launchOne(ctx context.Context, wg *sync.WaitGroup, idx int, srcHost topology.Host, senderID, dstHostName, recvID string, size int, class metrics.Class) {
	defer wg.Done()

	logPath := filepath.Join(r.opts.MetricsDir, fmt.Sprintf("%d_%s_to_%s.json", idx, senderID, recvID))

	record := func(body []byte) {
		_ = os.WriteFile(logPath, body, 0o644)
		if r.exporter == nil {
			return
		}
		cr, _ := flowproto.ParseReport(body)
		r.exporter.ObserveResult(metrics.FlowResult{Class: class, Completion: cr})
	}

	dstHost, ok := r.hosts[dstHostName]
	if !ok {
		record([]byte(`{"event":"error","error":"destination host not found"}`))
		return
	}

	port := r.nextPort(dstHostName, basePort)
	argv := []string{
		"flowgen", "send",
		"--target", fmt.Sprintf("%s:%d", dstHost.IP, port),
		"--bytes", fmt.Sprintf("%d", size),
	}
	if r.opts.PriorityQueues {
		argv = append(argv, "--dscp", fmt.Sprintf("%d", dscpFor(class)))
	}

	handle, err := r.driver.Exec(ctx, srcHost, argv)
	if err != nil {
		record([]byte(fmt.Sprintf(`{"event":"error","error":%q}`, err.Error())))
		return
	}

	waitErr := handle.Wait()
	var body []byte
	if handle.Output != nil {
		body = handle.Output()
	}
	if len(body) == 0 {
		reason := "empty output"
		if waitErr != nil {
			reason = waitErr.Error()
		}
		record([]byte(fmt.Sprintf(`{"event":"error","error":%q}`, reason)))
		return
	}
	record(body)
}

// dscpFor maps a flow's class to its DSCP marker: agent-to-agent traffic is
// high priority (DSCP 8, Q1), distributed-inference traffic low priority
// (DSCP 4, Q0), per S4.
func dscpFor(class metrics.Class) int {
	if class == metrics.ClassAgentToAgent {
		return dscpAgentToAgent
	}
	return dscpDistributedInference
}

// physicalHosts returns the distinct physical hosts named in the placement
// map, sorted for deterministic setup order.
func (r *Replayer) physicalHosts() []string {
	seen := make(map[string]bool, len(r.placement))
	hosts := make([]string, 0, len(r.placement))
	for _, name := range r.placement {
		if !seen[name] {
			seen[name] = true
			hosts = append(hosts, name)
		}
	}
	sort.Strings(hosts)
	return hosts
}

// startServers launches opts.NumPorts flowgen serve listeners on every
// physical host the placement map uses, so that destinations actually
// accept connections (§4.5 "port load-balancing"). A listener failing to
// start is recorded as a note, not fatal: it only costs that host's
// inbound flows, which will surface as connection-refused errors in their
// own per-flow logs.
func (r *Replayer) startServers(ctx context.Context) ([]*emulator.ProcessHandle, []string) {
	var handles []*emulator.ProcessHandle
	var notes []string
	for _, name := range r.physicalHosts() {
		host, ok := r.hosts[name]
		if !ok {
			continue
		}
		for i := 0; i < r.opts.NumPorts; i++ {
			port := basePort + i
			argv := []string{"flowgen", "serve", "--listen", fmt.Sprintf(":%d", port)}
			handle, err := r.driver.Exec(ctx, host, argv)
			if err != nil {
				notes = append(notes, fmt.Sprintf("start server %s:%d: %v", name, port, err))
				continue
			}
			handles = append(handles, handle)
		}
	}
	return handles, notes
}

func stopServers(handles []*emulator.ProcessHandle) {
	for _, h := range handles {
		if h.Kill != nil {
			_ = h.Kill()
		}
	}
}

// applyCongestionControl sets every physical host's TCP congestion-control
// algorithm via sysctl before any flow launches, enabling ECN when dctcp is
// chosen (§4.5). The algorithm itself is outsourced to the host TCP stack;
// this only selects it, matching the non-goal that this module is not a
// congestion-control implementation.
func (r *Replayer) applyCongestionControl(ctx context.Context) []string {
	if r.opts.CongestionCtrl == "" {
		return nil
	}
	var notes []string
	for _, name := range r.physicalHosts() {
		host, ok := r.hosts[name]
		if !ok {
			continue
		}
		ccArgv := []string{"sysctl", "-w", fmt.Sprintf("net.ipv4.tcp_congestion_control=%s", r.opts.CongestionCtrl)}
		if handle, err := r.driver.Exec(ctx, host, ccArgv); err != nil {
			notes = append(notes, fmt.Sprintf("set congestion control on %s: %v", name, err))
		} else {
			_ = handle.Wait()
		}

		if r.opts.CongestionCtrl == CCDCTCP {
			ecnArgv := []string{"sysctl", "-w", "net.ipv4.tcp_ecn=1"}
			if handle, err := r.driver.Exec(ctx, host, ecnArgv); err != nil {
				notes = append(notes, fmt.Sprintf("enable ecn on %s: %v", name, err))
			} else {
				_ = handle.Wait()
			}
		}
	}
	return notes
}
