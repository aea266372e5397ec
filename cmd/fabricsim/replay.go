package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/digitalocean/go-openvswitch/ovs"

	"github.com/netfabric/fabricsim/internal/logging"
	"github.com/netfabric/fabricsim/internal/reporting"
	"github.com/netfabric/fabricsim/pkg/config"
	"github.com/netfabric/fabricsim/pkg/controller"
	"github.com/netfabric/fabricsim/pkg/emulator"
	"github.com/netfabric/fabricsim/pkg/metrics"
	"github.com/netfabric/fabricsim/pkg/ovsflow"
	"github.com/netfabric/fabricsim/pkg/placement"
	"github.com/netfabric/fabricsim/pkg/replay"
	"github.com/netfabric/fabricsim/pkg/synth"
	"github.com/netfabric/fabricsim/pkg/topology"
	"github.com/netfabric/fabricsim/pkg/trace"

	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Args:  cobra.NoArgs,
	Short: "Replay synthesized flows against emulated hosts (C5)",
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().StringArray("traces", nil, "trace file path (repeatable)")
	replayCmd.Flags().Float64("percentage", 0, "fraction of fabric hosts to use (overrides config)")
	replayCmd.Flags().Int("procs-per-host", 0, "sub-nodes per host under the consecutive strategy (overrides config)")
	replayCmd.Flags().Int("num-server-ports", 0, "listener ports per destination host (overrides config)")
	replayCmd.Flags().Float64("time-scale", -1, "wall-clock scaling factor applied to trace timestamps (overrides config)")
	replayCmd.Flags().Int("max-events", -1, "cap the number of events replayed, 0 means no cap (overrides config)")
	replayCmd.Flags().String("cc", "", "TCP congestion control: cubic, reno, bbr, dctcp (overrides config)")
	replayCmd.Flags().Bool("priority-queues", false, "enable DSCP-based priority queuing")
	replayCmd.Flags().String("driver", "", "emulator driver: process, docker, or auto (overrides config)")
	replayCmd.Flags().String("docker-image", "", "Docker image for per-host containers (overrides config)")
	replayCmd.Flags().String("metrics-dir", "", "per-flow log directory (overrides config)")
	replayCmd.Flags().Bool("listen-metrics", false, "expose a live Prometheus /metrics endpoint during the run")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return newCLIError(2, fmt.Errorf("load config: %w", err))
	}
	applyReplayFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return newCLIError(2, err)
	}

	logger := logging.New(logging.Config{
		Level:  levelFor(verbose, cfg.Logging.Level),
		Format: logging.Format(cfg.Logging.Format),
		Output: os.Stderr,
	})
	reporter := reporting.New(reporting.Format(cfg.Reporting.Format), os.Stdout, logger)

	paths, _ := cmd.Flags().GetStringArray("traces")
	if len(paths) == 0 {
		return newCLIError(2, fmt.Errorf("--traces is required"))
	}

	reporter.ReportPhase("loading traces")
	entries, failed, err := trace.LoadAndMerge(paths)
	if err != nil {
		return newCLIError(2, fmt.Errorf("load traces: %w", err))
	}
	for _, f := range failed {
		logger.Warn("skipped unreadable trace", "file", f)
	}

	fabric, err := buildFabric(cfg)
	if err != nil {
		return newCLIError(2, fmt.Errorf("build topology: %w", err))
	}

	reporter.ReportPhase("synthesizing flows")
	rng := rand.New(rand.NewSource(cfg.Replay.Seed))
	desc, events := synth.Synthesize(entries, rng)

	hostNames := make([]string, 0, len(fabric.Hosts))
	for _, h := range fabric.CanonicalHosts() {
		hostNames = append(hostNames, h.Name)
	}
	pool := placement.PhysicalPool(hostNames, cfg.Replay.Percentage)

	strategy, err := placement.ParseStrategy(cfg.Replay.PlacementStrategy)
	if err != nil {
		return newCLIError(2, err)
	}
	pm, err := placement.Place(desc, pool, strategy, cfg.Replay.ProcsPerHost)
	if err != nil {
		return newCLIError(2, fmt.Errorf("place: %w", err))
	}
	if err := placement.CheckCapacity(desc, pm, placement.MaxGPUPerHost); err != nil {
		return newCLIError(2, fmt.Errorf("place: %w", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reporter.ReportPhase("starting controller")
	startController(ctx, fabric, logger, cfg.Replay.Seed)

	reporter.ReportPhase("starting emulator")
	driver, err := buildDriver(ctx, cfg, fabric, logger)
	if err != nil {
		return newCLIError(3, fmt.Errorf("emulator startup: %w", err))
	}
	defer driver.Close()

	for _, name := range pool {
		host := hostByName(fabric, name)
		if err := driver.StartHost(ctx, host); err != nil {
			return newCLIError(3, fmt.Errorf("emulator startup: start host %s: %w", name, err))
		}
	}

	if cfg.Emulator.Driver == "docker" {
		if err := checkControllerReachable(ctx); err != nil {
			return newCLIError(4, fmt.Errorf("controller unreachable: %w", err))
		}
	}

	var exporter *metrics.Exporter
	listenMetrics, _ := cmd.Flags().GetBool("listen-metrics")
	if listenMetrics || cfg.Metrics.Enabled {
		exporter = metrics.NewExporter()
		go func() {
			if err := exporter.Serve(ctx, cfg.Metrics.ListenAddr); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	opts := replay.Options{
		NumPorts:       cfg.Replay.NumServerPorts,
		TimeScale:      cfg.Replay.TimeScale,
		MaxEvents:      cfg.Replay.MaxEvents,
		CongestionCtrl: replay.CongestionControl(cfg.Replay.CongestionCtrl),
		PriorityQueues: cfg.Replay.PriorityQueues,
		MetricsDir:     cfg.Replay.MetricsDir,
	}
	r := replay.New(driver, fabric, pm, opts, reporter)
	if exporter != nil {
		r = r.WithExporter(exporter)
	}

	reporter.ReportPhase("replaying")
	start := time.Now()
	summary, err := r.Run(ctx, events)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	counters := map[string]int{"launched": summary.Launched}
	for reason, n := range summary.Skipped {
		counters["skipped_"+string(reason)] = n
	}
	reporter.ReportRunSummary(reporting.RunSummary{
		StartedAt:  start,
		FinishedAt: start.Add(summary.Duration),
		Counters:   counters,
		Notes:      summary.Notes,
	})
	return nil
}

func applyReplayFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetFloat64("percentage"); v > 0 {
		cfg.Replay.Percentage = v
	}
	if v, _ := cmd.Flags().GetInt("procs-per-host"); v > 0 {
		cfg.Replay.ProcsPerHost = v
	}
	if v, _ := cmd.Flags().GetInt("num-server-ports"); v > 0 {
		cfg.Replay.NumServerPorts = v
	}
	if v, _ := cmd.Flags().GetFloat64("time-scale"); v >= 0 {
		cfg.Replay.TimeScale = v
	}
	if v, _ := cmd.Flags().GetInt("max-events"); v >= 0 {
		cfg.Replay.MaxEvents = v
	}
	if v, _ := cmd.Flags().GetString("cc"); v != "" {
		cfg.Replay.CongestionCtrl = v
	}
	if v, _ := cmd.Flags().GetBool("priority-queues"); v {
		cfg.Replay.PriorityQueues = true
	}
	if v, _ := cmd.Flags().GetString("driver"); v != "" {
		cfg.Emulator.Driver = v
	}
	if v, _ := cmd.Flags().GetString("docker-image"); v != "" {
		cfg.Emulator.DockerImage = v
	}
	if v, _ := cmd.Flags().GetString("metrics-dir"); v != "" {
		cfg.Replay.MetricsDir = v
	}
}

// buildDriver constructs the emulator driver for the requested mode.
// "docker" fails hard on an unreachable daemon (exit 3 upstream); "auto"
// falls back to the process driver with a logged warning; anything else
// uses the process driver directly.
func buildDriver(ctx context.Context, cfg *config.Config, fabric *topology.Fabric, logger *logging.Logger) (emulator.Driver, error) {
	switch cfg.Emulator.Driver {
	case "docker":
		return emulator.NewDockerDriver(fabric, cfg.Emulator.DockerImage)
	case "auto":
		return emulator.NewDriver(ctx, fabric, cfg.Emulator.DockerImage, true, func(msg string) {
			logger.Warn(msg)
		}), nil
	default:
		return emulator.NewProcessDriver(fabric), nil
	}
}

// startController brings up the routing controller against fabric's
// topology: one OVS bridge per switch, a SwitchEnter/LinkAdd event for
// every switch and link, then the controller's event loop runs in the
// background until ctx is canceled. Bridge/flow failures are logged, not
// fatal: the process driver has no real switches for the controller to
// program, and the controller's own driver calls already tolerate that.
func startController(ctx context.Context, fabric *topology.Fabric, logger *logging.Logger, seed int64) {
	ovsDriver := controller.NewOVSDriver(ovsflow.New("", ""))
	ctrl := controller.New(ovsDriver, logger, seed)
	go ctrl.Run(ctx)

	for _, sw := range fabric.Switches {
		if err := ovsDriver.EnsureSwitch(ctx, sw.DPID, hostFacingPorts(fabric, sw.DPID)); err != nil {
			logger.Warn("controller: ensure switch bridge failed", "dpid", sw.DPID, "error", err)
		}
		ctrl.Submit(controller.Event{SwitchEnter: &controller.SwitchEnterEvent{DPID: sw.DPID}})
	}
	for _, l := range fabric.Links {
		ctrl.Submit(controller.Event{LinkAdd: &controller.LinkAddEvent{
			SrcDPID: l.SrcDPID, SrcPort: l.SrcPort, DstDPID: l.DstDPID, DstPort: l.DstPort,
		}})
	}
}

func hostFacingPorts(fabric *topology.Fabric, dpid int) []int {
	hosts := fabric.HostsByTor(dpid)
	ports := make([]int, len(hosts))
	for i, h := range hosts {
		ports[i] = h.Port
	}
	return ports
}

func hostByName(fabric *topology.Fabric, name string) topology.Host {
	for _, h := range fabric.Hosts {
		if h.Name == name {
			return h
		}
	}
	return topology.Host{Name: name}
}

func levelFor(verbose bool, configured string) logging.Level {
	if verbose {
		return logging.LevelDebug
	}
	return logging.Level(configured)
}

// checkControllerReachable uses the OVS bridge as the controller-reachable
// probe for the Docker-backed driver: the fabric's flow-programming surface
// is the controller's transport, per §6A.
func checkControllerReachable(ctx context.Context) error {
	client := ovsflow.New("", "")
	return client.EnsureBridge(ctx, ovsflow.Bridge("fabricsim0"), ovs.FailModeSecure)
}
