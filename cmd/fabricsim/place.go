package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"github.com/netfabric/fabricsim/pkg/config"
	"github.com/netfabric/fabricsim/pkg/placement"
	"github.com/netfabric/fabricsim/pkg/synth"
	"github.com/netfabric/fabricsim/pkg/trace"

	"github.com/spf13/cobra"
)

var placeCmd = &cobra.Command{
	Use:   "place",
	Args:  cobra.NoArgs,
	Short: "Place a synthesized process descriptor onto physical hosts (C4, offline feasibility check)",
	RunE:  runPlace,
}

func init() {
	placeCmd.Flags().StringArray("traces", nil, "trace file path (repeatable)")
	placeCmd.Flags().Float64("percentage", 0, "fraction of fabric hosts to use as the physical pool (overrides config)")
	placeCmd.Flags().Int("procs-per-host", 0, "sub-nodes per host under the consecutive strategy (overrides config)")
	placeCmd.Flags().String("strategy", "", "placement strategy: strided or consecutive (overrides config)")
}

func runPlace(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return newCLIError(2, fmt.Errorf("load config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return newCLIError(2, err)
	}

	if v, _ := cmd.Flags().GetFloat64("percentage"); v > 0 {
		cfg.Replay.Percentage = v
	}
	if v, _ := cmd.Flags().GetInt("procs-per-host"); v > 0 {
		cfg.Replay.ProcsPerHost = v
	}
	if v, _ := cmd.Flags().GetString("strategy"); v != "" {
		cfg.Replay.PlacementStrategy = v
	}

	paths, _ := cmd.Flags().GetStringArray("traces")
	if len(paths) == 0 {
		return newCLIError(2, fmt.Errorf("--traces is required"))
	}

	entries, _, err := trace.LoadAndMerge(paths)
	if err != nil {
		return newCLIError(2, fmt.Errorf("load traces: %w", err))
	}

	fabric, err := buildFabric(cfg)
	if err != nil {
		return newCLIError(2, err)
	}

	rng := rand.New(rand.NewSource(cfg.Replay.Seed))
	desc, _ := synth.Synthesize(entries, rng)

	hostNames := make([]string, len(fabric.Hosts))
	for i, h := range fabric.CanonicalHosts() {
		hostNames[i] = h.Name
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

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		PoolSize int           `json:"pool_size"`
		Strategy string        `json:"strategy"`
		Mapping  placement.Map `json:"mapping"`
	}{PoolSize: len(pool), Strategy: strategy.String(), Mapping: pm})
}
