package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/netfabric/fabricsim/pkg/config"
	"github.com/netfabric/fabricsim/pkg/topology"

	"github.com/spf13/cobra"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Args:  cobra.NoArgs,
	Short: "Build and dump a fabric description (C1)",
	RunE:  runTopology,
}

func init() {
	topologyCmd.Flags().String("kind", "", "topology kind: vl2 or clos (overrides config)")
	topologyCmd.Flags().Int("aggregate-ports", 0, "D_A, ports per aggregate switch (vl2 only)")
	topologyCmd.Flags().Int("intermediate-ports", 0, "D_I, ports per intermediate switch (vl2 only)")
}

func runTopology(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return newCLIError(2, fmt.Errorf("load config: %w", err))
	}

	if v, _ := cmd.Flags().GetString("kind"); v != "" {
		cfg.Topology.Kind = v
	}
	if v, _ := cmd.Flags().GetInt("aggregate-ports"); v > 0 {
		cfg.Topology.AggregatePorts = v
	}
	if v, _ := cmd.Flags().GetInt("intermediate-ports"); v > 0 {
		cfg.Topology.IntermediatePorts = v
	}

	fabric, err := buildFabric(cfg)
	if err != nil {
		return newCLIError(2, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Switches int              `json:"switches"`
		Hosts    int              `json:"hosts"`
		Links    int              `json:"links"`
		Fabric   *topology.Fabric `json:"fabric"`
	}{
		Switches: len(fabric.Switches),
		Hosts:    len(fabric.Hosts),
		Links:    len(fabric.Links),
		Fabric:   fabric,
	})
}

// buildFabric dispatches on cfg.Topology.Kind: "clos" builds a leaf/spine
// fabric through topology.BuildClos, which validates its own params; any
// other kind builds VL2.
func buildFabric(cfg *config.Config) (*topology.Fabric, error) {
	switch cfg.Topology.Kind {
	case "clos":
		return topology.BuildClos(topology.ClosParams{
			Spines:       cfg.Topology.Spines,
			Leaves:       cfg.Topology.Leaves,
			HostsPerLeaf: cfg.Topology.HostsPerLeaf,
		})
	default:
		return topology.BuildVL2(topology.VL2Params{
			AggregatePorts:    cfg.Topology.AggregatePorts,
			IntermediatePorts: cfg.Topology.IntermediatePorts,
		})
	}
}
