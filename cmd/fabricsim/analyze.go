package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/netfabric/fabricsim/pkg/config"
	"github.com/netfabric/fabricsim/pkg/metrics"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Args:  cobra.NoArgs,
	Short: "Compute flow-completion-time statistics from a replay's per-flow logs (C7)",
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("dir", "", "per-flow log directory (overrides config)")
	analyzeCmd.Flags().String("format", "json", "report format: json or yaml")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return newCLIError(2, fmt.Errorf("load config: %w", err))
	}

	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.Replay.MetricsDir
	}
	format, _ := cmd.Flags().GetString("format")

	rep, err := metrics.Analyze(dir)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	switch format {
	case "yaml":
		data, err := yaml.Marshal(rep.ToMap())
		if err != nil {
			return fmt.Errorf("analyze: encode yaml: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	default:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep.ToMap())
	}
}
