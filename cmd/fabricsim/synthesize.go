package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"github.com/netfabric/fabricsim/pkg/config"
	"github.com/netfabric/fabricsim/pkg/synth"
	"github.com/netfabric/fabricsim/pkg/trace"

	"github.com/spf13/cobra"
)

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize",
	Args:  cobra.NoArgs,
	Short: "Merge trace files and expand them into wire-level flows (C2+C3)",
	RunE:  runSynthesize,
}

func init() {
	synthesizeCmd.Flags().StringArray("traces", nil, "trace file path (repeatable)")
	synthesizeCmd.Flags().String("out", "", "write synthesized events as JSON to this file instead of stdout")
	synthesizeCmd.Flags().Int64("seed", 0, "RNG seed for parallelism-strategy selection (overrides config)")
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return newCLIError(2, fmt.Errorf("load config: %w", err))
	}

	paths, _ := cmd.Flags().GetStringArray("traces")
	if len(paths) == 0 {
		return newCLIError(2, fmt.Errorf("--traces is required"))
	}
	seed, _ := cmd.Flags().GetInt64("seed")
	if seed == 0 {
		seed = cfg.Replay.Seed
	}
	out, _ := cmd.Flags().GetString("out")

	entries, failed, err := trace.LoadAndMerge(paths)
	if err != nil {
		return newCLIError(2, fmt.Errorf("load traces: %w", err))
	}
	for _, f := range failed {
		fmt.Fprintf(os.Stderr, "warning: skipped unreadable trace %s\n", f)
	}

	rng := rand.New(rand.NewSource(seed))
	desc, events := synth.Synthesize(entries, rng)

	result := struct {
		ProcessDescriptor synth.ProcessDescriptor `json:"process_descriptor"`
		Events            []synth.Event           `json:"events"`
	}{ProcessDescriptor: desc, Events: events}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("synthesize: encode result: %w", err)
	}
	data = append(data, '\n')

	if out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(out, data, 0o644)
}
