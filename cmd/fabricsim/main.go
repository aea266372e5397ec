package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "fabricsim",
	Short: "VL2/VLB datacenter fabric emulation harness",
	Long: `fabricsim replays multi-agent LLM traffic traces through a synthetic
VL2 fat-tree fabric: it merges and expands traces into wire-level flows,
places them on physical hosts, replays them with deadline scheduling
through an OpenFlow-style ECMP/VLB controller, and analyzes flow
completion times.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (built-in defaults when unset)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(topologyCmd)
	rootCmd.AddCommand(synthesizeCmd)
	rootCmd.AddCommand(placeCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(analyzeCmd)
}

// Subcommands are defined in separate files:
// - topologyCmd in topology.go
// - synthesizeCmd in synthesize.go
// - placeCmd in place.go
// - replayCmd in replay.go
// - analyzeCmd in analyze.go

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error back to the documented process exit codes;
// subcommands that care about a specific code return a *cliError, everything
// else is a generic failure (1).
func exitCodeFor(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

// cliError pairs an error with one of the documented process exit codes.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func newCLIError(code int, err error) *cliError { return &cliError{code: code, err: err} }
