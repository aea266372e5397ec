// Package config defines the typed, YAML-backed configuration tree for the
// fabric simulator: one sub-config struct per concern, loaded from a single
// file and then selectively overridden by CLI flags.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Reporting ReportingConfig `yaml:"reporting"`
	Topology  TopologyConfig  `yaml:"topology"`
	Replay    ReplayConfig    `yaml:"replay"`
	Emulator  EmulatorConfig  `yaml:"emulator"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ReportingConfig controls progress/summary output.
type ReportingConfig struct {
	Format    string `yaml:"format"`
	OutputDir string `yaml:"output_dir"`
}

// TopologyConfig parameterises the fabric build.
type TopologyConfig struct {
	Kind              string `yaml:"kind"` // "vl2" | "clos"
	AggregatePorts    int    `yaml:"aggregate_ports"`    // D_A
	IntermediatePorts int    `yaml:"intermediate_ports"` // D_I
	// Clos-only fields.
	Spines       int `yaml:"spines"`
	Leaves       int `yaml:"leaves"`
	HostsPerLeaf int `yaml:"hosts_per_leaf"`
}

// ReplayConfig controls placement and replay behavior (C4/C5).
type ReplayConfig struct {
	Percentage        float64       `yaml:"percentage"`
	ProcsPerHost      int           `yaml:"procs_per_host"`
	NumServerPorts    int           `yaml:"num_server_ports"`
	TimeScale         float64       `yaml:"time_scale"`
	MaxEvents         int           `yaml:"max_events"`
	CongestionCtrl    string        `yaml:"cc"`
	PriorityQueues    bool          `yaml:"priority_queues"`
	PlacementStrategy string        `yaml:"placement_strategy"` // "strided" | "consecutive"
	Seed              int64         `yaml:"seed"`
	DiscoveryWait     time.Duration `yaml:"discovery_wait"`
	MetricsDir        string        `yaml:"metrics_dir"`
}

// EmulatorConfig selects and configures the EmulatorDriver adapter (C8).
type EmulatorConfig struct {
	Driver      string `yaml:"driver"` // "process" | "docker" | "auto"
	DockerImage string `yaml:"docker_image"`
}

// MetricsConfig controls the Prometheus live-export side channel.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Enabled    bool   `yaml:"enabled"`
}

// Default returns a configuration suitable for a single-box smoke run.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Reporting: ReportingConfig{
			Format:    "text",
			OutputDir: "./reports",
		},
		Topology: TopologyConfig{
			Kind:              "vl2",
			AggregatePorts:    4,
			IntermediatePorts: 4,
		},
		Replay: ReplayConfig{
			Percentage:        1.0,
			ProcsPerHost:      4,
			NumServerPorts:    32,
			TimeScale:         1.0,
			MaxEvents:         0,
			CongestionCtrl:    "cubic",
			PriorityQueues:    false,
			PlacementStrategy: "strided",
			Seed:              0,
			DiscoveryWait:     5 * time.Second,
			MetricsDir:        "/tmp/mininet_metrics",
		},
		Emulator: EmulatorConfig{
			Driver:      "process",
			DockerImage: "fabricsim/host:latest",
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9400",
			Enabled:    false,
		},
	}
}

// Load reads and parses a YAML config file, starting from Default() so
// unspecified fields keep their defaults. A missing path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate checks invariants that the rest of the pipeline relies on.
func (c *Config) Validate() error {
	if c.Topology.AggregatePorts <= 0 || c.Topology.AggregatePorts%2 != 0 {
		return fmt.Errorf("topology.aggregate_ports must be a positive even number")
	}
	if c.Topology.IntermediatePorts <= 0 {
		return fmt.Errorf("topology.intermediate_ports must be positive")
	}
	if c.Replay.Percentage <= 0 || c.Replay.Percentage > 1 {
		return fmt.Errorf("replay.percentage must be in (0, 1]")
	}
	if c.Replay.ProcsPerHost <= 0 {
		return fmt.Errorf("replay.procs_per_host must be positive")
	}
	if c.Replay.NumServerPorts <= 0 {
		return fmt.Errorf("replay.num_server_ports must be positive")
	}
	switch c.Replay.CongestionCtrl {
	case "cubic", "reno", "bbr", "dctcp":
	default:
		return fmt.Errorf("replay.cc must be one of cubic, reno, bbr, dctcp")
	}
	switch c.Replay.PlacementStrategy {
	case "strided", "consecutive":
	default:
		return fmt.Errorf("replay.placement_strategy must be strided or consecutive")
	}
	if c.Reporting.OutputDir == "" {
		return fmt.Errorf("reporting.output_dir is required")
	}
	return nil
}
