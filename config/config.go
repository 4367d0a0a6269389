// Package config provides configuration loading and access for evolution runs.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/neuroevo/evolution"
	"github.com/pthm-cable/neuroevo/genome"
	"github.com/pthm-cable/neuroevo/neural"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all run configuration parameters.
type Config struct {
	Seed       int64             `yaml:"seed"`
	Model      neural.Descriptor `yaml:"model"`
	Init       genome.InitParams `yaml:"init"`
	Population PopulationConfig  `yaml:"population"`
	Evolution  evolution.Config  `yaml:"evolution"`
	Simulation SimulationConfig  `yaml:"simulation"`
	Telemetry  TelemetryConfig   `yaml:"telemetry"`
	Storage    StorageConfig     `yaml:"storage"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// PopulationConfig holds population sizing.
type PopulationConfig struct {
	Size int `yaml:"size"`
}

// SimulationConfig holds the reference target-seeking task parameters.
type SimulationConfig struct {
	Generations  int     `yaml:"generations"`   // 0 = run until interrupted
	EpisodeTicks int     `yaml:"episode_ticks"` // ticks per generation episode
	DT           float64 `yaml:"dt"`
	ArenaSize    float64 `yaml:"arena_size"`   // half-width of the square arena
	MaxSpeed     float64 `yaml:"max_speed"`
	MaxAccel     float64 `yaml:"max_accel"`
	Drag         float64 `yaml:"drag"`
	TargetJitter float64 `yaml:"target_jitter"` // per-episode random offset of the target
	Workers      int     `yaml:"workers"`       // 0 = GOMAXPROCS
}

// TelemetryConfig holds output and monitoring parameters.
type TelemetryConfig struct {
	OutputDir      string `yaml:"output_dir"` // empty disables file output
	LogStats       bool   `yaml:"log_stats"`
	HallOfFameSize int    `yaml:"hall_of_fame_size"`
	PerfWindow     int    `yaml:"perf_window"` // generations of perf samples kept for averages
	MetricsAddr    string `yaml:"metrics_addr"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend       string `yaml:"backend"` // none, memory or sqlite
	Path          string `yaml:"path"`
	SnapshotEvery int    `yaml:"snapshot_every"` // generations between population snapshots, 0 disables
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Topology *neural.Topology
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Defaults returns the embedded defaults.
func Defaults() (*Config, error) {
	return Load("")
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return Parse(data)
}

// Parse overlays data on the embedded defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if len(data) > 0 {
		// Only overwrites fields present in data; lists are replaced wholesale.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	t, err := c.Model.Build()
	if err != nil {
		return fmt.Errorf("model: %w", err)
	}
	c.Derived.Topology = t
	return nil
}

// Validate checks cross-section constraints.
func (c *Config) Validate() error {
	if err := c.Init.Validate(); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := c.Evolution.Validate(c.Population.Size); err != nil {
		return fmt.Errorf("evolution: %w", err)
	}
	if c.Simulation.EpisodeTicks < 1 {
		return fmt.Errorf("simulation: episode_ticks must be >= 1, got %d", c.Simulation.EpisodeTicks)
	}
	if !(c.Simulation.DT > 0) {
		return fmt.Errorf("simulation: dt must be > 0, got %v", c.Simulation.DT)
	}
	if !(c.Simulation.ArenaSize > 0) || !(c.Simulation.MaxSpeed > 0) {
		return fmt.Errorf("simulation: arena_size and max_speed must be > 0")
	}
	if c.Simulation.Drag < 0 {
		return fmt.Errorf("simulation: drag must be >= 0, got %v", c.Simulation.Drag)
	}
	switch c.Storage.Backend {
	case "", "none", "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage: sqlite backend needs a path")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
