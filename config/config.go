// Package config loads the navbridge YAML file: bridge tuning, the component
// mapping table, host tuning and agent prefabs.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/plus3/navbridge/bridge"
)

type Config struct {
	Bridge  BridgeSpec   `yaml:"bridge"`
	Mapping Mapping      `yaml:"mapping"`
	Host    HostSpec     `yaml:"host"`
	Prefabs []PrefabSpec `yaml:"prefabs"`
}

type BridgeSpec struct {
	MaxSpawnAttempts uint64 `yaml:"max_spawn_attempts"`
	BackoffBase      uint64 `yaml:"backoff_base"`
	BackoffMax       uint64 `yaml:"backoff_max"`
	VerifyMirror     bool   `yaml:"verify_mirror"`
	MirrorCapacity   int    `yaml:"mirror_capacity"`
}

// Mapping names the component types that feed each navigation field. Names are
// resolved through the ECS component registry, either bare ("Position") or
// package-qualified ("ecsworld.Position"). Empty optional entries are skipped.
type Mapping struct {
	Tag      string `yaml:"tag"`
	Position string `yaml:"position"`
	Velocity string `yaml:"velocity"`
	Goal     string `yaml:"goal"`
	Feedback string `yaml:"feedback"`
	Params   string `yaml:"params"`
}

type HostSpec struct {
	Capacity     int      `yaml:"capacity"`
	StepInterval float64  `yaml:"step_interval"`
	MaxSubsteps  int      `yaml:"max_substeps"`
	ArriveRadius float64  `yaml:"arrive_radius"`
	Damping      float64  `yaml:"damping"`
	Reject       []string `yaml:"reject"` // prefab names the host refuses
}

type PrefabSpec struct {
	Name         string  `yaml:"name"`
	Radius       float64 `yaml:"radius"`
	MaxSpeed     float64 `yaml:"max_speed"`
	Acceleration float64 `yaml:"acceleration"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Bridge: BridgeSpec{
			MaxSpawnAttempts: bridge.DefaultMaxSpawnAttempts,
			BackoffBase:      bridge.DefaultBackoffBase,
			BackoffMax:       bridge.DefaultBackoffMax,
		},
		Mapping: DefaultMapping(),
		Host: HostSpec{
			Capacity:     4096,
			StepInterval: 1.0 / 60,
			MaxSubsteps:  8,
			ArriveRadius: 0.25,
			Damping:      0.9,
		},
		Prefabs: []PrefabSpec{
			{Name: "walker", Radius: 0.5, MaxSpeed: 3, Acceleration: 8},
			{Name: "runner", Radius: 0.4, MaxSpeed: 7, Acceleration: 20},
			{Name: "hauler", Radius: 1.2, MaxSpeed: 1.5, Acceleration: 2},
		},
	}
}

// DefaultMapping maps every field to the ecsworld component of the same role.
func DefaultMapping() Mapping {
	return Mapping{
		Tag:      "ecsworld.Navigable",
		Position: "ecsworld.Position",
		Velocity: "ecsworld.Velocity",
		Goal:     "ecsworld.NavGoal",
		Feedback: "ecsworld.NavFeedback",
		Params:   "ecsworld.AgentParams",
	}
}

// Load reads and validates the file at path. Fields missing from the file keep
// their Default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result. A prefabs
// list in the document replaces the default prefabs.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem in the configuration at once.
func (c Config) Validate() error {
	var errs []error

	if c.Bridge.BackoffMax != 0 && c.Bridge.BackoffMax < c.Bridge.BackoffBase {
		errs = append(errs, fmt.Errorf("bridge.backoff_max (%d) is below backoff_base (%d)",
			c.Bridge.BackoffMax, c.Bridge.BackoffBase))
	}
	if c.Bridge.MirrorCapacity < 0 {
		errs = append(errs, errors.New("bridge.mirror_capacity must not be negative"))
	}

	if c.Mapping.Tag == "" {
		errs = append(errs, errors.New("mapping.tag is required"))
	}
	if c.Mapping.Position == "" {
		errs = append(errs, errors.New("mapping.position is required"))
	}

	if c.Host.Capacity < 0 {
		errs = append(errs, errors.New("host.capacity must not be negative"))
	}
	if c.Host.StepInterval <= 0 {
		errs = append(errs, errors.New("host.step_interval must be positive"))
	}
	if c.Host.MaxSubsteps <= 0 {
		errs = append(errs, errors.New("host.max_substeps must be positive"))
	}
	if c.Host.Damping < 0 || c.Host.Damping > 1 {
		errs = append(errs, fmt.Errorf("host.damping %v outside [0, 1]", c.Host.Damping))
	}

	seen := make(map[string]bool, len(c.Prefabs))
	for i, p := range c.Prefabs {
		switch {
		case p.Name == "":
			errs = append(errs, fmt.Errorf("prefabs[%d]: name is required", i))
		case seen[p.Name]:
			errs = append(errs, fmt.Errorf("prefabs[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true
		if p.Radius <= 0 {
			errs = append(errs, fmt.Errorf("prefabs[%d] %q: radius must be positive", i, p.Name))
		}
		if p.MaxSpeed <= 0 {
			errs = append(errs, fmt.Errorf("prefabs[%d] %q: max_speed must be positive", i, p.Name))
		}
		if p.Acceleration < 0 {
			errs = append(errs, fmt.Errorf("prefabs[%d] %q: acceleration must not be negative", i, p.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}

// BridgeOptions converts the bridge section. The logger is left for the caller.
func (c Config) BridgeOptions() bridge.Options {
	return bridge.Options{
		MaxSpawnAttempts: c.Bridge.MaxSpawnAttempts,
		BackoffBase:      c.Bridge.BackoffBase,
		BackoffMax:       c.Bridge.BackoffMax,
		MirrorCapacity:   c.Bridge.MirrorCapacity,
		VerifyMirror:     c.Bridge.VerifyMirror,
	}
}

// Prefab returns the prefab called name.
func (c Config) Prefab(name string) (PrefabSpec, bool) {
	for _, p := range c.Prefabs {
		if p.Name == name {
			return p, true
		}
	}
	return PrefabSpec{}, false
}

// PrefabNames lists prefab names in sorted order.
func (c Config) PrefabNames() []string {
	names := make([]string, 0, len(c.Prefabs))
	for _, p := range c.Prefabs {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}
