// Package config loads analyzer settings from an optional YAML file.
// Every field has a working default; an absent file means defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the analysis root when no explicit
// config path is given.
const DefaultFileName = ".codeatlas.yml"

// Complexity configures graph complexity scoring.
type Complexity struct {
	LowMax       int    `yaml:"low_max"`
	MediumMax    int    `yaml:"medium_max"`
	HighMax      int    `yaml:"high_max"`
	NestedWeight int    `yaml:"nested_weight"`
	Script       string `yaml:"script"` // path to a Risor scoring script
}

// Config is the full analyzer configuration.
type Config struct {
	Exclude      []string   `yaml:"exclude"`
	Languages    []string   `yaml:"languages"` // empty means all
	DocProximity int        `yaml:"doc_proximity"`
	CachePath    string     `yaml:"cache_path"` // empty disables the cache
	Parallel     *bool      `yaml:"parallel"`
	Complexity   Complexity `yaml:"complexity"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DocProximity: 1,
		Complexity: Complexity{
			LowMax:       5,
			MediumMax:    15,
			HighMax:      30,
			NestedWeight: 2,
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults.
// A missing file at the default location is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DocProximity < 0 {
		return fmt.Errorf("doc_proximity must be >= 0, got %d", c.DocProximity)
	}
	cx := c.Complexity
	if cx.LowMax <= 0 || cx.MediumMax <= cx.LowMax || cx.HighMax <= cx.MediumMax {
		return fmt.Errorf("complexity thresholds must be increasing, got %d/%d/%d",
			cx.LowMax, cx.MediumMax, cx.HighMax)
	}
	if cx.NestedWeight < 0 {
		return fmt.Errorf("complexity nested_weight must be >= 0, got %d", cx.NestedWeight)
	}
	return nil
}

// ParallelEnabled reports the parallel setting, defaulting to true.
func (c *Config) ParallelEnabled() bool {
	return c.Parallel == nil || *c.Parallel
}
