package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Seed describes the bootstrap data for one deployment: the dimensions
// and default-config entries to load before the service accepts
// traffic. Seed files let an operator version a deployment's starting
// configuration alongside application code, the same way profile_*.yaml
// versioned jurisdiction profiles.
type Seed struct {
	Dimensions     []SeedDimension     `yaml:"dimensions" json:"dimensions"`
	DefaultConfigs []SeedDefaultConfig `yaml:"default_configs" json:"default_configs"`
}

// SeedDimension mirrors dimension.Dimension's admin-supplied fields.
type SeedDimension struct {
	Name     string `yaml:"name" json:"name"`
	Priority int    `yaml:"priority" json:"priority"`
}

// SeedDefaultConfig mirrors defaultconfig.Entry's admin-supplied fields.
// Value and Schema are raw YAML (decoded to json.RawMessage via an
// intermediate any) so operators write normal YAML instead of inline
// JSON strings.
type SeedDefaultConfig struct {
	Key    string `yaml:"key" json:"key"`
	Value  any    `yaml:"value" json:"value"`
	Schema any    `yaml:"schema" json:"schema"`
}

// ValueJSON re-encodes Value as canonical JSON bytes for
// defaultconfig.Entry.Value.
func (s SeedDefaultConfig) ValueJSON() (json.RawMessage, error) {
	return json.Marshal(s.Value)
}

// SchemaJSON re-encodes Schema as canonical JSON bytes for
// defaultconfig.Entry.Schema.
func (s SeedDefaultConfig) SchemaJSON() (json.RawMessage, error) {
	return json.Marshal(s.Schema)
}

// LoadSeed reads and parses a single seed YAML file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load seed %q: %w", path, err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %q: %w", path, err)
	}
	return &seed, nil
}

// LoadAllSeeds loads every seed_*.yaml file in dir, merging dimensions
// and default-config entries from all of them in filename order.
func LoadAllSeeds(dir string) (*Seed, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "seed_*.yaml"))
	if err != nil {
		return nil, err
	}

	merged := &Seed{}
	for _, path := range matches {
		seed, err := LoadSeed(path)
		if err != nil {
			return nil, err
		}
		merged.Dimensions = append(merged.Dimensions, seed.Dimensions...)
		merged.DefaultConfigs = append(merged.DefaultConfigs, seed.DefaultConfigs...)
	}
	return merged, nil
}
