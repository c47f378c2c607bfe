package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
)

// Load reads options from a YAML or JSON file. Values missing from the file
// keep their defaults. The loaded options are validated.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	opts, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return opts, nil
}

// Parse parses options from YAML or JSON data and validates them.
func Parse(data []byte) (*Options, error) {
	opts := Defaults()
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Save writes the options to a YAML file.
func (o *Options) Save(path string) error {
	data, err := yaml.Marshal(o)
	if err != nil {
		return fmt.Errorf("config: failed to marshal options: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
