package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/exttrust/exttrust/internal/policy"
)

// LoadPolicy reads a policy table from a YAML file. Fields the file omits
// keep their built-in values. An empty path returns the built-in table.
func LoadPolicy(path string) (*policy.Table, error) {
	table := policy.DefaultTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	if err := yaml.Unmarshal(data, table); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}

	return table, nil
}
