package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FilterState is the last filter selection, restored on the next start so
// the cascade can repopulate its dependent controls.
type FilterState struct {
	Term      string `yaml:"term,omitempty"`
	CellType  string `yaml:"cell_type,omitempty"`
	Cluster   string `yaml:"cluster,omitempty"`
	Iteration string `yaml:"iteration,omitempty"`
	Module    string `yaml:"module,omitempty"`
}

// IsZero reports whether nothing was selected.
func (s FilterState) IsZero() bool {
	return s == FilterState{}
}

// StatePath returns the full path to state.yaml.
func StatePath() string {
	dir := StateDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "state.yaml")
}

// LoadStateFrom reads a FilterState. A missing file yields the zero state.
func LoadStateFrom(path string) (FilterState, error) {
	var st FilterState
	if path == "" {
		return st, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("reading state: %w", err)
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return FilterState{}, fmt.Errorf("parsing state: %w", err)
	}
	return st, nil
}

// SaveStateTo writes a FilterState to path.
func SaveStateTo(st FilterState, path string) error {
	if path == "" {
		return fmt.Errorf("cannot determine state directory")
	}
	return writeYAML(st, path, "state")
}
