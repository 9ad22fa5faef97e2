// Package config handles loading and saving sgv configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/sgv/config.yaml
//   - State:   ~/.local/state/sgv/state.yaml (last filter selection)
//   - Cache:   ~/.cache/sgv/index.db (module index cache)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DataConfig points at the input files.
type DataConfig struct {
	Annotations string `yaml:"annotations,omitempty"` // Annotation CSV or JSON records file
	ModulesDir  string `yaml:"modules_dir,omitempty"` // Directory of <cell>_<n>_T<k>_modules.csv files
	CachePath   string `yaml:"cache_path,omitempty"`  // SQLite index cache; "" disables caching
}

// LookupConfig controls where filter lookups go.
type LookupConfig struct {
	Server  string        `yaml:"server,omitempty"`  // Base URL; empty means in-process index
	Timeout time.Duration `yaml:"timeout,omitempty"` // Per-request timeout
}

// ServeConfig holds lookup server settings.
type ServeConfig struct {
	Addr  string `yaml:"addr,omitempty"`
	Watch bool   `yaml:"watch,omitempty"` // Rebuild the index when the modules dir changes
}

// UIConfig holds UI preference settings.
type UIConfig struct {
	MaxGenes    int  `yaml:"max_genes,omitempty"`    // Genes shown before the ellipsis
	CellWidth   int  `yaml:"cell_width,omitempty"`   // Max column width in the results table
	RestoreLast bool `yaml:"restore_last,omitempty"` // Restore last filter selection on start
}

// Config is the top-level configuration for sgv.
type Config struct {
	Data   DataConfig   `yaml:"data,omitempty"`
	Lookup LookupConfig `yaml:"lookup,omitempty"`
	Serve  ServeConfig  `yaml:"serve,omitempty"`
	UI     UIConfig     `yaml:"ui,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Data: DataConfig{
			Annotations: "final_subgraphs_preprocessed_IC.csv",
			ModulesDir:  "networks",
			CachePath:   defaultCachePath(),
		},
		Lookup: LookupConfig{
			Timeout: 10 * time.Second,
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:8080",
		},
		UI: UIConfig{
			MaxGenes:    5,
			CellWidth:   32,
			RestoreLast: true,
		},
	}
}

// ConfigDir returns the XDG config directory for sgv.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory for sgv.
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// CacheDir returns the XDG cache directory for sgv.
func CacheDir() string {
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "sgv")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, fallback, "sgv")
}

func defaultCachePath() string {
	dir := CacheDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "index.db")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Data.Annotations = expandHome(cfg.Data.Annotations)
	cfg.Data.ModulesDir = expandHome(cfg.Data.ModulesDir)
	cfg.Data.CachePath = expandHome(cfg.Data.CachePath)

	if cfg.Lookup.Timeout <= 0 {
		cfg.Lookup.Timeout = DefaultConfig().Lookup.Timeout
	}
	if cfg.UI.MaxGenes <= 0 {
		cfg.UI.MaxGenes = DefaultConfig().UI.MaxGenes
	}

	return cfg, nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	return writeYAML(cfg, path, "config")
}

func writeYAML(v any, path, what string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s directory: %w", what, err)
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", what, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", what, err)
	}

	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
