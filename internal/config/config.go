package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"datamap/internal/datamap"

	"gopkg.in/yaml.v3"
)

// DirName is the per-workspace directory holding config, database and logs.
const DirName = ".datamap"

// Config holds all datamap configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Schema graph persistence
	Datamap DatamapConfig `yaml:"datamap"`

	// Where production files live
	Productions ProductionsConfig `yaml:"productions"`

	// Usage classification
	Classify ClassifyConfig `yaml:"classify"`

	// Schema completion
	Complete CompleteConfig `yaml:"complete"`

	// Watch mode
	Watch WatchConfig `yaml:"watch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DatamapConfig configures schema graph storage.
type DatamapConfig struct {
	DatabasePath string `yaml:"database_path"` // relative to the workspace
	Driver       string `yaml:"driver"`        // sqlite3 (cgo) or sqlite (pure Go)
	ExportPath   string `yaml:"export_path"`   // default target of `datamap export`

	// ExtraRoots are serialization ids kept alive by reduction in addition
	// to the top-state root.
	ExtraRoots []string `yaml:"extra_roots"`
}

// ProductionsConfig configures production discovery.
type ProductionsConfig struct {
	Patterns    []string `yaml:"patterns"`    // doublestar globs, relative to the workspace
	Concurrency int      `yaml:"concurrency"` // parallel file loads
}

// ClassifyConfig configures usage classification.
type ClassifyConfig struct {
	// ExcludedAttributes are structurally mandatory attributes never reported.
	ExcludedAttributes []string `yaml:"excluded_attributes"`
	// CreateExempt subtrees are not checked for missing created flags.
	CreateExempt []string `yaml:"create_exempt"`
	// TestExempt subtrees are not checked for missing tested flags.
	TestExempt []string `yaml:"test_exempt"`
}

// CompleteConfig configures the completer.
type CompleteConfig struct {
	MaxRounds int `yaml:"max_rounds"` // 0 = bounded by triple count
}

// WatchConfig configures the production watcher.
type WatchConfig struct {
	Debounce    string `yaml:"debounce"`
	MetricsAddr string `yaml:"metrics_addr"` // empty disables the /metrics endpoint
}

// ValidDrivers lists the registered database/sql drivers.
var ValidDrivers = []string{"sqlite3", "sqlite"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "datamap",
		Version: "1.0.0",

		Datamap: DatamapConfig{
			DatabasePath: filepath.Join(DirName, "datamap.db"),
			Driver:       "sqlite3",
			ExportPath:   "datamap.dm",
		},

		Productions: ProductionsConfig{
			Patterns:    []string{"**/*.prod.yaml", "**/*.mg"},
			Concurrency: 4,
		},

		Classify: ClassifyConfig{
			ExcludedAttributes: slices.Clone(datamap.DefaultExcluded),
			CreateExempt:       []string{"output-link"},
			TestExempt:         []string{"input-link"},
		},

		Complete: CompleteConfig{
			MaxRounds: 0,
		},

		Watch: WatchConfig{
			Debounce: "300ms",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Path returns the config file location for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, DirName, "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("DATAMAP_DB"); path != "" {
		c.Datamap.DatabasePath = path
	}
	if driver := os.Getenv("DATAMAP_DRIVER"); driver != "" {
		c.Datamap.Driver = driver
	}
	if addr := os.Getenv("DATAMAP_METRICS_ADDR"); addr != "" {
		c.Watch.MetricsAddr = addr
	}
	if level := os.Getenv("DATAMAP_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if v := os.Getenv("DATAMAP_DEBUG"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = on
		}
	}
}

// DatabasePath resolves the database path against the workspace.
func (c *Config) DatabasePath(workspace string) string {
	p := c.Datamap.DatabasePath
	if p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}

// GetDebounce returns the watch debounce as a duration.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 300 * time.Millisecond
	}
	return d
}

// ClassifyOptions converts the classify section for the datamap package.
func (c *Config) ClassifyOptions() datamap.ClassifyOptions {
	return datamap.ClassifyOptions{
		Excluded:     slices.Clone(c.Classify.ExcludedAttributes),
		CreateExempt: slices.Clone(c.Classify.CreateExempt),
		TestExempt:   slices.Clone(c.Classify.TestExempt),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !slices.Contains(ValidDrivers, c.Datamap.Driver) {
		return fmt.Errorf("invalid database driver: %s (valid: %v)", c.Datamap.Driver, ValidDrivers)
	}
	if c.Datamap.DatabasePath == "" {
		return fmt.Errorf("datamap.database_path is required")
	}
	if len(c.Productions.Patterns) == 0 {
		return fmt.Errorf("productions.patterns must name at least one glob")
	}
	if c.Productions.Concurrency < 0 {
		return fmt.Errorf("productions.concurrency must not be negative")
	}
	if c.Complete.MaxRounds < 0 {
		return fmt.Errorf("complete.max_rounds must not be negative")
	}
	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("invalid watch.debounce %q: %w", c.Watch.Debounce, err)
		}
	}
	return nil
}
