package config

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	Level      string          `yaml:"level"`       // debug, info, warn, error
	DebugMode  bool            `yaml:"debug_mode"`  // Master toggle - false = no logging
	JSONFormat bool            `yaml:"json_format"` // One JSON object per line
	Categories map[string]bool `yaml:"categories"`  // Per-category toggles
}
