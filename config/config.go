// Package config handles loading script-template's optional YAML settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the settings file path.
// When it is unset, Default is used.
const EnvVar = "SCRIPT_TEMPLATE_CONFIG"

// Config is the top-level structure of the settings file.
type Config struct {
	// LogLevel is the severity threshold when --debug is not given.
	LogLevel string `yaml:"log_level"`

	// LogFile, if set, receives a copy of every log line.  The file is
	// rotated once it exceeds LogMaxSizeMB.
	LogFile      string `yaml:"log_file"`
	LogMaxSizeMB int    `yaml:"log_max_size_mb"`

	// CrashDir is where debug-mode crash reports are written.
	CrashDir string `yaml:"crash_dir"`

	// CoreDump makes a debug-mode crash on a terminal abort with a core
	// file after cleanup.
	CoreDump bool `yaml:"core_dump"`
}

// Default returns the settings used when no file is configured.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		LogMaxSizeMB: 10,
		CrashDir:     os.TempDir(),
	}
}

// Load reads path and returns the parsed Config.  Keys absent from the
// file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv loads the file named by EnvVar, or returns Default if the
// variable is unset.
func FromEnv() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
