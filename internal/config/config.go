package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// TelemetryConfig controls the JSONL event stream.
type TelemetryConfig struct {
	// Path is the events file; empty disables telemetry.
	Path string `mapstructure:"path"`
}

// CratesIOConfig identifies the crates.io account whose crates are
// discovered.
type CratesIOConfig struct {
	Username  string `mapstructure:"username"`
	UserAgent string `mapstructure:"user_agent"`
	URL       string `mapstructure:"url"`
}

// PyPIConfig identifies the PyPI account whose projects are discovered.
type PyPIConfig struct {
	Username string `mapstructure:"username"`
	URL      string `mapstructure:"url"`
}

// RepositoriesConfig lists repositories released regardless of registry
// ownership.
type RepositoriesConfig struct {
	Owned []string `mapstructure:"owned"`
}

// DiscoverConfig holds defaults for the discover command.
type DiscoverConfig struct {
	// Try makes discover exit 0 even when projects fail.
	Try bool `mapstructure:"try"`
}

// Config holds all global configuration for a disperse invocation.
// Values are populated from disperse.yaml, DISPERSE_* env vars, and CLI flags.
type Config struct {
	Debug        bool               `mapstructure:"debug"`
	DryRun       bool               `mapstructure:"dry_run"`
	CargoPath    string             `mapstructure:"cargo_path"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	CratesIO     CratesIOConfig     `mapstructure:"crates_io"`
	PyPI         PyPIConfig         `mapstructure:"pypi"`
	Repositories RepositoriesConfig `mapstructure:"repositories"`
	Discover     DiscoverConfig     `mapstructure:"discover"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("debug", false)
	viper.SetDefault("dry_run", false)
	viper.SetDefault("cargo_path", "cargo")
	viper.SetDefault("telemetry.path", "")
	viper.SetDefault("crates_io.username", "")
	viper.SetDefault("crates_io.user_agent", "")
	viper.SetDefault("crates_io.url", "https://crates.io")
	viper.SetDefault("pypi.username", "")
	viper.SetDefault("pypi.url", "https://pypi.org")
	viper.SetDefault("repositories.owned", []string{})
	viper.SetDefault("discover.try", false)

	// Registry usernames also honour the unprefixed variables other
	// release tooling sets.
	_ = viper.BindEnv("crates_io.username", "DISPERSE_CRATES_IO_USERNAME", "CRATES_IO_USERNAME")
	_ = viper.BindEnv("pypi.username", "DISPERSE_PYPI_USERNAME", "PYPI_USERNAME")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
