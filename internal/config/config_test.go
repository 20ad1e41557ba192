package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/viper"
)

// resetViper clears all viper state between tests to avoid cross-contamination.
func resetViper() {
	viper.Reset()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Debug", cfg.Debug, false},
		{"DryRun", cfg.DryRun, false},
		{"CargoPath", cfg.CargoPath, "cargo"},
		{"Telemetry.Path", cfg.Telemetry.Path, ""},
		{"CratesIO.Username", cfg.CratesIO.Username, ""},
		{"CratesIO.URL", cfg.CratesIO.URL, "https://crates.io"},
		{"PyPI.Username", cfg.PyPI.Username, ""},
		{"PyPI.URL", cfg.PyPI.URL, "https://pypi.org"},
		{"Discover.Try", cfg.Discover.Try, false},
		{"Repositories.Owned", len(cfg.Repositories.Owned), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
		field  func(Config) any
		want   any
	}{
		{
			name:   "debug",
			envKey: "DISPERSE_DEBUG",
			envVal: "true",
			field:  func(c Config) any { return c.Debug },
			want:   true,
		},
		{
			name:   "dry_run",
			envKey: "DISPERSE_DRY_RUN",
			envVal: "1",
			field:  func(c Config) any { return c.DryRun },
			want:   true,
		},
		{
			name:   "telemetry.path",
			envKey: "DISPERSE_TELEMETRY_PATH",
			envVal: "/tmp/events.jsonl",
			field:  func(c Config) any { return c.Telemetry.Path },
			want:   "/tmp/events.jsonl",
		},
		{
			name:   "crates_io.username",
			envKey: "DISPERSE_CRATES_IO_USERNAME",
			envVal: "jelmer",
			field:  func(c Config) any { return c.CratesIO.Username },
			want:   "jelmer",
		},
		{
			name:   "crates_io.username unprefixed",
			envKey: "CRATES_IO_USERNAME",
			envVal: "jelmer",
			field:  func(c Config) any { return c.CratesIO.Username },
			want:   "jelmer",
		},
		{
			name:   "pypi.username",
			envKey: "DISPERSE_PYPI_USERNAME",
			envVal: "jelmer",
			field:  func(c Config) any { return c.PyPI.Username },
			want:   "jelmer",
		},
		{
			name:   "pypi.username unprefixed",
			envKey: "PYPI_USERNAME",
			envVal: "jelmer",
			field:  func(c Config) any { return c.PyPI.Username },
			want:   "jelmer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper()
			// Set env prefix so DISPERSE_* env vars map to config keys.
			viper.SetEnvPrefix("DISPERSE")
			viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
			viper.AutomaticEnv()

			t.Setenv(tt.envKey, tt.envVal)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() returned unexpected error: %v", err)
			}
			got := tt.field(cfg)
			if got != tt.want {
				t.Errorf("%s: got %v (%T), want %v (%T)", tt.name, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	resetViper()
	path := filepath.Join(t.TempDir(), "disperse.yaml")
	content := `crates_io:
  username: jelmer
pypi:
  username: jelmer
repositories:
  owned:
    - https://github.com/jelmer/dulwich
    - https://github.com/breezy-team/breezy
discover:
  try: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	want := Config{
		CargoPath: "cargo",
		CratesIO:  CratesIOConfig{Username: "jelmer", URL: "https://crates.io"},
		PyPI:      PyPIConfig{Username: "jelmer", URL: "https://pypi.org"},
		Repositories: RepositoriesConfig{Owned: []string{
			"https://github.com/jelmer/dulwich",
			"https://github.com/breezy-team/breezy",
		}},
		Discover: DiscoverConfig{Try: true},
	}
	if diff := cmp.Diff(want, cfg, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
}
