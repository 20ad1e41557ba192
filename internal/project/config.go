// Package project loads per-project release configuration and checks it
// before any release is attempted.
package project

import (
	"errors"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"

	"github.com/papapumpkin/disperse/internal/updater"
	"github.com/papapumpkin/disperse/internal/vcs"
	"github.com/papapumpkin/disperse/internal/version"
)

// Files consulted while loading, in fallback order.
const (
	TOMLFile      = "disperse.toml"
	YAMLFile      = "disperse.yaml"
	PyProjectFile = "pyproject.toml"
	CargoFile     = "Cargo.toml"
	GoModFile     = "go.mod"
)

// DefaultTagName is used when a configuration does not name a tag template.
const DefaultTagName = "v$VERSION"

// ErrConfig indicates missing or invalid project configuration.
var ErrConfig = errors.New("project configuration error")

// UpdateVersion is a custom line rewrite in a tracked file.
type UpdateVersion struct {
	Path    string `toml:"path" yaml:"path"`
	Match   string `toml:"match" yaml:"match"`
	NewLine string `toml:"new-line" yaml:"new-line"`
}

// Config is the release configuration of one project. It is immutable once
// loaded.
type Config struct {
	Name           string          `toml:"name" yaml:"name"`
	TagName        string          `toml:"tag-name" yaml:"tag-name"`
	NewsFile       string          `toml:"news-file" yaml:"news-file"`
	UpdateVersion  []UpdateVersion `toml:"update-version" yaml:"update-version"`
	UpdateManpages []string        `toml:"update-manpages" yaml:"update-manpages"`
	SkipPublish    bool            `toml:"skip-publish" yaml:"skip-publish"`

	// Source is the file the configuration was read from.
	Source string `toml:"-" yaml:"-"`
	// Manifest is the package manifest carrying the version, if any.
	Manifest string `toml:"-" yaml:"-"`
}

// Load reads the configuration of the project in tree. The first of
// disperse.toml, disperse.yaml and the [tool.disperse] table of
// pyproject.toml wins; a Cargo.toml alone yields an inferred configuration.
// Anything else fails with ErrConfig.
func Load(tree vcs.Tree) (*Config, error) {
	cfg, err := load(tree)
	if err != nil {
		return nil, err
	}
	if cfg.TagName == "" {
		cfg.TagName = DefaultTagName
	}
	if err := version.ValidateTagTemplate(cfg.TagName); err != nil {
		return nil, &ValidationError{Field: "tag-name", Err: fmt.Errorf("%w: %w", ErrConfig, err)}
	}
	// A Cargo workspace root has no package.version; fall through to
	// pyproject.toml, or leave the manifest unset.
	switch {
	case hasVersion(tree, CargoFile, updater.CargoManifest()):
		cfg.Manifest = CargoFile
	case hasVersion(tree, PyProjectFile, updater.PyProjectManifest()):
		cfg.Manifest = PyProjectFile
	}
	if cfg.Name == "" {
		cfg.Name = InferName(tree)
	}
	return cfg, nil
}

func hasVersion(tree vcs.Tree, path string, m updater.Manifest) bool {
	data, err := tree.ReadFile(path)
	if err != nil {
		return false
	}
	_, err = m.Read(data)
	return err == nil
}

func load(tree vcs.Tree) (*Config, error) {
	if tree.HasFile(TOMLFile) {
		data, err := tree.ReadFile(TOMLFile)
		if err != nil {
			return nil, err
		}
		var cfg Config
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConfig, TOMLFile, err)
		}
		cfg.Source = TOMLFile
		return &cfg, nil
	}

	if tree.HasFile(YAMLFile) {
		data, err := tree.ReadFile(YAMLFile)
		if err != nil {
			return nil, err
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConfig, YAMLFile, err)
		}
		cfg.Source = YAMLFile
		return &cfg, nil
	}

	if tree.HasFile(PyProjectFile) {
		data, err := tree.ReadFile(PyProjectFile)
		if err != nil {
			return nil, err
		}
		var doc struct {
			Tool struct {
				Disperse *Config `toml:"disperse"`
			} `toml:"tool"`
		}
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConfig, PyProjectFile, err)
		}
		if doc.Tool.Disperse != nil {
			doc.Tool.Disperse.Source = PyProjectFile
			return doc.Tool.Disperse, nil
		}
	}

	if tree.HasFile(CargoFile) {
		return &Config{TagName: DefaultTagName, Source: CargoFile}, nil
	}

	return nil, fmt.Errorf("%w: no %s, %s or %s found", ErrConfig, TOMLFile, YAMLFile, CargoFile)
}

// InferName derives a project name from Cargo.toml, pyproject.toml or go.mod,
// in that order. It returns "" when none of them names the project.
func InferName(tree vcs.Tree) string {
	if data, err := tree.ReadFile(CargoFile); err == nil {
		var doc struct {
			Package struct {
				Name string `toml:"name"`
			} `toml:"package"`
		}
		if toml.Unmarshal(data, &doc) == nil && doc.Package.Name != "" {
			return doc.Package.Name
		}
	}
	if data, err := tree.ReadFile(PyProjectFile); err == nil {
		var doc struct {
			Project struct {
				Name string `toml:"name"`
			} `toml:"project"`
		}
		if toml.Unmarshal(data, &doc) == nil && doc.Project.Name != "" {
			return doc.Project.Name
		}
	}
	if data, err := tree.ReadFile(GoModFile); err == nil {
		if p := modfile.ModulePath(data); p != "" {
			return p
		}
	}
	return ""
}

// Target pairs a tracked file with the updater that rewrites its version.
type Target struct {
	Field   string
	Path    string
	Updater updater.Updater
}

// Targets lists every file a release rewrites, manifest first.
func (c *Config) Targets() []Target {
	var out []Target
	switch c.Manifest {
	case CargoFile:
		out = append(out, Target{Field: "manifest", Path: CargoFile, Updater: updater.CargoManifest()})
	case PyProjectFile:
		out = append(out, Target{Field: "manifest", Path: PyProjectFile, Updater: updater.PyProjectManifest()})
	}
	for _, uv := range c.UpdateVersion {
		out = append(out, Target{
			Field:   "update-version",
			Path:    uv.Path,
			Updater: updater.Custom{Match: uv.Match, NewLine: uv.NewLine},
		})
	}
	for _, p := range c.UpdateManpages {
		out = append(out, Target{Field: "update-manpages", Path: p, Updater: updater.Manpage{}})
	}
	return out
}
