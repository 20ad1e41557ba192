package project

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/papapumpkin/disperse/internal/updater"
	"github.com/papapumpkin/disperse/internal/vcs/vcstest"
)

func treeWith(files map[string]string) *vcstest.Repo {
	r := vcstest.New()
	for p, c := range files {
		r.SetFile(p, c)
	}
	return r
}

func TestLoad_FallbackChain(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		files map[string]string
		want  Config
	}{
		{
			name: "disperse.toml wins",
			files: map[string]string{
				TOMLFile: `name = "dulwich"
tag-name = "dulwich-$VERSION"
news-file = "NEWS"
update-manpages = ["man/dulwich.1"]

[[update-version]]
path = "dulwich/__init__.py"
match = "^__version__ = "
new-line = "__version__ = $TUPLED_VERSION"
`,
				YAMLFile: "name: ignored\n",
			},
			want: Config{
				Name:           "dulwich",
				TagName:        "dulwich-$VERSION",
				NewsFile:       "NEWS",
				UpdateManpages: []string{"man/dulwich.1"},
				UpdateVersion: []UpdateVersion{{
					Path:    "dulwich/__init__.py",
					Match:   "^__version__ = ",
					NewLine: "__version__ = $TUPLED_VERSION",
				}},
				Source: TOMLFile,
			},
		},
		{
			name: "yaml",
			files: map[string]string{
				YAMLFile:  "tag-name: release-$VERSION\nnews-file: NEWS\n",
				CargoFile: "[package]\nname = \"crab\"\nversion = \"0.1.0\"\n",
			},
			want: Config{
				Name:     "crab",
				TagName:  "release-$VERSION",
				NewsFile: "NEWS",
				Source:   YAMLFile,
				Manifest: CargoFile,
			},
		},
		{
			name: "pyproject tool table",
			files: map[string]string{
				PyProjectFile: "[project]\nname = \"snake\"\nversion = \"1.0\"\n\n[tool.disperse]\ntag-name = \"$VERSION\"\n",
			},
			want: Config{
				Name:     "snake",
				TagName:  "$VERSION",
				Source:   PyProjectFile,
				Manifest: PyProjectFile,
			},
		},
		{
			name: "inferred from Cargo.toml",
			files: map[string]string{
				PyProjectFile: "[project]\nname = \"snake\"\ndynamic = [\"version\"]\n",
				CargoFile:     "[package]\nname = \"crab\"\nversion = \"0.1.0\"\n",
			},
			want: Config{
				Name:     "crab",
				TagName:  DefaultTagName,
				Source:   CargoFile,
				Manifest: CargoFile,
			},
		},
		{
			name: "cargo workspace root has no manifest",
			files: map[string]string{
				TOMLFile:  "name = \"crabs\"\n",
				CargoFile: "[workspace]\nmembers = [\"crab-core\", \"crab-cli\"]\n",
			},
			want: Config{
				Name:    "crabs",
				TagName: DefaultTagName,
				Source:  TOMLFile,
			},
		},
		{
			name: "cargo workspace root beside pyproject",
			files: map[string]string{
				TOMLFile:      "name = \"crabs\"\n",
				CargoFile:     "[workspace]\nmembers = [\"crab-core\"]\n",
				PyProjectFile: "[project]\nname = \"crabs\"\nversion = \"0.3.0\"\n",
			},
			want: Config{
				Name:     "crabs",
				TagName:  DefaultTagName,
				Source:   TOMLFile,
				Manifest: PyProjectFile,
			},
		},
		{
			name: "default tag name",
			files: map[string]string{
				TOMLFile:  "news-file = \"NEWS\"\n",
				GoModFile: "module github.com/example/tool\n\ngo 1.22\n",
			},
			want: Config{
				Name:     "github.com/example/tool",
				TagName:  DefaultTagName,
				NewsFile: "NEWS",
				Source:   TOMLFile,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Load(treeWith(tt.files))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if diff := cmp.Diff(tt.want, *got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Load mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	if _, err := Load(treeWith(nil)); !errors.Is(err, ErrConfig) {
		t.Errorf("Load(empty) = %v, want ErrConfig", err)
	}
	if _, err := Load(treeWith(map[string]string{TOMLFile: "tag-name = \n"})); !errors.Is(err, ErrConfig) {
		t.Errorf("Load(broken toml) = %v, want ErrConfig", err)
	}
	if _, err := Load(treeWith(map[string]string{YAMLFile: "update-manpages: {\n"})); !errors.Is(err, ErrConfig) {
		t.Errorf("Load(broken yaml) = %v, want ErrConfig", err)
	}

	_, err := Load(treeWith(map[string]string{TOMLFile: "tag-name = \"release\"\n"}))
	var verr *ValidationError
	if !errors.Is(err, ErrConfig) || !errors.As(err, &verr) || verr.Field != "tag-name" {
		t.Errorf("Load(tag-name without $VERSION) = %v, want tag-name ErrConfig", err)
	}
}

func TestTargets(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Manifest:       CargoFile,
		UpdateVersion:  []UpdateVersion{{Path: "src/lib.rs", Match: "^const V", NewLine: "const V = \"$VERSION\";"}},
		UpdateManpages: []string{"disperse.1"},
	}
	got := cfg.Targets()
	if len(got) != 3 {
		t.Fatalf("Targets() returned %d targets, want 3", len(got))
	}
	if _, ok := got[0].Updater.(updater.Manifest); !ok || got[0].Path != CargoFile {
		t.Errorf("first target = %+v, want Cargo manifest", got[0])
	}
	if _, ok := got[1].Updater.(updater.Custom); !ok {
		t.Errorf("second target = %+v, want custom updater", got[1])
	}
	if _, ok := got[2].Updater.(updater.Manpage); !ok {
		t.Errorf("third target = %+v, want man page updater", got[2])
	}
}
