// Package arch_test checks structural rules over the internal packages:
// import layering, interface placement, documentation and package state.
package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
)

const internalImportPrefix = "github.com/papapumpkin/disperse/internal/"

// pkg is one parsed internal package. Test files and generated files are
// left out.
type pkg struct {
	name  string
	fset  *token.FileSet
	files map[string]*ast.File
}

// internalDir locates internal/ relative to this file.
func internalDir(t *testing.T) string {
	t.Helper()
	_, self, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot locate test source")
	}
	return filepath.Dir(filepath.Dir(self))
}

// loadPackages parses every top-level package under internal/ except this
// one. Nested packages such as vcs/vcstest are test support and not checked.
func loadPackages(t *testing.T) []pkg {
	t.Helper()
	root := internalDir(t)
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	var out []pkg
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "arch_test" {
			continue
		}
		p := pkg{name: e.Name(), fset: token.NewFileSet(), files: map[string]*ast.File{}}
		matches, err := filepath.Glob(filepath.Join(root, e.Name(), "*.go"))
		if err != nil {
			t.Fatal(err)
		}
		for _, path := range matches {
			if strings.HasSuffix(path, "_test.go") {
				continue
			}
			f, err := parser.ParseFile(p.fset, path, nil, parser.ParseComments|parser.SkipObjectResolution)
			if err != nil {
				t.Fatalf("parsing %s: %v", path, err)
			}
			if ast.IsGenerated(f) {
				continue
			}
			p.files[filepath.Join("internal", e.Name(), filepath.Base(path))] = f
		}
		if len(p.files) > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// sortedFiles returns the package files in path order so failures are
// reported deterministically.
func (p pkg) sortedFiles() []string {
	paths := make([]string, 0, len(p.files))
	for path := range p.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// imports returns the top-level internal packages p depends on.
func (p pkg) imports() []string {
	seen := map[string]bool{}
	for _, f := range p.files {
		for _, spec := range f.Imports {
			path := strings.Trim(spec.Path.Value, `"`)
			rel, ok := strings.CutPrefix(path, internalImportPrefix)
			if !ok {
				continue
			}
			top, _, _ := strings.Cut(rel, "/")
			seen[top] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// baseTypeName unwraps pointers and type parameters down to the named type.
func baseTypeName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.StarExpr:
		return baseTypeName(e.X)
	case *ast.IndexExpr:
		return baseTypeName(e.X)
	case *ast.IndexListExpr:
		return baseTypeName(e.X)
	}
	return ""
}
