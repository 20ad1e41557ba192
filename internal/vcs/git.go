package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// lockName is the lock file created inside the git directory.
const lockName = "disperse.lock"

// GitOpener opens local git working trees and clones remote URLs into a
// temporary directory that is removed when the handle is closed.
type GitOpener struct {
	Logger *zap.Logger
	// TempDir is where remote locations are cloned; empty means os.TempDir.
	TempDir string
}

// Open implements Opener.
func (o GitOpener) Open(ctx context.Context, location string) (*Handle, error) {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := exec.LookPath("git"); err != nil {
		return nil, &Error{Op: "open", Err: errors.New("git is not available on the system")}
	}

	if fi, err := os.Stat(location); err == nil && fi.IsDir() {
		repo, err := openGit(ctx, location, log)
		if err != nil {
			return nil, err
		}
		return NewHandle(location, repo, repo, nil), nil
	}

	dir, err := os.MkdirTemp(o.TempDir, "disperse-")
	if err != nil {
		return nil, &Error{Op: "clone", Err: err}
	}
	log.Debug("cloning", zap.String("url", location), zap.String("dir", dir))
	if _, err := runGit(ctx, "", "clone", "--quiet", location, dir); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	repo, err := openGit(ctx, dir, log)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return NewHandle(location, repo, repo, func() error { return os.RemoveAll(dir) }), nil
}

// Git is a Tree and Branch backed by the git CLI.
type Git struct {
	dir    string
	gitDir string
	log    *zap.Logger
}

func openGit(ctx context.Context, dir string, log *zap.Logger) (*Git, error) {
	top, err := runGit(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, err
	}
	gitDir, err := runGit(ctx, dir, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return nil, err
	}
	return &Git{
		dir:    strings.TrimSpace(top),
		gitDir: strings.TrimSpace(gitDir),
		log:    log,
	}, nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	full := args
	if dir != "" {
		full = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &Error{Op: "git " + args[0], Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))}
	}
	return stdout.String(), nil
}

func (g *Git) git(ctx context.Context, args ...string) (string, error) {
	g.log.Debug("git", zap.String("dir", g.dir), zap.Strings("args", args))
	return runGit(ctx, g.dir, args...)
}

// Abspath implements Tree.
func (g *Git) Abspath(path string) string {
	return filepath.Join(g.dir, filepath.FromSlash(path))
}

// ReadFile implements Tree.
func (g *Git) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(g.Abspath(path))
	if err != nil {
		return nil, &Error{Op: "read " + path, Err: err}
	}
	return data, nil
}

// WriteFile implements Tree. Existing files keep their permissions.
func (g *Git) WriteFile(path string, data []byte) error {
	abs := g.Abspath(path)
	mode := fs.FileMode(0o644)
	if fi, err := os.Stat(abs); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return &Error{Op: "write " + path, Err: err}
	}
	if err := os.WriteFile(abs, data, mode); err != nil {
		return &Error{Op: "write " + path, Err: err}
	}
	return nil
}

// HasFile implements Tree.
func (g *Git) HasFile(path string) bool {
	_, err := os.Stat(g.Abspath(path))
	return err == nil
}

// LockRead implements Tree with a shared lock on a file in the git directory.
func (g *Git) LockRead() (Unlock, error) {
	fl := flock.New(filepath.Join(g.gitDir, lockName))
	if err := fl.RLock(); err != nil {
		return nil, &Error{Op: "lock read", Err: err}
	}
	return fl.Unlock, nil
}

// LockWrite implements Tree with an exclusive lock.
func (g *Git) LockWrite() (Unlock, error) {
	fl := flock.New(filepath.Join(g.gitDir, lockName))
	if err := fl.Lock(); err != nil {
		return nil, &Error{Op: "lock write", Err: err}
	}
	return fl.Unlock, nil
}

// Commit implements Tree.
func (g *Git) Commit(ctx context.Context, message string, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", &Error{Op: "commit", Err: ErrNothingToCommit}
	}
	if _, err := g.git(ctx, append([]string{"add", "--"}, paths...)...); err != nil {
		return "", err
	}
	if _, err := g.git(ctx, append([]string{"commit", "--quiet", "-m", message, "--"}, paths...)...); err != nil {
		return "", err
	}
	return g.LastRevision(ctx)
}

// LastRevision implements Branch.
func (g *Git) LastRevision(ctx context.Context) (string, error) {
	out, err := g.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Tags implements Branch. Annotated tags resolve to the commit they tag.
func (g *Git) Tags(ctx context.Context) (map[string]string, error) {
	out, err := g.git(ctx, "for-each-ref", "--format=%(refname:strip=2) %(objectname) %(*objectname)", "refs/tags")
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		switch len(fields) {
		case 2:
			tags[fields[0]] = fields[1]
		case 3:
			tags[fields[0]] = fields[2]
		}
	}
	return tags, nil
}

// LookupTag implements Branch.
func (g *Git) LookupTag(ctx context.Context, name string) (string, error) {
	tags, err := g.Tags(ctx)
	if err != nil {
		return "", err
	}
	rev, ok := tags[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSuchTag, name)
	}
	return rev, nil
}

// CreateTag implements Branch with an annotated tag.
func (g *Git) CreateTag(ctx context.Context, name, revision string) error {
	if _, err := g.LookupTag(ctx, name); err == nil {
		return fmt.Errorf("%w: %s", ErrTagExists, name)
	}
	_, err := g.git(ctx, "tag", "-a", "-m", "Release "+name, name, revision)
	return err
}

// Ancestry implements Branch using first-parent rev-list.
func (g *Git) Ancestry(ctx context.Context, from, stopAt string) (Ancestry, error) {
	out, err := g.git(ctx, "rev-list", "--first-parent", from)
	if err != nil {
		return Ancestry{}, err
	}
	var a Ancestry
	for _, rev := range strings.Fields(out) {
		if rev == stopAt {
			a.Reached = true
			return a, nil
		}
		a.Revisions = append(a.Revisions, rev)
	}
	a.Reached = stopAt == ""
	return a, nil
}

// Revision implements Branch.
func (g *Git) Revision(ctx context.Context, id string) (Revision, error) {
	out, err := g.git(ctx, "show", "-s", "--format=%H %cI", id)
	if err != nil {
		return Revision{}, err
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return Revision{}, &Error{Op: "revision " + id, Err: fmt.Errorf("unexpected output %q", out)}
	}
	ts, err := time.Parse(time.RFC3339, fields[1])
	if err != nil {
		return Revision{}, &Error{Op: "revision " + id, Err: err}
	}
	return Revision{ID: fields[0], Timestamp: ts}, nil
}

// Push implements Branch.
func (g *Git) Push(ctx context.Context, tags []string) error {
	args := []string{"push", "--quiet", "origin", "HEAD"}
	for _, t := range tags {
		args = append(args, "refs/tags/"+t)
	}
	_, err := g.git(ctx, args...)
	return err
}

var (
	_ Tree   = (*Git)(nil)
	_ Branch = (*Git)(nil)
	_ Opener = GitOpener{}
)
