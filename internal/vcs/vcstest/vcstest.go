// Package vcstest provides an in-memory vcs backend for tests.
package vcstest

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/papapumpkin/disperse/internal/vcs"
)

type revision struct {
	parent string
	ts     time.Time
}

// CommitRecord is one call to Commit.
type CommitRecord struct {
	Revision string
	Message  string
	Paths    []string
}

// Repo is an in-memory working tree and branch. The zero value is not
// usable; call New.
type Repo struct {
	// Now stamps new commits; defaults to time.Now.
	Now func() time.Time
	// Fail makes the named method (e.g. "Tags", "Ancestry") return the error.
	Fail map[string]error

	mu      sync.Mutex
	lock    sync.RWMutex
	files   map[string][]byte
	revs    map[string]revision
	head    string
	tags    map[string]string
	next    int
	commits []CommitRecord
	pushed  [][]string
	held    int
}

// New returns an empty repository with no revisions.
func New() *Repo {
	return &Repo{
		Now:   time.Now,
		Fail:  make(map[string]error),
		files: make(map[string][]byte),
		revs:  make(map[string]revision),
		tags:  make(map[string]string),
	}
}

func (r *Repo) fail(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Fail[op]; err != nil {
		return &vcs.Error{Op: op, Err: err}
	}
	return nil
}

// SetFile stores content without committing.
func (r *Repo) SetFile(p, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path.Clean(p)] = []byte(content)
}

// File returns the current content of p.
func (r *Repo) File(p string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.files[path.Clean(p)])
}

func (r *Repo) addRevision(parent string, ts time.Time) string {
	r.next++
	id := fmt.Sprintf("rev-%d", r.next)
	r.revs[id] = revision{parent: parent, ts: ts}
	return id
}

// AddRevision appends a revision at ts on top of the head and returns its id.
func (r *Repo) AddRevision(ts time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = r.addRevision(r.head, ts)
	return r.head
}

// AddSideRevision creates a revision on top of parent without moving the
// head, for building histories where a tag is off the first-parent line.
func (r *Repo) AddSideRevision(parent string, ts time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addRevision(parent, ts)
}

// SetTag points name at rev, replacing any existing tag.
func (r *Repo) SetTag(name, rev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[name] = rev
}

// Head returns the tip revision id.
func (r *Repo) Head() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.head
}

// Commits returns every recorded commit in order.
func (r *Repo) Commits() []CommitRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CommitRecord(nil), r.commits...)
}

// Pushed returns the tag lists passed to Push, one entry per call.
func (r *Repo) Pushed() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.pushed...)
}

// LocksHeld reports how many locks are currently taken.
func (r *Repo) LocksHeld() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held
}

// ReadFile implements vcs.Tree.
func (r *Repo) ReadFile(p string) ([]byte, error) {
	if err := r.fail("ReadFile"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.files[path.Clean(p)]
	if !ok {
		return nil, &vcs.Error{Op: "read " + p, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

// WriteFile implements vcs.Tree.
func (r *Repo) WriteFile(p string, data []byte) error {
	if err := r.fail("WriteFile"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path.Clean(p)] = append([]byte(nil), data...)
	return nil
}

// HasFile implements vcs.Tree.
func (r *Repo) HasFile(p string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.files[path.Clean(p)]
	return ok
}

// Abspath implements vcs.Tree.
func (r *Repo) Abspath(p string) string { return path.Join("/mem", p) }

func (r *Repo) unlocker(release func()) vcs.Unlock {
	var once sync.Once
	return func() error {
		once.Do(func() {
			release()
			r.mu.Lock()
			r.held--
			r.mu.Unlock()
		})
		return nil
	}
}

// LockRead implements vcs.Tree.
func (r *Repo) LockRead() (vcs.Unlock, error) {
	if err := r.fail("LockRead"); err != nil {
		return nil, err
	}
	r.lock.RLock()
	r.mu.Lock()
	r.held++
	r.mu.Unlock()
	return r.unlocker(r.lock.RUnlock), nil
}

// LockWrite implements vcs.Tree.
func (r *Repo) LockWrite() (vcs.Unlock, error) {
	if err := r.fail("LockWrite"); err != nil {
		return nil, err
	}
	r.lock.Lock()
	r.mu.Lock()
	r.held++
	r.mu.Unlock()
	return r.unlocker(r.lock.Unlock), nil
}

// Commit implements vcs.Tree.
func (r *Repo) Commit(_ context.Context, message string, paths []string) (string, error) {
	if err := r.fail("Commit"); err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", &vcs.Error{Op: "commit", Err: vcs.ErrNothingToCommit}
	}
	now := r.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = r.addRevision(r.head, now)
	r.commits = append(r.commits, CommitRecord{Revision: r.head, Message: message, Paths: append([]string(nil), paths...)})
	return r.head, nil
}

// LastRevision implements vcs.Branch.
func (r *Repo) LastRevision(context.Context) (string, error) {
	if err := r.fail("LastRevision"); err != nil {
		return "", err
	}
	return r.Head(), nil
}

// Tags implements vcs.Branch.
func (r *Repo) Tags(context.Context) (map[string]string, error) {
	if err := r.fail("Tags"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.tags))
	for k, v := range r.tags {
		out[k] = v
	}
	return out, nil
}

// LookupTag implements vcs.Branch.
func (r *Repo) LookupTag(_ context.Context, name string) (string, error) {
	if err := r.fail("LookupTag"); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rev, ok := r.tags[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", vcs.ErrNoSuchTag, name)
	}
	return rev, nil
}

// CreateTag implements vcs.Branch.
func (r *Repo) CreateTag(_ context.Context, name, rev string) error {
	if err := r.fail("CreateTag"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tags[name]; ok {
		return fmt.Errorf("%w: %s", vcs.ErrTagExists, name)
	}
	r.tags[name] = rev
	return nil
}

// Ancestry implements vcs.Branch.
func (r *Repo) Ancestry(_ context.Context, from, stopAt string) (vcs.Ancestry, error) {
	if err := r.fail("Ancestry"); err != nil {
		return vcs.Ancestry{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var a vcs.Ancestry
	for cur := from; cur != ""; cur = r.revs[cur].parent {
		if cur == stopAt {
			a.Reached = true
			return a, nil
		}
		if _, ok := r.revs[cur]; !ok {
			return vcs.Ancestry{}, &vcs.Error{Op: "ancestry", Err: fmt.Errorf("unknown revision %s", cur)}
		}
		a.Revisions = append(a.Revisions, cur)
	}
	a.Reached = stopAt == ""
	return a, nil
}

// Revision implements vcs.Branch.
func (r *Repo) Revision(_ context.Context, id string) (vcs.Revision, error) {
	if err := r.fail("Revision"); err != nil {
		return vcs.Revision{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rev, ok := r.revs[id]
	if !ok {
		return vcs.Revision{}, &vcs.Error{Op: "revision", Err: fmt.Errorf("unknown revision %s", id)}
	}
	return vcs.Revision{ID: id, Timestamp: rev.ts}, nil
}

// Push implements vcs.Branch.
func (r *Repo) Push(_ context.Context, tags []string) error {
	if err := r.fail("Push"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	r.pushed = append(r.pushed, sorted)
	return nil
}

// Opener maps locations to repos. Unknown locations and entries in Err fail.
type Opener struct {
	Repos map[string]*Repo
	Err   map[string]error
	// Closed counts handle closes per location.
	Closed map[string]int
	mu     sync.Mutex
}

// Open implements vcs.Opener.
func (o *Opener) Open(_ context.Context, location string) (*vcs.Handle, error) {
	if err := o.Err[location]; err != nil {
		return nil, &vcs.Error{Op: "open " + location, Err: err}
	}
	r, ok := o.Repos[location]
	if !ok {
		return nil, &vcs.Error{Op: "open " + location, Err: fs.ErrNotExist}
	}
	return vcs.NewHandle(location, r, r, func() error {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.Closed == nil {
			o.Closed = make(map[string]int)
		}
		o.Closed[location]++
		return nil
	}), nil
}

var (
	_ vcs.Tree   = (*Repo)(nil)
	_ vcs.Branch = (*Repo)(nil)
	_ vcs.Opener = (*Opener)(nil)
)
