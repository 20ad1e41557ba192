// Package vcs defines the version-control surface the release logic needs:
// reading and writing tracked files, tags, left-hand ancestry and revision
// metadata. The core borrows these handles; it never owns the repository.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSuchTag indicates a tag lookup found nothing. It is a normal
	// outcome, not a failure.
	ErrNoSuchTag = errors.New("no such tag")
	// ErrTagExists indicates an attempt to create a tag that already exists.
	ErrTagExists = errors.New("tag already exists")
	// ErrNoWorkingTree indicates an operation needs a working tree the handle
	// does not have.
	ErrNoWorkingTree = errors.New("no working tree")
	// ErrNothingToCommit indicates a commit was requested without paths.
	ErrNothingToCommit = errors.New("nothing to commit")
)

// Error wraps a backend failure with the operation that caused it.
type Error struct {
	Op  string
	Err error
}

// Error names the failed operation.
func (e *Error) Error() string { return fmt.Sprintf("vcs %s: %v", e.Op, e.Err) }

// Unwrap returns the backend error.
func (e *Error) Unwrap() error { return e.Err }

// Revision is the metadata of one revision. Timestamp carries the author's
// timezone offset as its location.
type Revision struct {
	ID        string
	Timestamp time.Time
}

// Ancestry is the result of a left-hand ancestry walk. Revisions runs from
// the starting revision backwards and excludes the stop revision. Reached is
// false when the walk ran into the root without meeting the stop revision.
type Ancestry struct {
	Revisions []string
	Reached   bool
}

// Unlock releases a lock taken with LockRead or LockWrite.
type Unlock func() error

// Tree is a working tree.
type Tree interface {
	// ReadFile returns the content of path. Missing files yield an error
	// matching fs.ErrNotExist.
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	HasFile(path string) bool
	// Abspath resolves a tree-relative path on disk.
	Abspath(path string) string
	LockRead() (Unlock, error)
	LockWrite() (Unlock, error)
	// Commit records only paths, leaving anything else staged alone, and
	// returns the new revision id. It fails with ErrNothingToCommit when
	// paths is empty.
	Commit(ctx context.Context, message string, paths []string) (string, error)
}

// Branch is the line of history releases are cut from.
type Branch interface {
	LastRevision(ctx context.Context) (string, error)
	// Tags maps tag names to the revisions they point at.
	Tags(ctx context.Context) (map[string]string, error)
	// LookupTag resolves name or fails with ErrNoSuchTag.
	LookupTag(ctx context.Context, name string) (string, error)
	CreateTag(ctx context.Context, name, revision string) error
	// Ancestry walks first parents from from until stopAt or the root.
	// An empty stopAt walks to the root.
	Ancestry(ctx context.Context, from, stopAt string) (Ancestry, error)
	Revision(ctx context.Context, id string) (Revision, error)
	// Push publishes the branch head and the named tags.
	Push(ctx context.Context, tags []string) error
}

// Handle is an opened project. Tree is nil for locations that only expose
// a branch.
type Handle struct {
	Location string
	Tree     Tree
	Branch   Branch
	close    func() error
}

// NewHandle builds a handle; closeFn, if non-nil, runs on Close.
func NewHandle(location string, tree Tree, branch Branch, closeFn func() error) *Handle {
	return &Handle{Location: location, Tree: tree, Branch: branch, close: closeFn}
}

// Close releases any resources held by the handle.
func (h *Handle) Close() error {
	if h == nil || h.close == nil {
		return nil
	}
	return h.close()
}

// Opener opens project locations: local paths or remote URLs.
type Opener interface {
	Open(ctx context.Context, location string) (*Handle, error)
}
