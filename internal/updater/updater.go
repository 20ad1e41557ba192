// Package updater rewrites version strings embedded in project files. Each
// format has a Validate that pre-flights a file without changing it and an
// Update that computes the new content as a pure transform.
package updater

import (
	"errors"
	"time"

	"github.com/papapumpkin/disperse/internal/version"
)

// Sentinel errors shared by all formats.
var (
	// ErrNoMatches indicates the file lacks the marker the format updates.
	ErrNoMatches = errors.New("no updateable version marker found")
	// ErrKeyNotFound indicates a structured document lacks the version key.
	ErrKeyNotFound = errors.New("version key not found")
)

// Updater is the contract every format implements.
type Updater interface {
	// Validate reports whether content can be updated later.
	Validate(content []byte) error
	// Update returns content with the version (and date, where the format
	// carries one) replaced. It never returns the input unchanged on failure.
	Update(content []byte, v version.Version, releaseDate time.Time) ([]byte, error)
}

// Edit is a computed change to one tracked file.
type Edit struct {
	Path string
	Old  []byte
	New  []byte
}

// Changed reports whether applying the edit alters the file.
func (e Edit) Changed() bool { return string(e.Old) != string(e.New) }

// Compute runs u over content and wraps the result as an Edit for path.
func Compute(u Updater, path string, content []byte, v version.Version, releaseDate time.Time) (Edit, error) {
	out, err := u.Update(content, v, releaseDate)
	if err != nil {
		return Edit{}, &FileError{Path: path, Err: err}
	}
	return Edit{Path: path, Old: content, New: out}, nil
}

// FileError ties an updater failure to the file it happened in.
type FileError struct {
	Path string
	Err  error
}

// Error prefixes the failure with the file path.
func (e *FileError) Error() string { return e.Path + ": " + e.Err.Error() }

// Unwrap returns the underlying failure.
func (e *FileError) Unwrap() error { return e.Err }
