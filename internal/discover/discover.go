// Package discover enumerates the repositories a maintainer releases from:
// those owned on package registries plus a configured static list.
package discover

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrRegistry matches every *RegistryError.
var ErrRegistry = errors.New("registry error")

// RegistryError wraps a failure talking to a registry.
type RegistryError struct {
	Registry string
	Err      error
}

// Error names the failing registry.
func (e *RegistryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Registry, e.Err)
}

// Unwrap returns the underlying failure.
func (e *RegistryError) Unwrap() error { return e.Err }

// Is reports ErrRegistry as a match.
func (e *RegistryError) Is(target error) bool { return target == ErrRegistry }

// Registry lists repository locations owned by a configured account.
type Registry interface {
	Name() string
	OwnedRepositories(ctx context.Context) ([]string, error)
}

// Static is a fixed list of repository locations from configuration.
type Static []string

// Name implements Registry.
func (Static) Name() string { return "config" }

// OwnedRepositories implements Registry.
func (s Static) OwnedRepositories(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// maxConcurrent bounds simultaneous registry queries.
const maxConcurrent = 4

// Discover queries every registry concurrently and merges the results in
// registry order, dropping duplicates. A failing registry does not stop the
// others: its error is joined into the returned error alongside whatever
// locations the rest produced.
func Discover(ctx context.Context, registries []Registry) ([]string, error) {
	results := make([][]string, len(registries))
	errs := make([]error, len(registries))

	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, r := range registries {
		g.Go(func() error {
			locs, err := r.OwnedRepositories(ctx)
			if err != nil {
				var rerr *RegistryError
				if !errors.As(err, &rerr) {
					err = &RegistryError{Registry: r.Name(), Err: err}
				}
				errs[i] = err
				return nil
			}
			results[i] = locs
			return nil
		})
	}
	_ = g.Wait()

	var out []string
	seen := make(map[string]bool)
	for _, locs := range results {
		for _, loc := range locs {
			key := normalize(loc)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, loc)
		}
	}
	return out, errors.Join(errs...)
}

// normalize maps equivalent spellings of a repository URL to one key.
func normalize(loc string) string {
	loc = strings.TrimSpace(loc)
	loc = strings.TrimSuffix(loc, "/")
	return strings.TrimSuffix(loc, ".git")
}
