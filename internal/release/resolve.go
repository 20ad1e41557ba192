// Package release classifies the release state of a project and carries out
// releases through the vcs and updater interfaces.
package release

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/papapumpkin/disperse/internal/news"
	"github.com/papapumpkin/disperse/internal/project"
	"github.com/papapumpkin/disperse/internal/updater"
	"github.com/papapumpkin/disperse/internal/vcs"
	"github.com/papapumpkin/disperse/internal/version"
)

var (
	// ErrNotInAncestry reports that the last release tag exists but is not
	// reachable along first parents from the branch tip. It is a warning.
	ErrNotInAncestry = errors.New("last release not found in ancestry")
	// ErrNotReleasable indicates a project whose status does not allow a
	// release.
	ErrNotReleasable = errors.New("nothing to release")
)

// Status classifies a project's release state.
type Status int

const (
	// StatusUnknown means no last version could be located.
	StatusUnknown Status = iota
	// StatusReleased means the last release is known and no next version
	// has been declared.
	StatusReleased
	// StatusUnreleased means a parseable next version is declared.
	StatusUnreleased
	// StatusOddPending means a next version is declared but does not parse.
	StatusOddPending
	// StatusNoPendingChanges means the last release tag is the branch tip.
	StatusNoPendingChanges
)

// String returns the status as the info report phrases it.
func (s Status) String() string {
	switch s {
	case StatusReleased:
		return "released"
	case StatusUnreleased:
		return "unreleased"
	case StatusOddPending:
		return "odd pending version"
	case StatusNoPendingChanges:
		return "no pending changes"
	default:
		return "unknown"
	}
}

// Sources of the last released version.
const (
	SourceNews     = "news"
	SourceManifest = "manifest"
	SourceTags     = "tags"
)

// Info is the resolved state of one project.
type Info struct {
	Name   string
	Status Status

	LastVersion version.Version
	// LastSource is where LastVersion came from; empty when Status is
	// StatusUnknown.
	LastSource string

	Tag         string
	TagFound    bool
	TagRevision string
	TagDate     time.Time

	// NotInAncestry is set when the tag exists but the tip does not descend
	// from it along first parents. RevisionsSince is then zero.
	NotInAncestry bool
	// RevisionsSince counts revisions after the tag, or all revisions when
	// the tag is missing.
	RevisionsSince int
	// OldestAge is the age in whole days of the oldest counted revision.
	OldestAge int

	// Pending is the declared next version when Status is StatusUnreleased.
	Pending version.Version
	// PendingRaw is the declaration as written, set for unreleased and odd
	// statuses.
	PendingRaw string

	// Estimate is a display-only guess at the previous release, derived by
	// decrementing LastVersion. It is never tagged. HasEstimate is false on
	// underflow.
	Estimate    version.Version
	HasEstimate bool
	// Suggested is the version a release would most plausibly use when none
	// is declared.
	Suggested version.Version
}

// Warning returns ErrNotInAncestry, wrapped with the tag name, if that
// condition was observed.
func (i *Info) Warning() error {
	if i.NotInAncestry {
		return fmt.Errorf("%w: %s", ErrNotInAncestry, i.Tag)
	}
	return nil
}

// FindLastVersion reads the last released version from the news file, then
// from the package manifest. found is false when neither declares one.
func FindLastVersion(tree vcs.Tree, cfg *project.Config) (v version.Version, source string, found bool, err error) {
	if cfg.NewsFile != "" && tree.HasFile(cfg.NewsFile) {
		data, err := tree.ReadFile(cfg.NewsFile)
		if err != nil {
			return version.Version{}, "", false, err
		}
		raw, err := news.FindLastReleased(data)
		switch {
		case err == nil:
			v, err := version.Parse(raw, version.Manifest)
			if err != nil {
				return version.Version{}, "", false, fmt.Errorf("%s: %w", cfg.NewsFile, err)
			}
			return v, SourceNews, true, nil
		case errors.Is(err, news.ErrEmpty):
		default:
			return version.Version{}, "", false, fmt.Errorf("%s: %w", cfg.NewsFile, err)
		}
	}

	var m updater.Manifest
	switch cfg.Manifest {
	case project.CargoFile:
		m = updater.CargoManifest()
	case project.PyProjectFile:
		m = updater.PyProjectManifest()
	default:
		return version.Version{}, "", false, nil
	}
	data, err := tree.ReadFile(cfg.Manifest)
	if err != nil {
		return version.Version{}, "", false, err
	}
	raw, err := m.Read(data)
	if err != nil {
		if errors.Is(err, updater.ErrKeyNotFound) {
			return version.Version{}, "", false, nil
		}
		return version.Version{}, "", false, fmt.Errorf("%s: %w", cfg.Manifest, err)
	}
	v, err = version.Parse(raw, version.Manifest)
	if err != nil {
		return version.Version{}, "", false, fmt.Errorf("%s: %w", cfg.Manifest, err)
	}
	return v, SourceManifest, true, nil
}

// FindLastVersionInTags returns the highest version among tags produced by
// template, along with that tag's name.
func FindLastVersionInTags(ctx context.Context, branch vcs.Branch, template string) (v version.Version, tag string, found bool, err error) {
	m, err := version.NewTagMatcher(template)
	if err != nil {
		return version.Version{}, "", false, err
	}
	tags, err := branch.Tags(ctx)
	if err != nil {
		return version.Version{}, "", false, err
	}
	for name := range tags {
		tv, ok := m.Match(name)
		if !ok {
			continue
		}
		if !found || version.Compare(tv, v) > 0 || (version.Compare(tv, v) == 0 && name < tag) {
			v, tag, found = tv, name, true
		}
	}
	return v, tag, found, nil
}

// Pending is a next-version declaration found in tracked files.
type Pending struct {
	Raw     string
	Version version.Version
	// Odd is set when Raw does not parse as a version.
	Odd bool
}

// FindPendingVersion inspects the news file for a declared next version.
// found is false when none is declared.
func FindPendingVersion(tree vcs.Tree, cfg *project.Config) (p Pending, found bool, err error) {
	if cfg.NewsFile == "" {
		return Pending{}, false, nil
	}
	data, err := tree.ReadFile(cfg.NewsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Pending{}, false, nil
		}
		return Pending{}, false, err
	}
	raw, err := news.FindPending(data)
	var odd *news.OddVersionError
	switch {
	case errors.As(err, &odd):
		return Pending{Raw: odd.Version, Odd: true}, true, nil
	case errors.Is(err, news.ErrNoUnreleasedChanges), errors.Is(err, news.ErrEmpty):
		return Pending{}, false, nil
	case err != nil:
		return Pending{}, false, fmt.Errorf("%s: %w", cfg.NewsFile, err)
	}
	v, err := version.Parse(raw, version.Manifest)
	if err != nil {
		return Pending{Raw: raw, Odd: true}, true, nil
	}
	return Pending{Raw: raw, Version: v}, true, nil
}

// Resolve classifies the release state of the project in tree and branch.
// now anchors the age of unreleased revisions. Tag absence is reported in
// the result, never as an error.
func Resolve(ctx context.Context, tree vcs.Tree, branch vcs.Branch, cfg *project.Config, now time.Time) (*Info, error) {
	info := &Info{Name: cfg.Name}

	pending, hasPending, err := FindPendingVersion(tree, cfg)
	if err != nil {
		return nil, err
	}
	if hasPending {
		info.PendingRaw = pending.Raw
		info.Pending = pending.Version
	}

	last, source, found, err := FindLastVersion(tree, cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		last, _, found, err = FindLastVersionInTags(ctx, branch, cfg.TagName)
		if err != nil {
			return nil, err
		}
		source = SourceTags
	}
	if !found {
		info.Status = StatusUnknown
		return info, nil
	}
	info.LastVersion = last
	info.LastSource = source

	if err := measure(ctx, branch, cfg, now, info); err != nil {
		return nil, err
	}

	switch {
	case info.TagFound && info.RevisionsSince == 0 && !info.NotInAncestry:
		info.Status = StatusNoPendingChanges
	case hasPending && pending.Odd:
		info.Status = StatusOddPending
	case hasPending:
		info.Status = StatusUnreleased
	default:
		info.Status = StatusReleased
		if prev, err := version.Previous(last); err == nil {
			info.Estimate, info.HasEstimate = prev, true
		}
		if next, err := version.Next(last); err == nil {
			info.Suggested = next
		}
	}
	return info, nil
}

// measure looks up the last release tag and walks the ancestry between it
// and the branch tip.
func measure(ctx context.Context, branch vcs.Branch, cfg *project.Config, now time.Time, info *Info) error {
	info.Tag = version.ExpandTag(cfg.TagName, info.LastVersion)
	rev, err := branch.LookupTag(ctx, info.Tag)
	switch {
	case err == nil:
		info.TagFound = true
		info.TagRevision = rev
	case errors.Is(err, vcs.ErrNoSuchTag):
	default:
		return err
	}

	tip, err := branch.LastRevision(ctx)
	if err != nil {
		return err
	}
	if info.TagFound {
		meta, err := branch.Revision(ctx, rev)
		if err != nil {
			return err
		}
		info.TagDate = meta.Timestamp
		if rev == tip {
			return nil
		}
	}

	a, err := branch.Ancestry(ctx, tip, info.TagRevision)
	if err != nil {
		return err
	}
	if info.TagFound && !a.Reached {
		info.NotInAncestry = true
		return nil
	}
	info.RevisionsSince = len(a.Revisions)
	if len(a.Revisions) > 0 {
		oldest, err := branch.Revision(ctx, a.Revisions[len(a.Revisions)-1])
		if err != nil {
			return err
		}
		info.OldestAge = int(now.Sub(oldest.Timestamp) / (24 * time.Hour))
	}
	return nil
}
