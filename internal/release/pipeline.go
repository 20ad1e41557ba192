package release

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papapumpkin/disperse/internal/news"
	"github.com/papapumpkin/disperse/internal/project"
	"github.com/papapumpkin/disperse/internal/updater"
	"github.com/papapumpkin/disperse/internal/vcs"
	"github.com/papapumpkin/disperse/internal/version"
)

// Options controls a release.
type Options struct {
	// NewVersion overrides the declared pending version when non-empty.
	NewVersion string
	// DryRun stops after planning; nothing is written.
	DryRun bool
	// Now is the release date and the anchor for ancestry ages.
	Now time.Time
	// Publisher uploads the release; nil skips publishing.
	Publisher Publisher
	Logger    *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Plan is a fully computed release. Applying it performs no further
// decisions.
type Plan struct {
	Name        string
	OldVersion  version.Version
	NewVersion  version.Version
	Tag         string
	Edits       []updater.Edit
	NewsFile    string
	Changes     string
	NextVersion version.Version

	// Set by Apply.
	Revision  string
	Published bool
}

// Files returns the paths a plan rewrites.
func (p *Plan) Files() []string {
	var out []string
	for _, e := range p.Edits {
		if e.Changed() {
			out = append(out, e.Path)
		}
	}
	return out
}

// Prepare computes a release plan from resolved info. Every file edit is
// computed before anything is written; any failure leaves the tree
// untouched.
func Prepare(ctx context.Context, tree vcs.Tree, branch vcs.Branch, cfg *project.Config, info *Info, opts Options) (*Plan, error) {
	if tree == nil {
		return nil, vcs.ErrNoWorkingTree
	}
	if err := version.ValidateTagTemplate(cfg.TagName); err != nil {
		return nil, fmt.Errorf("%w: %w", project.ErrConfig, err)
	}

	var newVersion version.Version
	switch {
	case info.Status == StatusNoPendingChanges:
		return nil, fmt.Errorf("%w: %s", ErrNotReleasable, info.Status)
	case opts.NewVersion != "":
		v, err := version.Parse(opts.NewVersion, version.Manifest)
		if err != nil {
			return nil, err
		}
		newVersion = v
	case info.Status == StatusUnreleased:
		newVersion = info.Pending
	case info.Status == StatusOddPending:
		return nil, fmt.Errorf("%w: %s %q", ErrNotReleasable, info.Status, info.PendingRaw)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotReleasable, info.Status)
	}

	plan := &Plan{
		Name:       cfg.Name,
		OldVersion: info.LastVersion,
		NewVersion: newVersion,
		Tag:        version.ExpandTag(cfg.TagName, newVersion),
		NewsFile:   cfg.NewsFile,
	}
	if _, err := branch.LookupTag(ctx, plan.Tag); err == nil {
		return nil, fmt.Errorf("%w: %s", vcs.ErrTagExists, plan.Tag)
	} else if !errors.Is(err, vcs.ErrNoSuchTag) {
		return nil, err
	}

	for _, t := range cfg.Targets() {
		content, err := tree.ReadFile(t.Path)
		if err != nil {
			return nil, err
		}
		edit, err := updater.Compute(t.Updater, t.Path, content, newVersion, opts.Now)
		if err != nil {
			return nil, err
		}
		plan.Edits = append(plan.Edits, edit)
	}

	if cfg.NewsFile != "" {
		content, err := tree.ReadFile(cfg.NewsFile)
		if err != nil {
			return nil, err
		}
		updated, changes, err := news.MarkReleased(content, newVersion.String(), opts.Now)
		if err != nil {
			return nil, &updater.FileError{Path: cfg.NewsFile, Err: err}
		}
		plan.Edits = append(plan.Edits, updater.Edit{Path: cfg.NewsFile, Old: content, New: updated})
		plan.Changes = changes
	}

	next, err := version.Next(newVersion)
	if err != nil {
		return nil, err
	}
	plan.NextVersion = next
	return plan, nil
}

// Apply writes a plan: edits, release commit, tag, publish, the next pending
// news entry, then a push of the branch and tag. The caller holds the write
// lock.
func Apply(ctx context.Context, tree vcs.Tree, branch vcs.Branch, cfg *project.Config, plan *Plan, opts Options) error {
	log := opts.logger().With(zap.String("project", plan.Name), zap.String("version", plan.NewVersion.String()))

	files := plan.Files()
	for _, e := range plan.Edits {
		if !e.Changed() {
			continue
		}
		if err := tree.WriteFile(e.Path, e.New); err != nil {
			return err
		}
	}
	var rev string
	var err error
	if len(files) == 0 {
		// Nothing to rewrite: the tip already describes the release.
		rev, err = branch.LastRevision(ctx)
		if err != nil {
			return err
		}
		log.Info("no files changed, tagging tip", zap.String("revision", rev))
	} else {
		rev, err = tree.Commit(ctx, fmt.Sprintf("Release %s.", plan.NewVersion), files)
		if err != nil {
			return err
		}
		log.Info("committed release", zap.String("revision", rev), zap.Strings("files", files))
	}
	plan.Revision = rev

	if err := branch.CreateTag(ctx, plan.Tag, rev); err != nil {
		return err
	}
	log.Info("tagged release", zap.String("tag", plan.Tag))

	if opts.Publisher != nil && !cfg.SkipPublish {
		if err := opts.Publisher.Publish(ctx, tree, cfg); err != nil {
			return fmt.Errorf("publishing %s: %w", plan.Tag, err)
		}
		plan.Published = true
		log.Info("published release")
	}

	if plan.NewsFile != "" {
		content, err := tree.ReadFile(plan.NewsFile)
		if err != nil {
			return err
		}
		updated, err := news.AddPending(content, plan.NextVersion.String())
		if err != nil {
			return &updater.FileError{Path: plan.NewsFile, Err: err}
		}
		if err := tree.WriteFile(plan.NewsFile, updated); err != nil {
			return err
		}
		if _, err := tree.Commit(ctx, fmt.Sprintf("Start on %s.", plan.NextVersion), []string{plan.NewsFile}); err != nil {
			return err
		}
	}

	if err := branch.Push(ctx, []string{plan.Tag}); err != nil {
		return err
	}
	log.Info("pushed release")
	return nil
}

// Release resolves the project, plans the release and, unless DryRun is
// set, applies it.
func Release(ctx context.Context, tree vcs.Tree, branch vcs.Branch, cfg *project.Config, opts Options) (*Plan, error) {
	info, err := Resolve(ctx, tree, branch, cfg, opts.Now)
	if err != nil {
		return nil, err
	}
	plan, err := Prepare(ctx, tree, branch, cfg, info, opts)
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		opts.logger().Info("dry run: not applying release",
			zap.String("project", plan.Name),
			zap.String("tag", plan.Tag),
			zap.Strings("files", plan.Files()))
		return plan, nil
	}
	if err := Apply(ctx, tree, branch, cfg, plan, opts); err != nil {
		return plan, err
	}
	return plan, nil
}
