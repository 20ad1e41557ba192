// Package batch drives info, validate and release over a list of project
// locations. Projects are processed one at a time; a failure in one never
// stops the next.
package batch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/papapumpkin/disperse/internal/project"
	"github.com/papapumpkin/disperse/internal/release"
	"github.com/papapumpkin/disperse/internal/telemetry"
	"github.com/papapumpkin/disperse/internal/vcs"
)

// Mode selects what Run does to each project.
type Mode int

const (
	// ModeInfo resolves and reports release state.
	ModeInfo Mode = iota
	// ModeValidate checks configuration without modifying anything.
	ModeValidate
	// ModeRelease performs a release where one is due.
	ModeRelease
)

// String returns the mode name used in reports and telemetry.
func (m Mode) String() string {
	switch m {
	case ModeValidate:
		return "validate"
	case ModeRelease:
		return "release"
	default:
		return "info"
	}
}

// Options is the explicit configuration of a batch run.
type Options struct {
	Mode    Mode
	Opener  vcs.Opener
	Release release.Options
	// Now is read once per project; defaults to time.Now.
	Now       func() time.Time
	Logger    *zap.Logger
	Telemetry *telemetry.Emitter
	// OnResult, if set, is called as each project finishes.
	OnResult func(Result)
}

// Result is the outcome for one project location.
type Result struct {
	Location   string
	Name       string
	Info       *release.Info
	Plan       *release.Plan
	Validation []project.ValidationError
	// Skipped is set when a release was not applicable; Reason says why.
	Skipped bool
	Reason  string
	Err     error
}

// ExitCode is 0 for success or an explained no-op, 1 otherwise.
func (r Result) ExitCode() int {
	switch {
	case r.Err != nil, len(r.Validation) > 0:
		return 1
	case r.Info != nil && r.Info.Status == release.StatusOddPending:
		return 1
	case r.Info != nil && r.Info.Status == release.StatusUnknown:
		return 1
	default:
		return 0
	}
}

// Report collects the results of one run.
type Report struct {
	RunID   string
	Mode    Mode
	Results []Result
}

// Failed counts results with a non-zero exit code.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.ExitCode() != 0 {
			n++
		}
	}
	return n
}

// ExitCode aggregates per-project codes into a process exit code.
func (r *Report) ExitCode() int {
	if r.Failed() > 0 {
		return 1
	}
	return 0
}

// Run processes each location in order.
func Run(ctx context.Context, locations []string, opts Options) *Report {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Release.Logger == nil {
		opts.Release.Logger = log
	}

	report := &Report{RunID: telemetry.NewRunID(), Mode: opts.Mode}
	emit := func(kind, project string, data any) {
		err := opts.Telemetry.Emit(telemetry.Event{
			Timestamp: opts.Now(),
			Kind:      kind,
			RunID:     report.RunID,
			Project:   project,
			Data:      data,
		})
		if err != nil {
			log.Warn("telemetry emit failed", zap.Error(err))
		}
	}

	emit(telemetry.KindBatchStart, "", map[string]any{"mode": opts.Mode.String(), "projects": len(locations)})
	for _, loc := range locations {
		emit(telemetry.KindProjectStart, loc, nil)
		res := runOne(ctx, loc, opts)
		report.Results = append(report.Results, res)
		if opts.OnResult != nil {
			opts.OnResult(res)
		}

		if res.Err != nil {
			log.Error("project failed", zap.String("location", loc), zap.Error(res.Err))
			emit(telemetry.KindProjectFailed, loc, map[string]any{"error": res.Err.Error()})
			continue
		}
		if res.Plan != nil && res.Plan.Revision != "" {
			emit(telemetry.KindReleaseTagged, loc, map[string]any{
				"tag":      res.Plan.Tag,
				"version":  res.Plan.NewVersion.String(),
				"revision": res.Plan.Revision,
			})
		}
		emit(telemetry.KindProjectDone, loc, outcome(res))
	}
	emit(telemetry.KindBatchDone, "", map[string]any{"projects": len(locations), "failed": report.Failed()})
	return report
}

func outcome(res Result) map[string]any {
	data := map[string]any{"exit_code": res.ExitCode()}
	if res.Name != "" {
		data["name"] = res.Name
	}
	if res.Info != nil {
		data["status"] = res.Info.Status.String()
	}
	if res.Skipped {
		data["skipped"] = res.Reason
	}
	if len(res.Validation) > 0 {
		data["validation_errors"] = len(res.Validation)
	}
	return data
}

// runOne handles a single location under a scoped lock. The lock and the
// handle are released on every return path.
func runOne(ctx context.Context, loc string, opts Options) (res Result) {
	res.Location = loc

	h, err := opts.Opener.Open(ctx, loc)
	if err != nil {
		res.Err = err
		return res
	}
	defer func() {
		if err := h.Close(); err != nil && res.Err == nil {
			res.Err = err
		}
	}()
	if h.Tree == nil {
		res.Err = vcs.ErrNoWorkingTree
		return res
	}

	lock := h.Tree.LockRead
	if opts.Mode == ModeRelease && !opts.Release.DryRun {
		lock = h.Tree.LockWrite
	}
	unlock, err := lock()
	if err != nil {
		res.Err = err
		return res
	}
	defer func() {
		if err := unlock(); err != nil && res.Err == nil {
			res.Err = err
		}
	}()

	cfg, err := project.Load(h.Tree)
	var verr *project.ValidationError
	if opts.Mode == ModeValidate && errors.As(err, &verr) {
		res.Validation = []project.ValidationError{*verr}
		return res
	}
	if err != nil {
		res.Err = err
		return res
	}
	res.Name = cfg.Name

	switch opts.Mode {
	case ModeInfo:
		res.Info, res.Err = release.Resolve(ctx, h.Tree, h.Branch, cfg, opts.Now())
	case ModeValidate:
		res.Validation = project.Validate(h.Tree, cfg)
	case ModeRelease:
		ropts := opts.Release
		ropts.Now = opts.Now()
		plan, err := release.Release(ctx, h.Tree, h.Branch, cfg, ropts)
		res.Plan = plan
		if errors.Is(err, release.ErrNotReleasable) {
			res.Skipped, res.Reason = true, err.Error()
			return res
		}
		res.Err = err
	}
	return res
}
