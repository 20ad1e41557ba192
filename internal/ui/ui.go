package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/papapumpkin/disperse/internal/ansi"
	"github.com/papapumpkin/disperse/internal/batch"
	"github.com/papapumpkin/disperse/internal/project"
	"github.com/papapumpkin/disperse/internal/release"
)

const (
	reset  = ansi.Reset
	bold   = ansi.Bold
	dim    = ansi.Dim
	yellow = ansi.Yellow
	green  = ansi.Green
	red    = ansi.Red
	cyan   = ansi.Cyan
)

// Printer writes colored, human-oriented output.
type Printer struct {
	w io.Writer
}

// New returns a Printer writing to stderr.
func New() *Printer {
	return &Printer{w: os.Stderr}
}

// NewWriter returns a Printer writing to w.
func NewWriter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Error prints msg as an error.
func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.w, red+bold+"error: "+reset+"%s\n", msg)
}

// Warn prints msg as a warning.
func (p *Printer) Warn(msg string) {
	fmt.Fprintf(p.w, yellow+"warning: "+reset+"%s\n", msg)
}

// Info prints msg dimmed.
func (p *Printer) Info(msg string) {
	fmt.Fprintf(p.w, dim+"%s"+reset+"\n", msg)
}

// Processing announces a project location in a multi-project run.
func (p *Printer) Processing(location string) {
	fmt.Fprintf(p.w, cyan+"◆ processing"+reset+" %s\n", location)
}

// InfoReport prints the resolved release state of a project. now anchors
// relative dates.
func (p *Printer) InfoReport(info *release.Info, now time.Time) {
	if info.Name != "" {
		fmt.Fprintf(p.w, bold+"Project: %s"+reset+"\n", info.Name)
	}
	if info.Status == release.StatusUnknown {
		fmt.Fprintln(p.w, yellow+"No version found"+reset)
		if info.PendingRaw != "" {
			fmt.Fprintf(p.w, "Pending version: %s\n", info.PendingRaw)
		}
		return
	}

	fmt.Fprintf(p.w, "Last release: %s "+dim+"(from %s)"+reset+"\n", info.LastVersion, info.LastSource)
	if info.TagFound {
		fmt.Fprintf(p.w, "  tag name: %s (%s)\n", info.Tag, info.TagRevision)
		fmt.Fprintf(p.w, "  date: %s "+dim+"(%s)"+reset+"\n",
			info.TagDate.Format(time.DateTime), humanize.RelTime(info.TagDate, now, "ago", "from now"))
		switch {
		case info.NotInAncestry:
			fmt.Fprintln(p.w, "  "+yellow+"last release not found in ancestry"+reset)
		case info.RevisionsSince == 0:
			fmt.Fprintln(p.w, "  no revisions since last release")
		default:
			fmt.Fprintf(p.w, "  %d revisions since last release. First is %d days old.\n", info.RevisionsSince, info.OldestAge)
		}
	} else {
		fmt.Fprintf(p.w, "  tag %s for previous release not found\n", info.Tag)
		if info.RevisionsSince > 0 {
			fmt.Fprintf(p.w, "  %d revisions in history. First is %d days old.\n", info.RevisionsSince, info.OldestAge)
		}
	}

	switch info.Status {
	case release.StatusNoPendingChanges:
		fmt.Fprintln(p.w, "No unreleased changes")
	case release.StatusUnreleased:
		fmt.Fprintf(p.w, green+"Pending version: %s"+reset+"\n", info.Pending)
	case release.StatusOddPending:
		fmt.Fprintf(p.w, red+"Pending version: %s (odd)"+reset+"\n", info.PendingRaw)
	case release.StatusReleased:
		msg := "No pending version found"
		if !info.Suggested.IsZero() {
			msg += "; would use " + info.Suggested.String()
		}
		if info.HasEstimate {
			msg += " (previous release estimated as " + info.Estimate.String() + ")"
		}
		fmt.Fprintln(p.w, msg)
	}
}

// ValidateResult prints the configuration check outcome for a project.
func (p *Printer) ValidateResult(name string, errs []project.ValidationError) {
	if name == "" {
		name = "project"
	}
	if len(errs) == 0 {
		fmt.Fprintf(p.w, green+bold+"✓ %s"+reset+" — configuration is valid\n", name)
		return
	}
	fmt.Fprintf(p.w, red+bold+"✗ %s"+reset+" — %d error(s):\n", name, len(errs))
	for _, e := range errs {
		fmt.Fprintf(p.w, "  "+red+"• "+reset+"%s\n", e.Error())
	}
}

// ReleasePlan prints what a release did, or would do on a dry run.
func (p *Printer) ReleasePlan(plan *release.Plan, dryRun bool) {
	verb := "released"
	if dryRun {
		verb = "would release"
	}
	old := "(none)"
	if !plan.OldVersion.IsZero() {
		old = plan.OldVersion.String()
	}
	fmt.Fprintf(p.w, green+bold+"✓ %s %s %s"+reset+" (was %s, tag %s)\n", verb, plan.Name, plan.NewVersion, old, plan.Tag)
	if files := plan.Files(); len(files) > 0 {
		fmt.Fprintf(p.w, "  "+dim+"files:"+reset+" %s\n", strings.Join(files, ", "))
	}
	if plan.Revision != "" {
		fmt.Fprintf(p.w, "  "+dim+"revision:"+reset+" %s\n", plan.Revision)
	}
	if changes := strings.TrimSpace(plan.Changes); changes != "" {
		fmt.Fprintf(p.w, "  "+dim+"changes:"+reset+"\n")
		for _, line := range strings.Split(changes, "\n") {
			fmt.Fprintf(p.w, "    %s\n", strings.TrimSpace(line))
		}
	}
	if !plan.NextVersion.IsZero() {
		fmt.Fprintf(p.w, "  "+dim+"next:"+reset+" %s\n", plan.NextVersion)
	}
}

// Skipped explains why a project was not released.
func (p *Printer) Skipped(name, reason string) {
	fmt.Fprintf(p.w, dim+"- skipped %s: %s"+reset+"\n", name, reason)
}

// Result prints one batch result in the form its mode calls for.
func (p *Printer) Result(res batch.Result, mode batch.Mode, dryRun bool, now time.Time) {
	name := res.Name
	if name == "" {
		name = res.Location
	}
	if res.Err != nil {
		p.Error(fmt.Sprintf("%s: %v", res.Location, res.Err))
		return
	}
	switch mode {
	case batch.ModeInfo:
		if res.Info != nil {
			p.InfoReport(res.Info, now)
			if err := res.Info.Warning(); err != nil {
				p.Warn(err.Error())
			}
		}
	case batch.ModeValidate:
		p.ValidateResult(name, res.Validation)
	case batch.ModeRelease:
		switch {
		case res.Skipped:
			p.Skipped(name, res.Reason)
		case res.Plan != nil:
			p.ReleasePlan(res.Plan, dryRun)
		}
	}
}

// BatchSummary prints totals for a multi-project run.
func (p *Printer) BatchSummary(r *batch.Report) {
	failed := r.Failed()
	color := green
	if failed > 0 {
		color = red
	}
	fmt.Fprintf(p.w, "\n"+color+bold+"%s: %d project(s), %d failed"+reset+" "+dim+"(run %s)"+reset+"\n",
		r.Mode, len(r.Results), failed, r.RunID)
}

// Locations prints discovered repository locations one per line.
func (p *Printer) Locations(locs []string) {
	for _, l := range locs {
		fmt.Fprintln(p.w, l)
	}
}
