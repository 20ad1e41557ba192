package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/papapumpkin/disperse/internal/project"
	"github.com/papapumpkin/disperse/internal/release"
	"github.com/papapumpkin/disperse/internal/telemetry"
	"github.com/papapumpkin/disperse/internal/vcs"
	"github.com/papapumpkin/disperse/internal/vcs/vcstest"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const disperseToml = "tag-name = \"v$VERSION\"\nnews-file = \"NEWS\"\n"

// crate builds a project released as 0.1.0 with extra commits since and a
// pending 0.2.0 entry.
func crate(extra int) *vcstest.Repo {
	r := vcstest.New()
	r.Now = func() time.Time { return now }
	r.SetFile("disperse.toml", disperseToml)
	r.SetFile("Cargo.toml", "[package]\nname = \"crab\"\nversion = \"0.1.0\"\n")
	r.SetFile("NEWS", "0.2.0\tUNRELEASED\n\n * Change.\n\n0.1.0\t2024-01-01\n")
	rel := r.AddRevision(now.Add(-30 * 24 * time.Hour))
	r.SetTag("v0.1.0", rel)
	for i := extra; i > 0; i-- {
		r.AddRevision(now.Add(-time.Duration(i) * 24 * time.Hour))
	}
	return r
}

func TestRun_FailureDoesNotStopBatch(t *testing.T) {
	t.Parallel()
	broken := crate(2)
	broken.Fail["Ancestry"] = errors.New("object missing")
	healthy := crate(3)

	opener := &vcstest.Opener{
		Repos: map[string]*vcstest.Repo{"broken": broken, "healthy": healthy},
		Err:   map[string]error{"unreachable": errors.New("connection refused")},
	}
	report := Run(context.Background(), []string{"unreachable", "broken", "healthy"}, Options{
		Mode:   ModeInfo,
		Opener: opener,
		Now:    func() time.Time { return now },
	})

	if len(report.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(report.Results))
	}
	var verr *vcs.Error
	if !errors.As(report.Results[0].Err, &verr) {
		t.Errorf("unreachable: Err = %v, want *vcs.Error", report.Results[0].Err)
	}
	if !errors.As(report.Results[1].Err, &verr) {
		t.Errorf("broken: Err = %v, want *vcs.Error", report.Results[1].Err)
	}

	ok := report.Results[2]
	if ok.Err != nil {
		t.Fatalf("healthy: Err = %v", ok.Err)
	}
	if ok.Name != "crab" || ok.Info.Status != release.StatusUnreleased || ok.Info.RevisionsSince != 3 {
		t.Errorf("healthy: name %q status %v count %d", ok.Name, ok.Info.Status, ok.Info.RevisionsSince)
	}
	if ok.ExitCode() != 0 {
		t.Errorf("healthy: ExitCode() = %d, want 0", ok.ExitCode())
	}

	if report.Failed() != 2 || report.ExitCode() != 1 {
		t.Errorf("Failed() = %d ExitCode() = %d, want 2 and 1", report.Failed(), report.ExitCode())
	}
	if broken.LocksHeld() != 0 || healthy.LocksHeld() != 0 {
		t.Error("lock still held after run")
	}
	if opener.Closed["broken"] != 1 || opener.Closed["healthy"] != 1 {
		t.Errorf("handles closed = %v, want each once", opener.Closed)
	}
}

func TestRun_ReleaseSkipsWhatIsNotDue(t *testing.T) {
	t.Parallel()
	due := crate(1)
	current := crate(0)

	opener := &vcstest.Opener{Repos: map[string]*vcstest.Repo{"due": due, "current": current}}
	report := Run(context.Background(), []string{"current", "due"}, Options{
		Mode:   ModeRelease,
		Opener: opener,
		Now:    func() time.Time { return now },
	})

	skipped, released := report.Results[0], report.Results[1]
	if !skipped.Skipped || skipped.Err != nil || skipped.ExitCode() != 0 {
		t.Errorf("current: %+v, want skipped without error", skipped)
	}
	if released.Err != nil || released.Plan == nil || released.Plan.Tag != "v0.2.0" {
		t.Fatalf("due: Err = %v plan = %+v", released.Err, released.Plan)
	}
	if _, err := due.LookupTag(context.Background(), "v0.2.0"); err != nil {
		t.Errorf("tag v0.2.0 not created: %v", err)
	}
	if report.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d, want 0", report.ExitCode())
	}
}

func TestRun_Validate(t *testing.T) {
	t.Parallel()
	good := crate(1)
	bad := crate(1)
	bad.SetFile("disperse.toml", "tag-name = \"v$VERSION\"\nnews-file = \"CHANGES\"\nupdate-manpages = [\"crab.1\"]\n")
	badTag := crate(1)
	badTag.SetFile("disperse.toml", "tag-name = \"release\"\n")

	opener := &vcstest.Opener{Repos: map[string]*vcstest.Repo{"good": good, "bad": bad, "bad-tag": badTag}}
	var seen []string
	report := Run(context.Background(), []string{"good", "bad", "bad-tag"}, Options{
		Mode:     ModeValidate,
		Opener:   opener,
		OnResult: func(r Result) { seen = append(seen, r.Location) },
	})
	if diff := cmp.Diff([]string{"good", "bad", "bad-tag"}, seen); diff != "" {
		t.Errorf("OnResult order mismatch (-want +got):\n%s", diff)
	}

	if n := len(report.Results[0].Validation); n != 0 {
		t.Errorf("good: %d validation errors: %v", n, report.Results[0].Validation)
	}
	if n := len(report.Results[1].Validation); n != 2 {
		t.Errorf("bad: %d validation errors, want 2: %v", n, report.Results[1].Validation)
	}
	tagRes := report.Results[2]
	if tagRes.Err != nil || len(tagRes.Validation) != 1 || tagRes.Validation[0].Field != "tag-name" {
		t.Fatalf("bad-tag: Err = %v validation = %v, want one tag-name error", tagRes.Err, tagRes.Validation)
	}
	if !errors.Is(&tagRes.Validation[0], project.ErrConfig) {
		t.Errorf("bad-tag: %v does not wrap ErrConfig", &tagRes.Validation[0])
	}
	if report.ExitCode() != 1 {
		t.Errorf("ExitCode() = %d, want 1", report.ExitCode())
	}
}

func TestRun_Telemetry(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	em, err := telemetry.NewEmitter(path)
	if err != nil {
		t.Fatal(err)
	}

	opener := &vcstest.Opener{
		Repos: map[string]*vcstest.Repo{"a": crate(1)},
		Err:   map[string]error{"b": errors.New("gone")},
	}
	report := Run(context.Background(), []string{"a", "b"}, Options{
		Mode:      ModeRelease,
		Opener:    opener,
		Now:       func() time.Time { return now },
		Telemetry: em,
	})
	if err := em.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var kinds []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var evt telemetry.Event
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		if evt.RunID != report.RunID {
			t.Errorf("event run = %q, want %q", evt.RunID, report.RunID)
		}
		kinds = append(kinds, evt.Kind)
	}
	want := []string{
		telemetry.KindBatchStart,
		telemetry.KindProjectStart,
		telemetry.KindReleaseTagged,
		telemetry.KindProjectDone,
		telemetry.KindProjectStart,
		telemetry.KindProjectFailed,
		telemetry.KindBatchDone,
	}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("event kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_DryRunTakesReadLock(t *testing.T) {
	t.Parallel()
	r := crate(1)
	r.Fail["LockWrite"] = errors.New("write lock not allowed")

	opener := &vcstest.Opener{Repos: map[string]*vcstest.Repo{"a": r}}
	report := Run(context.Background(), []string{"a"}, Options{
		Mode:    ModeRelease,
		Opener:  opener,
		Release: release.Options{DryRun: true},
		Now:     func() time.Time { return now },
	})
	res := report.Results[0]
	if res.Err != nil || res.Plan == nil {
		t.Fatalf("dry run: Err = %v plan = %v", res.Err, res.Plan)
	}
	if len(r.Commits()) != 0 {
		t.Error("dry run committed")
	}
}

func TestMode_String(t *testing.T) {
	t.Parallel()
	for m, want := range map[Mode]string{ModeInfo: "info", ModeValidate: "validate", ModeRelease: "release"} {
		if got := m.String(); got != want {
			t.Errorf("Mode(%d).String() = %q, want %q", m, got, want)
		}
	}
}
