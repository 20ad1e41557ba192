package release

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/papapumpkin/disperse/internal/project"
	"github.com/papapumpkin/disperse/internal/vcs"
)

// Publisher uploads a tagged release to a package registry.
type Publisher interface {
	Publish(ctx context.Context, tree vcs.Tree, cfg *project.Config) error
}

// CargoPublisher runs `cargo publish` for projects with a Cargo manifest and
// does nothing for others.
type CargoPublisher struct {
	// Path is the cargo binary; empty means "cargo" on PATH.
	Path string
}

// Publish implements Publisher.
func (p CargoPublisher) Publish(ctx context.Context, tree vcs.Tree, cfg *project.Config) error {
	if cfg.Manifest != project.CargoFile {
		return nil
	}
	bin := p.Path
	if bin == "" {
		bin = "cargo"
	}
	cmd := exec.CommandContext(ctx, bin, "publish")
	cmd.Dir = tree.Abspath(".")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("cargo publish: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
