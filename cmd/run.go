package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/disperse/internal/batch"
	"github.com/papapumpkin/disperse/internal/config"
	"github.com/papapumpkin/disperse/internal/release"
	"github.com/papapumpkin/disperse/internal/telemetry"
	"github.com/papapumpkin/disperse/internal/ui"
	"github.com/papapumpkin/disperse/internal/vcs"
)

// locationsOrCwd defaults an empty argument list to the current directory.
func locationsOrCwd(args []string) []string {
	if len(args) == 0 {
		return []string{"."}
	}
	return args
}

// runBatch processes locations in mode, printing each result as it lands.
func runBatch(cmd *cobra.Command, cfg config.Config, locations []string, mode batch.Mode, ropts release.Options) (*batch.Report, error) {
	var em *telemetry.Emitter
	if cfg.Telemetry.Path != "" {
		var err error
		em, err = telemetry.NewEmitter(cfg.Telemetry.Path)
		if err != nil {
			return nil, err
		}
		defer em.Close()
	}

	printer := ui.NewWriter(cmd.ErrOrStderr())
	multi := len(locations) > 1
	report := batch.Run(cmd.Context(), locations, batch.Options{
		Mode:      mode,
		Opener:    vcs.GitOpener{Logger: logger},
		Release:   ropts,
		Logger:    logger,
		Telemetry: em,
		OnResult: func(res batch.Result) {
			if multi {
				printer.Processing(res.Location)
			}
			printer.Result(res, mode, ropts.DryRun, time.Now())
		},
	})
	if multi {
		printer.BatchSummary(report)
	}
	return report, nil
}
