package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papapumpkin/disperse/internal/batch"
	"github.com/papapumpkin/disperse/internal/config"
	"github.com/papapumpkin/disperse/internal/release"
)

var releaseCmd = &cobra.Command{
	Use:   "release [path-or-url...]",
	Short: "Release projects that have a pending version",
	Long: `Releases each project whose news file declares a pending version: rewrites
version strings, commits, tags, publishes, starts the next pending version and
pushes. Projects with nothing to release are skipped and reported.`,
	RunE: runRelease,
}

func init() {
	releaseCmd.Flags().String("new-version", "", "version to release instead of the declared pending one")
	releaseCmd.Flags().Bool("dry-run", false, "compute the release without writing anything")
	releaseCmd.Flags().Bool("no-publish", false, "do not upload to package registries")
	_ = viper.BindPFlag("dry_run", releaseCmd.Flags().Lookup("dry-run"))
	rootCmd.AddCommand(releaseCmd)
}

func releaseOptions(cmd *cobra.Command, cfg config.Config, newVersion string) release.Options {
	noPublish, _ := cmd.Flags().GetBool("no-publish")
	opts := release.Options{
		NewVersion: newVersion,
		DryRun:     cfg.DryRun,
		Logger:     logger,
	}
	if !noPublish {
		opts.Publisher = release.CargoPublisher{Path: cfg.CargoPath}
	}
	return opts
}

func runRelease(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	newVersion, _ := cmd.Flags().GetString("new-version")
	report, err := runBatch(cmd, cfg, locationsOrCwd(args), batch.ModeRelease, releaseOptions(cmd, cfg, newVersion))
	if err != nil {
		return err
	}
	if report.ExitCode() != 0 {
		return errProjectsFailed
	}
	return nil
}
