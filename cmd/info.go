package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/disperse/internal/batch"
	"github.com/papapumpkin/disperse/internal/config"
	"github.com/papapumpkin/disperse/internal/release"
)

var infoCmd = &cobra.Command{
	Use:   "info [path-or-url...]",
	Short: "Show the release state of one or more projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		report, err := runBatch(cmd, cfg, locationsOrCwd(args), batch.ModeInfo, release.Options{})
		if err != nil {
			return err
		}
		if report.ExitCode() != 0 {
			return errProjectsFailed
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
