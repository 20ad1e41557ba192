package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/disperse/internal/batch"
	"github.com/papapumpkin/disperse/internal/config"
	"github.com/papapumpkin/disperse/internal/release"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check that a project's release configuration is usable",
	Long: `Loads the project configuration and checks, without modifying anything,
that the tag template carries $VERSION, that referenced files exist, and that
every file named for version updates already has an updateable marker.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		report, err := runBatch(cmd, cfg, locationsOrCwd(args), batch.ModeValidate, release.Options{})
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
	rootCmd.AddCommand(validateCmd)
}
