package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papapumpkin/disperse/internal/batch"
	"github.com/papapumpkin/disperse/internal/config"
	"github.com/papapumpkin/disperse/internal/discover"
	"github.com/papapumpkin/disperse/internal/release"
	"github.com/papapumpkin/disperse/internal/ui"
)

var errNoProjects = errors.New("no projects found: set pypi.username or crates_io.username, or add repositories.owned to the config")

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find owned repositories and release or report on each",
	Long: `Collects the repositories of projects owned on PyPI and crates.io together
with the repositories listed in the config file, then releases each (default), reports
their state (--info), or prints their locations (--urls).`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().Bool("info", false, "report release state instead of releasing")
	discoverCmd.Flags().Bool("urls", false, "print repository locations and exit")
	discoverCmd.Flags().Bool("try", false, "exit 0 even when projects fail")
	discoverCmd.Flags().String("pypi-user", "", "PyPI user whose projects to include")
	discoverCmd.Flags().String("crates-io-user", "", "crates.io user whose crates to include")
	discoverCmd.Flags().Bool("dry-run", false, "compute releases without writing anything")
	discoverCmd.Flags().Bool("no-publish", false, "do not upload to package registries")
	discoverCmd.MarkFlagsMutuallyExclusive("info", "urls")
	_ = viper.BindPFlag("discover.try", discoverCmd.Flags().Lookup("try"))
	_ = viper.BindPFlag("pypi.username", discoverCmd.Flags().Lookup("pypi-user"))
	_ = viper.BindPFlag("crates_io.username", discoverCmd.Flags().Lookup("crates-io-user"))
	rootCmd.AddCommand(discoverCmd)
}

func registries(cfg config.Config) []discover.Registry {
	var regs []discover.Registry
	if cfg.PyPI.Username != "" {
		regs = append(regs, &discover.PyPI{
			Username:  cfg.PyPI.Username,
			BaseURL:   cfg.PyPI.URL,
			UserAgent: cfg.CratesIO.UserAgent,
		})
	}
	if cfg.CratesIO.Username != "" {
		regs = append(regs, &discover.CratesIO{
			Username:  cfg.CratesIO.Username,
			BaseURL:   cfg.CratesIO.URL,
			UserAgent: cfg.CratesIO.UserAgent,
		})
	}
	if len(cfg.Repositories.Owned) > 0 {
		regs = append(regs, discover.Static(cfg.Repositories.Owned))
	}
	return regs
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		cfg.DryRun = true
	}

	regs := registries(cfg)
	if len(regs) == 0 {
		return errNoProjects
	}
	locations, err := discover.Discover(cmd.Context(), regs)
	if err != nil {
		logger.Warn("registry lookup failed", zap.Error(err))
		ui.NewWriter(cmd.ErrOrStderr()).Warn(err.Error())
	}
	if len(locations) == 0 {
		return errNoProjects
	}

	if urls, _ := cmd.Flags().GetBool("urls"); urls {
		ui.NewWriter(cmd.OutOrStdout()).Locations(locations)
		return nil
	}

	mode := batch.ModeRelease
	var ropts release.Options
	if info, _ := cmd.Flags().GetBool("info"); info {
		mode = batch.ModeInfo
	} else {
		ropts = releaseOptions(cmd, cfg, "")
	}
	report, err := runBatch(cmd, cfg, locations, mode, ropts)
	if err != nil {
		return err
	}
	if report.ExitCode() != 0 && !cfg.Discover.Try {
		return errProjectsFailed
	}
	return nil
}
