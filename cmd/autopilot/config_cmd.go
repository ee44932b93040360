package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edsandoval/autopilot/internal/config"
	"github.com/edsandoval/autopilot/internal/update"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Enrichment.APIKey != "" {
			cfg.Enrichment.APIKey = "********"
		}

		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), buf.String())

		if err := cfg.RequireRepositories(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with defaults",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultPath()
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return usageError(fmt.Errorf("%s already exists (use --force to overwrite)", path))
		}

		cfg := config.Default()
		cfg.AutomationRoot, _ = cmd.Flags().GetString("automation-root")
		cfg.BaseRepositoryPath, _ = cmd.Flags().GetString("base-repository")
		if b, _ := cmd.Flags().GetString("base-branch"); b != "" {
			cfg.BaseBranch = b
		}
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade autopilot to the latest release",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "Current version: %s\n", version)
		if check, _ := cmd.Flags().GetBool("check"); check {
			rel, newer, err := (&update.Checker{}).Check(cmd.Context(), version)
			if err != nil {
				return err
			}
			if !newer {
				fmt.Fprintln(cmd.OutOrStdout(), "Up to date.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Update available: %s\n%s\n", rel.Version, rel.ReleaseURL)
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Checking for updates...")
		latest, err := update.Update(cmd.Context(), version)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Upgraded to %s\n", latest)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configInitCmd.Flags().String("automation-root", "", "directory holding ticket worktrees")
	configInitCmd.Flags().String("base-repository", "", "path of the base git repository")
	configInitCmd.Flags().String("base-branch", "", "branch tickets are forked from (default develop)")
	upgradeCmd.Flags().Bool("check", false, "only report whether an update is available")

	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd, upgradeCmd)

	versionCmd.PostRun = func(cmd *cobra.Command, args []string) {
		if notice := (&update.Checker{}).Notice(cmd.Context(), version); notice != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), notice)
		}
	}
}
