package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/autopilot/internal/config"
)

var configProject bool

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Show or change configuration",
	Long: `With no arguments, config prints every effective setting.
With a key, it prints that setting. With a key and a value, it writes the
value to the user config file, or to ./.autopilot.yaml with --project.

Examples:
  autopilot config
  autopilot config verification.threshold
  autopilot config llm.provider anthropic
  autopilot config --project orchestrator.max_auto_corrections 3`,
	Args: cobra.MaximumNArgs(2),
	RunE: runConfig,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config files in use",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "user     %s\n", config.GetUserConfigPath())
		project := config.GetProjectConfigPath()
		if project == "" {
			project = dimColor.Sprint("(none)")
		}
		fmt.Fprintf(w, "project  %s\n", project)
		fmt.Fprintf(w, "api key  %s\n", config.GetAPIKeySource(cfg))
	},
}

func init() {
	configCmd.Flags().BoolVar(&configProject, "project", false, "Write to the project config instead of the user config")
	configCmd.AddCommand(configPathCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	switch len(args) {
	case 0:
		for _, key := range config.Keys() {
			value, err := config.GetValue(cfg, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s = %s\n", key, value)
		}
		return nil
	case 1:
		value, err := config.GetValue(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(w, value)
		return nil
	}

	path := config.GetUserConfigPath()
	if configProject {
		path = filepath.Join(projectDir, config.ProjectFile)
	}
	if err := config.SetValue(path, args[0], args[1]); err != nil {
		return err
	}
	printStatus(w, "✓", fmt.Sprintf("%s set in %s", args[0], path), okColor)
	return nil
}
