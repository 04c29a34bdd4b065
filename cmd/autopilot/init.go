package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/autopilot/internal/config"
	"github.com/ShayCichocki/autopilot/internal/signals"
	"github.com/ShayCichocki/autopilot/internal/verification"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Prepare the project directory for autopilot",
	Long: `Init creates the .autopilot directory with its logs and signals folders,
writes a .autopilot.yaml with the default settings and adds .autopilot/ to
.gitignore when the project has one.

Examples:
  autopilot init
  autopilot init -C ./myproject
  autopilot init --force   # overwrite an existing .autopilot.yaml`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing project config")
}

func runInit(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Initializing autopilot in %s\n\n", projectDir)

	base := filepath.Join(projectDir, ".autopilot")
	for _, dir := range []string{filepath.Join(base, "logs"), signals.Dir(projectDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	printStatus(w, "✓", "Created .autopilot directory structure", okColor)

	cfgPath := filepath.Join(projectDir, config.ProjectFile)
	if _, err := os.Stat(cfgPath); err == nil && !initForce {
		printStatus(w, "•", config.ProjectFile+" exists (use --force to overwrite)", dimColor)
	} else {
		if err := config.SaveTo(cfgPath, config.Default()); err != nil {
			return err
		}
		printStatus(w, "✓", "Wrote "+config.ProjectFile, okColor)
	}

	added, err := ignoreStateDir(projectDir)
	if err != nil {
		return err
	}
	if added {
		printStatus(w, "✓", "Added .autopilot/ to .gitignore", okColor)
	}

	project := verification.DetectProject(projectDir)
	if project.Type != "unknown" {
		printStatus(w, "✓", "Detected "+project.Type+" project", okColor)
	} else {
		printStatus(w, "⚠", "Project type not detected; set verification.test_command to enable tests", warnColor)
	}

	if config.NeedsAPIKey(cfg.LLM.Provider) {
		if _, err := config.GetAPIKey(cfg); err != nil {
			printStatus(w, "⚠", fmt.Sprintf("No API key for %s (you can set it later)", cfg.LLM.Provider), warnColor)
		} else {
			printStatus(w, "✓", fmt.Sprintf("API key for %s found", cfg.LLM.Provider), okColor)
		}
	}

	fmt.Fprintf(w, "\n%s Ready. Next:\n", color.GreenString("✓"))
	fmt.Fprintln(w, `  autopilot plan "your task"   # preview the plan`)
	fmt.Fprintln(w, `  autopilot run "your task"    # plan, execute and verify`)
	return nil
}

// ignoreStateDir appends .autopilot/ to an existing .gitignore that does not
// list it yet.
func ignoreStateDir(root string) (bool, error) {
	path := filepath.Join(root, ".gitignore")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read .gitignore: %w", err)
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		switch string(bytes.TrimSpace(line)) {
		case ".autopilot", ".autopilot/", "/.autopilot", "/.autopilot/":
			return false, nil
		}
	}
	entry := "\n# autopilot\n.autopilot/\n"
	if len(data) > 0 && data[len(data)-1] == '\n' {
		entry = entry[1:]
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return false, fmt.Errorf("update .gitignore: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(entry); err != nil {
		return false, fmt.Errorf("update .gitignore: %w", err)
	}
	return true, nil
}

func printStatus(w io.Writer, symbol, message string, c *color.Color) {
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}
