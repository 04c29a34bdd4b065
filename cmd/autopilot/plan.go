package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ShayCichocki/autopilot/internal/planner"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

var (
	planFormat  string
	planOutput  string
	planContext map[string]string
)

var planCmd = &cobra.Command{
	Use:   "plan <task>",
	Short: "Decompose a task without executing it",
	Long: `Plan analyzes the task and prints the ordered subtasks with their
dependencies and effort estimate.

Formats:
  markdown  rendered for the terminal (default)
  yaml      readable summary
  json      full plan, accepted by 'autopilot run --plan'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planFormat, "format", "f", "markdown", "Output format: markdown, yaml or json")
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "Write to a file instead of stdout")
	planCmd.Flags().StringToStringVar(&planContext, "context", nil, "Task context passed to the planner (key=value)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	completer, _, err := newCompleter(cmd.Context(), logger)
	if err != nil {
		return err
	}
	p := planner.New(completer, planner.WithLogger(logger))
	plan, err := p.DecomposeTask(cmd.Context(), strings.Join(args, " "), taskContext(planContext))
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	toTerminal := planOutput == "" && term.IsTerminal(int(os.Stdout.Fd()))
	if planOutput != "" {
		f, err := os.Create(planOutput)
		if err != nil {
			return fmt.Errorf("create %s: %w", planOutput, err)
		}
		defer f.Close()
		w = f
	}
	return writePlan(w, plan, planFormat, toTerminal)
}

// writePlan renders plan in format. Markdown is styled only for a terminal.
func writePlan(w io.Writer, plan *models.Plan, format string, styled bool) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	case "yaml", "yml":
		data, err := planner.MarshalYAML(plan)
		if err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "markdown", "md":
		md := planner.Markdown(plan)
		if styled {
			renderer, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(100),
			)
			if err == nil {
				if out, err := renderer.Render(md); err == nil {
					md = out
				}
			}
		}
		_, err := io.WriteString(w, md)
		return err
	default:
		return fmt.Errorf("unknown format %q: use markdown, yaml or json", format)
	}
}
