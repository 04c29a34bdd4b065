package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/autopilot/internal/signals"
)

func signalCommand(sig signals.Signal, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(sig),
		Short: short,
		Long: fmt.Sprintf(`Ask the session running in the project directory to %s.

The request is delivered through .autopilot/signals and applied at the next
subtask boundary. Requests that do not fit the session state are ignored
and logged by the running session.`, sig),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := signals.Send(projectDir, sig); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s requested\n", sig)
			return nil
		},
	}
}

var (
	pauseCmd  = signalCommand(signals.Pause, "Pause the running session")
	resumeCmd = signalCommand(signals.Resume, "Resume a paused session")
	cancelCmd = signalCommand(signals.Cancel, "Cancel the running session")
)
