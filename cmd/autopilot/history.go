package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/autopilot/internal/state"
)

var (
	historyStatus    string
	historyLimit     int
	historyJSON      bool
	historyOlderThan time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past sessions",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session with its subtask outcomes",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete finished sessions older than a cutoff",
	Args:  cobra.NoArgs,
	RunE:  runHistoryPurge,
}

func init() {
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Only sessions with this status (active, completed, failed, cancelled, interrupted)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum sessions to list")
	historyShowCmd.Flags().BoolVar(&historyJSON, "json", false, "Print the session as JSON")
	historyPurgeCmd.Flags().DurationVar(&historyOlderThan, "older-than", 30*24*time.Hour, "Age cutoff")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPurgeCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, err := openState(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	var status *state.SessionStatus
	if historyStatus != "" {
		s := state.SessionStatus(historyStatus)
		status = &s
	}
	sessions, err := db.ListSessions(cmd.Context(), status, historyLimit)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}
	for _, s := range sessions {
		printSessionLine(w, s)
	}
	return nil
}

func printSessionLine(w io.Writer, s state.Session) {
	fmt.Fprintf(w, "%s  %s  %s  %d/%d ok  score %3d  %s\n",
		shortID(s.ID),
		s.StartedAt.Local().Format("2006-01-02 15:04"),
		statusColor(s.Status).Sprintf("%-11s", s.Status),
		s.Successful, s.Total, s.AverageScore,
		truncate(s.Task, 60),
	)
}

func statusColor(s state.SessionStatus) *color.Color {
	switch s {
	case state.SessionCompleted:
		return okColor
	case state.SessionFailed:
		return errColor
	case state.SessionCancelled, state.SessionInterrupted:
		return warnColor
	default:
		return headColor
	}
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	db, err := openState(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := db.GetSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("session %s not found", args[0])
	}

	w := cmd.OutOrStdout()
	if historyJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	printSessionDetail(w, s)
	return nil
}

func printSessionDetail(w io.Writer, s *state.Session) {
	fmt.Fprintf(w, "%s  %s\n", headColor.Sprint("Session "+s.ID), statusColor(s.Status).Sprint(s.Status))
	fmt.Fprintf(w, "  task       %s\n", s.Task)
	fmt.Fprintf(w, "  started    %s\n", s.StartedAt.Local().Format(time.RFC1123))
	if s.EndedAt != nil {
		fmt.Fprintf(w, "  duration   %s\n", s.EndedAt.Sub(s.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(w, "  subtasks   %d total, %d succeeded, %d failed, %d skipped, %d corrected\n",
		s.Total, s.Successful, s.Failed, s.Skipped, s.Corrected)
	fmt.Fprintf(w, "  avg score  %d\n", s.AverageScore)
	if s.Error != "" {
		fmt.Fprintf(w, "  error      %s\n", errColor.Sprint(s.Error))
	}
	if len(s.Outcomes) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, o := range s.Outcomes {
		mark := okColor.Sprint("✓")
		switch {
		case o.Skipped:
			mark = dimColor.Sprint("–")
		case !o.Success:
			mark = errColor.Sprint("✗")
		}
		line := fmt.Sprintf("  %s %s", mark, o.SubtaskID)
		if o.Score != nil {
			line += dimColor.Sprintf("  score %d", *o.Score)
		}
		if o.CorrectionAttempts > 0 {
			line += dimColor.Sprintf("  corrections %d", o.CorrectionAttempts)
		}
		if o.Error != "" {
			line += "  " + o.Error
		} else if o.Reason != "" {
			line += "  " + o.Reason
		}
		fmt.Fprintln(w, line)
	}
}

func runHistoryPurge(cmd *cobra.Command, args []string) error {
	if historyOlderThan <= 0 {
		return errors.New("--older-than must be positive")
	}
	db, err := openState(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.PurgeOldSessions(cmd.Context(), historyOlderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Purged %d sessions older than %s\n", n, historyOlderThan)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
