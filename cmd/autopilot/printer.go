package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/ShayCichocki/autopilot/internal/events"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
	headColor = color.New(color.FgCyan, color.Bold)
)

// printer writes one line per lifecycle event for headless runs.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

// Emit implements events.Sink.
func (p *printer) Emit(e events.Event) {
	line := formatEvent(e)
	if line == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, line)
}

func progressPrefix(e events.Event) string {
	if e.Total == 0 {
		return ""
	}
	return dimColor.Sprintf("[%d/%d] ", e.Current, e.Total)
}

// formatEvent renders e, or "" for events not worth a line.
func formatEvent(e events.Event) string {
	switch e.Type {
	case events.TaskStart:
		return headColor.Sprint("▶ ") + e.Message
	case events.TaskPlanned:
		if e.Plan == nil {
			return ""
		}
		s := fmt.Sprintf("%s planned %d subtasks (%s, ~%d min)",
			okColor.Sprint("✓"), len(e.Plan.Subtasks), e.Plan.Estimation.OverallComplexity, e.Plan.Estimation.EstimatedTimeMinutes)
		if e.Plan.Degraded {
			s += "\n" + warnColor.Sprint("⚠ fallback plan: ") + e.Plan.DegradedReason
		}
		return s
	case events.SubtaskStart:
		return fmt.Sprintf("%s%s %s %s", progressPrefix(e), headColor.Sprint("→"), e.SubtaskTitle, dimColor.Sprintf("(%s)", e.SubtaskType))
	case events.SubtaskRetry:
		return fmt.Sprintf("  %s retry %d: %s", warnColor.Sprint("↻"), e.Attempt, e.Error)
	case events.SubtaskFailed:
		return fmt.Sprintf("  %s %s", errColor.Sprint("✗"), e.Error)
	case events.SubtaskSkipped:
		return fmt.Sprintf("%s%s %s: %s", progressPrefix(e), dimColor.Sprint("–"), e.SubtaskTitle, e.Message)
	case events.VerificationPassed:
		return fmt.Sprintf("  %s verified, score %s", okColor.Sprint("✓"), scoreString(e.Score))
	case events.VerificationFailed:
		s := fmt.Sprintf("  %s verification failed, score %s", errColor.Sprint("✗"), scoreString(e.Score))
		if e.Verification != nil {
			for i, issue := range e.Verification.Issues {
				if i == 3 {
					s += dimColor.Sprintf("\n      ... %d more", len(e.Verification.Issues)-3)
					break
				}
				s += fmt.Sprintf("\n    - [%s] %s", issue.Severity, issue.Message)
			}
		}
		return s
	case events.CorrectionStart:
		return fmt.Sprintf("  %s correction attempt %d", warnColor.Sprint("↻"), e.Attempt)
	case events.SubtaskCorrected:
		return fmt.Sprintf("  %s corrected after %d attempts", okColor.Sprint("✓"), e.Attempt)
	case events.Paused:
		return warnColor.Sprint("⏸ paused")
	case events.Resumed:
		return okColor.Sprint("▶ resumed")
	case events.Cancelled:
		return warnColor.Sprint("■ cancelled")
	case events.TaskFailed:
		return errColor.Sprint("✗ session failed: ") + e.Error
	}
	return ""
}

func scoreString(score *int) string {
	if score == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *score)
}

// printSummary writes the final session report.
func printSummary(w io.Writer, r *models.SessionResult) {
	if r == nil {
		return
	}
	status := okColor.Sprint("✓ completed")
	switch {
	case r.Cancelled:
		status = warnColor.Sprint("■ cancelled")
	case !r.Success:
		status = errColor.Sprint("✗ failed")
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s  %s\n", headColor.Sprint("Session "+shortID(r.SessionID)), status)
	fmt.Fprintf(w, "  subtasks   %d total, %d succeeded, %d failed, %d skipped, %d corrected\n",
		r.Total, r.Successful, r.Failed, r.Skipped, r.Corrected)
	fmt.Fprintf(w, "  avg score  %d\n", r.AverageScore)
	fmt.Fprintf(w, "  duration   %s\n", r.Duration.Round(time.Second))
	if r.Error != "" {
		fmt.Fprintf(w, "  error      %s\n", errColor.Sprint(r.Error))
	}
	for _, o := range r.Outcomes {
		if o.Success || o.Skipped {
			continue
		}
		msg := o.Error
		if msg == "" {
			msg = o.Reason
		}
		fmt.Fprintf(w, "  %s %s: %s\n", errColor.Sprint("✗"), o.SubtaskID, strings.TrimSpace(msg))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
