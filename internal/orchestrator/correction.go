package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/events"
	"github.com/ShayCichocki/autopilot/internal/llm"
	"github.com/ShayCichocki/autopilot/internal/structured"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

const (
	correctionPrefix   = "[Correction] "
	correctionFallback = " (fix verification issues)"
	// maxPromptResult caps the execution result quoted in the prompt.
	maxPromptResult = 3000
	maxPromptIssues = 15
)

var correctionOptions = llm.Options{Temperature: 0.3, MaxTokens: 1500}

// CorrectionPlan is the model's answer to a failed verification.
type CorrectionPlan struct {
	CorrectedDescription string   `json:"correctedDescription"`
	Actions              []string `json:"actions"`
	FocusAreas           []string `json:"focusAreas"`
}

// FallbackCorrection is used when no model is configured or its answer
// cannot be parsed.
func FallbackCorrection(st models.Subtask) CorrectionPlan {
	return CorrectionPlan{
		CorrectedDescription: st.Description + correctionFallback,
		Actions:              []string{"Review the generated output", "Fix the reported errors"},
		FocusAreas:           []string{"quality", "tests"},
	}
}

// CorrectedSubtask derives the subtask re-executed by a correction attempt.
// It keeps the id and type so handlers and events still refer to the
// original.
func CorrectedSubtask(st models.Subtask, plan CorrectionPlan) models.Subtask {
	fixed := st
	fixed.Title = correctionPrefix + st.Title
	fixed.Description = plan.CorrectedDescription
	if len(plan.Actions) > 0 {
		fixed.Description += "\n\nActions:\n- " + strings.Join(plan.Actions, "\n- ")
	}
	if len(plan.FocusAreas) > 0 {
		fixed.Description += "\n\nFocus on: " + strings.Join(plan.FocusAreas, ", ")
	}
	return fixed
}

// autoCorrect re-executes st until verification passes or the attempts run
// out. Verification always judges against the original subtask. It returns
// whether a correction passed, the attempts made and the last verification.
func (o *Orchestrator) autoCorrect(ctx context.Context, st models.Subtask, res *models.ExecutionResult, vr *models.VerificationResult, taskCtx map[string]any) (bool, int, *models.VerificationResult) {
	log := o.logger.With(zap.String("session", events.SessionFromContext(ctx)), zap.String("subtask", st.ID))
	last := vr
	attempts := 0
	for attempt := 1; attempt <= o.opts.maxAutoCorrections; attempt++ {
		if err := sleepCtx(ctx, o.opts.correctionDelay); err != nil {
			return false, attempts, last
		}
		attempts = attempt
		o.emit(ctx, events.Event{
			Type:         events.CorrectionStart,
			SubtaskID:    st.ID,
			SubtaskTitle: st.Title,
			SubtaskType:  st.Type,
			Attempt:      attempt,
			Score:        models.IntPtr(last.Score),
		})

		plan := o.planCorrection(ctx, st, res, last)
		fixed := CorrectedSubtask(st, plan)

		o.transition(models.AgentStateExecuting)
		next, err := o.executor.Execute(ctx, fixed, taskCtx)
		if err != nil {
			if ctx.Err() != nil {
				return false, attempts, last
			}
			log.Warn("correction attempt failed to execute", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		res = next

		o.transition(models.AgentStateVerifying)
		last = o.verify(ctx, st, next, attempt)
		if last.Passed {
			return true, attempts, last
		}
		log.Info("correction attempt did not pass",
			zap.Int("attempt", attempt),
			zap.Int("score", last.Score))
	}
	return false, attempts, last
}

func (o *Orchestrator) planCorrection(ctx context.Context, st models.Subtask, res *models.ExecutionResult, vr *models.VerificationResult) CorrectionPlan {
	if o.opts.completer == nil {
		return FallbackCorrection(st)
	}
	text, err := o.opts.completer.Complete(ctx, correctionPrompt(st, res, vr), correctionOptions)
	if err != nil {
		o.logger.Warn("correction planning failed, using fallback", zap.String("subtask", st.ID), zap.Error(err))
		return FallbackCorrection(st)
	}
	plan, ok := structured.Parse[CorrectionPlan](text)
	if !ok || strings.TrimSpace(plan.CorrectedDescription) == "" {
		return FallbackCorrection(st)
	}
	return plan
}

func correctionPrompt(st models.Subtask, res *models.ExecutionResult, vr *models.VerificationResult) string {
	resultJSON, _ := json.MarshalIndent(res, "", "  ")
	issues := vr.Issues
	if len(issues) > maxPromptIssues {
		issues = issues[:maxPromptIssues]
	}
	issuesJSON, _ := json.MarshalIndent(issues, "", "  ")

	var b strings.Builder
	b.WriteString("Analyze these verification issues and produce a correction plan.\n\n")
	fmt.Fprintf(&b, "Original task: %s\n", st.Title)
	fmt.Fprintf(&b, "Description: %s\n", st.Description)
	if len(st.VerificationCriteria) > 0 {
		fmt.Fprintf(&b, "Criteria:\n- %s\n", strings.Join(st.VerificationCriteria, "\n- "))
	}
	fmt.Fprintf(&b, "\nVerification score: %d (needs %d)\n", vr.Score, vr.Threshold)
	fmt.Fprintf(&b, "\nExecution result:\n%s\n", clip(string(resultJSON), maxPromptResult))
	fmt.Fprintf(&b, "\nIssues found:\n%s\n", issuesJSON)
	b.WriteString(`
Respond with JSON only:
{
  "correctedDescription": "updated description that resolves the issues",
  "actions": ["action to take"],
  "focusAreas": ["area"]
}`)
	return b.String()
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n..."
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
