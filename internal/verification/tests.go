package verification

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ShayCichocki/autopilot/internal/exec"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

// TestsCheck runs the project tests and scores the pass ratio.
type TestsCheck struct {
	runner  exec.CommandRunner
	command string
	timeout time.Duration
}

func (c *TestsCheck) Name() models.CheckName { return models.CheckTests }

func (c *TestsCheck) Applies(res *models.ExecutionResult) bool {
	return res.Type == models.SubtaskTypeCode || res.Type == models.SubtaskTypeTest
}

func (c *TestsCheck) Run(ctx context.Context, _ models.Subtask, res *models.ExecutionResult) models.CheckResult {
	command := c.command
	if res.Type == models.SubtaskTypeTest && res.Command != "" {
		command = res.Command
	}
	if command == "" || c.runner == nil {
		return models.CheckResult{Passed: true, Skipped: true}
	}

	out := models.CheckResult{}
	run, err := c.runner.Run(ctx, command, exec.RunOptions{Timeout: c.timeout})
	if run == nil {
		out.Issues = append(out.Issues, models.Issue{
			Type:     "verification-error",
			Message:  fmt.Sprintf("run %q: %v", command, err),
			Severity: models.SeverityMedium,
		})
		return out
	}
	if errors.Is(err, exec.ErrTimeout) || run.TimedOut {
		out.Issues = append(out.Issues, models.Issue{
			Type:     "test-failure",
			Message:  fmt.Sprintf("tests timed out after %s", c.timeout),
			Detail:   tail(run.Combined(), 500),
			Severity: models.SeverityHigh,
		})
		return out
	}

	counts := exec.ParseTestOutput(run.Combined())
	if counts.Total > 0 {
		out.Score = int(math.Round(100 * float64(counts.Passed) / float64(counts.Total)))
	}
	out.Passed = run.Success() && counts.Total > 0 && counts.Passed == counts.Total

	switch {
	case out.Passed:
	case counts.Total == 0 && run.Success():
		out.Issues = append(out.Issues, models.Issue{
			Type:     "no-tests",
			Message:  "no test results found in output",
			Severity: models.SeverityMedium,
		})
	case !run.Success() && counts.Failed == 0:
		out.Issues = append(out.Issues, models.Issue{
			Type:     "test-failure",
			Message:  fmt.Sprintf("%q exited with code %d", command, run.ExitCode),
			Detail:   tail(run.Combined(), 500),
			Severity: models.SeverityHigh,
		})
	default:
		out.Issues = append(out.Issues, models.Issue{
			Type:     "test-failure",
			Message:  fmt.Sprintf("%d of %d tests failed", counts.Failed, counts.Total),
			Detail:   tail(run.Combined(), 500),
			Severity: models.SeverityHigh,
		})
	}
	return out
}

// tail keeps the last n bytes, where test runners print their summary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
