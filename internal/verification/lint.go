package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/autopilot/internal/exec"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

// LintCheck runs a JSON-reporting linter. It is neutral when no linter is
// configured, installed, or its output cannot be read.
type LintCheck struct {
	runner    exec.CommandRunner
	command   string
	timeout   time.Duration
	maxErrors int
}

func (c *LintCheck) Name() models.CheckName { return models.CheckLinting }

func (c *LintCheck) Applies(res *models.ExecutionResult) bool {
	return res.Type == models.SubtaskTypeCode
}

func (c *LintCheck) Run(ctx context.Context, _ models.Subtask, _ *models.ExecutionResult) models.CheckResult {
	skipped := models.CheckResult{Passed: true, Skipped: true}
	fields := strings.Fields(c.command)
	if len(fields) == 0 || c.runner == nil || !c.runner.LookPath(fields[0]) {
		return skipped
	}

	run, _ := c.runner.Run(ctx, c.command, exec.RunOptions{Timeout: c.timeout})
	if run == nil || run.TimedOut {
		return skipped
	}
	errCount, warnCount, ok := parseLintReport(run.Stdout)
	if !ok {
		return skipped
	}

	out := models.CheckResult{
		Passed: errCount <= c.maxErrors,
		Score:  max(0, 100-5*errCount),
	}
	if errCount > 0 {
		severity := models.SeverityLow
		if !out.Passed {
			severity = models.SeverityMedium
		}
		out.Issues = append(out.Issues, models.Issue{
			Type:     "linting",
			Message:  fmt.Sprintf("%d lint errors, %d warnings (max %d errors)", errCount, warnCount, c.maxErrors),
			Severity: severity,
		})
	}
	return out
}

type eslintFile struct {
	ErrorCount   int `json:"errorCount"`
	WarningCount int `json:"warningCount"`
}

type golangciReport struct {
	Issues []struct {
		Severity string `json:"Severity"`
	} `json:"Issues"`
}

// parseLintReport reads eslint's array format or golangci-lint's object
// format.
func parseLintReport(stdout string) (errors, warnings int, ok bool) {
	stdout = strings.TrimSpace(stdout)
	if stdout == "" {
		return 0, 0, false
	}
	if strings.HasPrefix(stdout, "[") {
		var files []eslintFile
		if err := json.Unmarshal([]byte(stdout), &files); err != nil {
			return 0, 0, false
		}
		for _, f := range files {
			errors += f.ErrorCount
			warnings += f.WarningCount
		}
		return errors, warnings, true
	}

	var report golangciReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		return 0, 0, false
	}
	for _, issue := range report.Issues {
		if strings.EqualFold(issue.Severity, "warning") {
			warnings++
		} else {
			errors++
		}
	}
	return errors, warnings, true
}
