package verification

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

type dangerousPattern struct {
	re       *regexp.Regexp
	kind     string
	message  string
	severity models.Severity
}

var dangerousPatterns = []dangerousPattern{
	{regexp.MustCompile(`\beval\s*\(`), "dynamic-eval", "dynamic code evaluation with eval()", models.SeverityCritical},
	{regexp.MustCompile(`\bexec\s*\(`), "unvalidated-exec", "exec() call without input validation", models.SeverityHigh},
	{regexp.MustCompile(`\binnerHTML\s*=`), "dom-injection", "assignment to innerHTML (XSS risk)", models.SeverityMedium},
	{regexp.MustCompile(`(?i)\bpassword\b.*[:=].*["'][^"']+["']`), "hardcoded-password", "hardcoded password", models.SeverityCritical},
	{regexp.MustCompile(`(?i)\bapi[_-]?key\b.*[:=].*["'][^"']+["']`), "hardcoded-api-key", "hardcoded API key", models.SeverityCritical},
	{regexp.MustCompile(`(?i)\b(?:secret|token)\b\s*[:=]\s*["'][A-Za-z0-9_\-]{16,}["']`), "hardcoded-secret", "hardcoded secret", models.SeverityCritical},
}

// SecurityCheck scans generated files for dangerous patterns, or asks a
// SecurityAnalyzer when one is configured. More findings than maxIssues
// fail the check with a score of 0.
type SecurityCheck struct {
	files     FileReader
	analyzer  SecurityAnalyzer
	exclude   []string
	maxIssues int
}

func (c *SecurityCheck) Name() models.CheckName { return models.CheckSecurity }

func (c *SecurityCheck) Applies(res *models.ExecutionResult) bool {
	return res.Type == models.SubtaskTypeCode
}

func (c *SecurityCheck) Run(ctx context.Context, _ models.Subtask, res *models.ExecutionResult) models.CheckResult {
	out := models.CheckResult{Passed: true, Score: 100}
	var findings []models.Issue
	for _, f := range res.Files {
		if excluded(c.exclude, f.Path) {
			continue
		}
		content, err := contentOf(c.files, f)
		if err != nil {
			out.Issues = append(out.Issues, models.Issue{
				Type:     "verification-error",
				Message:  fmt.Sprintf("read %s: %v", f.Path, err),
				File:     f.Path,
				Severity: models.SeverityLow,
			})
			continue
		}
		if c.analyzer != nil {
			issues, err := c.analyzer.Analyze(ctx, f.Path, content)
			if err != nil {
				out.Issues = append(out.Issues, models.Issue{
					Type:     "verification-error",
					Message:  fmt.Sprintf("analyze %s: %v", f.Path, err),
					File:     f.Path,
					Severity: models.SeverityLow,
				})
				continue
			}
			findings = append(findings, issues...)
			continue
		}
		findings = append(findings, ScanSecurity(f.Path, content)...)
	}

	out.Issues = append(out.Issues, findings...)
	if len(findings) > c.maxIssues {
		out.Passed = false
		out.Score = 0
	}
	return out
}

// ScanSecurity reports each line of content matching a dangerous pattern.
func ScanSecurity(file, content string) []models.Issue {
	var issues []models.Issue
	for i, line := range strings.Split(content, "\n") {
		for _, p := range dangerousPatterns {
			if p.re.MatchString(line) {
				issues = append(issues, models.Issue{
					Type:     p.kind,
					Message:  p.message,
					File:     file,
					Line:     i + 1,
					Severity: p.severity,
					Detail:   strings.TrimSpace(line),
				})
			}
		}
	}
	return issues
}
