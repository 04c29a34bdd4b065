package models

import "sort"

// Severity ranks a verification issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid returns true if the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// Rank orders severities, lowest number first. Unknown values sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// CheckName identifies a verification check.
type CheckName string

const (
	CheckSyntax        CheckName = "syntax"
	CheckTests         CheckName = "tests"
	CheckLinting       CheckName = "linting"
	CheckSecurity      CheckName = "security"
	CheckCriteria      CheckName = "criteria"
	CheckDocumentation CheckName = "documentation"
)

// Valid returns true if the check name is a known value.
func (c CheckName) Valid() bool {
	switch c {
	case CheckSyntax, CheckTests, CheckLinting, CheckSecurity, CheckCriteria, CheckDocumentation:
		return true
	default:
		return false
	}
}

// Issue is a single problem found by a check.
type Issue struct {
	// Check is the originating check.
	Check CheckName `json:"check"`
	// Type is a short machine-readable category, e.g. "syntax-error".
	Type     string   `json:"type"`
	Message  string   `json:"message"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail,omitempty"`
}

// CheckResult is the scored outcome of one check.
type CheckResult struct {
	Name   CheckName `json:"name"`
	Passed bool      `json:"passed"`
	// Skipped checks are neutral and excluded from the aggregate score.
	Skipped bool    `json:"skipped,omitempty"`
	Issues  []Issue `json:"issues,omitempty"`
	// Score is 0-100.
	Score int `json:"score"`
}

// VerificationResult aggregates all checks run against one execution result.
type VerificationResult struct {
	SubtaskID string        `json:"subtask_id"`
	Checks    []CheckResult `json:"checks"`
	// Score is the rounded mean of the checks that ran.
	Score     int     `json:"score"`
	Passed    bool    `json:"passed"`
	Threshold int     `json:"threshold"`
	Issues    []Issue `json:"issues,omitempty"`
}

// SortIssues orders issues critical first. Equal severities keep their order.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity.Rank() < issues[j].Severity.Rank()
	})
}
