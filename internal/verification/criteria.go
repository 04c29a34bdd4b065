package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/llm"
	"github.com/ShayCichocki/autopilot/internal/structured"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

const (
	// judgeUnreadableScore is used when the judge answers but not in JSON.
	judgeUnreadableScore = 75
	// judgeErrorScore is used when the judge cannot be reached.
	judgeErrorScore = 70
	maxResultChars  = 6000
)

var judgeOptions = llm.Options{Temperature: 0.2, MaxTokens: 1500}

const criteriaPrompt = `Check whether the result satisfies the acceptance criteria.

Task: %s
Description: %s

Verification criteria:
%s

Expected deliverables:
%s

Result:
%s

Were all criteria met? Return ONLY a JSON object with this exact structure:
{
  "fulfilled": true,
  "criteriaResults": [
    {"criterion": "criterion text", "met": true, "explanation": "why or why not"}
  ],
  "overallScore": 0
}`

type criteriaVerdict struct {
	Fulfilled       *bool `json:"fulfilled"`
	CriteriaResults []struct {
		Criterion   string `json:"criterion"`
		Met         bool   `json:"met"`
		Explanation string `json:"explanation"`
	} `json:"criteriaResults"`
	OverallScore float64 `json:"overallScore"`
}

// CriteriaCheck asks the completer whether the subtask's criteria and
// deliverables are met. Judge failures degrade to a passing partial score.
type CriteriaCheck struct {
	llm    llm.Completer
	logger *zap.Logger
}

func (c *CriteriaCheck) Name() models.CheckName { return models.CheckCriteria }

func (c *CriteriaCheck) Applies(*models.ExecutionResult) bool { return true }

func (c *CriteriaCheck) Run(ctx context.Context, st models.Subtask, res *models.ExecutionResult) models.CheckResult {
	if !st.HasCriteria() {
		return models.CheckResult{Passed: true, Score: 100}
	}
	if c.llm == nil {
		return models.CheckResult{Passed: true, Score: judgeErrorScore}
	}

	resultJSON, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		resultJSON = []byte("{}")
	}
	result := string(resultJSON)
	if len(result) > maxResultChars {
		result = result[:maxResultChars] + "\n..."
	}

	text, err := c.llm.Complete(ctx, fmt.Sprintf(criteriaPrompt,
		st.Title, st.Description,
		strings.Join(st.VerificationCriteria, "\n"),
		strings.Join(st.Deliverables, "\n"),
		result), judgeOptions)
	if err != nil {
		c.logger.Warn("criteria judge failed", zap.String("subtask", st.ID), zap.Error(err))
		return models.CheckResult{
			Passed: true,
			Score:  judgeErrorScore,
			Issues: []models.Issue{{
				Type:     "verification-error",
				Message:  err.Error(),
				Severity: models.SeverityLow,
			}},
		}
	}

	verdict, ok := structured.Parse[criteriaVerdict](text)
	if !ok || verdict.Fulfilled == nil {
		c.logger.Warn("criteria verdict unreadable", zap.String("subtask", st.ID))
		return models.CheckResult{Passed: true, Score: judgeUnreadableScore}
	}

	out := models.CheckResult{Passed: *verdict.Fulfilled}
	switch {
	case verdict.OverallScore > 0:
		out.Score = clampScore(int(verdict.OverallScore + 0.5))
	case out.Passed:
		out.Score = 100
	default:
		out.Score = 50
	}
	for _, cr := range verdict.CriteriaResults {
		if cr.Met {
			continue
		}
		out.Issues = append(out.Issues, models.Issue{
			Type:     "criteria-not-met",
			Message:  fmt.Sprintf("criterion not met: %s", cr.Criterion),
			Detail:   cr.Explanation,
			Severity: models.SeverityMedium,
		})
	}
	return out
}

func clampScore(s int) int {
	return min(100, max(0, s))
}
