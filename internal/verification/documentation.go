package verification

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

const minDocLength = 200

var markdownHeading = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s`)

// DocumentationCheck requires a written document of reasonable length and,
// for Markdown, at least one heading.
type DocumentationCheck struct {
	files FileReader
}

func (c *DocumentationCheck) Name() models.CheckName { return models.CheckDocumentation }

func (c *DocumentationCheck) Applies(res *models.ExecutionResult) bool {
	return res.Type == models.SubtaskTypeDocument
}

func (c *DocumentationCheck) Run(_ context.Context, _ models.Subtask, res *models.ExecutionResult) models.CheckResult {
	if res.File == nil {
		return models.CheckResult{Issues: []models.Issue{{
			Type:     "missing-documentation",
			Message:  "no documentation file was written",
			Severity: models.SeverityHigh,
		}}}
	}

	content, err := contentOf(c.files, *res.File)
	if err != nil {
		return models.CheckResult{Issues: []models.Issue{{
			Type:     "verification-error",
			Message:  fmt.Sprintf("read %s: %v", res.File.Path, err),
			File:     res.File.Path,
			Severity: models.SeverityMedium,
		}}}
	}

	if len(content) < minDocLength {
		return models.CheckResult{Score: 30, Issues: []models.Issue{{
			Type:     "insufficient-documentation",
			Message:  fmt.Sprintf("documentation is only %d characters", len(content)),
			File:     res.File.Path,
			Severity: models.SeverityMedium,
		}}}
	}

	if strings.HasSuffix(strings.ToLower(res.File.Path), ".md") && !markdownHeading.MatchString(content) {
		return models.CheckResult{Score: 60, Issues: []models.Issue{{
			Type:     "poorly-structured",
			Message:  "documentation has no headings",
			File:     res.File.Path,
			Severity: models.SeverityLow,
		}}}
	}
	return models.CheckResult{Passed: true, Score: 100}
}
