package dispatch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/memory"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

const maxResearchQueries = 5

// errNoResearcher is reported per query when research runs without a web
// research collaborator.
var errNoResearcher = errors.New("web research is disabled")

var researchClause = regexp.MustCompile(`(?i)\b(?:research|investigate|learn|look up|search for|information)\s+(?:about\s+|on\s+|into\s+)?([^.,;\n]+)`)

// ResearchHandler learns about the subtask's topics from the web.
type ResearchHandler struct {
	deps Deps
}

func (h *ResearchHandler) Type() models.SubtaskType { return models.SubtaskTypeResearch }

func (h *ResearchHandler) Execute(ctx context.Context, st models.Subtask, _ map[string]any) (*models.ExecutionResult, error) {
	knowledge := &models.Knowledge{Queries: ResearchQueries(st)}
	if h.deps.Researcher == nil {
		// Dependents still run; they just get no gathered knowledge.
		h.deps.Logger.Info("web research disabled, skipping queries", zap.String("subtask", st.ID))
		for _, q := range knowledge.Queries {
			knowledge.Results = append(knowledge.Results, models.ResearchOutcome{Query: q, Error: errNoResearcher.Error()})
		}
		return &models.ExecutionResult{Type: models.SubtaskTypeResearch, Knowledge: knowledge}, nil
	}

	var deliverables []string
	for _, q := range knowledge.Queries {
		outcome := models.ResearchOutcome{Query: q}
		res, err := h.deps.Researcher.LearnAbout(ctx, q)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			outcome.Error = err.Error()
			h.deps.Logger.Warn("research query failed", zap.String("query", q), zap.Error(err))
		case res != nil && res.Success:
			outcome.Success = true
			outcome.KnowledgeCount = res.KnowledgeCount
			knowledge.TotalKnowledge += res.KnowledgeCount
			deliverables = append(deliverables, fmt.Sprintf("Knowledge about: %s", q))
		}
		knowledge.Results = append(knowledge.Results, outcome)
	}

	remember(ctx, h.deps, memory.TypeResearch, knowledge, st, 0.8)

	return &models.ExecutionResult{
		Type:         models.SubtaskTypeResearch,
		Knowledge:    knowledge,
		Deliverables: deliverables,
	}, nil
}

// ResearchQueries returns the title plus phrases introduced by research
// verbs in the description, deduplicated and capped.
func ResearchQueries(st models.Subtask) []string {
	seen := make(map[string]bool)
	var queries []string
	add := func(q string) {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] || len(queries) >= maxResearchQueries {
			return
		}
		seen[key] = true
		queries = append(queries, q)
	}

	add(st.Title)
	for _, m := range researchClause.FindAllStringSubmatch(strings.ToLower(st.Description), -1) {
		add(m[1])
	}
	return queries
}
