// Package planner decomposes a task description into an ordered plan of
// typed subtasks.
//
// Planning never fails because of a bad completion: an unparseable analysis
// falls back to a default classification, and an unparseable or invalid
// subtask list (unknown prerequisites, cycles) is replaced by a fixed
// research, design, implement, test, document plan. Such plans are marked
// Degraded.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/graph"
	"github.com/ShayCichocki/autopilot/internal/llm"
	"github.com/ShayCichocki/autopilot/internal/structured"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

const (
	// MaxSubtasks caps the generated subtask list.
	MaxSubtasks = 15
	// maxFallbackSteps caps analysis.EstimatedSteps in the fallback plan.
	maxFallbackSteps = 10
	// maxImplSteps caps implementation steps in the fallback plan.
	maxImplSteps = 5

	defaultEstimatedSteps   = 5
	defaultEstimatedMinutes = 30
)

// completionOptions are used for every planner call.
var completionOptions = llm.Options{Temperature: 0.3, MaxTokens: 2000}

// Planner turns task descriptions into plans.
type Planner struct {
	completer llm.Completer
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Planner backed by a completer.
func New(c llm.Completer, opts ...Option) *Planner {
	p := &Planner{completer: c, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DecomposeTask analyzes description, generates and validates subtasks,
// orders them and estimates effort. It only fails if ctx is done.
func (p *Planner) DecomposeTask(ctx context.Context, description string, taskCtx map[string]any) (*models.Plan, error) {
	analysis := p.Analyze(ctx, description, taskCtx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	subtasks, reason := p.GenerateSubtasks(ctx, description, analysis)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g, ordered, err := p.buildGraph(subtasks)
	if err != nil {
		p.logger.Warn("generated plan rejected, using fallback plan", zap.Error(err))
		reason = fmt.Sprintf("generated plan rejected: %v", err)
		if g, ordered, err = p.buildGraph(FallbackSubtasks(description, analysis)); err != nil {
			return nil, fmt.Errorf("order fallback plan: %w", err)
		}
	}

	plan := &models.Plan{
		TaskDescription: description,
		Analysis:        analysis,
		Subtasks:        ordered,
		Dependencies:    g.Dependencies(),
		Estimation:      EstimateComplexity(ordered),
		Degraded:        reason != "",
		DegradedReason:  reason,
		CreatedAt:       p.now(),
	}
	p.logger.Info("plan created",
		zap.Int("subtasks", len(plan.Subtasks)),
		zap.String("complexity", string(plan.Estimation.OverallComplexity)),
		zap.Bool("degraded", plan.Degraded))
	return plan, nil
}

// DefaultAnalysis is used when the analysis completion is unusable.
func DefaultAnalysis(description string) models.Analysis {
	return models.Analysis{
		Type:           "unknown",
		Complexity:     models.ComplexityMedium,
		MainGoal:       description,
		EstimatedSteps: defaultEstimatedSteps,
	}
}

// Analyze classifies the task. Completion or parse failures yield
// DefaultAnalysis.
func (p *Planner) Analyze(ctx context.Context, description string, taskCtx map[string]any) models.Analysis {
	contextJSON := "{}"
	if len(taskCtx) > 0 {
		if b, err := json.MarshalIndent(taskCtx, "", "  "); err == nil {
			contextJSON = string(b)
		}
	}

	text, err := p.completer.Complete(ctx, fmt.Sprintf(analysisPrompt, description, contextJSON), completionOptions)
	if err != nil {
		p.logger.Warn("task analysis failed, using default", zap.Error(err))
		return DefaultAnalysis(description)
	}
	resp, ok := structured.Parse[analysisResponse](text)
	if !ok {
		p.logger.Warn("task analysis unparseable, using default")
		return DefaultAnalysis(description)
	}

	a := models.Analysis{
		Type:                  strings.TrimSpace(resp.Type),
		Complexity:            models.ParseComplexity(resp.Complexity),
		MainGoal:              strings.TrimSpace(resp.MainGoal),
		KeyRequirements:       resp.KeyRequirements,
		TechnologiesSuggested: resp.TechnologiesSuggested,
		PotentialChallenges:   resp.PotentialChallenges,
		EstimatedSteps:        int(resp.EstimatedSteps),
	}
	if a.Type == "" {
		a.Type = "unknown"
	}
	if a.MainGoal == "" {
		a.MainGoal = description
	}
	if a.EstimatedSteps <= 0 {
		a.EstimatedSteps = defaultEstimatedSteps
	}
	return a
}

// GenerateSubtasks asks for a subtask list. If the completion fails or
// cannot be parsed into at least one subtask, the fallback plan is returned
// together with a non-empty degradation reason.
func (p *Planner) GenerateSubtasks(ctx context.Context, description string, analysis models.Analysis) ([]models.Subtask, string) {
	prompt := fmt.Sprintf(subtasksPrompt,
		description,
		analysis.Type,
		analysis.Complexity,
		analysis.MainGoal,
		strings.Join(analysis.TechnologiesSuggested, ", "),
		MaxSubtasks)

	text, err := p.completer.Complete(ctx, prompt, completionOptions)
	if err != nil {
		p.logger.Warn("subtask generation failed, using fallback plan", zap.Error(err))
		return FallbackSubtasks(description, analysis), fmt.Sprintf("subtask generation failed: %v", err)
	}
	resp, ok := structured.Parse[[]subtaskResponse](text)
	if !ok || len(resp) == 0 {
		p.logger.Warn("subtask list unparseable, using fallback plan")
		return FallbackSubtasks(description, analysis), "subtask list unparseable"
	}
	if len(resp) > MaxSubtasks {
		resp = resp[:MaxSubtasks]
	}
	return normalizeSubtasks(resp), ""
}

// normalizeSubtasks fills defaults and makes IDs unique.
func normalizeSubtasks(resp []subtaskResponse) []models.Subtask {
	seen := make(map[string]bool, len(resp))
	out := make([]models.Subtask, 0, len(resp))
	for i, r := range resp {
		id := strings.TrimSpace(r.ID)
		if id == "" || seen[id] {
			id = uniqueID(fmt.Sprintf("subtask-%d", i+1), seen)
		}
		seen[id] = true

		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = fmt.Sprintf("Subtask %d", i+1)
		}
		minutes := int(r.EstimatedTime)
		if minutes <= 0 {
			minutes = defaultEstimatedMinutes
		}

		out = append(out, models.Subtask{
			ID:                   id,
			Title:                title,
			Description:          strings.TrimSpace(r.Description),
			Type:                 models.ParseSubtaskType(r.Type),
			Complexity:           models.ParseComplexity(r.Complexity),
			EstimatedTimeMinutes: minutes,
			Prerequisites:        r.Prerequisites,
			Deliverables:         r.Deliverables,
			VerificationCriteria: r.VerificationCriteria,
		})
	}
	return out
}

func uniqueID(base string, seen map[string]bool) string {
	id := base
	for n := 2; seen[id]; n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	return id
}

// FallbackSubtasks builds the deterministic plan: research (unless the task
// is low complexity), design, up to five chained implementation steps, a
// test step after every code step, and documentation after the tests.
func FallbackSubtasks(description string, analysis models.Analysis) []models.Subtask {
	steps := analysis.EstimatedSteps
	if steps <= 0 {
		steps = defaultEstimatedSteps
	}
	steps = min(steps, maxFallbackSteps)

	var subtasks []models.Subtask
	research := analysis.Complexity != models.ComplexityLow

	if research {
		subtasks = append(subtasks, models.Subtask{
			ID:                   "subtask-research",
			Title:                "Research best practices and solutions",
			Description:          "Research information about: " + description,
			Type:                 models.SubtaskTypeResearch,
			Complexity:           models.ComplexityLow,
			EstimatedTimeMinutes: 15,
			Deliverables:         []string{"Knowledge acquired", "Patterns identified"},
			VerificationCriteria: []string{"Information saved to memory"},
		})
	}

	planning := models.Subtask{
		ID:                   "subtask-planning",
		Title:                "Design architecture and structure",
		Description:          "Design the code structure and the components needed for: " + description,
		Type:                 models.SubtaskTypeCode,
		Complexity:           models.ComplexityMedium,
		EstimatedTimeMinutes: 20,
		Deliverables:         []string{"Structure defined", "Components identified"},
		VerificationCriteria: []string{"Clear architecture"},
	}
	if research {
		planning.Prerequisites = []string{"subtask-research"}
	}
	subtasks = append(subtasks, planning)

	for i := 0; i < min(steps-2, maxImplSteps); i++ {
		prev := "subtask-planning"
		if i > 0 {
			prev = fmt.Sprintf("subtask-impl-%d", i)
		}
		subtasks = append(subtasks, models.Subtask{
			ID:                   fmt.Sprintf("subtask-impl-%d", i+1),
			Title:                fmt.Sprintf("Implement component %d", i+1),
			Description:          fmt.Sprintf("Build part %d of the solution for: %s", i+1, description),
			Type:                 models.SubtaskTypeCode,
			Complexity:           models.ComplexityMedium,
			EstimatedTimeMinutes: 30,
			Prerequisites:        []string{prev},
			Deliverables:         []string{"Working code"},
			VerificationCriteria: []string{"Code without errors"},
		})
	}

	var codeIDs []string
	for _, st := range subtasks {
		if st.Type == models.SubtaskTypeCode {
			codeIDs = append(codeIDs, st.ID)
		}
	}
	subtasks = append(subtasks, models.Subtask{
		ID:                   "subtask-testing",
		Title:                "Write tests and verify behavior",
		Description:          "Write tests and verify that everything works correctly",
		Type:                 models.SubtaskTypeTest,
		Complexity:           models.ComplexityMedium,
		EstimatedTimeMinutes: 25,
		Prerequisites:        codeIDs,
		Deliverables:         []string{"Complete tests", "Adequate coverage"},
		VerificationCriteria: []string{"Tests passing"},
	})

	subtasks = append(subtasks, models.Subtask{
		ID:                   "subtask-documentation",
		Title:                "Document the solution",
		Description:          "Write clear documentation of what was implemented",
		Type:                 models.SubtaskTypeDocument,
		Complexity:           models.ComplexityLow,
		EstimatedTimeMinutes: 15,
		Prerequisites:        []string{"subtask-testing"},
		Deliverables:         []string{"README", "Code comments"},
		VerificationCriteria: []string{"Complete documentation"},
	})
	return subtasks
}

// IdentifyDependencies builds the dependsOn/blocks adjacency from declared
// prerequisites only. A prerequisite outside the plan is an error.
func IdentifyDependencies(subtasks []models.Subtask) (map[string]models.Dependency, error) {
	g := graph.New()
	if err := g.Build(subtasks); err != nil {
		return nil, err
	}
	return g.Dependencies(), nil
}

// OrderSubtasks returns the subtasks in dependency order. It fails with
// graph.ErrCycleDetected, graph.ErrUnknownDependency or graph.ErrDuplicateID
// rather than returning an order that violates a prerequisite.
func OrderSubtasks(subtasks []models.Subtask) ([]models.Subtask, error) {
	g := graph.New()
	if err := g.Build(subtasks); err != nil {
		return nil, err
	}
	return g.Ordered()
}

// buildGraph validates subtasks and returns their graph with the ordered
// subtasks.
func (p *Planner) buildGraph(subtasks []models.Subtask) (*graph.DependencyGraph, []models.Subtask, error) {
	g := graph.New()
	g.SetLogger(p.logger)
	if err := g.Build(subtasks); err != nil {
		return nil, nil, err
	}
	ordered, err := g.Ordered()
	if err != nil {
		return nil, nil, err
	}
	return g, ordered, nil
}

// EstimateComplexity summarizes effort over the ordered subtasks.
func EstimateComplexity(ordered []models.Subtask) models.Estimation {
	est := models.Estimation{
		TotalSubtasks:     len(ordered),
		OverallComplexity: models.ComplexityMedium,
	}
	if len(ordered) == 0 {
		return est
	}

	score := 0
	for _, st := range ordered {
		minutes := st.EstimatedTimeMinutes
		if minutes <= 0 {
			minutes = defaultEstimatedMinutes
		}
		est.EstimatedTimeMinutes += minutes
		score += st.Complexity.Score()
		if len(st.Prerequisites) == 0 {
			est.Parallelizable++
		}
		if st.Type == models.SubtaskTypeResearch {
			est.RequiresResearch = true
		}
	}
	est.EstimatedTimeHours = math.Round(float64(est.EstimatedTimeMinutes)/60*10) / 10
	est.OverallComplexity = models.ComplexityFromScore(float64(score) / float64(len(ordered)))
	return est
}
