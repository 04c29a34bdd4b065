package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/autopilot/internal/graph"
	"github.com/ShayCichocki/autopilot/internal/llm"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

// scriptedCompleter returns canned responses in call order.
type scriptedCompleter struct {
	responses []string
	errs      []error
	prompts   []string
}

func (s *scriptedCompleter) Complete(_ context.Context, prompt string, _ llm.Options) (string, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], err
	}
	return "", err
}

func ids(subtasks []models.Subtask) []string {
	out := make([]string, len(subtasks))
	for i, st := range subtasks {
		out[i] = st.ID
	}
	return out
}

func assertTopological(t *testing.T, subtasks []models.Subtask) {
	t.Helper()
	pos := make(map[string]int)
	for i, st := range subtasks {
		pos[st.ID] = i
	}
	for _, st := range subtasks {
		for _, pre := range st.Prerequisites {
			p, ok := pos[pre]
			require.True(t, ok, "%s references unknown %s", st.ID, pre)
			assert.Less(t, p, pos[st.ID], "%s must come after %s", st.ID, pre)
		}
	}
}

func TestDecomposeTask_Generated(t *testing.T) {
	c := &scriptedCompleter{responses: []string{
		`{"type":"backend","complexity":"high","mainGoal":"Ship an API","technologiesSuggested":["go","sqlite"],"estimatedSteps":4}`,
		"Here you go:\n```json\n[" +
			`{"id":"api","title":"Build API","type":"code","complexity":"high","estimatedTime":"45 minutes","prerequisites":["learn"]},` +
			`{"id":"learn","title":"Research","type":"research","complexity":"low","estimatedTime":15},` +
			`{"title":"Test it","type":"test","prerequisites":["api"],"verificationCriteria":"all green"}` +
			"]\n```",
	}}
	p := New(c)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	plan, err := p.DecomposeTask(context.Background(), "Build a todo API", map[string]any{"language": "go"})
	require.NoError(t, err)

	assert.False(t, plan.Degraded)
	assert.Equal(t, []string{"learn", "api", "subtask-3"}, ids(plan.Subtasks))
	assertTopological(t, plan.Subtasks)

	api, _ := plan.Subtask("api")
	assert.Equal(t, 45, api.EstimatedTimeMinutes)
	assert.Equal(t, models.ComplexityHigh, api.Complexity)

	tst, _ := plan.Subtask("subtask-3")
	assert.Equal(t, models.SubtaskTypeTest, tst.Type)
	assert.Equal(t, 30, tst.EstimatedTimeMinutes)
	assert.Equal(t, []string{"all green"}, tst.VerificationCriteria)

	assert.Equal(t, []string{"api"}, plan.Dependencies["learn"].Blocks)
	assert.Equal(t, []string{"learn"}, plan.Dependencies["api"].DependsOn)

	assert.Equal(t, models.Estimation{
		TotalSubtasks:        3,
		EstimatedTimeMinutes: 90,
		EstimatedTimeHours:   1.5,
		OverallComplexity:    models.ComplexityMedium,
		Parallelizable:       1,
		RequiresResearch:     true,
	}, plan.Estimation)

	require.Len(t, c.prompts, 2)
	assert.Contains(t, c.prompts[0], `"language": "go"`)
	assert.Contains(t, c.prompts[1], "go, sqlite")
}

func TestDecomposeTask_AnalysisFailureUsesDefault(t *testing.T) {
	c := &scriptedCompleter{
		responses: []string{"", `[{"id":"only","title":"Do it","type":"generic"}]`},
		errs:      []error{errors.New("backend down")},
	}
	plan, err := New(c).DecomposeTask(context.Background(), "Do the thing", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultAnalysis("Do the thing"), plan.Analysis)
	assert.Equal(t, []string{"only"}, ids(plan.Subtasks))
}

func TestDecomposeTask_UnparseableSubtasksFallsBack(t *testing.T) {
	c := &scriptedCompleter{responses: []string{
		`{"complexity":"medium","estimatedSteps":5}`,
		"I cannot produce JSON today.",
	}}
	plan, err := New(c).DecomposeTask(context.Background(), "Build a blog", nil)
	require.NoError(t, err)

	assert.True(t, plan.Degraded)
	assert.Equal(t, "subtask list unparseable", plan.DegradedReason)
	assert.Equal(t, []string{
		"subtask-research", "subtask-planning",
		"subtask-impl-1", "subtask-impl-2", "subtask-impl-3",
		"subtask-testing", "subtask-documentation",
	}, ids(plan.Subtasks))
	assertTopological(t, plan.Subtasks)
}

func TestDecomposeTask_CycleFallsBack(t *testing.T) {
	c := &scriptedCompleter{responses: []string{
		`{"complexity":"low","estimatedSteps":3}`,
		`[{"id":"a","prerequisites":["b"]},{"id":"b","prerequisites":["a"]}]`,
	}}
	plan, err := New(c).DecomposeTask(context.Background(), "x", nil)
	require.NoError(t, err)

	assert.True(t, plan.Degraded)
	assert.Contains(t, plan.DegradedReason, graph.ErrCycleDetected.Error())
	assert.Equal(t, []string{"subtask-planning", "subtask-impl-1", "subtask-testing", "subtask-documentation"}, ids(plan.Subtasks))
}

func TestDecomposeTask_UnknownPrerequisiteFallsBack(t *testing.T) {
	c := &scriptedCompleter{responses: []string{
		`{}`,
		`[{"id":"a","prerequisites":["ghost"]}]`,
	}}
	plan, err := New(c).DecomposeTask(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.True(t, plan.Degraded)
	assert.Contains(t, plan.DegradedReason, "unknown dependency")
}

func TestDecomposeTask_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(&scriptedCompleter{}).DecomposeTask(ctx, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateSubtasks_CapsAndDeduplicates(t *testing.T) {
	var items []string
	for i := 0; i < 20; i++ {
		items = append(items, `{"id":"dup","title":"t"}`)
	}
	c := &scriptedCompleter{responses: []string{"[" + strings.Join(items, ",") + "]"}}

	subtasks, reason := New(c).GenerateSubtasks(context.Background(), "x", DefaultAnalysis("x"))
	assert.Empty(t, reason)
	require.Len(t, subtasks, MaxSubtasks)
	seen := make(map[string]bool)
	for _, st := range subtasks {
		assert.False(t, seen[st.ID], "duplicate id %s", st.ID)
		seen[st.ID] = true
		assert.Equal(t, models.SubtaskTypeCode, st.Type)
	}
	assert.Equal(t, "dup", subtasks[0].ID)
	assert.Equal(t, "subtask-2", subtasks[1].ID)
}

func TestFallbackSubtasks(t *testing.T) {
	tests := []struct {
		name     string
		analysis models.Analysis
		want     []string
	}{
		{
			name:     "low complexity skips research",
			analysis: models.Analysis{Complexity: models.ComplexityLow, EstimatedSteps: 2},
			want:     []string{"subtask-planning", "subtask-testing", "subtask-documentation"},
		},
		{
			name:     "steps capped at five implementations",
			analysis: models.Analysis{Complexity: models.ComplexityHigh, EstimatedSteps: 40},
			want: []string{
				"subtask-research", "subtask-planning",
				"subtask-impl-1", "subtask-impl-2", "subtask-impl-3", "subtask-impl-4", "subtask-impl-5",
				"subtask-testing", "subtask-documentation",
			},
		},
		{
			name:     "zero steps uses default",
			analysis: models.Analysis{Complexity: models.ComplexityMedium},
			want: []string{
				"subtask-research", "subtask-planning",
				"subtask-impl-1", "subtask-impl-2", "subtask-impl-3",
				"subtask-testing", "subtask-documentation",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackSubtasks("task", tt.analysis)
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
			ordered, err := OrderSubtasks(got)
			require.NoError(t, err)
			assert.Equal(t, ids(got), ids(ordered))
		})
	}
}

func TestFallbackSubtasks_TestDependsOnAllCode(t *testing.T) {
	got := FallbackSubtasks("task", models.Analysis{Complexity: models.ComplexityMedium, EstimatedSteps: 4})
	plan := models.Plan{Subtasks: got}
	testStep, ok := plan.Subtask("subtask-testing")
	require.True(t, ok)
	assert.Equal(t, []string{"subtask-planning", "subtask-impl-1", "subtask-impl-2"}, testStep.Prerequisites)
	docs, _ := plan.Subtask("subtask-documentation")
	assert.Equal(t, []string{"subtask-testing"}, docs.Prerequisites)
}

func TestEstimateComplexity(t *testing.T) {
	est := EstimateComplexity([]models.Subtask{
		{ID: "a", Complexity: models.ComplexityExpert, EstimatedTimeMinutes: 60},
		{ID: "b", Complexity: models.ComplexityHigh, Prerequisites: []string{"a"}},
	})
	assert.Equal(t, 90, est.EstimatedTimeMinutes)
	assert.Equal(t, 1.5, est.EstimatedTimeHours)
	assert.Equal(t, models.ComplexityExpert, est.OverallComplexity)
	assert.Equal(t, 1, est.Parallelizable)
	assert.False(t, est.RequiresResearch)

	empty := EstimateComplexity(nil)
	assert.Equal(t, 0, empty.TotalSubtasks)
}

func TestIdentifyDependencies_NoInference(t *testing.T) {
	deps, err := IdentifyDependencies([]models.Subtask{
		{ID: "a"},
		{ID: "b", Prerequisites: []string{"a"}},
		{ID: "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, deps["a"].Blocks)
	assert.Equal(t, []string{"a"}, deps["b"].DependsOn)
	assert.Empty(t, deps["b"].Blocks)
	assert.Empty(t, deps["c"].DependsOn)
	assert.Empty(t, deps["c"].Blocks)
}

func TestIdentifyDependencies_UnknownPrerequisite(t *testing.T) {
	_, err := IdentifyDependencies([]models.Subtask{
		{ID: "b", Prerequisites: []string{"missing"}},
	})
	assert.ErrorIs(t, err, graph.ErrUnknownDependency)
}

func TestExport(t *testing.T) {
	subtasks := FallbackSubtasks("Build a CLI", models.Analysis{Complexity: models.ComplexityLow, EstimatedSteps: 3})
	plan := &models.Plan{
		TaskDescription: "Build a CLI",
		Analysis:        models.Analysis{Type: "cli", Complexity: models.ComplexityLow, MainGoal: "cli"},
		Subtasks:        subtasks,
		Estimation:      EstimateComplexity(subtasks),
	}
	deps, err := IdentifyDependencies(subtasks)
	require.NoError(t, err)
	plan.Dependencies = deps

	y, err := MarshalYAML(plan)
	require.NoError(t, err)
	assert.Contains(t, string(y), "task: Build a CLI")
	assert.Contains(t, string(y), "id: subtask-impl-1")
	assert.Contains(t, string(y), "requires_research: false")

	md := Markdown(plan)
	assert.True(t, strings.HasPrefix(md, "# Plan: Build a CLI"))
	assert.Contains(t, md, "| 2 | `subtask-impl-1` |")
	assert.Contains(t, md, "## Document the solution")
}
