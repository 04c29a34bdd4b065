package models

import (
	"maps"
	"slices"
	"time"
)

// Analysis is the planner's classification of a task.
type Analysis struct {
	Type                  string     `json:"type"`
	Complexity            Complexity `json:"complexity"`
	MainGoal              string     `json:"main_goal"`
	KeyRequirements       []string   `json:"key_requirements,omitempty"`
	TechnologiesSuggested []string   `json:"technologies_suggested,omitempty"`
	PotentialChallenges   []string   `json:"potential_challenges,omitempty"`
	EstimatedSteps        int        `json:"estimated_steps"`
}

// Dependency is the adjacency entry of one subtask.
type Dependency struct {
	// DependsOn lists the subtasks that must finish first.
	DependsOn []string `json:"depends_on"`
	// Blocks lists the subtasks waiting on this one.
	Blocks []string `json:"blocks"`
}

// Estimation summarizes the effort of an ordered plan.
type Estimation struct {
	TotalSubtasks        int        `json:"total_subtasks"`
	EstimatedTimeMinutes int        `json:"estimated_time_minutes"`
	EstimatedTimeHours   float64    `json:"estimated_time_hours"`
	OverallComplexity    Complexity `json:"overall_complexity"`
	// Parallelizable counts subtasks with no prerequisites. It is reported
	// only; subtasks always run one at a time.
	Parallelizable   int  `json:"parallelizable"`
	RequiresResearch bool `json:"requires_research"`
}

// Plan is the ordered, dependency-consistent decomposition of a task.
type Plan struct {
	// TaskDescription is the original task text.
	TaskDescription string `json:"task_description"`
	// Analysis is the classification the subtasks were generated from.
	Analysis Analysis `json:"analysis"`
	// Subtasks is in execution order: prerequisites always come first.
	Subtasks []Subtask `json:"subtasks"`
	// Dependencies maps subtask ID to its adjacency.
	Dependencies map[string]Dependency `json:"dependencies"`
	// Estimation is the effort summary.
	Estimation Estimation `json:"estimation"`
	// Degraded is set when the generated subtasks were replaced by the
	// deterministic fallback plan.
	Degraded bool `json:"degraded,omitempty"`
	// DegradedReason explains why the fallback was used.
	DegradedReason string `json:"degraded_reason,omitempty"`
	// CreatedAt is when planning finished.
	CreatedAt time.Time `json:"created_at"`
}

// Subtask returns the subtask with the given ID.
func (p *Plan) Subtask(id string) (*Subtask, bool) {
	for i := range p.Subtasks {
		if p.Subtasks[i].ID == id {
			return &p.Subtasks[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the plan. A nil plan clones to nil.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Analysis.KeyRequirements = slices.Clone(p.Analysis.KeyRequirements)
	c.Analysis.TechnologiesSuggested = slices.Clone(p.Analysis.TechnologiesSuggested)
	c.Analysis.PotentialChallenges = slices.Clone(p.Analysis.PotentialChallenges)
	if p.Subtasks != nil {
		c.Subtasks = make([]Subtask, len(p.Subtasks))
		for i, st := range p.Subtasks {
			c.Subtasks[i] = st.Clone()
		}
	}
	c.Dependencies = maps.Clone(p.Dependencies)
	for id, d := range c.Dependencies {
		c.Dependencies[id] = Dependency{DependsOn: slices.Clone(d.DependsOn), Blocks: slices.Clone(d.Blocks)}
	}
	return &c
}
