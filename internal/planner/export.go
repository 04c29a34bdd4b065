package planner

import (
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

type planDoc struct {
	Task       string       `yaml:"task"`
	Type       string       `yaml:"type"`
	Complexity string       `yaml:"complexity"`
	Goal       string       `yaml:"goal"`
	Degraded   string       `yaml:"degraded,omitempty"`
	Estimation estimateDoc  `yaml:"estimation"`
	Subtasks   []subtaskDoc `yaml:"subtasks"`
}

type estimateDoc struct {
	Subtasks         int     `yaml:"subtasks"`
	Minutes          int     `yaml:"minutes"`
	Hours            float64 `yaml:"hours"`
	Complexity       string  `yaml:"complexity"`
	Parallelizable   int     `yaml:"parallelizable"`
	RequiresResearch bool    `yaml:"requires_research"`
}

type subtaskDoc struct {
	ID            string   `yaml:"id"`
	Title         string   `yaml:"title"`
	Type          string   `yaml:"type"`
	Complexity    string   `yaml:"complexity"`
	Minutes       int      `yaml:"minutes"`
	Description   string   `yaml:"description,omitempty"`
	Prerequisites []string `yaml:"prerequisites,omitempty"`
	Blocks        []string `yaml:"blocks,omitempty"`
	Deliverables  []string `yaml:"deliverables,omitempty"`
	Criteria      []string `yaml:"verification_criteria,omitempty"`
}

// MarshalYAML renders a plan as YAML in execution order.
func MarshalYAML(plan *models.Plan) ([]byte, error) {
	doc := planDoc{
		Task:       plan.TaskDescription,
		Type:       plan.Analysis.Type,
		Complexity: string(plan.Analysis.Complexity),
		Goal:       plan.Analysis.MainGoal,
		Degraded:   plan.DegradedReason,
		Estimation: estimateDoc{
			Subtasks:         plan.Estimation.TotalSubtasks,
			Minutes:          plan.Estimation.EstimatedTimeMinutes,
			Hours:            plan.Estimation.EstimatedTimeHours,
			Complexity:       string(plan.Estimation.OverallComplexity),
			Parallelizable:   plan.Estimation.Parallelizable,
			RequiresResearch: plan.Estimation.RequiresResearch,
		},
	}
	for _, st := range plan.Subtasks {
		doc.Subtasks = append(doc.Subtasks, subtaskDoc{
			ID:            st.ID,
			Title:         st.Title,
			Type:          string(st.Type),
			Complexity:    string(st.Complexity),
			Minutes:       st.EstimatedTimeMinutes,
			Description:   st.Description,
			Prerequisites: st.Prerequisites,
			Blocks:        plan.Dependencies[st.ID].Blocks,
			Deliverables:  st.Deliverables,
			Criteria:      st.VerificationCriteria,
		})
	}
	return yaml.Marshal(doc)
}

// Markdown renders a plan as a Markdown document.
func Markdown(plan *models.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Plan: %s\n\n", plan.TaskDescription)
	if plan.Degraded {
		fmt.Fprintf(&b, "> Fallback plan: %s\n\n", plan.DegradedReason)
	}
	est := plan.Estimation
	fmt.Fprintf(&b, "- **Type:** %s\n", plan.Analysis.Type)
	fmt.Fprintf(&b, "- **Goal:** %s\n", plan.Analysis.MainGoal)
	fmt.Fprintf(&b, "- **Subtasks:** %d (%d without prerequisites)\n", est.TotalSubtasks, est.Parallelizable)
	fmt.Fprintf(&b, "- **Estimate:** %d min (%.1f h), %s complexity\n", est.EstimatedTimeMinutes, est.EstimatedTimeHours, est.OverallComplexity)
	if est.RequiresResearch {
		b.WriteString("- **Requires research**\n")
	}

	b.WriteString("\n| # | ID | Title | Type | Complexity | Min | After |\n")
	b.WriteString("|---|----|-------|------|------------|-----|-------|\n")
	for i, st := range plan.Subtasks {
		after := "-"
		if len(st.Prerequisites) > 0 {
			after = strings.Join(st.Prerequisites, ", ")
		}
		fmt.Fprintf(&b, "| %d | `%s` | %s | %s | %s | %d | %s |\n",
			i+1, st.ID, escapeCell(st.Title), st.Type, st.Complexity, st.EstimatedTimeMinutes, after)
	}

	for _, st := range plan.Subtasks {
		fmt.Fprintf(&b, "\n## %s\n\n", st.Title)
		if st.Description != "" {
			fmt.Fprintf(&b, "%s\n", st.Description)
		}
		writeList(&b, "Deliverables", st.Deliverables)
		writeList(&b, "Verification", st.VerificationCriteria)
	}
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n**%s**\n\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
