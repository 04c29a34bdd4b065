package models

import "slices"

// SubtaskType selects the handler that executes a subtask.
type SubtaskType string

const (
	// SubtaskTypeResearch gathers knowledge about a topic from the web.
	SubtaskTypeResearch SubtaskType = "research"
	// SubtaskTypeCode generates source files.
	SubtaskTypeCode SubtaskType = "code"
	// SubtaskTypeTest runs the project test suite.
	SubtaskTypeTest SubtaskType = "test"
	// SubtaskTypeDocument writes Markdown documentation.
	SubtaskTypeDocument SubtaskType = "document"
	// SubtaskTypeDeploy runs an install, build, container or push command.
	SubtaskTypeDeploy SubtaskType = "deploy"
	// SubtaskTypeGeneric produces an advisory action plan with no side effects.
	SubtaskTypeGeneric SubtaskType = "generic"
)

// Valid returns true if the type is a known value.
func (t SubtaskType) Valid() bool {
	switch t {
	case SubtaskTypeResearch, SubtaskTypeCode, SubtaskTypeTest,
		SubtaskTypeDocument, SubtaskTypeDeploy, SubtaskTypeGeneric:
		return true
	default:
		return false
	}
}

// ParseSubtaskType normalizes a free-text type. Empty input maps to code,
// anything unrecognized maps to generic.
func ParseSubtaskType(s string) SubtaskType {
	if s == "" {
		return SubtaskTypeCode
	}
	t := SubtaskType(normalize(s))
	if t.Valid() {
		return t
	}
	return SubtaskTypeGeneric
}

// Subtask is one executable unit of work inside a Plan.
type Subtask struct {
	// ID is unique within the owning plan.
	ID string `json:"id"`
	// Title is the short name of the subtask.
	Title string `json:"title"`
	// Description is the full instruction handed to the handler.
	Description string `json:"description"`
	// Type selects the handler.
	Type SubtaskType `json:"type"`
	// Complexity is the planner's difficulty estimate.
	Complexity Complexity `json:"complexity"`
	// EstimatedTimeMinutes is the planner's duration estimate.
	EstimatedTimeMinutes int `json:"estimated_time_minutes"`
	// Prerequisites lists subtask IDs in the same plan that must succeed first.
	Prerequisites []string `json:"prerequisites,omitempty"`
	// Deliverables lists free-text expectations of the output.
	Deliverables []string `json:"deliverables,omitempty"`
	// VerificationCriteria lists acceptance statements checked after execution.
	VerificationCriteria []string `json:"verification_criteria,omitempty"`
}

// Clone returns a copy that shares no slices with s.
func (s Subtask) Clone() Subtask {
	s.Prerequisites = slices.Clone(s.Prerequisites)
	s.Deliverables = slices.Clone(s.Deliverables)
	s.VerificationCriteria = slices.Clone(s.VerificationCriteria)
	return s
}

// HasCriteria reports whether the subtask declares anything a judge can check.
func (s *Subtask) HasCriteria() bool {
	return len(s.VerificationCriteria) > 0 || len(s.Deliverables) > 0
}
