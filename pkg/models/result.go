package models

// GeneratedFile is a file written by a code or document handler.
type GeneratedFile struct {
	// Path is relative to the workspace root.
	Path string `json:"path"`
	// FullPath is the absolute location on disk.
	FullPath string `json:"full_path"`
	// Description is the generator's note about the file.
	Description string `json:"description,omitempty"`
	// Content is what was written.
	Content string `json:"content,omitempty"`
}

// TestResults holds parsed test runner counts.
type TestResults struct {
	Passed int    `json:"passed"`
	Failed int    `json:"failed"`
	Total  int    `json:"total"`
	Output string `json:"output,omitempty"`
}

// Knowledge is the aggregate of a research subtask.
type Knowledge struct {
	// Queries are the phrases researched.
	Queries []string `json:"queries"`
	// TotalKnowledge is the number of knowledge items gathered.
	TotalKnowledge int `json:"total_knowledge"`
	// Results holds the per-query outcome.
	Results []ResearchOutcome `json:"results,omitempty"`
}

// ResearchOutcome is the result of researching one phrase.
type ResearchOutcome struct {
	Query          string `json:"query"`
	Success        bool   `json:"success"`
	KnowledgeCount int    `json:"knowledge_count"`
	Error          string `json:"error,omitempty"`
}

// ExecutionResult is produced once per execution attempt of a subtask.
// Only the fields relevant to Type are populated.
type ExecutionResult struct {
	Type      SubtaskType `json:"type"`
	SubtaskID string      `json:"subtask_id"`
	// Attempts is how many tries the dispatcher needed.
	Attempts int `json:"attempts"`

	// code / document
	Files       []GeneratedFile `json:"files,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
	NextSteps   []string        `json:"next_steps,omitempty"`
	File        *GeneratedFile  `json:"file,omitempty"`

	// test / deploy
	TestResults *TestResults `json:"test_results,omitempty"`
	Command     string       `json:"command,omitempty"`
	Output      string       `json:"output,omitempty"`

	// research
	Knowledge *Knowledge `json:"knowledge,omitempty"`

	// generic
	ActionPlan string `json:"action_plan,omitempty"`

	// Deliverables are the produced artifacts, described as free text.
	Deliverables []string `json:"deliverables,omitempty"`
}

// AllFiles returns the generated files, including the single document file.
func (r *ExecutionResult) AllFiles() []GeneratedFile {
	if r.File == nil {
		return r.Files
	}
	files := make([]GeneratedFile, 0, len(r.Files)+1)
	files = append(files, r.Files...)
	return append(files, *r.File)
}
