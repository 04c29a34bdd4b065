package models

import "testing"

func TestSortIssues(t *testing.T) {
	issues := []Issue{
		{Message: "l", Severity: SeverityLow},
		{Message: "m1", Severity: SeverityMedium},
		{Message: "c", Severity: SeverityCritical},
		{Message: "h", Severity: SeverityHigh},
		{Message: "m2", Severity: SeverityMedium},
	}
	SortIssues(issues)

	want := []string{"c", "h", "m1", "m2", "l"}
	for i, w := range want {
		if issues[i].Message != w {
			t.Errorf("issues[%d] = %q, want %q", i, issues[i].Message, w)
		}
	}
}

func TestExecutionResult_AllFiles(t *testing.T) {
	r := ExecutionResult{Files: []GeneratedFile{{Path: "a.go"}}}
	if got := len(r.AllFiles()); got != 1 {
		t.Errorf("len(AllFiles()) = %d, want 1", got)
	}
	r.File = &GeneratedFile{Path: "README.md"}
	files := r.AllFiles()
	if len(files) != 2 || files[1].Path != "README.md" {
		t.Errorf("AllFiles() = %+v", files)
	}
}
