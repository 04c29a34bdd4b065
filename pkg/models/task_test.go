package models

import "testing"

func TestSubtaskType_Valid(t *testing.T) {
	tests := []struct {
		name string
		typ  SubtaskType
		want bool
	}{
		{"research is valid", SubtaskTypeResearch, true},
		{"code is valid", SubtaskTypeCode, true},
		{"test is valid", SubtaskTypeTest, true},
		{"document is valid", SubtaskTypeDocument, true},
		{"deploy is valid", SubtaskTypeDeploy, true},
		{"generic is valid", SubtaskTypeGeneric, true},
		{"empty string is invalid", SubtaskType(""), false},
		{"uppercase is invalid", SubtaskType("CODE"), false},
		{"unknown is invalid", SubtaskType("review"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.Valid(); got != tt.want {
				t.Errorf("SubtaskType(%q).Valid() = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestParseSubtaskType(t *testing.T) {
	tests := []struct {
		in   string
		want SubtaskType
	}{
		{"", SubtaskTypeCode},
		{"research", SubtaskTypeResearch},
		{" Test ", SubtaskTypeTest},
		{"DEPLOY", SubtaskTypeDeploy},
		{"analysis", SubtaskTypeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseSubtaskType(tt.in); got != tt.want {
				t.Errorf("ParseSubtaskType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSubtask_HasCriteria(t *testing.T) {
	if (&Subtask{}).HasCriteria() {
		t.Error("empty subtask should have no criteria")
	}
	if !(&Subtask{Deliverables: []string{"main.go"}}).HasCriteria() {
		t.Error("deliverables alone should count as criteria")
	}
	if !(&Subtask{VerificationCriteria: []string{"compiles"}}).HasCriteria() {
		t.Error("verification criteria should count")
	}
}

func TestPlan_Subtask(t *testing.T) {
	p := Plan{Subtasks: []Subtask{{ID: "a"}, {ID: "b", Title: "second"}}}

	got, ok := p.Subtask("b")
	if !ok || got.Title != "second" {
		t.Errorf("Subtask(b) = %+v, %v", got, ok)
	}
	if _, ok := p.Subtask("missing"); ok {
		t.Error("Subtask(missing) should not be found")
	}
}
