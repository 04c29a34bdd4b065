package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

func samplePlan() *models.Plan {
	return &models.Plan{
		TaskDescription: "add a health endpoint",
		Subtasks: []models.Subtask{
			{ID: "s1", Title: "Write handler", Type: models.SubtaskTypeCode, Complexity: models.ComplexityLow, EstimatedTimeMinutes: 10},
			{ID: "s2", Title: "Test handler", Type: models.SubtaskTypeTest, Complexity: models.ComplexityLow, EstimatedTimeMinutes: 5, Prerequisites: []string{"s1"}},
		},
		Estimation: models.Estimation{TotalSubtasks: 2, EstimatedTimeMinutes: 15, OverallComplexity: models.ComplexityLow, Parallelizable: 1},
	}
}

func TestTaskContext(t *testing.T) {
	assert.Nil(t, taskContext(nil))
	assert.Nil(t, taskContext(map[string]string{}))

	got := taskContext(map[string]string{"language": "go", "target": "staging"})
	want := map[string]any{"language": "go", "target": "staging"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("taskContext mismatch (-want +got):\n%s", diff)
	}
}

func TestWritePlan_JSONLoadsBack(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writePlan(&buf, samplePlan(), "json", false))

	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	loaded, err := loadPlan(path)
	require.NoError(t, err)
	if diff := cmp.Diff(samplePlan(), loaded); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestWritePlan_Formats(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"markdown", "# Plan: add a health endpoint"},
		{"md", "Write handler"},
		{"yaml", "add a health endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writePlan(&buf, samplePlan(), tt.format, false))
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestWritePlan_UnknownFormat(t *testing.T) {
	err := writePlan(&bytes.Buffer{}, samplePlan(), "toml", false)
	assert.ErrorContains(t, err, "unknown format")
}

func TestLoadPlan_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
		return p
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing", filepath.Join(dir, "nope.json"), "read plan"},
		{"not json", write("bad.json", "subtasks: []"), "parse plan"},
		{"empty plan", write("empty.json", `{"task_description":"x","subtasks":[]}`), "no subtasks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadPlan(tt.path)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
