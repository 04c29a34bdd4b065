package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ShayCichocki/autopilot/internal/events"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

func TestFormatEvent(t *testing.T) {
	issues := []models.Issue{
		{Severity: models.SeverityCritical, Message: "syntax error in main.go"},
		{Severity: models.SeverityHigh, Message: "tests failed"},
		{Severity: models.SeverityMedium, Message: "lint"},
		{Severity: models.SeverityLow, Message: "missing docs"},
		{Severity: models.SeverityLow, Message: "missing readme"},
	}

	tests := []struct {
		name  string
		event events.Event
		want  []string
	}{
		{
			name:  "subtask start shows progress",
			event: events.Event{Type: events.SubtaskStart, SubtaskTitle: "Write handlers", SubtaskType: models.SubtaskTypeCode, Current: 2, Total: 5},
			want:  []string{"[2/5]", "Write handlers", "(code)"},
		},
		{
			name:  "retry",
			event: events.Event{Type: events.SubtaskRetry, Attempt: 2, Error: "timeout"},
			want:  []string{"retry 2", "timeout"},
		},
		{
			name:  "verification passed",
			event: events.Event{Type: events.VerificationPassed, Score: models.IntPtr(88)},
			want:  []string{"verified, score 88"},
		},
		{
			name:  "verification failed lists first issues",
			event: events.Event{Type: events.VerificationFailed, Score: models.IntPtr(40), Verification: &models.VerificationResult{Issues: issues}},
			want:  []string{"score 40", "[critical] syntax error", "[medium] lint", "... 2 more"},
		},
		{
			name:  "degraded plan",
			event: events.Event{Type: events.TaskPlanned, Plan: &models.Plan{Subtasks: make([]models.Subtask, 3), Degraded: true, DegradedReason: "cycle"}},
			want:  []string{"planned 3 subtasks", "fallback plan: cycle"},
		},
		{
			name:  "missing score",
			event: events.Event{Type: events.VerificationPassed},
			want:  []string{"score n/a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatEvent(tt.event)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}

func TestFormatEvent_Quiet(t *testing.T) {
	for _, typ := range []events.Type{events.SubtaskSuccess, events.VerificationStart, events.TaskComplete} {
		assert.Empty(t, formatEvent(events.Event{Type: typ}), "type %s", typ)
	}
	assert.Empty(t, formatEvent(events.Event{Type: events.TaskPlanned}), "plan event without plan")
}

func TestFormatEvent_IssuesNotTruncatedAtThree(t *testing.T) {
	got := formatEvent(events.Event{
		Type:         events.VerificationFailed,
		Verification: &models.VerificationResult{Issues: make([]models.Issue, 3)},
	})
	assert.NotContains(t, got, "more")
}

func TestPrinter_Emit(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)
	p.Emit(events.Event{Type: events.Paused})
	p.Emit(events.Event{Type: events.SubtaskSuccess})
	p.Emit(events.Event{Type: events.Resumed})

	assert.Equal(t, "⏸ paused\n▶ resumed\n", buf.String())
}

func TestPrintSummary(t *testing.T) {
	tests := []struct {
		name   string
		result *models.SessionResult
		want   []string
		absent []string
	}{
		{
			name: "success",
			result: &models.SessionResult{
				SessionID: "0123456789abcdef", Success: true, Total: 2, Successful: 2,
				AverageScore: 91, Duration: 90 * time.Second,
			},
			want:   []string{"Session 01234567", "completed", "2 total, 2 succeeded", "avg score  91", "1m30s"},
			absent: []string{"error"},
		},
		{
			name: "failures list failing subtasks only",
			result: &models.SessionResult{
				SessionID: "s", Total: 3, Successful: 1, Failed: 1, Skipped: 1,
				Outcomes: []models.SubtaskOutcome{
					{SubtaskID: "a", Success: true},
					{SubtaskID: "b", Error: "verification failed with score 40"},
					{SubtaskID: "c", Skipped: true, Reason: "unmet prerequisites: b"},
				},
			},
			want:   []string{"failed", "b: verification failed with score 40"},
			absent: []string{"a:", "c:"},
		},
		{
			name:   "cancelled",
			result: &models.SessionResult{SessionID: "s", Cancelled: true, Error: "cancelled by user"},
			want:   []string{"cancelled", "error      cancelled by user"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printSummary(&buf, tt.result)
			out := buf.String()
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, a := range tt.absent {
				assert.False(t, strings.Contains(out, a), "unexpected %q in %q", a, out)
			}
		})
	}
}

func TestPrintSummary_Nil(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, nil)
	assert.Zero(t, buf.Len())
}
