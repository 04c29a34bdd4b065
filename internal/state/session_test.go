package state

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

func samplePlan() *models.Plan {
	return &models.Plan{
		TaskDescription: "build a todo api",
		Subtasks: []models.Subtask{
			{ID: "s1", Title: "Research", Type: models.SubtaskTypeResearch},
			{ID: "s2", Title: "Implement", Type: models.SubtaskTypeCode, Prerequisites: []string{"s1"}},
		},
		CreatedAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestSavePlan_CreatesActiveSession(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.SavePlan(ctx, "sess-1", samplePlan()); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}

	got, err := db.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("session not found")
	}
	if got.Status != SessionActive {
		t.Errorf("Status = %q, want %q", got.Status, SessionActive)
	}
	if got.Task != "build a todo api" || got.Total != 2 {
		t.Errorf("unexpected session %+v", got)
	}
	if diff := cmp.Diff(samplePlan(), got.Plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	if !got.StartedAt.Equal(samplePlan().CreatedAt) {
		t.Errorf("StartedAt = %v, want plan creation time", got.StartedAt)
	}
}

func TestSaveSession_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	if err := db.SavePlan(ctx, "sess-1", samplePlan()); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}
	result := &models.SessionResult{
		SessionID:       "sess-1",
		TaskDescription: "build a todo api",
		StartedAt:       start,
		EndedAt:         start.Add(3 * time.Minute),
		Outcomes: []models.SubtaskOutcome{
			{SubtaskID: "s1", Success: true, Score: models.IntPtr(100), Duration: 2 * time.Second},
			{SubtaskID: "s2", Success: true, Corrected: true, CorrectionAttempts: 1, Score: models.IntPtr(85)},
		},
	}
	result.Summarize(2)

	if err := db.SaveSession(ctx, result); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	got, err := db.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != SessionCompleted || !got.Success {
		t.Errorf("Status = %q, Success = %v", got.Status, got.Success)
	}
	if got.AverageScore != 93 || got.Corrected != 1 || got.Successful != 2 {
		t.Errorf("unexpected summary %+v", got)
	}
	if got.Plan == nil {
		t.Error("plan saved with SavePlan was lost")
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(start.Add(3*time.Minute)) {
		t.Errorf("EndedAt = %v", got.EndedAt)
	}
	if diff := cmp.Diff(result.Outcomes, got.Outcomes); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}

	// Saving again replaces outcomes rather than appending.
	result.Outcomes = result.Outcomes[:1]
	if err := db.SaveSession(ctx, result); err != nil {
		t.Fatalf("second SaveSession failed: %v", err)
	}
	outcomes, err := db.Outcomes(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Outcomes failed: %v", err)
	}
	if len(outcomes) != 1 {
		t.Errorf("got %d outcomes, want 1", len(outcomes))
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name   string
		result models.SessionResult
		want   SessionStatus
	}{
		{"completed", models.SessionResult{Success: true}, SessionCompleted},
		{"completed with failed subtasks", models.SessionResult{Failed: 1}, SessionCompleted},
		{"aborted", models.SessionResult{Error: "aborted at subtask s1"}, SessionFailed},
		{"cancelled", models.SessionResult{Cancelled: true}, SessionCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(&tt.result); got != tt.want {
				t.Errorf("StatusOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetSession_NotFound(t *testing.T) {
	db := setupTestDB(t)
	got, err := db.GetSession(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestListSessions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	results := []*models.SessionResult{
		{SessionID: "a", StartedAt: now.Add(-2 * time.Hour), EndedAt: now},
		{SessionID: "b", StartedAt: now.Add(-time.Hour), EndedAt: now, Error: "aborted"},
		{SessionID: "c", StartedAt: now, EndedAt: now, Cancelled: true},
	}
	for _, r := range results {
		if err := db.SaveSession(ctx, r); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
	}

	all, err := db.ListSessions(ctx, nil, 0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	var ids []string
	for _, s := range all {
		ids = append(ids, s.ID)
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	limited, err := db.ListSessions(ctx, nil, 1)
	if err != nil {
		t.Fatalf("ListSessions(limit) failed: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "c" {
		t.Errorf("ListSessions(limit 1) = %+v", limited)
	}

	failed := SessionFailed
	onlyFailed, err := db.ListSessions(ctx, &failed, 0)
	if err != nil {
		t.Fatalf("ListSessions(failed) failed: %v", err)
	}
	if len(onlyFailed) != 1 || onlyFailed[0].ID != "b" {
		t.Errorf("ListSessions(failed) = %+v", onlyFailed)
	}
}

func TestRecoverInterrupted(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.SavePlan(ctx, "crashed", samplePlan()); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}
	if err := db.SaveSession(ctx, &models.SessionResult{SessionID: "done", StartedAt: time.Now(), EndedAt: time.Now()}); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	stale, err := db.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatalf("RecoverInterrupted failed: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "crashed" || stale[0].Status != SessionInterrupted {
		t.Fatalf("RecoverInterrupted = %+v", stale)
	}

	got, err := db.GetSession(ctx, "crashed")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != SessionInterrupted || got.Error != "interrupted" {
		t.Errorf("session not marked interrupted: %+v", got)
	}

	again, err := db.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatalf("second RecoverInterrupted failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected nothing left to recover, got %d", len(again))
	}
}
