package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/autopilot/internal/events"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

type fakeController struct {
	pauses, resumes, cancels int
	err                      error
}

func (f *fakeController) Pause() error  { f.pauses++; return f.err }
func (f *fakeController) Resume() error { f.resumes++; return f.err }
func (f *fakeController) Cancel() (*models.SessionResult, error) {
	f.cancels++
	return &models.SessionResult{Cancelled: true}, f.err
}

func testPlan() *models.Plan {
	return &models.Plan{
		TaskDescription: "build a todo api",
		Subtasks: []models.Subtask{
			{ID: "s1", Title: "Research frameworks", Type: models.SubtaskTypeResearch},
			{ID: "s2", Title: "Write handlers", Type: models.SubtaskTypeCode},
			{ID: "s3", Title: "Write tests", Type: models.SubtaskTypeTest},
		},
	}
}

func send(app *SessionApp, evs ...events.Event) {
	for _, e := range evs {
		app.Update(EventMsg{Event: e})
	}
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestSessionApp_TracksSubtaskLifecycle(t *testing.T) {
	app := NewSessionApp("", nil)
	send(app,
		events.Event{Type: events.TaskStart, Message: "build a todo api"},
		events.Event{Type: events.TaskPlanned, Plan: testPlan(), Total: 3},
	)
	if app.State() != "executing" {
		t.Errorf("expected executing after plan, got %q", app.State())
	}
	if app.subtasks.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", app.subtasks.Len())
	}

	send(app,
		events.Event{Type: events.SubtaskStart, SubtaskID: "s1", Attempt: 1},
		events.Event{Type: events.SubtaskSuccess, SubtaskID: "s1", Attempt: 1},
		events.Event{Type: events.VerificationStart, SubtaskID: "s1"},
	)
	if st, _ := app.subtasks.status("s1"); st != rowVerifying {
		t.Errorf("expected s1 verifying, got %v", st)
	}
	if app.State() != "verifying" {
		t.Errorf("expected verifying state, got %q", app.State())
	}

	send(app,
		events.Event{Type: events.VerificationPassed, SubtaskID: "s1", Score: models.IntPtr(100)},
		events.Event{Type: events.SubtaskStart, SubtaskID: "s2", Attempt: 1},
		events.Event{Type: events.VerificationFailed, SubtaskID: "s2", Score: models.IntPtr(60)},
		events.Event{Type: events.CorrectionStart, SubtaskID: "s2", Attempt: 1},
		events.Event{Type: events.SubtaskStart, SubtaskID: "s2", Attempt: 1},
		events.Event{Type: events.VerificationPassed, SubtaskID: "s2", Score: models.IntPtr(85)},
		events.Event{Type: events.SubtaskCorrected, SubtaskID: "s2"},
		events.Event{Type: events.SubtaskSkipped, SubtaskID: "s3", Message: "unmet prerequisites: s9"},
	)

	tests := []struct {
		id   string
		want rowStatus
	}{
		{"s1", rowPassed},
		{"s2", rowCorrected},
		{"s3", rowSkipped},
	}
	for _, tt := range tests {
		if got, ok := app.subtasks.status(tt.id); !ok || got != tt.want {
			t.Errorf("status(%s) = %v, want %v", tt.id, got, tt.want)
		}
	}
	if app.Percent() != 1 {
		t.Errorf("expected 100%% progress, got %v", app.Percent())
	}

	view := app.View()
	for _, want := range []string{"build a todo api", "Write handlers", "[85]", "unmet prerequisites: s9"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestSessionApp_ExhaustedCorrectionStaysFailed(t *testing.T) {
	app := NewSessionApp("task", nil)
	send(app,
		events.Event{Type: events.TaskPlanned, Plan: testPlan()},
		events.Event{Type: events.SubtaskStart, SubtaskID: "s1", Attempt: 1},
		events.Event{Type: events.VerificationFailed, SubtaskID: "s1", Score: models.IntPtr(40)},
		events.Event{Type: events.CorrectionStart, SubtaskID: "s1", Attempt: 1},
		events.Event{Type: events.SubtaskFailed, SubtaskID: "s1", Error: "boom"},
	)
	if st, _ := app.subtasks.status("s1"); st != rowCorrecting {
		t.Errorf("expected s1 still correcting, got %v", st)
	}
	send(app, events.Event{Type: events.SubtaskFailed, SubtaskID: "s1", Score: models.IntPtr(40), Error: "verification failed with score 40"})
	if st, _ := app.subtasks.status("s1"); st != rowFailed {
		t.Errorf("expected s1 failed, got %v", st)
	}
	if got := app.Percent(); got < 0.33 || got > 0.34 {
		t.Errorf("expected one third progress, got %v", got)
	}
}

func TestSessionApp_Controls(t *testing.T) {
	ctrl := &fakeController{}
	app := NewSessionApp("task", ctrl)

	app.Update(keyMsg("p"))
	app.Update(keyMsg("r"))
	app.Update(keyMsg("c"))
	if ctrl.pauses != 1 || ctrl.resumes != 1 || ctrl.cancels != 1 {
		t.Errorf("unexpected calls: %+v", ctrl)
	}

	ctrl.err = errors.New("invalid state transition")
	app.Update(keyMsg("r"))
	if !strings.Contains(app.View(), "cannot resume") {
		t.Error("expected rejected control to show a notice")
	}
}

func TestSessionApp_ControlsDisabledAfterDone(t *testing.T) {
	ctrl := &fakeController{}
	app := NewSessionApp("task", ctrl)
	app.Update(SessionDoneMsg{Result: &models.SessionResult{Total: 1, Successful: 1, Success: true}})

	app.Update(keyMsg("p"))
	if ctrl.pauses != 0 {
		t.Error("pause should be ignored once the session is done")
	}
	if !strings.Contains(app.View(), "Completed") {
		t.Error("expected completion summary")
	}
}

func TestSessionApp_PauseResumeEvents(t *testing.T) {
	app := NewSessionApp("task", nil)
	send(app, events.Event{Type: events.Paused})
	if app.State() != "paused" {
		t.Errorf("expected paused, got %q", app.State())
	}
	send(app, events.Event{Type: events.Resumed})
	if app.State() != "executing" {
		t.Errorf("expected executing, got %q", app.State())
	}
	send(app, events.Event{Type: events.Cancelled})
	if app.State() != "cancelled" {
		t.Errorf("expected cancelled, got %q", app.State())
	}
}

func TestSessionApp_Quit(t *testing.T) {
	app := NewSessionApp("task", nil)
	_, cmd := app.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if app.View() != "" {
		t.Error("expected empty view after quit")
	}
}

func TestFooter_Summary(t *testing.T) {
	tests := []struct {
		name   string
		result *models.SessionResult
		err    error
		want   string
	}{
		{"success", &models.SessionResult{Success: true, Total: 2, Successful: 2}, nil, "Completed"},
		{"cancelled", &models.SessionResult{Cancelled: true}, nil, "Cancelled"},
		{"failures", &models.SessionResult{Total: 2, Successful: 1, Failed: 1}, nil, "Finished with failures"},
		{"aborted", &models.SessionResult{Total: 2, Failed: 1}, errors.New("aborted at subtask s1"), "aborted at subtask s1"},
		{"no result", nil, errors.New("planner down"), "planner down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFooter(defaultKeyMap())
			f.SetSessionDone(tt.result, tt.err)
			if got := f.View(); !strings.Contains(got, tt.want) {
				t.Errorf("View() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestLogPanel_Bounded(t *testing.T) {
	p := NewLogPanel()
	for i := 0; i < maxLogLines+25; i++ {
		p.AddLog(LogEntry{Message: "line"})
	}
	if len(p.Entries()) != maxLogLines {
		t.Errorf("expected %d entries, got %d", maxLogLines, len(p.Entries()))
	}
}
