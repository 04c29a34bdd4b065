package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/autopilot/internal/events"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

// EventMsg carries one lifecycle event into the program.
type EventMsg struct {
	Event events.Event
}

// SessionDoneMsg is sent when ExecuteTask returns.
type SessionDoneMsg struct {
	Result *models.SessionResult
	Err    error
}

// NewProgram creates an alt-screen program for app.
func NewProgram(app *SessionApp) *tea.Program {
	return tea.NewProgram(app, tea.WithAltScreen())
}

// Forward sends every event from ch to program until ch is closed.
func Forward(program *tea.Program, ch <-chan events.Event) {
	for e := range ch {
		program.Send(EventMsg{Event: e})
	}
}
