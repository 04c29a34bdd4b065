package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/autopilot/internal/events"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

// Controller is the session the keyboard controls act on.
type Controller interface {
	Pause() error
	Resume() error
	Cancel() (*models.SessionResult, error)
}

// SessionApp is the bubbletea model for one session.
type SessionApp struct {
	task     string
	state    string
	total    int
	started  time.Time
	ctrl     Controller
	keys     keyMap
	subtasks *SubtaskList
	logs     *LogPanel
	footer   *Footer
	progress progress.Model
	spinner  spinner.Model
	width    int
	height   int
	done     bool
	quitting bool

	titleStyle lipgloss.Style
	taskStyle  lipgloss.Style
	stateStyle lipgloss.Style
	labelStyle lipgloss.Style
}

// NewSessionApp creates the view for task. ctrl may be nil for a read-only
// view.
func NewSessionApp(task string, ctrl Controller) *SessionApp {
	keys := defaultKeyMap()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &SessionApp{
		task:     task,
		state:    string(models.AgentStateIdle),
		started:  time.Now(),
		ctrl:     ctrl,
		keys:     keys,
		subtasks: NewSubtaskList(),
		logs:     NewLogPanel(),
		footer:   NewFooter(keys),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:  sp,
		width:    80,
		height:   24,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")),
		taskStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		stateStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")),
		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
	}
}

// Init implements tea.Model.
func (a *SessionApp) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *SessionApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a, a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.apply(msg.Event)

	case SessionDoneMsg:
		a.done = true
		if msg.Result != nil && msg.Result.Cancelled {
			a.state = string(models.AgentStateCancelled)
		}
		a.footer.SetSessionDone(msg.Result, msg.Err)
	}
	return a, nil
}

func (a *SessionApp) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, a.keys.Quit):
		a.quitting = true
		return tea.Quit
	case a.done || a.ctrl == nil:
		var cmd tea.Cmd
		a.logs, cmd = a.logs.Update(msg)
		return cmd
	case key.Matches(msg, a.keys.Pause):
		a.control("pause", a.ctrl.Pause)
	case key.Matches(msg, a.keys.Resume):
		a.control("resume", a.ctrl.Resume)
	case key.Matches(msg, a.keys.Cancel):
		a.control("cancel", func() error {
			_, err := a.ctrl.Cancel()
			return err
		})
	default:
		var cmd tea.Cmd
		a.logs, cmd = a.logs.Update(msg)
		return cmd
	}
	return nil
}

func (a *SessionApp) control(name string, fn func() error) {
	if err := fn(); err != nil {
		a.footer.SetNotice(fmt.Sprintf("cannot %s: %v", name, err))
		return
	}
	a.footer.SetNotice("")
}

// apply folds one lifecycle event into the view.
func (a *SessionApp) apply(e events.Event) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	log := func(level LogLevel, format string, args ...any) {
		a.logs.AddLog(LogEntry{Timestamp: ts, Level: level, Message: fmt.Sprintf(format, args...)})
	}

	switch e.Type {
	case events.TaskStart:
		if e.Message != "" {
			a.task = e.Message
		}
		a.state = string(models.AgentStatePlanning)
		log(LogLevelInfo, "Planning task")

	case events.TaskPlanned:
		a.state = string(models.AgentStateExecuting)
		if e.Plan != nil {
			a.subtasks.SetPlan(e.Plan)
			a.total = len(e.Plan.Subtasks)
			if e.Plan.Degraded {
				log(LogLevelWarn, "Using fallback plan: %s", e.Plan.DegradedReason)
			}
		}
		if e.Total > 0 {
			a.total = e.Total
		}
		a.resize()
		log(LogLevelInfo, "Planned %d subtasks", a.total)

	case events.SubtaskStart:
		a.state = string(models.AgentStateExecuting)
		a.subtasks.update(e.SubtaskID, e.SubtaskTitle, func(r *subtaskRow) {
			if r.status != rowCorrecting {
				r.status = rowRunning
				r.attempt = e.Attempt
			}
			r.detail = ""
		})
		log(LogLevelInfo, "Started %s: %s", e.SubtaskID, e.SubtaskTitle)

	case events.SubtaskRetry:
		a.subtasks.update(e.SubtaskID, e.SubtaskTitle, func(r *subtaskRow) {
			r.attempt = e.Attempt
			r.detail = e.Error
		})
		log(LogLevelWarn, "Retrying %s (attempt %d): %s", e.SubtaskID, e.Attempt, e.Error)

	case events.SubtaskSuccess:
		log(LogLevelInfo, "Executed %s", e.SubtaskID)

	case events.SubtaskFailed:
		a.subtasks.update(e.SubtaskID, e.SubtaskTitle, func(r *subtaskRow) {
			// Failed re-executions during correction keep the row
			// correcting; the session's own verdict carries a score.
			if r.status != rowCorrecting || e.Score != nil {
				r.status = rowFailed
			}
			if e.Score != nil {
				r.score = e.Score
			}
			r.detail = e.Error
		})
		log(LogLevelError, "Failed %s: %s", e.SubtaskID, e.Error)

	case events.SubtaskSkipped:
		reason := e.Message
		if reason == "" {
			reason = e.Error
		}
		a.subtasks.update(e.SubtaskID, e.SubtaskTitle, func(r *subtaskRow) {
			r.status = rowSkipped
			r.detail = reason
		})
		log(LogLevelWarn, "Skipped %s: %s", e.SubtaskID, reason)

	case events.VerificationStart:
		a.state = string(models.AgentStateVerifying)
		a.subtasks.update(e.SubtaskID, e.SubtaskTitle, func(r *subtaskRow) {
			if r.status != rowCorrecting {
				r.status = rowVerifying
			}
		})

	case events.VerificationPassed:
		a.subtasks.update(e.SubtaskID, e.SubtaskTitle, func(r *subtaskRow) {
			r.score = e.Score
			r.detail = ""
			if r.status == rowCorrecting {
				r.status = rowCorrected
			} else {
				r.status = rowPassed
			}
		})
		log(LogLevelInfo, "Verified %s (score %s)", e.SubtaskID, scoreText(e.Score))

	case events.VerificationFailed:
		a.subtasks.update(e.SubtaskID, e.SubtaskTitle, func(r *subtaskRow) {
			r.score = e.Score
			r.status = rowFailed
			if e.Verification != nil && len(e.Verification.Issues) > 0 {
				r.detail = e.Verification.Issues[0].Message
			}
		})
		log(LogLevelWarn, "Verification failed for %s (score %s)", e.SubtaskID, scoreText(e.Score))

	case events.CorrectionStart:
		a.subtasks.update(e.SubtaskID, e.SubtaskTitle, func(r *subtaskRow) {
			r.status = rowCorrecting
			r.attempt = e.Attempt
		})
		log(LogLevelWarn, "Correcting %s (attempt %d)", e.SubtaskID, e.Attempt)

	case events.SubtaskCorrected:
		a.subtasks.update(e.SubtaskID, e.SubtaskTitle, func(r *subtaskRow) {
			r.status = rowCorrected
		})
		log(LogLevelInfo, "Corrected %s", e.SubtaskID)

	case events.Paused:
		a.state = string(models.AgentStatePaused)
		log(LogLevelWarn, "Paused")

	case events.Resumed:
		a.state = string(models.AgentStateExecuting)
		log(LogLevelInfo, "Resumed")

	case events.TaskComplete:
		a.state = string(models.AgentStateCompleted)
		log(LogLevelInfo, "Session completed")

	case events.TaskFailed:
		a.state = string(models.AgentStateFailed)
		log(LogLevelError, "Session failed: %s", e.Error)

	case events.Cancelled:
		a.state = string(models.AgentStateCancelled)
		log(LogLevelWarn, "Session cancelled")
	}
}

func scoreText(score *int) string {
	if score == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *score)
}

// Percent is the share of subtasks that reached a final status.
func (a *SessionApp) Percent() float64 {
	total := a.total
	if total == 0 {
		total = a.subtasks.Len()
	}
	if total == 0 {
		return 0
	}
	finished := 0
	for _, r := range a.subtasks.rows {
		switch r.status {
		case rowPassed, rowCorrected, rowFailed, rowSkipped:
			finished++
		}
	}
	if finished > total {
		finished = total
	}
	return float64(finished) / float64(total)
}

// State returns the session state as last reported by events.
func (a *SessionApp) State() string {
	return a.state
}

func (a *SessionApp) resize() {
	a.subtasks.SetWidth(a.width)
	a.footer.SetWidth(a.width)
	barWidth := a.width - 20
	if barWidth > 60 {
		barWidth = 60
	}
	if barWidth < 10 {
		barWidth = 10
	}
	a.progress.Width = barWidth
	// header, progress, list border and title, log title, footer
	used := 4 + a.subtasks.Len() + 3 + 1 + 3
	a.logs.SetSize(a.width, a.height-used)
}

// View implements tea.Model.
func (a *SessionApp) View() string {
	if a.quitting {
		return ""
	}
	var b strings.Builder

	indicator := a.spinner.View()
	if a.done {
		indicator = "●"
	}
	b.WriteString(a.titleStyle.Render("autopilot"))
	b.WriteString("  ")
	b.WriteString(indicator)
	b.WriteString(" ")
	b.WriteString(a.stateStyle.Render(a.state))
	b.WriteString(a.labelStyle.Render(fmt.Sprintf("  %s", time.Since(a.started).Truncate(time.Second))))
	b.WriteString("\n")
	b.WriteString(a.labelStyle.Render("Task: "))
	b.WriteString(a.taskStyle.Render(a.task))
	b.WriteString("\n\n")

	b.WriteString(a.progress.ViewAs(a.Percent()))
	b.WriteString("\n")
	b.WriteString(a.subtasks.View())
	b.WriteString("\n")
	b.WriteString(a.labelStyle.Render("Activity"))
	b.WriteString("\n")
	b.WriteString(a.logs.View())
	b.WriteString("\n")
	b.WriteString(a.footer.View())
	return b.String()
}
