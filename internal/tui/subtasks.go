package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

// rowStatus is the display state of one subtask.
type rowStatus int

const (
	rowPending rowStatus = iota
	rowRunning
	rowVerifying
	rowCorrecting
	rowPassed
	rowCorrected
	rowFailed
	rowSkipped
)

func (s rowStatus) icon() string {
	switch s {
	case rowRunning:
		return "▶"
	case rowVerifying:
		return "◎"
	case rowCorrecting:
		return "↻"
	case rowPassed:
		return "✓"
	case rowCorrected:
		return "✓"
	case rowFailed:
		return "✗"
	case rowSkipped:
		return "–"
	default:
		return "○"
	}
}

type subtaskRow struct {
	id      string
	title   string
	kind    models.SubtaskType
	status  rowStatus
	score   *int
	attempt int
	detail  string
}

// SubtaskList shows the plan with a status per subtask.
type SubtaskList struct {
	rows  []subtaskRow
	index map[string]int
	width int

	titleStyle   lipgloss.Style
	borderStyle  lipgloss.Style
	pendingStyle lipgloss.Style
	runningStyle lipgloss.Style
	doneStyle    lipgloss.Style
	warnStyle    lipgloss.Style
	failedStyle  lipgloss.Style
	dimStyle     lipgloss.Style
}

// NewSubtaskList creates an empty list.
func NewSubtaskList() *SubtaskList {
	return &SubtaskList{
		index: make(map[string]int),
		width: 80,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1),

		borderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")),

		pendingStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		runningStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		doneStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		warnStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		failedStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		dimStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// SetPlan replaces the rows with the plan's subtasks, all pending.
func (l *SubtaskList) SetPlan(plan *models.Plan) {
	l.rows = l.rows[:0]
	l.index = make(map[string]int, len(plan.Subtasks))
	for _, st := range plan.Subtasks {
		l.index[st.ID] = len(l.rows)
		l.rows = append(l.rows, subtaskRow{id: st.ID, title: st.Title, kind: st.Type})
	}
}

// SetWidth sets the rendered width.
func (l *SubtaskList) SetWidth(width int) {
	l.width = width
}

// Len returns the number of rows.
func (l *SubtaskList) Len() int {
	return len(l.rows)
}

// update applies fn to the row for id. Unknown ids are appended so events
// that arrive before the plan still show up.
func (l *SubtaskList) update(id, title string, fn func(*subtaskRow)) {
	if id == "" {
		return
	}
	i, ok := l.index[id]
	if !ok {
		i = len(l.rows)
		l.index[id] = i
		l.rows = append(l.rows, subtaskRow{id: id, title: title})
	}
	fn(&l.rows[i])
}

// status returns the status of id.
func (l *SubtaskList) status(id string) (rowStatus, bool) {
	i, ok := l.index[id]
	if !ok {
		return rowPending, false
	}
	return l.rows[i].status, true
}

// View renders the list.
func (l *SubtaskList) View() string {
	var b strings.Builder
	b.WriteString(l.titleStyle.Render("Subtasks"))
	b.WriteString("\n")
	if len(l.rows) == 0 {
		b.WriteString(l.dimStyle.Render("  planning..."))
	}
	for i, r := range l.rows {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(l.renderRow(r))
	}
	inner := l.width - 2
	if inner < 20 {
		inner = 20
	}
	return l.borderStyle.Width(inner).Render(b.String())
}

func (l *SubtaskList) renderRow(r subtaskRow) string {
	style := l.pendingStyle
	switch r.status {
	case rowRunning, rowVerifying:
		style = l.runningStyle
	case rowCorrecting, rowCorrected:
		style = l.warnStyle
	case rowPassed:
		style = l.doneStyle
	case rowFailed:
		style = l.failedStyle
	case rowSkipped:
		style = l.dimStyle
	}

	title := r.title
	if limit := l.width - 30; limit > 10 && len(title) > limit {
		title = title[:limit-3] + "..."
	}
	line := fmt.Sprintf(" %s %-10s %s", style.Render(r.status.icon()), l.dimStyle.Render(string(r.kind)), title)
	if r.score != nil {
		line += "  " + style.Render(fmt.Sprintf("[%d]", *r.score))
	}
	if r.attempt > 1 && (r.status == rowRunning || r.status == rowCorrecting) {
		line += l.dimStyle.Render(fmt.Sprintf("  attempt %d", r.attempt))
	}
	if r.detail != "" {
		line += "\n     " + l.dimStyle.Render(r.detail)
	}
	return line
}
