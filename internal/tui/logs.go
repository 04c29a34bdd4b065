package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// maxLogLines bounds the activity log.
const maxLogLines = 500

// LogLevel picks the colour of a log line.
type LogLevel int

const (
	LogLevelInfo LogLevel = iota
	LogLevelWarn
	LogLevelError
)

// LogEntry is one line of session activity.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
}

// LogPanel is a scrollable activity log that follows the tail unless the
// user scrolled up.
type LogPanel struct {
	entries  []LogEntry
	viewport viewport.Model

	timeStyle  lipgloss.Style
	infoStyle  lipgloss.Style
	warnStyle  lipgloss.Style
	errorStyle lipgloss.Style
}

// NewLogPanel creates an empty panel.
func NewLogPanel() *LogPanel {
	return &LogPanel{
		viewport:   viewport.New(80, 8),
		timeStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		infoStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		warnStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		errorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// SetSize resizes the viewport.
func (p *LogPanel) SetSize(width, height int) {
	if height < 1 {
		height = 1
	}
	p.viewport.Width = width
	p.viewport.Height = height
	p.refresh(p.viewport.AtBottom())
}

// AddLog appends an entry, dropping the oldest past maxLogLines.
func (p *LogPanel) AddLog(entry LogEntry) {
	follow := p.viewport.AtBottom() || len(p.entries) == 0
	p.entries = append(p.entries, entry)
	if len(p.entries) > maxLogLines {
		p.entries = p.entries[len(p.entries)-maxLogLines:]
	}
	p.refresh(follow)
}

// Entries returns the buffered entries.
func (p *LogPanel) Entries() []LogEntry {
	return p.entries
}

// Update forwards scroll keys to the viewport.
func (p *LogPanel) Update(msg tea.Msg) (*LogPanel, tea.Cmd) {
	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

// View renders the visible lines.
func (p *LogPanel) View() string {
	return p.viewport.View()
}

func (p *LogPanel) refresh(follow bool) {
	lines := make([]string, len(p.entries))
	for i, e := range p.entries {
		style := p.infoStyle
		switch e.Level {
		case LogLevelWarn:
			style = p.warnStyle
		case LogLevelError:
			style = p.errorStyle
		}
		lines[i] = p.timeStyle.Render(e.Timestamp.Format("15:04:05")) + " " + style.Render(e.Message)
	}
	p.viewport.SetContent(strings.Join(lines, "\n"))
	if follow {
		p.viewport.GotoBottom()
	}
}
