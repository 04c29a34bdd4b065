package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

// keyMap lists the session controls.
type keyMap struct {
	Pause  key.Binding
	Resume key.Binding
	Cancel key.Binding
	Scroll key.Binding
	Quit   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Pause:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
		Resume: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume")),
		Cancel: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
		Scroll: key.NewBinding(key.WithKeys("up", "down", "pgup", "pgdown"), key.WithHelp("↑/↓", "scroll log")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Resume, k.Cancel, k.Scroll, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// Footer renders the key hints, a transient notice and the final result.
type Footer struct {
	help   help.Model
	keys   keyMap
	notice string
	done   bool
	result *models.SessionResult
	err    error

	successStyle lipgloss.Style
	errorStyle   lipgloss.Style
	noticeStyle  lipgloss.Style
}

// NewFooter creates a Footer.
func NewFooter(keys keyMap) *Footer {
	return &Footer{
		help: help.New(),
		keys: keys,

		successStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		noticeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
	}
}

// SetWidth sets the footer width.
func (f *Footer) SetWidth(width int) {
	f.help.Width = width
}

// SetNotice shows msg until the next notice.
func (f *Footer) SetNotice(msg string) {
	f.notice = msg
}

// SetSessionDone switches the footer to the final summary.
func (f *Footer) SetSessionDone(result *models.SessionResult, err error) {
	f.done = true
	f.result = result
	f.err = err
}

// View renders the footer.
func (f *Footer) View() string {
	if f.done {
		return f.summary() + "\n" + f.help.ShortHelpView([]key.Binding{f.keys.Scroll, f.keys.Quit})
	}
	out := f.help.View(f.keys)
	if f.notice != "" {
		out = f.noticeStyle.Render(f.notice) + "\n" + out
	}
	return out
}

func (f *Footer) summary() string {
	r := f.result
	if r == nil {
		if f.err != nil {
			return f.errorStyle.Render("✗ " + f.err.Error())
		}
		return f.errorStyle.Render("✗ session ended without a result")
	}
	counts := fmt.Sprintf("%d/%d succeeded, %d failed, %d skipped, %d corrected, avg score %d",
		r.Successful, r.Total, r.Failed, r.Skipped, r.Corrected, r.AverageScore)
	switch {
	case r.Cancelled:
		return f.noticeStyle.Render("■ Cancelled: " + counts)
	case r.Success:
		return f.successStyle.Render("✓ Completed: " + counts)
	case f.err != nil:
		return f.errorStyle.Render("✗ " + f.err.Error() + ": " + counts)
	default:
		return f.errorStyle.Render("✗ Finished with failures: " + counts)
	}
}
