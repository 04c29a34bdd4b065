package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/exec"
	"github.com/ShayCichocki/autopilot/internal/llm"
	"github.com/ShayCichocki/autopilot/internal/memory"
	"github.com/ShayCichocki/autopilot/internal/research"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

const (
	DefaultTestTimeout   = 60 * time.Second
	DefaultDeployTimeout = 120 * time.Second
	DefaultTestCommand   = "npm test"
	DefaultDeployCommand = "npm install"
)

// completionOptions are used for every handler completion.
var completionOptions = llm.Options{Temperature: 0.3, MaxTokens: 3000}

// Memory is the part of the memory store handlers use.
type Memory interface {
	Store(ctx context.Context, e memory.Entry) (string, error)
	Recall(ctx context.Context, query string, limit int) ([]memory.Entry, error)
}

// Researcher learns about a topic from the web.
type Researcher interface {
	LearnAbout(ctx context.Context, topic string) (*research.Result, error)
}

// FileWriter writes files relative to the project root, creating parent
// directories. It returns the absolute path written.
type FileWriter interface {
	WriteFile(rel, content string) (string, error)
}

// Deps are the collaborators shared by the built-in handlers. Memory and
// Researcher are optional.
type Deps struct {
	LLM        llm.Completer
	Memory     Memory
	Researcher Researcher
	Runner     exec.CommandRunner
	Files      FileWriter
	Logger     *zap.Logger

	TestTimeout        time.Duration
	DeployTimeout      time.Duration
	DefaultTestCommand string
}

func (d *Deps) setDefaults() {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.TestTimeout <= 0 {
		d.TestTimeout = DefaultTestTimeout
	}
	if d.DeployTimeout <= 0 {
		d.DeployTimeout = DefaultDeployTimeout
	}
	if d.DefaultTestCommand == "" {
		d.DefaultTestCommand = DefaultTestCommand
	}
}

// NewRegistry returns a registry holding one built-in handler per subtask
// type.
func NewRegistry(deps Deps) Registry {
	deps.setDefaults()
	r := make(Registry)
	r.Register(&ResearchHandler{deps: deps})
	r.Register(&CodeHandler{deps: deps})
	r.Register(&TestHandler{deps: deps})
	r.Register(&DocumentHandler{deps: deps})
	r.Register(&DeployHandler{deps: deps})
	r.Register(&GenericHandler{deps: deps})
	return r
}

// CommandError reports a command that exited non-zero or timed out. Output
// is the combined stdout and stderr captured so far.
type CommandError struct {
	Command  string
	ExitCode int
	TimedOut bool
	Output   string
}

func (e *CommandError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("command %q timed out: %s", e.Command, truncate(e.Output, 500))
	}
	return fmt.Sprintf("command %q exited with code %d: %s", e.Command, e.ExitCode, truncate(e.Output, 500))
}

// runCommand runs command and converts failures into a CommandError that
// carries the partial output.
func runCommand(ctx context.Context, runner exec.CommandRunner, command string, timeout time.Duration) (*exec.CommandResult, error) {
	res, err := runner.Run(ctx, command, exec.RunOptions{Timeout: timeout})
	if res == nil {
		if err == nil {
			err = fmt.Errorf("command %q returned no result", command)
		}
		return nil, err
	}
	if err != nil || !res.Success() {
		return res, &CommandError{
			Command:  command,
			ExitCode: res.ExitCode,
			TimedOut: res.TimedOut,
			Output:   res.Combined(),
		}
	}
	return res, nil
}

// remember stores an entry if a memory is configured. Failures are logged.
func remember(ctx context.Context, deps Deps, typ string, content any, st models.Subtask, importance float64) {
	if deps.Memory == nil {
		return
	}
	b, err := json.Marshal(content)
	if err != nil {
		deps.Logger.Warn("encode memory entry", zap.Error(err))
		return
	}
	_, err = deps.Memory.Store(ctx, memory.Entry{
		Type:       typ,
		Content:    string(b),
		Metadata:   map[string]any{"subtask_id": st.ID, "title": st.Title},
		Importance: importance,
	})
	if err != nil {
		deps.Logger.Warn("store memory entry", zap.String("type", typ), zap.Error(err))
	}
}

// recall returns the content of up to limit relevant entries, or nil.
func recall(ctx context.Context, deps Deps, query string, limit int) []string {
	if deps.Memory == nil {
		return nil
	}
	entries, err := deps.Memory.Recall(ctx, query, limit)
	if err != nil {
		deps.Logger.Warn("recall memory", zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Content)
	}
	return out
}

func contextJSON(taskCtx map[string]any) string {
	if len(taskCtx) == 0 {
		return "{}"
	}
	b, err := json.MarshalIndent(taskCtx, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func bulleted(items []string) string {
	if len(items) == 0 {
		return "- (none)"
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(item)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
