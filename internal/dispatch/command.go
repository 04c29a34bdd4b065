package dispatch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/exec"
	"github.com/ShayCichocki/autopilot/internal/memory"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

const maxDeployOutput = 1000

// commandRule maps a description keyword to a command.
type commandRule struct {
	keyword string
	command string
}

// Rules are checked in order; the first keyword found wins.
var (
	testCommandRules = []commandRule{
		{"go test", "go test ./..."},
		{"npm test", "npm test"},
		{"jest", "npm run test"},
		{"mocha", "npm run test"},
		{"pytest", "pytest"},
	}
	deployCommandRules = []commandRule{
		{"npm install", "npm install"},
		{"npm run build", "npm run build"},
		{"go build", "go build ./..."},
		{"docker", "docker build -t app ."},
		{"git push", "git push"},
	}
)

func matchCommand(description string, rules []commandRule, fallback string) string {
	lower := strings.ToLower(description)
	for _, r := range rules {
		if strings.Contains(lower, r.keyword) {
			return r.command
		}
	}
	return fallback
}

// TestCommand picks the test command named in the description, or fallback.
func TestCommand(st models.Subtask, fallback string) string {
	return matchCommand(st.Description, testCommandRules, fallback)
}

// DeployCommand picks the deploy command named in the description.
func DeployCommand(st models.Subtask) string {
	return matchCommand(st.Description, deployCommandRules, DefaultDeployCommand)
}

// TestHandler runs the project's tests and reports the counts.
type TestHandler struct {
	deps Deps
}

func (h *TestHandler) Type() models.SubtaskType { return models.SubtaskTypeTest }

func (h *TestHandler) Execute(ctx context.Context, st models.Subtask, _ map[string]any) (*models.ExecutionResult, error) {
	command := TestCommand(st, h.deps.DefaultTestCommand)
	h.deps.Logger.Info("running tests", zap.String("command", command))

	res, err := runCommand(ctx, h.deps.Runner, command, h.deps.TestTimeout)
	if err != nil {
		return nil, fmt.Errorf("tests failed: %w", err)
	}

	results := exec.ParseTestOutput(res.Combined())
	remember(ctx, h.deps, memory.TypeTestExecution, map[string]any{
		"subtask": st.Title,
		"command": command,
		"results": results,
	}, st, 0.7)

	return &models.ExecutionResult{
		Type:         models.SubtaskTypeTest,
		TestResults:  &results,
		Command:      command,
		Deliverables: []string{fmt.Sprintf("Tests run: %d/%d passed", results.Passed, results.Total)},
	}, nil
}

// DeployHandler runs an install, build, container or push command.
type DeployHandler struct {
	deps Deps
}

func (h *DeployHandler) Type() models.SubtaskType { return models.SubtaskTypeDeploy }

func (h *DeployHandler) Execute(ctx context.Context, st models.Subtask, _ map[string]any) (*models.ExecutionResult, error) {
	command := DeployCommand(st)
	h.deps.Logger.Info("running deploy command", zap.String("command", command))

	res, err := runCommand(ctx, h.deps.Runner, command, h.deps.DeployTimeout)
	if err != nil {
		return nil, fmt.Errorf("deploy failed: %w", err)
	}

	output := truncate(res.Combined(), maxDeployOutput)
	remember(ctx, h.deps, memory.TypeDeployment, map[string]any{
		"subtask": st.Title,
		"command": command,
		"output":  output,
	}, st, 0.6)

	return &models.ExecutionResult{
		Type:         models.SubtaskTypeDeploy,
		Command:      command,
		Output:       output,
		Deliverables: []string{"Deploy completed"},
	}, nil
}
