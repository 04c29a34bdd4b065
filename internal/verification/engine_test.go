package verification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/internal/exec"
	"github.com/ShayCichocki/autopilot/internal/llm"
	"github.com/ShayCichocki/autopilot/internal/workspace"
	"github.com/ShayCichocki/autopilot/pkg/models"
)

type fixedCheck struct {
	name    models.CheckName
	score   int
	skipped bool
	issues  []models.Issue
	applies bool
}

func (c fixedCheck) Name() models.CheckName               { return c.name }
func (c fixedCheck) Applies(*models.ExecutionResult) bool { return c.applies }

func (c fixedCheck) Run(context.Context, models.Subtask, *models.ExecutionResult) models.CheckResult {
	return models.CheckResult{Passed: c.score >= 70, Score: c.score, Skipped: c.skipped, Issues: c.issues}
}

type stubCompleter struct {
	text string
	err  error
}

func (s stubCompleter) Complete(context.Context, string, llm.Options) (string, error) {
	return s.text, s.err
}

type stubRunner struct {
	result *exec.CommandResult
	err    error
	onPath bool
	ran    []string
}

func (r *stubRunner) Run(_ context.Context, command string, _ exec.RunOptions) (*exec.CommandResult, error) {
	r.ran = append(r.ran, command)
	return r.result, r.err
}

func (r *stubRunner) LookPath(string) bool { return r.onPath }

func scores(t *testing.T, checks []models.CheckResult) []int {
	t.Helper()
	out := make([]int, len(checks))
	for i, c := range checks {
		out[i] = c.Score
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		scores []int
		want   int
		passed bool
	}{
		{"mean passes", []int{100, 100, 40}, 80, true},
		{"mean fails", []int{100, 40, 0}, 47, false},
		{"exact threshold", []int{70}, 70, true},
		{"rounds half up", []int{70, 69}, 70, true},
		{"none", nil, 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var checks []models.CheckResult
			for _, s := range tt.scores {
				checks = append(checks, models.CheckResult{Score: s})
			}
			r := Aggregate(checks, DefaultThreshold)
			assert.Equal(t, tt.want, r.Score)
			assert.Equal(t, tt.passed, r.Passed)
		})
	}
}

func TestAggregate_IgnoresSkipped(t *testing.T) {
	r := Aggregate([]models.CheckResult{
		{Score: 60},
		{Score: 0, Skipped: true},
		{Score: 90},
	}, DefaultThreshold)
	assert.Equal(t, 75, r.Score)
	assert.True(t, r.Passed)
}

func TestEngine_SortsIssuesAndTagsChecks(t *testing.T) {
	e := NewWithChecks(0, nil,
		fixedCheck{name: models.CheckLinting, score: 90, applies: true, issues: []models.Issue{
			{Type: "lint", Severity: models.SeverityLow},
		}},
		fixedCheck{name: models.CheckDocumentation, score: 0, applies: false},
		fixedCheck{name: models.CheckSecurity, score: 0, applies: true, issues: []models.Issue{
			{Type: "a", Severity: models.SeverityMedium},
			{Type: "b", Severity: models.SeverityCritical},
		}},
		fixedCheck{name: models.CheckCriteria, score: 100, applies: true, issues: []models.Issue{
			{Type: "c", Severity: models.SeverityHigh},
		}},
	)

	r := e.Verify(context.Background(), models.Subtask{ID: "s1"}, &models.ExecutionResult{Type: models.SubtaskTypeCode})
	assert.Equal(t, "s1", r.SubtaskID)
	assert.Equal(t, []int{90, 0, 100}, scores(t, r.Checks))
	assert.Equal(t, 63, r.Score)
	assert.False(t, r.Passed)
	assert.Equal(t, DefaultThreshold, r.Threshold)

	var order []string
	for _, is := range r.Issues {
		order = append(order, is.Type)
	}
	assert.Equal(t, []string{"b", "c", "a", "lint"}, order)
	assert.Equal(t, models.CheckSecurity, r.Issues[0].Check)
	assert.Equal(t, models.CheckCriteria, r.Issues[1].Check)
}

func TestEngine_GatesChecksByType(t *testing.T) {
	runner := &stubRunner{result: &exec.CommandResult{Stdout: "ok  \texample.com/x\t0.1s"}}
	cfg := DefaultConfig()
	cfg.TestCommand = "go test ./..."
	e := New(cfg, Deps{Runner: runner, LLM: stubCompleter{}})

	names := func(r *models.VerificationResult) []models.CheckName {
		var out []models.CheckName
		for _, c := range r.Checks {
			out = append(out, c.Name)
		}
		return out
	}

	code := e.Verify(context.Background(), models.Subtask{}, &models.ExecutionResult{Type: models.SubtaskTypeCode})
	assert.Equal(t, []models.CheckName{
		models.CheckSyntax, models.CheckTests, models.CheckLinting, models.CheckSecurity, models.CheckCriteria,
	}, names(code))

	test := e.Verify(context.Background(), models.Subtask{}, &models.ExecutionResult{Type: models.SubtaskTypeTest, Command: "pytest"})
	assert.Equal(t, []models.CheckName{models.CheckTests, models.CheckCriteria}, names(test))
	assert.Equal(t, "pytest", runner.ran[len(runner.ran)-1])

	doc := e.Verify(context.Background(), models.Subtask{}, &models.ExecutionResult{Type: models.SubtaskTypeDocument})
	assert.Equal(t, []models.CheckName{models.CheckCriteria, models.CheckDocumentation}, names(doc))

	research := e.Verify(context.Background(), models.Subtask{}, &models.ExecutionResult{Type: models.SubtaskTypeResearch})
	assert.Equal(t, []models.CheckName{models.CheckCriteria}, names(research))
	assert.Equal(t, 100, research.Score)
}

func TestEngine_DisabledChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Disabled = []models.CheckName{models.CheckTests, models.CheckCriteria}
	e := New(cfg, Deps{})

	r := e.Verify(context.Background(), models.Subtask{}, &models.ExecutionResult{Type: models.SubtaskTypeCode})
	for _, c := range r.Checks {
		assert.NotEqual(t, models.CheckTests, c.Name)
		assert.NotEqual(t, models.CheckCriteria, c.Name)
	}
}

func TestSyntaxCheck(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
		ok      bool
		line    int
	}{
		{"valid go", "main.go", "package main\n\nfunc main() {}\n", true, 0},
		{"broken go", "main.go", "package main\n\nfunc main() {\n\tx := \n", false, 0},
		{"valid python", "app.py", "def f(x):\n    return x + 1\n", true, 0},
		{"broken python", "app.py", "def f(x)\n    return x\n", false, 0},
		{"valid js", "index.js", "const a = (b) => b * 2;\n", true, 0},
		{"broken js", "index.js", "const a = ;\n", false, 1},
		{"valid ts", "a.ts", "export function f(n: number): number { return n }\n", true, 0},
		{"broken json", "cfg.json", `{"a": }`, false, 0},
		{"unknown ext", "notes.txt", "{{{{", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &SyntaxCheck{}
			r := c.Run(context.Background(), models.Subtask{}, &models.ExecutionResult{
				Type:  models.SubtaskTypeCode,
				Files: []models.GeneratedFile{{Path: tt.path, Content: tt.content}},
			})
			assert.Equal(t, tt.ok, r.Passed)
			if tt.ok {
				assert.Equal(t, 100, r.Score)
				return
			}
			assert.Equal(t, 0, r.Score)
			require.Len(t, r.Issues, 1)
			assert.Equal(t, models.SeverityCritical, r.Issues[0].Severity)
			assert.Equal(t, tt.path, r.Issues[0].File)
			if tt.line > 0 {
				assert.Equal(t, tt.line, r.Issues[0].Line)
			}
		})
	}
}

func TestSyntaxCheck_ReadsBackAndExcludes(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := workspace.NewWithFs(fs, "/proj")
	_, err := files.WriteFile("pkg/a.go", "package a\nfunc {")
	require.NoError(t, err)
	_, err = files.WriteFile("vendor/b.go", "package b\nfunc {")
	require.NoError(t, err)

	c := &SyntaxCheck{files: files, exclude: []string{"vendor/**"}}
	r := c.Run(context.Background(), models.Subtask{}, &models.ExecutionResult{
		Type:  models.SubtaskTypeCode,
		Files: []models.GeneratedFile{{Path: "pkg/a.go"}, {Path: "vendor/b.go"}},
	})
	assert.False(t, r.Passed)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, "pkg/a.go", r.Issues[0].File)
}

func TestTestsCheck(t *testing.T) {
	tests := []struct {
		name   string
		result *exec.CommandResult
		score  int
		passed bool
	}{
		{"all pass", &exec.CommandResult{Stdout: "Tests:       4 passed, 4 total"}, 100, true},
		{"some fail", &exec.CommandResult{Stdout: "Tests:       1 failed, 3 passed, 4 total", ExitCode: 1}, 75, false},
		{"no tests", &exec.CommandResult{Stdout: "nothing to run"}, 0, false},
		{"crash", &exec.CommandResult{Stderr: "command not found", ExitCode: 127}, 0, false},
		{"timeout", &exec.CommandResult{TimedOut: true, ExitCode: -1}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &TestsCheck{runner: &stubRunner{result: tt.result}, command: "npm test"}
			r := c.Run(context.Background(), models.Subtask{}, &models.ExecutionResult{Type: models.SubtaskTypeCode})
			assert.Equal(t, tt.score, r.Score)
			assert.Equal(t, tt.passed, r.Passed)
			if !tt.passed {
				assert.NotEmpty(t, r.Issues)
			}
		})
	}
}

func TestLintCheck(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		onPath  bool
		skipped bool
		score   int
		passed  bool
	}{
		{"not installed", `[]`, false, true, 0, true},
		{"unreadable", "Oops", true, true, 0, true},
		{"clean eslint", `[{"errorCount":0,"warningCount":2}]`, true, false, 100, true},
		{"some errors", `[{"errorCount":3,"warningCount":0},{"errorCount":1,"warningCount":1}]`, true, false, 80, true},
		{"too many", `[{"errorCount":12,"warningCount":0}]`, true, false, 40, false},
		{"golangci", `{"Issues":[{"Severity":""},{"Severity":"warning"}]}`, true, false, 95, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &LintCheck{
				runner:    &stubRunner{result: &exec.CommandResult{Stdout: tt.stdout, ExitCode: 1}, onPath: tt.onPath},
				command:   "npx eslint . --format json",
				maxErrors: DefaultMaxLintErrors,
			}
			r := c.Run(context.Background(), models.Subtask{}, &models.ExecutionResult{Type: models.SubtaskTypeCode})
			assert.Equal(t, tt.skipped, r.Skipped)
			assert.Equal(t, tt.passed, r.Passed)
			if !tt.skipped {
				assert.Equal(t, tt.score, r.Score)
			}
		})
	}
}

func TestScanSecurity(t *testing.T) {
	content := strings.Join([]string{
		`const x = eval(input);`,
		`child.exec (cmd)`,
		`el.innerHTML = html;`,
		`const password = "hunter2";`,
		`API_KEY = 'abc123'`,
		`fine := strings.TrimSpace(s)`,
	}, "\n")
	issues := ScanSecurity("a.js", content)

	var kinds []string
	for _, is := range issues {
		kinds = append(kinds, is.Type)
	}
	assert.Equal(t, []string{"dynamic-eval", "unvalidated-exec", "dom-injection", "hardcoded-password", "hardcoded-api-key"}, kinds)
	assert.Equal(t, 4, issues[3].Line)
}

type stubAnalyzer struct{ issues []models.Issue }

func (a stubAnalyzer) Analyze(context.Context, string, string) ([]models.Issue, error) {
	return a.issues, nil
}

func TestSecurityCheck(t *testing.T) {
	res := &models.ExecutionResult{Type: models.SubtaskTypeCode, Files: []models.GeneratedFile{
		{Path: "ok.go", Content: "package ok\n"},
	}}
	c := &SecurityCheck{}
	r := c.Run(context.Background(), models.Subtask{}, res)
	assert.True(t, r.Passed)
	assert.Equal(t, 100, r.Score)

	res.Files = append(res.Files, models.GeneratedFile{Path: "bad.js", Content: "eval(x)"})
	r = c.Run(context.Background(), models.Subtask{}, res)
	assert.False(t, r.Passed)
	assert.Equal(t, 0, r.Score)

	c = &SecurityCheck{maxIssues: 1}
	r = c.Run(context.Background(), models.Subtask{}, res)
	assert.True(t, r.Passed)
	assert.Len(t, r.Issues, 1)

	c = &SecurityCheck{analyzer: stubAnalyzer{issues: []models.Issue{{Type: "sqli", Severity: models.SeverityHigh}}}}
	r = c.Run(context.Background(), models.Subtask{}, res)
	assert.False(t, r.Passed)
	assert.Len(t, r.Issues, 2)
}

func TestCriteriaCheck(t *testing.T) {
	withCriteria := models.Subtask{ID: "s", VerificationCriteria: []string{"server starts"}}

	tests := []struct {
		name   string
		st     models.Subtask
		llm    stubCompleter
		score  int
		passed bool
		issues int
	}{
		{"no criteria", models.Subtask{}, stubCompleter{err: errors.New("unused")}, 100, true, 0},
		{"fulfilled", withCriteria, stubCompleter{text: `{"fulfilled": true, "criteriaResults": [], "overallScore": 92}`}, 92, true, 0},
		{"not fulfilled", withCriteria, stubCompleter{text: "Verdict:\n" + `{"fulfilled": false, "criteriaResults": [{"criterion": "server starts", "met": false, "explanation": "no main"}]}`}, 50, false, 1},
		{"fulfilled without score", withCriteria, stubCompleter{text: `{"fulfilled": true}`}, 100, true, 0},
		{"unreadable", withCriteria, stubCompleter{text: "looks good to me"}, 75, true, 0},
		{"judge error", withCriteria, stubCompleter{err: llm.ErrEmptyResponse}, 70, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &CriteriaCheck{llm: tt.llm, logger: zap.NewNop()}
			r := c.Run(context.Background(), tt.st, &models.ExecutionResult{Type: models.SubtaskTypeCode})
			assert.Equal(t, tt.score, r.Score)
			assert.Equal(t, tt.passed, r.Passed)
			assert.Len(t, r.Issues, tt.issues)
		})
	}
}

func TestDocumentationCheck(t *testing.T) {
	long := strings.Repeat("word ", 50)
	tests := []struct {
		name   string
		file   *models.GeneratedFile
		score  int
		passed bool
	}{
		{"missing", nil, 0, false},
		{"short", &models.GeneratedFile{Path: "README.md", Content: "# Hi"}, 30, false},
		{"no heading", &models.GeneratedFile{Path: "README.md", Content: long}, 60, false},
		{"good", &models.GeneratedFile{Path: "README.md", Content: "# Title\n\n" + long}, 100, true},
		{"plain text", &models.GeneratedFile{Path: "NOTES.txt", Content: long}, 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &DocumentationCheck{}
			r := c.Run(context.Background(), models.Subtask{}, &models.ExecutionResult{Type: models.SubtaskTypeDocument, File: tt.file})
			assert.Equal(t, tt.score, r.Score)
			assert.Equal(t, tt.passed, r.Passed)
		})
	}
}
